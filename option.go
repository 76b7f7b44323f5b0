package apigate

import (
	"errors"
	"time"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultTokenAlgorithm  = "HS256"
	DefaultTokenExpiration = 8 * time.Hour
	DefaultTokenRefresh    = time.Hour
	DefaultAllowedOrigin   = "*"
)

// Config enumerates every setting the gate reads. It is passed in explicitly;
// nothing here is read from process-wide state.
type Config struct {
	// TokenSecret signs and verifies tokens. Required.
	TokenSecret string
	// TokenAlgorithm names the signing algorithm. Default HS256.
	TokenAlgorithm string
	// TokenExpiration is the lifetime of issued tokens. Default 8h.
	TokenExpiration time.Duration
	// TokenRefresh is the token age beyond which authentication reissues a
	// token. Default 1h.
	TokenRefresh time.Duration
	// AllowedOrigin is echoed in Access-Control-Allow-Origin. Default "*".
	AllowedOrigin string
	// SupportedTypes is the default supported-type list for handlers that
	// do not declare their own. Default html, plain text, CSV, JSON.
	SupportedTypes []string
	// Debug includes error detail in error envelopes. Off by default;
	// clients then only see the generic status message.
	Debug bool
}

func (c *Config) applyDefaults() {
	if c.TokenAlgorithm == "" {
		c.TokenAlgorithm = DefaultTokenAlgorithm
	}
	if c.TokenExpiration == 0 {
		c.TokenExpiration = DefaultTokenExpiration
	}
	if c.TokenRefresh == 0 {
		c.TokenRefresh = DefaultTokenRefresh
	}
	if c.AllowedOrigin == "" {
		c.AllowedOrigin = DefaultAllowedOrigin
	}
	if len(c.SupportedTypes) == 0 {
		c.SupportedTypes = DefaultSupportedTypes
	}
}

// Option configures the Gate. Options returning an error abort construction.
type Option func(*Gate) error

// Sentinel errors for configuration validation.
var (
	ErrUserStoreNil   = errors.New("user store cannot be nil (use WithUserStore)")
	ErrTokenSecretSet = errors.New("token secret is required (set Config.TokenSecret)")
	ErrLoggerNil      = errors.New("logger cannot be nil")
	ErrMetricsNil     = errors.New("metrics cannot be nil")
	ErrTracerNil      = errors.New("tracer cannot be nil")
)

// WithConfig sets the gate configuration.
func WithConfig(cfg Config) Option {
	return func(g *Gate) error {
		g.config = cfg
		return nil
	}
}

// WithUserStore sets the external user store (REQUIRED).
func WithUserStore(store UserStore) Option {
	return func(g *Gate) error {
		if store == nil {
			return ErrUserStoreNil
		}
		g.store = store
		return nil
	}
}

// WithLogger sets the logger used throughout the request lifecycle.
//
// Default: DefaultLogger on the standard library log package.
func WithLogger(logger Logger) Option {
	return func(g *Gate) error {
		if logger == nil {
			return ErrLoggerNil
		}
		g.logger = logger
		return nil
	}
}

// WithMetrics sets the metrics implementation.
//
// Default: NoopMetrics.
func WithMetrics(m Metrics) Option {
	return func(g *Gate) error {
		if m == nil {
			return ErrMetricsNil
		}
		g.metrics = m
		return nil
	}
}

// WithTracer sets the tracer implementation.
//
// Default: NoopTracer.
func WithTracer(t Tracer) Option {
	return func(g *Gate) error {
		if t == nil {
			return ErrTracerNil
		}
		g.tracer = t
		return nil
	}
}

// WithClock overrides the gate's time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) error {
		g.now = now
		return nil
	}
}

// HandlerOption configures a single handler registration.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	protected      bool
	supportedTypes []string
}

// Unprotected marks a handler as requiring no authentication or
// authorization. Everything else in the lifecycle still applies.
func Unprotected() HandlerOption {
	return func(hc *handlerConfig) {
		hc.protected = false
	}
}

// WithSupportedTypes overrides the content types this handler can answer
// with, in preference order.
func WithSupportedTypes(types ...string) HandlerOption {
	return func(hc *handlerConfig) {
		if len(types) > 0 {
			hc.supportedTypes = types
		}
	}
}
