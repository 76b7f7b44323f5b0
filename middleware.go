package apigate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/nrednav/cuid2"

	"github.com/groundline/apigate/token"
)

// HandlerFunc is the business logic behind one operation. It receives the
// request-scoped context and returns a Result, or an error that the gate
// converts into an error envelope.
type HandlerFunc func(*Request) (Result, error)

// Gate is the request lifecycle controller. It decides who the caller is,
// whether they may invoke the requested operation, and how the result or
// error is serialized back.
type Gate struct {
	config  Config
	store   UserStore
	codec   *token.Codec
	authn   *Authenticator
	authz   *Authorizer
	logger  Logger
	metrics Metrics
	tracer  Tracer
	now     func() time.Time
}

// New constructs a Gate with the supplied options. A user store and a token
// secret are required; everything else has defaults.
//
// Example:
//
//	gate, err := apigate.New(
//	    apigate.WithUserStore(store),
//	    apigate.WithConfig(apigate.Config{TokenSecret: secret}),
//	)
func New(opts ...Option) (*Gate, error) {
	g := &Gate{now: time.Now}

	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	if g.store == nil {
		return nil, ErrUserStoreNil
	}
	g.config.applyDefaults()
	if g.config.TokenSecret == "" {
		return nil, ErrTokenSecretSet
	}
	if g.logger == nil {
		g.logger = &DefaultLogger{}
	}
	if g.metrics == nil {
		g.metrics = &NoopMetrics{}
	}
	if g.tracer == nil {
		g.tracer = &NoopTracer{}
	}

	codec, err := token.NewCodec(token.Config{
		Secret:     g.config.TokenSecret,
		Algorithm:  g.config.TokenAlgorithm,
		Expiration: g.config.TokenExpiration,
		Refresh:    g.config.TokenRefresh,
	}, token.WithClock(g.now))
	if err != nil {
		return nil, fmt.Errorf("invalid token configuration: %w", err)
	}
	g.codec = codec

	g.authn = NewAuthenticator(g.store, codec, g.logger)
	g.authn.now = g.now
	g.authz = NewAuthorizer(g.store, g.logger)

	return g, nil
}

// Codec exposes the gate's token codec, e.g. for a login endpoint that
// issues the first token.
func (g *Gate) Codec() *token.Codec {
	return g.codec
}

// Handle registers business logic under an operation identifier and returns
// the http.Handler running the full lifecycle in front of it: argument
// merging, authentication, authorization, dispatch and response shaping.
func (g *Gate) Handle(operationID string, h HandlerFunc, opts ...HandlerOption) http.Handler {
	hc := handlerConfig{
		protected:      true,
		supportedTypes: g.config.SupportedTypes,
	}
	for _, opt := range opts {
		opt(&hc)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rq := &Request{
			id:          cuid2.Generate(),
			r:           r,
			w:           w,
			gate:        g,
			operationID: operationID,
			supported:   hc.supportedTypes,
			args:        cloneValues(r.URL.Query()),
			status:      http.StatusOK,
			message:     http.StatusText(http.StatusOK),
		}

		g.applyCORS(w)

		// Preflight always passes, with no body and no authentication.
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		rq.mergeBodyArguments()

		if hc.protected {
			principal, err := g.Verify(r, rq.args, rq, operationID)
			if err != nil {
				outcome := "unauthenticated"
				if errors.Is(err, ErrAuthorization) {
					outcome = "unauthorized"
				}
				g.metrics.IncCounter(metricRequests, map[string]string{
					"operation": operationID, "outcome": outcome,
				})
				rq.finishError(http.StatusUnauthorized, nil)
				return
			}
			rq.principal = principal
		}

		span := g.tracer.StartSpan("apigate.dispatch")
		span.SetTag("operation", operationID)
		start := time.Now()
		result, err := dispatch(h, rq)
		span.Finish()
		g.metrics.ObserveHistogram(metricDispatchSeconds, time.Since(start).Seconds(),
			map[string]string{"operation": operationID})

		if err != nil {
			status := statusOf(err)
			if status < http.StatusInternalServerError {
				g.logger.Warnf("[%s] %s failed: %v", rq.id, operationID, err)
			} else {
				g.logger.Errorf("[%s] %s failed: %v", rq.id, operationID, err)
			}
			g.metrics.IncCounter(metricRequests, map[string]string{
				"operation": operationID, "outcome": "error",
			})
			rq.finishError(status, err)
			return
		}

		g.metrics.IncCounter(metricRequests, map[string]string{
			"operation": operationID, "outcome": "ok",
		})
		rq.finish(result)
	})
}

// dispatch invokes the handler, converting a panic into an error so the
// lifecycle always ends in a well-formed envelope.
func dispatch(h HandlerFunc, rq *Request) (result Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return h(rq)
}

// Verify runs credential extraction, authentication and authorization for a
// request. It returns ErrAuthentication or ErrAuthorization on denial; both
// are answered with a 401 by the gate's own lifecycle, and framework
// adapters are expected to do the same.
func (g *Gate) Verify(r *http.Request, args url.Values, sink TokenSink, operationID string) (*Principal, error) {
	span := g.tracer.StartSpan("apigate.authenticate")
	creds, err := ExtractCredentials(r, args)
	if err != nil {
		g.logger.Warnf("credential extraction failed: %v", err)
		span.Finish()
		return nil, ErrAuthentication
	}
	principal := g.authn.Authenticate(r.Context(), creds, sink)
	span.Finish()
	if principal == nil {
		return nil, ErrAuthentication
	}

	span = g.tracer.StartSpan("apigate.authorize")
	allowed := g.authz.Authorize(r.Context(), principal, operationID)
	span.Finish()
	if !allowed {
		g.logger.Warnf("access denied for [%s] on [%s]", principal.Name, operationID)
		return nil, ErrAuthorization
	}

	return principal, nil
}

// CheckToken authenticates and authorizes a bare token credential, for
// transports without HTTP request semantics (such as gRPC metadata). No
// token refresh is performed.
func (g *Gate) CheckToken(ctx context.Context, raw string, operationID string) (*Principal, error) {
	principal := g.authn.Authenticate(ctx, Credentials{Kind: KindBearer, Token: raw}, nil)
	if principal == nil {
		return nil, ErrAuthentication
	}
	if !g.authz.Authorize(ctx, principal, operationID) {
		g.logger.Warnf("access denied for [%s] on [%s]", principal.Name, operationID)
		return nil, ErrAuthorization
	}
	return principal, nil
}

// applyCORS sets the fixed CORS header set on every response.
func (g *Gate) applyCORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", g.config.AllowedOrigin)
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers",
		"x-requested-with,authorization,content-type,access-control-allow-origin")
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, values := range v {
		out[k] = append([]string(nil), values...)
	}
	return out
}
