// Package token issues and verifies the signed, time-limited tokens that
// carry an authenticated subject between requests.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrSignatureInvalid is returned by Verify when the token signature does not
// validate against the configured secret. A tampered token is a hard failure,
// unlike an expired one.
var ErrSignatureInvalid = errors.New("token signature verification failed")

// Supported signing algorithms. Tokens are symmetric, so only the HMAC
// family is accepted.
var allowedAlgorithms = map[string]jwa.SignatureAlgorithm{
	"HS256": jwa.HS256,
	"HS384": jwa.HS384,
	"HS512": jwa.HS512,
}

// Config carries the token settings. All values are explicit; the codec
// never reads process-wide state.
type Config struct {
	// Secret is the symmetric signing key. Required.
	Secret string
	// Algorithm names the signing algorithm (HS256, HS384 or HS512).
	Algorithm string
	// Expiration is the token lifetime.
	Expiration time.Duration
	// Refresh is the token age beyond which a still-valid token is
	// silently reissued during authentication.
	Refresh time.Duration
}

// Claims is the decoded token payload.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Valid reports whether the claims carry a subject. Verify returns zero
// Claims for an expired token, so callers treat !Valid as "no credential
// presented".
func (c Claims) Valid() bool {
	return c.Subject != ""
}

// Stale reports whether the token is older than the given refresh threshold
// at the given instant.
func (c Claims) Stale(threshold time.Duration, now time.Time) bool {
	return now.Sub(c.IssuedAt) > threshold
}

// Codec creates and verifies signed subject tokens.
type Codec struct {
	secret     []byte
	alg        jwa.SignatureAlgorithm
	expiration time.Duration
	refresh    time.Duration
	now        func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec builds a Codec from the given configuration.
func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret is required but was empty")
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "HS256"
	}
	alg, ok := allowedAlgorithms[cfg.Algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}
	if cfg.Expiration <= 0 {
		return nil, errors.New("token expiration must be positive")
	}

	c := &Codec{
		secret:     []byte(cfg.Secret),
		alg:        alg,
		expiration: cfg.Expiration,
		refresh:    cfg.Refresh,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Refresh returns the configured refresh threshold.
func (c *Codec) Refresh() time.Duration {
	return c.refresh
}

// Issue creates a signed token for the subject. The validity window is
// truncated to whole seconds, matching what survives a round trip through
// the JWT claims.
func (c *Codec) Issue(subject string) (string, Claims, error) {
	issued := c.now().Truncate(time.Second)
	expires := issued.Add(c.expiration).Truncate(time.Second)

	tok, err := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(issued).
		Expiration(expires).
		Build()
	if err != nil {
		return "", Claims{}, fmt.Errorf("failed building token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(c.alg, c.secret))
	if err != nil {
		return "", Claims{}, fmt.Errorf("failed signing token: %w", err)
	}

	return string(signed), Claims{Subject: subject, IssuedAt: issued, ExpiresAt: expires}, nil
}

// Verify checks the token signature and validity window.
//
// A token that fails signature verification (or cannot be parsed at all)
// returns ErrSignatureInvalid. A token with a valid signature that has merely
// expired returns zero Claims and no error: the caller treats it the same as
// an absent credential. Only a token that passes both checks yields populated
// Claims.
func (c *Codec) Verify(raw string) (Claims, error) {
	tok, err := jwt.Parse([]byte(raw), jwt.WithKey(c.alg, c.secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %s", ErrSignatureInvalid, err)
	}

	err = jwt.Validate(tok, jwt.WithClock(jwt.ClockFunc(c.now)))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return Claims{}, nil
		}
		return Claims{}, fmt.Errorf("%w: %s", ErrSignatureInvalid, err)
	}

	return Claims{
		Subject:   tok.Subject(),
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.Expiration(),
	}, nil
}
