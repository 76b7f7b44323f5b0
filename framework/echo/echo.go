// Package apiechohandler adapts the gate to echo.
//
// The middleware authenticates from the Authorization header, the query
// string and the token cookie. Body-carried token or username/password
// parameters are not consulted: the request body is left unread so it
// reaches downstream handlers intact.
package apiechohandler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/groundline/apigate"
)

// DefaultPrincipalKey is the echo context key the principal is stored under.
const DefaultPrincipalKey = "principal"

type config struct {
	errorHandler func(echo.Context, error) error
	contextKey   string
}

// Option configures the echo middleware.
type Option func(*config)

// WithErrorHandler overrides how denials are answered.
func WithErrorHandler(h func(echo.Context, error) error) Option {
	return func(c *config) {
		c.errorHandler = h
	}
}

// WithPrincipalKey overrides the echo context key for the principal.
func WithPrincipalKey(key string) Option {
	return func(c *config) {
		c.contextKey = key
	}
}

// Middleware authenticates and authorizes every request against the gate for
// the given operation. Denials answer 401 without reaching the next handler.
// On success the principal is stored in the echo context and the request
// context.
func Middleware(gate *apigate.Gate, operationID string, opts ...Option) echo.MiddlewareFunc {
	cfg := &config{
		errorHandler: defaultErrorHandler,
		contextKey:   DefaultPrincipalKey,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			sink := apigate.HTTPTokenSink{W: c.Response()}
			principal, err := gate.Verify(r, r.URL.Query(), sink, operationID)
			if err != nil {
				return cfg.errorHandler(c, err)
			}

			c.Set(cfg.contextKey, principal)
			c.SetRequest(r.WithContext(apigate.SetPrincipal(r.Context(), principal)))
			return next(c)
		}
	}
}

// GetPrincipal retrieves the principal stored by Middleware.
func GetPrincipal(c echo.Context, contextKey string) (*apigate.Principal, bool) {
	if contextKey == "" {
		contextKey = DefaultPrincipalKey
	}
	principal, ok := c.Get(contextKey).(*apigate.Principal)
	return principal, ok
}

func defaultErrorHandler(c echo.Context, err error) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{
		"message": http.StatusText(http.StatusUnauthorized),
	})
}
