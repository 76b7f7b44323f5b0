// Package apiginhandler adapts the gate to gin.
//
// The middleware authenticates from the Authorization header, the query
// string and the token cookie. Body-carried token or username/password
// parameters are not consulted: the request body is left unread so it
// reaches downstream handlers intact.
package apiginhandler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/groundline/apigate"
)

// DefaultPrincipalKey is the gin context key the principal is stored under.
const DefaultPrincipalKey = "principal"

type config struct {
	errorHandler func(*gin.Context, error)
	contextKey   string
}

// Option configures the gin middleware.
type Option func(*config)

// WithErrorHandler overrides how denials are answered.
func WithErrorHandler(h func(*gin.Context, error)) Option {
	return func(c *config) {
		c.errorHandler = h
	}
}

// WithPrincipalKey overrides the gin context key for the principal.
func WithPrincipalKey(key string) Option {
	return func(c *config) {
		c.contextKey = key
	}
}

// Middleware authenticates and authorizes every request against the gate for
// the given operation, aborting with 401 on denial. On success the principal
// is stored in the gin context and the request context. Token refresh writes
// through to the response as usual.
func Middleware(gate *apigate.Gate, operationID string, opts ...Option) gin.HandlerFunc {
	cfg := &config{
		errorHandler: defaultErrorHandler,
		contextKey:   DefaultPrincipalKey,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c *gin.Context) {
		sink := apigate.HTTPTokenSink{W: c.Writer}
		principal, err := gate.Verify(c.Request, c.Request.URL.Query(), sink, operationID)
		if err != nil {
			cfg.errorHandler(c, err)
			return
		}

		c.Set(cfg.contextKey, principal)
		c.Request = c.Request.WithContext(apigate.SetPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}

// GetPrincipal retrieves the principal stored by Middleware.
func GetPrincipal(c *gin.Context, contextKey string) (*apigate.Principal, bool) {
	if contextKey == "" {
		contextKey = DefaultPrincipalKey
	}
	v, exists := c.Get(contextKey)
	if !exists {
		return nil, false
	}
	principal, ok := v.(*apigate.Principal)
	return principal, ok
}

// Denials answer 401 regardless of whether authentication or authorization
// failed, and carry no reason.
func defaultErrorHandler(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"message": http.StatusText(http.StatusUnauthorized),
	})
}
