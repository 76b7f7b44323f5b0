package apigate

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/groundline/apigate/token"
)

// User is the record the external store answers lookups with.
type User interface {
	// Name returns the unique user name.
	Name() string
	// VerifyPassword checks a cleartext password against the stored
	// credential.
	VerifyPassword(password string) bool
	// HasAccess reports whether the user may invoke the operation.
	HasAccess(ctx context.Context, operationID string) (bool, error)
	// RecordLogin notes a successful password login.
	RecordLogin(ctx context.Context) error
}

// UserStore is the external user lookup collaborator. FindByName returns
// ErrUserNotFound when no such user exists; any other error means the store
// itself failed. The gate converts both into a denial and never propagates
// them to the client.
type UserStore interface {
	FindByName(ctx context.Context, name string) (User, error)
}

// Principal is the authenticated identity attached to a request. It lives
// for exactly one request and is never persisted.
type Principal struct {
	// Name is the verified subject name.
	Name string
	// TokenExpiry is the expiry of the presented token. It is nil when the
	// principal authenticated with a name and password directly.
	TokenExpiry *time.Time
}

// TokenSink receives a freshly issued token during authentication. The HTTP
// request context implements it by setting the "token" header and a secure
// cookie; transports without a response channel may pass nil to skip refresh.
type TokenSink interface {
	SetToken(raw string, expires time.Time)
}

// HTTPTokenSink is a TokenSink writing to an HTTP response: the token goes
// out as the "token" header and a secure cookie named after CookieName.
type HTTPTokenSink struct {
	W http.ResponseWriter
}

func (s HTTPTokenSink) SetToken(raw string, expires time.Time) {
	s.W.Header().Set("token", raw)
	http.SetCookie(s.W, &http.Cookie{
		Name:     CookieName,
		Value:    raw,
		Path:     "/",
		Expires:  expires,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Authenticator turns extracted credentials into a verified Principal.
type Authenticator struct {
	store  UserStore
	codec  *token.Codec
	logger Logger
	now    func() time.Time
}

// NewAuthenticator builds an Authenticator over the given store and codec.
func NewAuthenticator(store UserStore, codec *token.Codec, logger Logger) *Authenticator {
	return &Authenticator{store: store, codec: codec, logger: logger, now: time.Now}
}

// Authenticate verifies the extracted credential and returns the Principal,
// or nil when the request must be denied. Denial is never an error: the
// caller turns nil into a 401. Token verification failures, unknown users and
// store errors are logged and swallowed here.
//
// A valid token older than the configured refresh threshold triggers the
// issue of exactly one replacement token, delivered through the sink as a
// side effect of authentication.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials, sink TokenSink) *Principal {
	switch {
	case creds.HasToken():
		return a.authenticateToken(ctx, creds, sink)
	case creds.HasPassword():
		return a.authenticatePassword(ctx, creds)
	default:
		// No credential presented. Not suspicious, not logged.
		return nil
	}
}

func (a *Authenticator) authenticateToken(ctx context.Context, creds Credentials, sink TokenSink) *Principal {
	claims, err := a.codec.Verify(creds.Token)
	if err != nil {
		a.logger.Warnf("token verification failed [%s]: %v", creds.Provenance(), err)
		return nil
	}
	if !claims.Valid() {
		// Expired tokens verify to empty claims. Treated as absent input,
		// but worth distinguishing from tampering in the log.
		a.logger.Debugf("expired token [%s]", creds.Provenance())
		return nil
	}

	user, err := a.store.FindByName(ctx, claims.Subject)
	if err != nil {
		a.logger.Warnf("failed to load [%s] by [%s]: %v", claims.Subject, creds.Provenance(), err)
		return nil
	}

	if sink != nil && claims.Stale(a.codec.Refresh(), a.now()) {
		raw, issued, err := a.codec.Issue(claims.Subject)
		if err != nil {
			a.logger.Errorf("failed to refresh token for [%s]: %v", claims.Subject, err)
		} else {
			sink.SetToken(raw, issued.ExpiresAt)
			a.logger.Debugf("refresh token [%s] to [%s]", claims.Subject, issued.ExpiresAt)
		}
	}

	expiry := claims.ExpiresAt
	a.logger.Debugf("successfully loaded [%s] by [%s] expiring [%s]",
		user.Name(), creds.Provenance(), expiry)
	return &Principal{Name: user.Name(), TokenExpiry: &expiry}
}

func (a *Authenticator) authenticatePassword(ctx context.Context, creds Credentials) *Principal {
	user, err := a.store.FindByName(ctx, creds.Name)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			a.logger.Warnf("failed to load [%s] by [%s]: not found", creds.Name, creds.Provenance())
		} else {
			a.logger.Warnf("failed to load [%s] by [%s]: %v", creds.Name, creds.Provenance(), err)
		}
		return nil
	}

	if !user.VerifyPassword(creds.Password) {
		return nil
	}

	if err := user.RecordLogin(ctx); err != nil {
		a.logger.Warnf("failed to record login for [%s]: %v", user.Name(), err)
	}

	a.logger.Debugf("successfully loaded [%s] by [%s]", user.Name(), creds.Provenance())
	return &Principal{Name: user.Name()}
}
