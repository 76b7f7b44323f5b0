package apigate

import (
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// CredentialKind tags the source a credential was taken from.
type CredentialKind int

const (
	// KindNone means the request carried no credential at all.
	KindNone CredentialKind = iota
	// KindBasic is a name/password pair from a Basic Authorization header.
	KindBasic
	// KindBearer is a token from a Bearer Authorization header.
	KindBearer
	// KindParamToken is a token passed as the "token" query or body parameter.
	KindParamToken
	// KindParamPassword is a name/password pair passed as the "username" and
	// "password" query or body parameters.
	KindParamPassword
	// KindCookie is a token from the "token" cookie.
	KindCookie
)

// CookieName is the cookie holding the client's token. Refreshed tokens are
// written back under the same name.
const CookieName = "token"

// Credentials is the single credential selected from a request. Exactly one
// source wins per request; the provenance only feeds diagnostic logging and
// never changes the authentication outcome.
type Credentials struct {
	Kind     CredentialKind
	Name     string
	Password string
	Token    string
}

// HasToken reports whether the credential carries a token.
func (c Credentials) HasToken() bool {
	return c.Kind == KindBearer || c.Kind == KindParamToken || c.Kind == KindCookie
}

// HasPassword reports whether the credential carries a name/password pair.
func (c Credentials) HasPassword() bool {
	return c.Kind == KindBasic || c.Kind == KindParamPassword
}

// Provenance describes where the credential came from, for logging.
func (c Credentials) Provenance() string {
	switch c.Kind {
	case KindBasic:
		return "username from Auth Basic"
	case KindBearer:
		return "token from Auth Bearer"
	case KindParamToken:
		return "token from args"
	case KindParamPassword:
		return "username from args"
	case KindCookie:
		return "token from cookie"
	default:
		return "none"
	}
}

// ExtractCredentials inspects a request and selects exactly one credential
// source, stopping at the first match in this order:
//
//  1. Authorization header with Basic scheme
//  2. Authorization header with Bearer scheme
//  3. "token" query or body parameter
//  4. "username" and "password" query or body parameters
//  5. "token" cookie
//
// An absent credential is not an error: the zero Credentials with KindNone is
// returned. An error is only returned when a credential was presented but is
// malformed, such as a Basic header that does not decode.
func ExtractCredentials(r *http.Request, args url.Values) (Credentials, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		scheme, rest, _ := strings.Cut(authHeader, " ")
		switch strings.ToLower(scheme) {
		case "basic":
			name, password, err := decodeBasic(rest)
			if err != nil {
				return Credentials{}, err
			}
			return Credentials{Kind: KindBasic, Name: name, Password: password}, nil
		case "bearer":
			return Credentials{Kind: KindBearer, Token: strings.TrimSpace(rest)}, nil
		}
	}

	if tok := args.Get("token"); tok != "" {
		return Credentials{Kind: KindParamToken, Token: tok}, nil
	}

	name := args.Get("username")
	password := args.Get("password")
	if name != "" && password != "" {
		return Credentials{Kind: KindParamPassword, Name: name, Password: password}, nil
	}

	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return Credentials{Kind: KindCookie, Token: cookie.Value}, nil
	}

	return Credentials{}, nil
}

func decodeBasic(encoded string) (name, password string, err error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", "", errors.New("Authorization header format must be Basic base64(name:password)")
	}
	name, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", errors.New("Authorization header format must be Basic base64(name:password)")
	}
	return name, password, nil
}
