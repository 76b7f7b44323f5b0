package apigate

import "context"

// contextKey is an unexported type for context keys to prevent collisions
// with other packages.
type contextKey int

const principalKey contextKey = iota

// SetPrincipal stores the authenticated principal in the context. Framework
// adapters call it after a successful Verify so downstream handlers can read
// the identity back.
func SetPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom retrieves the authenticated principal from the context.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}
