package apigate

import "context"

// Authorizer answers whether a verified principal may invoke an operation.
// It re-fetches the user record by name, so the store sees a second lookup
// per request after authentication.
type Authorizer struct {
	store  UserStore
	logger Logger
}

// NewAuthorizer builds an Authorizer over the given store.
func NewAuthorizer(store UserStore, logger Logger) *Authorizer {
	return &Authorizer{store: store, logger: logger}
}

// Authorize reports whether the principal may invoke operationID. Lookup and
// store failures deny with a warning; they are never propagated as errors.
func (z *Authorizer) Authorize(ctx context.Context, principal *Principal, operationID string) bool {
	if principal == nil {
		return false
	}

	user, err := z.store.FindByName(ctx, principal.Name)
	if err != nil {
		z.logger.Warnf("username [%s] not found: %v", principal.Name, err)
		return false
	}

	allowed, err := user.HasAccess(ctx, operationID)
	if err != nil {
		z.logger.Warnf("access check for [%s] on [%s] failed: %v", principal.Name, operationID, err)
		return false
	}
	return allowed
}
