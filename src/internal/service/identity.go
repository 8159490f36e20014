package service

import "context"

type userIDKey struct{}

// WithUserID returns a context carrying the authenticated user's id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// ContextIdentity resolves the current user from the request context. The
// surrounding auth layer is responsible for putting the id there; an absent
// or empty id is treated as unauthenticated.
type ContextIdentity struct{}

func (ContextIdentity) CurrentUserID(ctx context.Context) (string, error) {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id, nil
}
