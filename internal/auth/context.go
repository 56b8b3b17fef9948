// ABOUTME: Request-scoped authorization context for tracking identity through handlers
// ABOUTME: Provides WithGrant/GrantFromContext for propagating gate decisions via context

package auth

import (
	"context"
)

// grantContextKey is the key type for storing a Grant in context.Context.
type grantContextKey struct{}

// WithGrant returns a new context with the Grant attached.
func WithGrant(ctx context.Context, grant *Grant) context.Context {
	return context.WithValue(ctx, grantContextKey{}, grant)
}

// GrantFromContext retrieves the Grant from the context, returning nil if not present.
func GrantFromContext(ctx context.Context) *Grant {
	val := ctx.Value(grantContextKey{})
	if val == nil {
		return nil
	}
	grant, ok := val.(*Grant)
	if !ok {
		return nil
	}
	return grant
}

// requestIDKey is the key type for storing a request ID in context.Context.
type requestIDKey struct{}

// WithRequestID returns a new context carrying the request's correlation ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext retrieves the request ID, returning "" if not present.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
