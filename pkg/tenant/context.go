package tenant

import "context"

// ctxKey is an unexported type used as the context key for the tenant id.
type ctxKey struct{}

// WithTenant returns a new context with the given tenant id attached.
func WithTenant(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext retrieves the tenant id from the context. Returns "" and
// false if no tenant is set.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok
}
