package middleware

import "context"

type ctxKey int

const (
	userKey ctxKey = iota
	roleKey
	storeKey
)

func fromContext(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func withValue(ctx context.Context, key ctxKey, v string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func UserIDFromContext(ctx context.Context) string { return fromContext(ctx, userKey) }
func RoleFromContext(ctx context.Context) string { return fromContext(ctx, roleKey) }
func StoreIDFromContext(ctx context.Context) string { return fromContext(ctx, storeKey) }

// WithUserID, WithRole and WithStoreID seed the caller identity Auth would
// normally set.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withValue(ctx, userKey, userID)
}

func WithRole(ctx context.Context, role string) context.Context {
	return withValue(ctx, roleKey, role)
}

func WithStoreID(ctx context.Context, storeID string) context.Context {
	return withValue(ctx, storeKey, storeID)
}
