package auth

import "context"

type contextKey string

const keyPrefixContextKey contextKey = "mint_key_prefix"

// ContextWithKeyPrefix records the visible prefix of the key that
// authenticated the request.
func ContextWithKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixContextKey, prefix)
}

// KeyPrefixFromContext returns the authenticated key prefix, or "" when the
// request was not authenticated.
func KeyPrefixFromContext(ctx context.Context) string {
	prefix, _ := ctx.Value(keyPrefixContextKey).(string)
	return prefix
}
