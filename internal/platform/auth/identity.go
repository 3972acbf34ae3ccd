package auth

import "context"

// Identity 是通过认证的调用方，通常是某个浏览器扩展实例。
type Identity struct {
	ClientID string
	Scope    string
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
