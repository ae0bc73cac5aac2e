package auth

import (
	"context"

	"github.com/ebogdum/vizgate/store"
)

type contextKey string

const (
	platformKey contextKey = "platform"
	userKey     contextKey = "user"
)

// WithIdentity returns a context carrying the resolved platform and optional user
func WithIdentity(ctx context.Context, platform *store.Platform, user *store.User) context.Context {
	ctx = context.WithValue(ctx, platformKey, platform)
	if user != nil {
		ctx = context.WithValue(ctx, userKey, user)
	}
	return ctx
}

// PlatformFromContext returns the platform attached by the gate
func PlatformFromContext(ctx context.Context) (*store.Platform, bool) {
	p, ok := ctx.Value(platformKey).(*store.Platform)
	return p, ok && p != nil
}

// UserFromContext returns the user attached by the gate, if any
func UserFromContext(ctx context.Context) (*store.User, bool) {
	u, ok := ctx.Value(userKey).(*store.User)
	return u, ok && u != nil
}
