package auth

import (
	"context"
	"strings"
)

// Identity resolves the signed-in user. ok is false when nobody is signed in.
type Identity interface {
	CurrentUser(ctx context.Context) (userID string, ok bool)
}

// StaticIdentity always resolves to the same user. An empty ID resolves to nobody.
type StaticIdentity string

// CurrentUser returns the bound user
func (s StaticIdentity) CurrentUser(context.Context) (string, bool) {
	id := strings.TrimSpace(string(s))
	return id, id != ""
}

// ContextIdentity resolves the user stored on the request context
type ContextIdentity struct{}

// CurrentUser returns the user set by the authentication middleware
func (ContextIdentity) CurrentUser(ctx context.Context) (string, bool) {
	id := UserFromContext(ctx)
	return id, id != ""
}

type contextKey string

const userContextKey contextKey = "user_id"

// UserFromContext extracts the authenticated user ID from context
func UserFromContext(ctx context.Context) string {
	id, ok := ctx.Value(userContextKey).(string)
	if !ok {
		return ""
	}
	return id
}

// ContextWithUser adds the authenticated user ID to context
func ContextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey, userID)
}
