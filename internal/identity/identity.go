// Package identity supplies the caller the engine acts on behalf of. The
// engine trusts whatever user the provider returns; authentication happens
// upstream.
package identity

import (
	"context"

	"campus-events/internal/status"
	"campus-events/models"
)

type Provider interface {
	CurrentUser(ctx context.Context) (models.User, error)
}

type userContextKey struct{}

// WithUser stores the caller in ctx.
func WithUser(ctx context.Context, user models.User) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userContextKey{}, user)
}

// FromContext returns the caller stored in ctx, if any.
func FromContext(ctx context.Context) (models.User, bool) {
	if ctx == nil {
		return models.User{}, false
	}
	user, ok := ctx.Value(userContextKey{}).(models.User)
	return user, ok
}

// ContextProvider resolves the caller from the request context.
type ContextProvider struct{}

func (ContextProvider) CurrentUser(ctx context.Context) (models.User, error) {
	user, ok := FromContext(ctx)
	if !ok || user.ID == "" {
		return models.User{}, status.StateGuard("no authenticated caller")
	}
	return user, nil
}

// Static always returns the same user. Useful for the CLI and tests.
type Static models.User

func (s Static) CurrentUser(context.Context) (models.User, error) {
	return models.User(s), nil
}
