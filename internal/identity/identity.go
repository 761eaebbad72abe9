// Package identity resolves the acting user of a request.
package identity

import (
	"context"

	"github.com/mmynk/larder/internal/apperrors"
)

// Provider returns the acting user's id. It fails with
// apperrors.ErrNotAuthenticated when there is none.
type Provider interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	userIDKey contextKey = "user_id"
	emailKey  contextKey = "email"
)

// WithUser returns ctx carrying the authenticated user.
func WithUser(ctx context.Context, userID, email string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, emailKey, email)
}

// UserID extracts the user ID from the context.
// Returns empty string if not found.
func UserID(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}

// Email extracts the user email from the context.
// Returns empty string if not found.
func Email(ctx context.Context) string {
	email, _ := ctx.Value(emailKey).(string)
	return email
}

// FromContext reads the acting user placed on the context by the auth
// middleware.
type FromContext struct{}

func (FromContext) CurrentUserID(ctx context.Context) (string, error) {
	if id := UserID(ctx); id != "" {
		return id, nil
	}
	return "", apperrors.ErrNotAuthenticated
}

// Static always returns the same user. An empty id is unauthenticated.
type Static string

func (s Static) CurrentUserID(context.Context) (string, error) {
	if s == "" {
		return "", apperrors.ErrNotAuthenticated
	}
	return string(s), nil
}
