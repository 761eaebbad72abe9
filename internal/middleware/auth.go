package middleware

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/larder/internal/auth"
	"github.com/mmynk/larder/internal/identity"
)

// bearerToken extracts the token of an "Authorization: Bearer <token>" header.
func bearerToken(h http.Header) (string, error) {
	authHeader := h.Get("Authorization")
	if authHeader == "" {
		return "", auth.ErrMissingToken
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", auth.ErrInvalidToken
	}
	return parts[1], nil
}

// Authenticate validates the request's bearer token and returns ctx carrying
// the signed-in user.
func Authenticate(ctx context.Context, jwtManager *auth.JWTManager, h http.Header) (context.Context, error) {
	token, err := bearerToken(h)
	if err != nil {
		return ctx, err
	}
	claims, err := jwtManager.Validate(token)
	if err != nil {
		return ctx, err
	}
	return identity.WithUser(ctx, claims.UserID, claims.Email), nil
}

// RequireAuth returns a middleware that validates JWT tokens and requires authentication.
// The user ID and email are added to the request context for identity.FromContext.
func RequireAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			ctx, err := Authenticate(ctx, jwtManager, req.Header())
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			return next(ctx, req)
		}
	}
}

// OptionalAuth returns a middleware that validates JWT tokens if present, but allows
// requests without authentication.
func OptionalAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if authed, err := Authenticate(ctx, jwtManager, req.Header()); err == nil {
				ctx = authed
			}
			return next(ctx, req)
		}
	}
}
