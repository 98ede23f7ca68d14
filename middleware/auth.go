// Package middleware provides the HTTP middleware chain used by the API
// server.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/itskum47/FeedForge/auth"
)

type contextKey string

const (
	userUIDContextKey contextKey = "user_uid"
	claimsContextKey  contextKey = "claims"
)

// Auth enforces bearer-token authentication and injects the authenticated
// user identity into the request context.
func Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "invalid Authorization format, expected 'Bearer <token>'", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ValidateToken(parts[1])
		if err != nil {
			http.Error(w, fmt.Sprintf("unauthorized: %v", err), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userUIDContextKey, claims.UserUID)
		ctx = context.WithValue(ctx, claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserUIDFromContext retrieves the authenticated user set by Auth.
func UserUIDFromContext(ctx context.Context) (uuid.UUID, error) {
	uid, ok := ctx.Value(userUIDContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("no authenticated user in context")
	}
	return uid, nil
}
