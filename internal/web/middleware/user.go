package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const userContextKey contextKey = "user_id"

// UserHeader carries the requester id. Authentication happens in front of
// this service.
const UserHeader = "X-User-ID"

// RequireUser is middleware that requires a requester id
func RequireUser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(UserHeader))
			if userID == "" {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error": "missing X-User-ID header"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID retrieves the requester id from the request context
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(userContextKey).(string)
	return id
}

// SetUserIDInContext adds a requester id to the context.
// This is primarily for testing - use RequireUser middleware in production.
func SetUserIDInContext(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userContextKey, userID)
}
