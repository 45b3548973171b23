// Package identity resolves the calling user of a request.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/makenakalei/fika-scheduling/internal/domain"
)

const (
	// UserHeaderName carries the caller's user id.
	UserHeaderName = "X-Fika-User-ID"
	// UserQueryParam is the query fallback for clients that cannot set headers.
	UserQueryParam = "user_id"
)

type contextKey int

const (
	userIDKey contextKey = iota
	userKey
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// UserGetter looks up users. It returns nil, nil for unknown ids.
type UserGetter interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// UserFromContext extracts the resolved user from the request context.
func UserFromContext(ctx context.Context) *domain.User {
	if v, ok := ctx.Value(userKey).(*domain.User); ok {
		return v
	}
	return nil
}

// WithUser returns a context carrying user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	ctx = context.WithValue(ctx, userIDKey, user.UserID)
	return context.WithValue(ctx, userKey, user)
}

// ValidUserID reports whether id is an acceptable user id.
func ValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

// UserIDFromRequest returns the raw user id of r, header first.
func UserIDFromRequest(r *http.Request) string {
	id := r.Header.Get(UserHeaderName)
	if id == "" {
		id = r.URL.Query().Get(UserQueryParam)
	}
	return strings.TrimSpace(id)
}

// Middleware requires a known user on every request and stores it in the context.
func Middleware(users UserGetter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := UserIDFromRequest(r)
			if userID == "" {
				http.Error(w, `{"error":"missing user id"}`, http.StatusUnauthorized)
				return
			}
			if !ValidUserID(userID) {
				http.Error(w, `{"error":"invalid user id"}`, http.StatusBadRequest)
				return
			}

			user, err := users.GetUser(r.Context(), userID)
			if err != nil {
				http.Error(w, `{"error":"failed to load user"}`, http.StatusInternalServerError)
				return
			}
			if user == nil {
				http.Error(w, `{"error":"user not found"}`, http.StatusNotFound)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for rate limiting and logging.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
