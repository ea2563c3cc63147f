// Package identity resolves the external chat identity of a request.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
)

const (
	// HeaderName carries the chat identity on API requests.
	HeaderName = "X-Chat-ID"
	// QueryParam carries the chat identity where headers cannot be set (websocket upgrades).
	QueryParam = "chat_id"
)

type contextKey int

const (
	userIDKey contextKey = iota
)

var chatIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]{1,128}$`)

// UserIDFromContext extracts the chat identity from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// ValidChatID reports whether id is an acceptable chat identity.
func ValidChatID(id string) bool {
	return chatIDPattern.MatchString(id)
}

// FromRequest reads the chat identity from the header, then the query string.
func FromRequest(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(HeaderName))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get(QueryParam))
	}
	return id
}

// Middleware rejects requests without a valid chat identity and stores it
// in the request context.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromRequest(r)
			if !ValidChatID(id) {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error":"missing or invalid chat id"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
