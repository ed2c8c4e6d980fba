// Package identity carries the authenticated user id through a request
// context. Authentication itself happens upstream; the gateway forwards the
// verified id in a header.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const DefaultHeader = "X-User-ID"

var ErrUnauthenticated = errors.New("no authenticated user")

type contextKey struct{}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// CurrentUserID returns the id placed in ctx by Middleware or WithUserID.
func CurrentUserID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(contextKey{}).(string)
	if !ok || id == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// Middleware copies the user id from header into the request context and
// lets requests without one through; handlers decide whether they need it.
func Middleware(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := strings.TrimSpace(r.Header.Get(header)); id != "" {
				r = r.WithContext(WithUserID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}
