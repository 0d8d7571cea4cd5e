package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bundleworks/bundle-api/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Middleware wires session authentication into HTTP handlers.
type Middleware struct {
	Verifier Verifier
}

// RequireSession enforces that a valid session token is present before
// executing the next handler. The shop domain is attached to the request
// context on success.
func (m Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticateRequest(r)
		if err != nil {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid session token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) authenticateRequest(r *http.Request) (context.Context, error) {
	token := extractToken(r)
	if token == "" {
		return r.Context(), errNoToken
	}
	session, err := m.Verifier.Verify(token)
	if err != nil {
		return r.Context(), err
	}
	return common.WithShop(r.Context(), session.Shop), nil
}

func extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
