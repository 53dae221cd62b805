package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/felipet/lacoctelera-backend/internal/access"
	"github.com/felipet/lacoctelera-backend/internal/checkauth"
)

// Authorizer decides whether a presented token may be used
type Authorizer interface {
	Authorize(ctx context.Context, presented string) (access.Decision, error)
}

func writeJSONError(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write([]byte(body))
}

// APITokenMiddleware creates middleware that validates API tokens. Every denial gets
// the same response so that callers cannot tell an unknown token from an expired
// one or from a disabled account.
func APITokenMiddleware(authorizer Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSONError(w, http.StatusUnauthorized, `{"error":"unauthorized","message":"Missing Authorization header"}`)
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, `{"error":"unauthorized","message":"Invalid Authorization header format. Use: Bearer <token>"}`)
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, `{"error":"unauthorized","message":"Empty token"}`)
				return
			}

			decision, err := authorizer.Authorize(r.Context(), token)
			if err != nil {
				if !errors.Is(err, access.ErrUnavailable) {
					writeJSONError(w, http.StatusInternalServerError, `{"error":"internal_error","message":"Internal server error"}`)
					return
				}
				w.Header().Set("Retry-After", "5")
				writeJSONError(w, http.StatusServiceUnavailable, `{"error":"service_unavailable","message":"Unable to verify token, try again later"}`)
				return
			}
			if !decision.Allowed {
				writeJSONError(w, http.StatusUnauthorized, `{"error":"unauthorized","message":"Invalid or expired token"}`)
				return
			}

			ctx := checkauth.SetAccountContext(r.Context(), decision.Account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
