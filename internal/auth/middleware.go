package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const emailKey contextKey = "email"

// Email extracts the authenticated email from the context, or "" when the
// request carried no valid token.
func Email(ctx context.Context) string {
	email, _ := ctx.Value(emailKey).(string)
	return email
}

// WithEmail returns a context carrying the given identity. Tests and the
// worker use it to call services without an HTTP request.
func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailKey, email)
}

// Middleware validates a Bearer token when present and stores the email in
// the request context. Requests without a token pass through anonymous; the
// handlers decide whether an operation requires identity.
func Middleware(manager *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header != "" {
				parts := strings.SplitN(header, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
					if claims, err := manager.Validate(parts[1]); err == nil {
						r = r.WithContext(WithEmail(r.Context(), claims.Email))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
