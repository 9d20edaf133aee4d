package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/landing-api/internal/models"
)

// SessionCookie is the cookie the site stores the session token in.
const SessionCookie = "session"

type contextKey struct{}

// WithCaller returns a copy of ctx carrying caller.
func WithCaller(ctx context.Context, caller models.Caller) context.Context {
	return context.WithValue(ctx, contextKey{}, caller)
}

// CallerFromContext returns the authenticated caller stored by Middleware.
func CallerFromContext(ctx context.Context) (models.Caller, bool) {
	caller, ok := ctx.Value(contextKey{}).(models.Caller)
	return caller, ok
}

// Middleware rejects requests without a valid session token with 401 and stores the
// caller in the request context otherwise. The token is read from a Bearer
// Authorization header, falling back to the session cookie.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				unauthorized(w)
				return
			}

			caller, err := Verify(secret, token)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected session token")
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
