package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

type contextKey string

const callerContextKey contextKey = "caller"

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, c)
}

func CallerFromContext(ctx context.Context) Caller {
	c, _ := ctx.Value(callerContextKey).(Caller)
	return c
}

// Middleware resolves the caller once per request and stores it in the context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := a.Authenticate(r)
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// RequireTenant rejects anonymous callers with 401.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CallerFromContext(r.Context()).Tenant(); !ok {
			writeAuthError(w, http.StatusUnauthorized, "a valid API key is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin checks the shared admin secret. An empty secret disables the admin surface.
func RequireAdmin(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeAuthError(w, http.StatusForbidden, "admin access is disabled")
				return
			}
			got := r.Header.Get(HeaderAdminSecret)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				writeAuthError(w, http.StatusUnauthorized, "invalid admin secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
