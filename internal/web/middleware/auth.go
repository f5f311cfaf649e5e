package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/ledgerimport/internal/config"
)

// BearerAuth rejects requests whose Authorization header does not carry one
// of the configured tokens. X-API-Key is accepted as a fallback for scripts.
// With RequireAPIKey false every request passes; with it true and no keys
// configured every request is rejected.
func BearerAuth(cfg *config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			token := requestToken(r)
			if token == "" {
				slog.Warn("auth: missing token",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusUnauthorized, "missing bearer token", "AUTH_MISSING_KEY")
				return
			}

			if !validToken(token, cfg.APIKeys) {
				slog.Warn("auth: invalid token",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusForbidden, "invalid bearer token", "AUTH_INVALID_KEY")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestToken extracts the token from "Authorization: Bearer <token>" or
// X-API-Key.
func requestToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// validToken compares against every key in constant time so the response
// time does not reveal which key matched.
func validToken(token string, keys []string) bool {
	valid := 0
	for _, k := range keys {
		valid |= subtle.ConstantTimeCompare([]byte(token), []byte(k))
	}
	return valid == 1
}

func writeAuthError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="ledgerimport"`)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"status":"error","error":"` + message + `","code":"` + code + `"}`))
}
