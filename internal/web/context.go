package web

import (
	"net"
	"net/http"

	"github.com/JonMunkholm/ledgerimport/internal/core"
)

// withClientIP stores the client IP in the request context so the service
// can record where an upload came from. It runs after TrustedRealIP.
func withClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := core.ContextWithIPAddress(r.Context(), ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
