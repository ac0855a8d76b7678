package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth guards the management routes (history, cart, price history)
// with the static token from config. An empty configured token fails
// closed rather than opening the routes. Token comparison is
// constant-time; missing and invalid credentials get distinct messages
// so misconfigured clients can tell the two apart.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := bearerToken(r)
			switch {
			case token == "":
				unauthorized(w, "management API token is not configured")
			case !ok:
				unauthorized(w, "missing bearer token")
			case subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1:
				unauthorized(w, "invalid bearer token")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="dealscout"`)
	httpError(w, http.StatusUnauthorized, "authentication_error", "%s", msg)
}
