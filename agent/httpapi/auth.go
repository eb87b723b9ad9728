package httpapi

import (
	"net/http"
)

const tokenHeader = "X-REKCOD-TOKEN"

// tokenAuth rejects any request whose X-REKCOD-TOKEN header does not match
// the agent's configured shared token (§4.2: every hop carries the token).
func tokenAuth(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(tokenHeader) != expected {
				http.Error(w, "invalid or missing token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
