package httpapi

import (
	"net/http"

	"github.com/rekcod/rekcod/infrastructure/errors"
)

const tokenHeader = "X-REKCOD-TOKEN"

// tokenAuth guards the inbound agent control channel: registration and the
// proxy route (§4.10). Operator endpoints under /api are left to
// gateway-level auth (§4.10, documented as the deployer's responsibility).
func tokenAuth(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(tokenHeader) != expected {
				writeServiceErr(w, http.StatusUnauthorized, errors.Unauthorized("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
