// Package middleware holds the per-request HTTP middleware of accountkit.
package middleware

import (
	"net/http"

	"github.com/odyssey-erp/accountkit/internal/platform/httpx"
	"github.com/odyssey-erp/accountkit/internal/shared"
)

// RequestContext binds the in-flight request to its context so code deep in
// the call chain can reach it through shared.CurrentRequest. Middleware that
// replaces the request context must run outside it.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, shared.BindRequest(r))
	})
}

// RequireAuthenticated rejects requests whose session carries no user.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || !sess.Authenticated() {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
