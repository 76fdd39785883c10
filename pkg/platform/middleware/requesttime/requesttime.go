// Package requesttime pins a single "now" per request so every contact
// created or relinked while serving it carries the same timestamp source.
package requesttime

import (
	"net/http"
	"time"

	"reconcile/pkg/requestcontext"
)

// Middleware stores the request start time (UTC) in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
