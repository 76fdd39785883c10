package testutil

import (
	"net/http"
	"time"

	"reconcile/pkg/requestcontext"
)

// WithRequestID attaches a correlation id, as the request-id middleware would.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}

// WithFixedTime pins requestcontext.Now for the request.
func WithFixedTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
