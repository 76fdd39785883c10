package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"reconcile/pkg/requestcontext"
)

func TestMiddlewarePinsTime(t *testing.T) {
	var first, second time.Time
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		time.Sleep(2 * time.Millisecond)
		second = requestcontext.Now(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, first, second)
	assert.Equal(t, time.UTC, first.Location())
}
