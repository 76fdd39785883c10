package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"reconcile/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain uses first hop", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, want: "203.0.113.7"},
		{name: "real ip header", headers: map[string]string{"X-Real-IP": " 198.51.100.2 "}, want: "198.51.100.2"},
		{name: "ipv4 remote addr", remote: "192.0.2.1:5555", want: "192.0.2.1"},
		{name: "ipv6 remote addr", remote: "[::1]:5555", want: "::1"},
		{name: "empty remote", remote: "", want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(r))
		})
	}
}

func TestParseUserAgent(t *testing.T) {
	agent := ParseUserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	assert.Contains(t, agent.Browser, "Chrome")
	assert.Contains(t, agent.OS, "Linux")
	assert.False(t, agent.Bot)

	empty := ParseUserAgent("")
	assert.Equal(t, "unknown", empty.Browser)
	assert.Equal(t, "unknown", empty.OS)
}

func TestClientMetadataPopulatesContext(t *testing.T) {
	var gotIP, gotUA string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIP = requestcontext.ClientIP(r.Context())
		gotUA = requestcontext.UserAgent(r.Context())
	}))

	r := httptest.NewRequest(http.MethodPost, "/identify", nil)
	r.RemoteAddr = "192.0.2.9:1234"
	r.Header.Set("User-Agent", "curl/8.4.0")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "192.0.2.9", gotIP)
	assert.Equal(t, "curl/8.4.0", gotUA)
}
