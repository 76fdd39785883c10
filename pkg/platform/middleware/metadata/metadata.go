package metadata

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"reconcile/pkg/requestcontext"
)

// ClientMetadata resolves the client IP and User-Agent and stores them in the
// request context. Apply it early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientIP(r.Context(), ClientIPFromRequest(r))
		ctx = requestcontext.WithUserAgent(ctx, r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Agent is the parsed, log-friendly form of a User-Agent header.
type Agent struct {
	Browser string
	OS      string
	Bot     bool
}

// ParseUserAgent summarizes a User-Agent header. Unknown parts are "unknown".
func ParseUserAgent(raw string) Agent {
	if strings.TrimSpace(raw) == "" {
		return Agent{Browser: "unknown", OS: "unknown"}
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	browser := strings.TrimSpace(name + " " + version)
	if browser == "" {
		browser = "unknown"
	}
	os := ua.OS()
	if os == "" {
		os = "unknown"
	}
	return Agent{Browser: browser, OS: os, Bot: ua.Bot()}
}

// ClientIPFromRequest extracts the client IP, honouring proxy headers.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
