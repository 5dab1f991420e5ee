package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"dataregistry/pkg/requestcontext"
)

// ClientMetadata captures the caller's IP and a normalized user agent string
// so that audit events can record who acted from where.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), clientIP(r), normalizeUserAgent(r.UserAgent()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func normalizeUserAgent(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	var sb strings.Builder
	sb.WriteString(name)
	if version != "" {
		sb.WriteString("/")
		sb.WriteString(version)
	}
	if os := ua.OS(); os != "" {
		sb.WriteString(" (")
		sb.WriteString(os)
		sb.WriteString(")")
	}
	return sb.String()
}
