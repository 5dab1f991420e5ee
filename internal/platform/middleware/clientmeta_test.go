package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataregistry/pkg/requestcontext"
)

func captureContext(t *testing.T, req *http.Request) (ip, ua string) {
	t.Helper()
	handler := ClientMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		ua = requestcontext.UserAgent(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return ip, ua
}

func TestClientMetadataPopulatesContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "192.0.2.10:50123"
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")

	ip, ua := captureContext(t, req)

	require.Equal(t, "192.0.2.10", ip)
	assert.Contains(t, ua, "Chrome")
}

func TestClientMetadataPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	ip, _ := captureContext(t, req)

	assert.Equal(t, "203.0.113.7", ip)
}

func TestClientMetadataPassesRawUnparsableAgent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "192.0.2.10:50123"
	req.Header.Set("User-Agent", "curl/8.4.0")

	_, ua := captureContext(t, req)

	assert.NotEmpty(t, ua)
}
