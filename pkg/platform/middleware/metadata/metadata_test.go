package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"assetregistry/pkg/requestcontext"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain uses first hop", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "10.0.0.2:80", "203.0.113.9"},
		{"real ip header", map[string]string{"X-Real-IP": " 198.51.100.4 "}, "10.0.0.2:80", "198.51.100.4"},
		{"ipv4 remote", nil, "192.0.2.1:5555", "192.0.2.1"},
		{"ipv6 remote", nil, "[::1]:5555", "::1"},
		{"empty remote", nil, "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestClientMetadata(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	req.Header.Set("User-Agent", "registryctl/1.0")

	ClientMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		assert.Equal(t, requestcontext.Client{IP: "192.0.2.1", UserAgent: "registryctl/1.0", Agent: "registryctl/1.0"},
			requestcontext.ClientOf(r.Context()))
	})).ServeHTTP(httptest.NewRecorder(), req)
}

func TestAgent(t *testing.T) {
	assert.Empty(t, Agent("  "))
	assert.Equal(t, "registryctl/1.0", Agent("registryctl/1.0"))
	assert.Equal(t, "curl/8.5.0", Agent("curl/8.5.0"))
	assert.Equal(t, "Go-http-client/1.1", Agent("Go-http-client/1.1"))

	chrome := Agent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	assert.Contains(t, chrome, "Chrome")
	assert.Contains(t, chrome, "Linux")
}
