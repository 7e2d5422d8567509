// Package metadata records who is on the other end of a request.
package metadata

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"assetregistry/pkg/requestcontext"
)

// ClientMetadata stores the client address and User-Agent in the request
// context. The values feed access and auth logs and are never trusted for
// authorization.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClient(r.Context(), requestcontext.Client{
			IP:        ClientIP(r),
			UserAgent: r.UserAgent(),
			Agent:     Agent(r.UserAgent()),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's remote address.
func ClientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Agent summarizes a User-Agent header for logs. Browsers come out as
// "name version (os)", bots as "bot name", and anything the parser does not
// recognise (registryctl, curl, Go clients) as its first product token.
func Agent(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	ua := useragent.New(header)
	name, version := ua.Browser()
	switch {
	case ua.Bot():
		return "bot " + name
	case ua.Mozilla() != "" && name != "":
		agent := strings.TrimSpace(name + " " + version)
		if os := ua.OS(); os != "" {
			agent += " (" + os + ")"
		}
		return agent
	default:
		product, _, _ := strings.Cut(header, " ")
		return product
	}
}
