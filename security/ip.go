package security

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client IP address from a request. When trustProxy is
// set, X-Forwarded-For and X-Real-IP are consulted first; only enable this
// behind a reverse proxy you control, since both headers are trivially
// spoofable otherwise.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// Leftmost entry is the originating client when exactly one
			// trusted proxy appends to the header.
			first := strings.TrimSpace(strings.Split(xff, ",")[0])
			if net.ParseIP(first) != nil {
				return first
			}
		}
		if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
			if net.ParseIP(xrip) != nil {
				return xrip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
