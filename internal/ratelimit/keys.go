package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// KeyExtractor derives the rate-limiting identity for an inbound request.
type KeyExtractor func(r *http.Request) string

// DefaultKeyExtractor resolves the caller identity from, in order: the
// first X-Forwarded-For hop, the direct remote address, and finally the
// authenticated subject header for callers without a usable address.
func DefaultKeyExtractor(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return r.Header.Get("X-Auth-Subject")
}
