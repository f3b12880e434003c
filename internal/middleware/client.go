package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientID identifies the caller for rate limiting. Without trustProxy it is
// the connection's remote host and forwarding headers are ignored. With
// trustProxy the edge is expected to append the real peer to X-Forwarded-For,
// so the rightmost hop is used, then X-Real-IP, then the remote host.
func ClientID(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			hops := strings.Split(xff, ",")
			if last := strings.TrimSpace(hops[len(hops)-1]); last != "" {
				return last
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
