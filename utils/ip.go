package utils

import (
	"net"
	"net/http"
	"strings"
)

// RealClientIP returns the originating address for access logs. Proxy
// headers win over the socket address; the first X-Forwarded-For hop is
// the client.
func RealClientIP(r *http.Request) string {
	if xfwd := r.Header.Get("X-Forwarded-For"); xfwd != "" {
		first, _, _ := strings.Cut(xfwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xreal := strings.TrimSpace(r.Header.Get("X-Real-IP")); xreal != "" {
		return xreal
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
