package web

import (
	"net"
	"net/http"
	"strings"

	"github.com/veranda-social/pushgate/internal/constants"
)

// ClientIdentity resolves the client identity used for rate-limit keys: the
// first entry of X-Forwarded-For (the original client when behind a proxy),
// then X-Real-IP, then the connection's remote address. A sentinel is
// returned when nothing usable is present.
func ClientIdentity(r *http.Request) string {
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		first := strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
		if first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if ip := normalizeIP(r.RemoteAddr); ip != "" {
		return ip
	}
	return constants.UnknownClientID
}

// normalizeIP strips the port and collapses IPv4-mapped IPv6 addresses.
func normalizeIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if ip := net.ParseIP(host); ip != nil {
		if ipv4 := ip.To4(); ipv4 != nil {
			return ipv4.String()
		}
		return ip.String()
	}
	return host
}
