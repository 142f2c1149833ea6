package netutil

import (
	"net"
	"strings"
)

// CanonicalIP maps the different spellings of a client address onto the
// form the trust list and suspicious-IP set are written in. Loopback in
// any of its IPv6 disguises becomes 127.0.0.1, other IPv4-mapped IPv6
// literals lose their ::ffff: prefix, and everything else passes through
// untouched. The function is idempotent.
func CanonicalIP(raw string) string {
	if raw == "::1" {
		return "127.0.0.1"
	}

	ip := raw
	for {
		stripped, ok := strings.CutPrefix(ip, "::ffff:")
		if !ok {
			return ip
		}
		ip = stripped
	}
}

// ClientIP extracts the bare address from an http.Request RemoteAddr
// ("host:port"). Addresses without a port are returned as-is.
func ClientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
