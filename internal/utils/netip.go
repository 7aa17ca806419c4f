package utils

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ParseHostNoPort returns the host part of "ip:port", "[v6]:port" or "ip".
func ParseHostNoPort(s string) string {
	if s == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		return h
	}
	return strings.Trim(s, "[]")
}

// FirstForwardedFor returns the left-most entry of X-Forwarded-For.
func FirstForwardedFor(xff string) string {
	if i := strings.IndexByte(xff, ','); i >= 0 {
		xff = xff[:i]
	}
	return strings.TrimSpace(xff)
}

// ClientIP resolves the caller address used for rate limiting and allow
// lists. Proxy headers (CF-Connecting-IP, X-Forwarded-For, X-Real-IP, in that
// order) are only read when trustProxy is set; otherwise RemoteAddr wins.
// Parseable addresses come back in canonical form (IPv4-mapped IPv6 unmapped).
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, v := range []string{
			r.Header.Get("CF-Connecting-IP"),
			FirstForwardedFor(r.Header.Get("X-Forwarded-For")),
			r.Header.Get("X-Real-IP"),
		} {
			if ip := canonical(ParseHostNoPort(strings.TrimSpace(v))); ip != "" {
				return ip
			}
		}
	}
	return canonical(ParseHostNoPort(r.RemoteAddr))
}

func canonical(s string) string {
	if s == "" {
		return ""
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap().String()
	}
	return s
}

// IPMatcher matches addresses against exact IPs and CIDR prefixes.
type IPMatcher struct {
	prefixes []netip.Prefix
}

// NewIPMatcher parses list, skipping blank and malformed entries. A bare IP
// becomes a single-address prefix.
func NewIPMatcher(list []string) *IPMatcher {
	m := &IPMatcher{}
	for _, raw := range list {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if p, err := netip.ParsePrefix(s); err == nil {
			m.prefixes = append(m.prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(s); err == nil {
			a = a.Unmap()
			m.prefixes = append(m.prefixes, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return m
}

func (m *IPMatcher) IsEmpty() bool {
	return len(m.prefixes) == 0
}

// Allow reports whether ipStr falls in any rule.
func (m *IPMatcher) Allow(ipStr string) bool {
	addr, err := netip.ParseAddr(ipStr)
	if err != nil {
		return false
	}
	return m.Contains(addr)
}

func (m *IPMatcher) Contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range m.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// internalRanges are blocks the stdlib predicates do not already cover:
// carrier-grade NAT, benchmarking, IETF protocol assignments, and NAT64.
var internalRanges = NewIPMatcher([]string{
	"100.64.0.0/10",
	"192.0.0.0/24",
	"198.18.0.0/15",
	"64:ff9b::/96",
})

// IsInternalAddr reports whether addr is loopback, private, link-local,
// unspecified, multicast or another non-routable block. Destinations on such
// addresses must never be fetched on a user's behalf.
func IsInternalAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return !addr.IsValid() ||
		addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified() ||
		internalRanges.Contains(addr)
}
