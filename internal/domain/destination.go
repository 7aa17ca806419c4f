package domain

import (
	"fmt"
	"net/netip"
	"net/url"
	"strings"

	"github.com/MrSnakeDoc/hop/internal/utils"
)

// MaxDestinationLength bounds the stored destination URL.
const MaxDestinationLength = 2048

// NormalizeDestination validates raw as an absolute http or https URL and
// returns it trimmed. Errors wrap ErrInvalidDestination.
func NormalizeDestination(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDestination)
	}
	if len(raw) > MaxDestinationLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidDestination, MaxDestinationLength)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDestination, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidDestination)
	}

	if err := checkHost(u.Hostname()); err != nil {
		return "", err
	}

	return raw, nil
}

// checkHost accepts public IP literals and names ending in a real-looking
// top-level label. Single-label names (localhost, docker service names) and
// internal addresses are rejected.
func checkHost(host string) error {
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidDestination)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if utils.IsInternalAddr(addr) {
			return fmt.Errorf("%w: internal address %s", ErrInvalidDestination, host)
		}
		return nil
	}

	host = strings.TrimSuffix(strings.ToLower(host), ".")
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return fmt.Errorf("%w: host %q has no top-level domain", ErrInvalidDestination, host)
	}
	for _, l := range labels {
		if l == "" {
			return fmt.Errorf("%w: empty label in host %q", ErrInvalidDestination, host)
		}
	}
	if !isTLD(labels[len(labels)-1]) {
		return fmt.Errorf("%w: host %q has no top-level domain", ErrInvalidDestination, host)
	}
	if tld := labels[len(labels)-1]; tld == "localhost" || tld == "internal" || tld == "local" {
		return fmt.Errorf("%w: host %q is not publicly routable", ErrInvalidDestination, host)
	}
	return nil
}

// isTLD allows alphabetic labels of two or more letters and punycode.
func isTLD(label string) bool {
	if strings.HasPrefix(label, "xn--") && len(label) > 4 {
		return true
	}
	if len(label) < 2 {
		return false
	}
	for _, r := range label {
		// Non-ASCII runes belong to unicode TLDs.
		if r < 0x80 && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
