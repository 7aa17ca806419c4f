package utils

import (
	"net/http/httptest"
	"net/netip"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{name: "remote addr", remote: "192.0.2.1:1234", want: "192.0.2.1"},
		{name: "ipv6 remote", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "headers ignored", remote: "192.0.2.1:1234", headers: map[string]string{"X-Forwarded-For": "10.0.0.1"}, want: "192.0.2.1"},
		{name: "cloudflare first", remote: "127.0.0.1:1", trustProxy: true, headers: map[string]string{"CF-Connecting-IP": "198.51.100.9", "X-Forwarded-For": "10.0.0.1"}, want: "198.51.100.9"},
		{name: "left-most xff", remote: "127.0.0.1:1", trustProxy: true, headers: map[string]string{"X-Forwarded-For": " 10.0.0.1 , 127.0.0.1"}, want: "10.0.0.1"},
		{name: "real ip", remote: "127.0.0.1:1", trustProxy: true, headers: map[string]string{"X-Real-IP": "10.9.9.9"}, want: "10.9.9.9"},
		{name: "mapped v4 remote", remote: "[::ffff:192.0.2.1]:80", want: "192.0.2.1"},
		{name: "garbage header falls through", remote: "192.0.2.1:1", trustProxy: true, headers: map[string]string{"X-Forwarded-For": " , "}, want: "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIPMatcher(t *testing.T) {
	m := NewIPMatcher([]string{"10.0.0.0/8", " 192.0.2.5 ", "not-an-ip", ""})
	if m.IsEmpty() {
		t.Fatal("matcher should not be empty")
	}

	for ip, want := range map[string]bool{
		"10.20.30.40":     true,
		"192.0.2.5":       true,
		"192.0.2.6":       false,
		"::ffff:10.1.1.1": true,
		"garbage":         false,
	} {
		if got := m.Allow(ip); got != want {
			t.Errorf("Allow(%q) = %v, want %v", ip, got, want)
		}
	}

	if !NewIPMatcher(nil).IsEmpty() {
		t.Error("nil list should give an empty matcher")
	}
}

func TestCloserFunc(t *testing.T) {
	called := false
	Close(CloserFunc(func() error { called = true; return nil }))
	if !called {
		t.Error("CloserFunc was not invoked")
	}
}

func TestIsInternalAddr(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"10.1.2.3", true},
		{"172.16.0.9", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"fe80::1", true},
		{"fc00::1", true},
		{"0.0.0.0", true},
		{"100.64.0.1", true},
		{"::ffff:127.0.0.1", true},
		{"224.0.0.1", true},
		{"93.184.216.34", false},
		{"2606:4700::1111", false},
		{"8.8.8.8", false},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			if got := IsInternalAddr(netip.MustParseAddr(tt.addr)); got != tt.want {
				t.Errorf("IsInternalAddr(%s) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}

	if !IsInternalAddr(netip.Addr{}) {
		t.Error("zero Addr should count as internal")
	}
}
