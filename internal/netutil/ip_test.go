package netutil

import "testing"

func TestCanonicalIP(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ipv6 loopback", "::1", "127.0.0.1"},
		{"mapped loopback", "::ffff:127.0.0.1", "127.0.0.1"},
		{"plain loopback", "127.0.0.1", "127.0.0.1"},
		{"mapped ipv4", "::ffff:203.0.113.5", "203.0.113.5"},
		{"plain ipv4", "203.0.113.5", "203.0.113.5"},
		{"plain ipv6", "2001:db8::42", "2001:db8::42"},
		{"not an ip", "bogus", "bogus"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalIP(tt.in); got != tt.want {
				t.Errorf("CanonicalIP(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonicalIP_Idempotent(t *testing.T) {
	inputs := []string{
		"::1", "::ffff:127.0.0.1", "127.0.0.1", "::ffff:10.0.0.8",
		"::ffff:::ffff:10.0.0.8", "2001:db8::1", "198.51.100.9", "junk",
	}

	for _, in := range inputs {
		once := CanonicalIP(in)
		twice := CanonicalIP(once)
		if once != twice {
			t.Errorf("CanonicalIP not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"203.0.113.5:51234", "203.0.113.5"},
		{"[::1]:8080", "::1"},
		{"203.0.113.5", "203.0.113.5"},
	}

	for _, tt := range tests {
		if got := ClientIP(tt.in); got != tt.want {
			t.Errorf("ClientIP(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
