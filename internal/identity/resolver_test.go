package identity

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantIP  string
		wantKey string
	}{
		{
			name:    "HostAndPort",
			raw:     "esp32-4f2a/192.168.4.17:49152",
			wantIP:  "192.168.4.17",
			wantKey: "esp32-4f2a/192.168.4.17",
		},
		{
			name:    "NoHost",
			raw:     "/192.168.4.23:50110",
			wantIP:  "192.168.4.23",
			wantKey: "/192.168.4.23",
		},
		{
			name:    "IPv6",
			raw:     "/[fe80::1]:8080",
			wantIP:  "[fe80::1]",
			wantKey: "/[fe80::1]",
		},
		{
			name:    "NoSlash",
			raw:     "192.168.4.17:49152",
			wantIP:  "",
			wantKey: "192.168.4.17:49152",
		},
		{
			name:    "NoColon",
			raw:     "host/192.168.4.17",
			wantIP:  "",
			wantKey: "host/192.168.4.17",
		},
		{
			name:    "ColonBeforeSlash",
			raw:     "host:name/raw",
			wantIP:  "",
			wantKey: "host:name/raw",
		},
		{
			name:    "Empty",
			raw:     "",
			wantIP:  "",
			wantKey: "",
		},
		{
			name:    "Garbage",
			raw:     "not an address",
			wantIP:  "",
			wantKey: "not an address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.raw)
			if got.IP != tt.wantIP {
				t.Errorf("Resolve(%q).IP = %q, want %q", tt.raw, got.IP, tt.wantIP)
			}
			if got.Key != tt.wantKey {
				t.Errorf("Resolve(%q).Key = %q, want %q", tt.raw, got.Key, tt.wantKey)
			}
		})
	}
}

// TestResolveFallbackKeepsRouting verifies that an unparseable address still
// yields a usable routing key (the raw string itself) rather than an empty one.
func TestResolveFallbackKeepsRouting(t *testing.T) {
	id := Resolve("bogus")
	if id.Key != "bogus" {
		t.Errorf("fallback key = %q, want %q", id.Key, "bogus")
	}
}
