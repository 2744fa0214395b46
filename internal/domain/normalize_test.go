package domain

import "testing"

func TestNormalizeHostname(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"simple hostname", "Example.Com", "example.com", false},
		{"trailing dot stripped", "example.com.", "example.com", false},
		{"with port stripped", "example.com:443", "example.com", false},
		{"with whitespace", "  example.com  ", "example.com", false},
		{"url rejected", "https://example.com/path", "", true},
		{"ipv4 rejected", "127.0.0.1", "", true},
		{"ipv6 rejected", "::1", "", true},
		{"unknown suffix rejected", "outdated.bbs", "", true},
		{"short onion accepted", "yzw45do3yrjfnbpr.onion", "yzw45do3yrjfnbpr.onion", false},
		{"long onion accepted", "zlzvfg5zcehs2t4qcm7woogyywfzwvrduqujsnehrjeg3tndn6a55nqd.onion", "zlzvfg5zcehs2t4qcm7woogyywfzwvrduqujsnehrjeg3tndn6a55nqd.onion", false},
		{"empty rejected", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeHostname(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NormalizeHostname(%q) = %q, want error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeHostname(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeHostname(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
