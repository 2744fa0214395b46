package domain

import (
	"fmt"
	"net"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// NormalizeHostname validates and canonicalizes a hostname the way
// spec.md's glossary entry for "hostname" requires: lowercase ASCII,
// IDN-folded, no port, no scheme, no trailing dot, and backed by a suffix
// the Public Suffix List recognizes. IP literals are rejected outright —
// the crawler only tracks domain names.
func NormalizeHostname(raw string) (string, error) {
	h := strings.TrimSpace(raw)
	h = strings.TrimSuffix(h, ".")
	if h == "" {
		return "", fmt.Errorf("normalize hostname %q: empty", raw)
	}
	if strings.Contains(h, "://") {
		return "", fmt.Errorf("normalize hostname %q: looks like a URL, not a bare hostname", raw)
	}
	if host, _, err := net.SplitHostPort(h); err == nil {
		h = host
	}
	if ip := net.ParseIP(strings.Trim(h, "[]")); ip != nil {
		return "", fmt.Errorf("normalize hostname %q: IP literals are not tracked", raw)
	}

	ascii, err := idna.Lookup.ToASCII(h)
	if err != nil {
		return "", fmt.Errorf("normalize hostname %q: %w", raw, err)
	}
	ascii = strings.ToLower(ascii)

	if !hasKnownSuffix(ascii) {
		return "", fmt.Errorf("normalize hostname %q: suffix not in the Public Suffix List", raw)
	}

	return ascii, nil
}

// hasKnownSuffix reports whether host's public suffix is a real,
// ICANN-or-privately-registered suffix rather than the whole of host itself
// (which publicsuffix.EffectiveTLDPlusOne rejects) or an unrecognized TLD.
//
// .onion addresses are accepted as a special case: Tor hidden services have
// no DNS presence and so no PSL entry, but original_source's Domain type
// explicitly allows them (see _examples/original_source/src/domain.rs).
func hasKnownSuffix(host string) bool {
	if strings.HasSuffix(host, ".onion") && strings.Count(host, ".") == 1 {
		label := strings.TrimSuffix(host, ".onion")
		return len(label) == 16 || len(label) == 56
	}
	// PublicSuffix falls back to the "*" rule for an unlisted TLD, which
	// shows up as a single-label suffix outside the ICANN section.
	if suffix, icann := publicsuffix.PublicSuffix(host); !icann && !strings.Contains(suffix, ".") {
		return false
	}
	_, err := publicsuffix.EffectiveTLDPlusOne(host)
	return err == nil
}
