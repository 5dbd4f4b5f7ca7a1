package utils

import (
	"net/url"
	"strings"
)

// HostFromURL extracts the lowercased host portion of a tracker URL, without
// port. Unparseable input falls back to the lowercased input so whitelist
// matching still has something to work with.
func HostFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err == nil && u.Hostname() != "" {
		return strings.ToLower(u.Hostname())
	}

	// udp:// and bare host:port strings do parse above; anything left is
	// handled by hand.
	s := raw
	if idx := strings.Index(s, "://"); idx >= 0 {
		s = s[idx+3:]
	}
	if idx := strings.IndexAny(s, "/"); idx >= 0 {
		s = s[:idx]
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	return strings.ToLower(s)
}
