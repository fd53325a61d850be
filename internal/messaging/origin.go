package messaging

import "strings"

// NormalizeOrigins lowercases entries, trims whitespace and trailing slashes,
// and drops empty entries.
func NormalizeOrigins(allowed []string) []string {
	out := make([]string, 0, len(allowed))
	for _, entry := range allowed {
		entry = strings.TrimRight(strings.ToLower(strings.TrimSpace(entry)), "/")
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// MatchOrigin reports whether origin is accepted by the allow-list.
// An empty allow-list accepts every origin.
func MatchOrigin(origin string, allowed []string) bool {
	allowed = NormalizeOrigins(allowed)
	if len(allowed) == 0 {
		return true
	}

	origin = strings.ToLower(origin)
	scheme, host, hasScheme := strings.Cut(origin, "://")
	if !hasScheme {
		scheme, host = "", ""
	}

	for _, entry := range allowed {
		if strings.Contains(entry, "://") {
			if entry == origin {
				return true
			}
			continue
		}
		if scheme != "https" && scheme != "http" {
			continue
		}
		if suffix, ok := strings.CutPrefix(entry, "*"); ok && strings.HasPrefix(suffix, ".") {
			name := hostname(host)
			if len(name) > len(suffix) && strings.HasSuffix(name, suffix) {
				return true
			}
			continue
		}
		if entry == host {
			return true
		}
	}
	return false
}

// hostname strips the port from host.
func hostname(host string) string {
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end >= 0 {
			return host[:end+1]
		}
		return host
	}
	if i := strings.LastIndex(host, ":"); i >= 0 {
		return host[:i]
	}
	return host
}
