package instrumentation

import "strings"

// Cardinality management helpers for metrics.
// Provider names and paths come straight from the request, so they are
// reduced to a bounded set before being used as label values.

// LabelOther replaces label values outside the known set.
const LabelOther = "other"

// ProviderLabel returns provider if it is one of known, otherwise "other".
//
// Example:
//
//	ProviderLabel("github", []string{"github"})   // "github"
//	ProviderLabel("x<script>", []string{"github"}) // "other"
//	ProviderLabel("", []string{"github"})          // "unknown"
func ProviderLabel(provider string, known []string) string {
	if provider == "" {
		return StatusUnknown
	}
	for _, k := range known {
		if provider == k {
			return provider
		}
	}
	return LabelOther
}

// Relay route paths used as metric labels.
const (
	PathAuth     = "/auth"
	PathCallback = "/callback"
	PathHealth   = "/healthz"
	PathReady    = "/readyz"
)

// PathLabel maps a request path onto the fixed set of served routes.
func PathLabel(path string) string {
	switch {
	case path == PathAuth, path == PathCallback, path == PathReady:
		return path
	case strings.HasPrefix(path, PathHealth):
		return PathHealth
	default:
		return LabelOther
	}
}
