package application

import "strings"

// FormatETag renders an image version as a strong entity tag.
func FormatETag(version string) string {
	return `"` + version + `"`
}

// MatchesIfNoneMatch reports whether an If-None-Match header value is exactly
// the entity tag of version. Tags are opaque; no list, weak or wildcard forms.
func MatchesIfNoneMatch(header string, version string) bool {
	if version == "" {
		return false
	}
	header = strings.TrimSpace(header)
	return header != "" && header == FormatETag(version)
}
