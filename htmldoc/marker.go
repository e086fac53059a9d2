package htmldoc

import "strings"

// DefaultLimit bounds how far past a marker Extract will look for the closing
// quote.
const DefaultLimit = 300

// Extract returns the text that follows the first occurrence of marker, up to
// the next quote character (either ' or "). At most limit characters after the
// marker are examined. The result is false when the marker is missing or no
// quote occurs inside the bound.
//
// This is how values are pulled out of script handlers and hidden form
// fields whose surrounding markup is not stable enough for a selector.
func Extract(s, marker string, limit int) (string, bool) {
	i := strings.Index(s, marker)
	if i == -1 {
		return "", false
	}
	rest := s[i+len(marker):]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	end := strings.IndexAny(rest, `"'`)
	if end == -1 {
		return "", false
	}
	return rest[:end], true
}

// ExtractAfter is Extract applied to the part of s that starts at anchor.
func ExtractAfter(s, anchor, marker string, limit int) (string, bool) {
	i := strings.Index(s, anchor)
	if i == -1 {
		return "", false
	}
	return Extract(s[i:], marker, limit)
}
