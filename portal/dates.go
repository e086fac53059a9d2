package portal

import (
	"regexp"
	"strings"
	"time"
)

var (
	yearWithoutComma = regexp.MustCompile(`(\d{4}) +(\d)`)
	meridiem         = regexp.MustCompile(`(?i)\b(am|pm)\b`)
)

var dateLayouts = []string{
	"Jan 2, 2006, 3:04 PM",
	"Jan 2, 2006, 3:04:05 PM",
	"January 2, 2006, 3:04 PM",
	"Jan 2, 2006, 15:04",
	"01/02/2006, 3:04 PM",
}

// NormalizeDate inserts the comma the portal leaves out after the year and
// upper-cases am/pm.
func NormalizeDate(raw string) string {
	s := strings.Join(strings.Fields(raw), " ")
	s = yearWithoutComma.ReplaceAllString(s, "$1, $2")
	return meridiem.ReplaceAllStringFunc(s, strings.ToUpper)
}

// ParseDate parses a portal date in loc. ok is false when no known layout
// matches.
func ParseDate(raw string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	s := NormalizeDate(raw)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatAuthor turns "Last, First" into "First Last".
func FormatAuthor(raw string) string {
	raw = strings.Join(strings.Fields(raw), " ")
	last, first, ok := strings.Cut(raw, ",")
	if !ok {
		return raw
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	if first == "" {
		return last
	}
	return first + " " + last
}
