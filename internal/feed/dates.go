package feed

import (
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// rfc2822Layouts covers the pubDate variants actually seen in RSS feeds
// in the wild; time.RFC1123Z only matches one of them.
var rfc2822Layouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
}

// parseDate accepts RFC 2822 (pubDate) and RFC 3339/ISO 8601
// (Atom updated/published) timestamps. It tries the exact layouts
// first and falls back to dateparse for the long tail of malformed
// but recoverable values. The bool return is false when nothing
// could make sense of the input.
func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}

	for _, layout := range rfc2822Layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}

	if t, err := dateparse.ParseAny(value); err == nil {
		return t, true
	}

	return time.Time{}, false
}

// parseDuration accepts HH:MM:SS, MM:SS, or a bare integer seconds
// count, per spec §4.B.
func parseDuration(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, true
	}

	parts := strings.Split(value, ":")
	var h, m, s int
	var err error
	switch len(parts) {
	case 2:
		if m, err = strconv.Atoi(parts[0]); err != nil {
			return 0, false
		}
		if s, err = strconv.Atoi(parts[1]); err != nil {
			return 0, false
		}
	case 3:
		if h, err = strconv.Atoi(parts[0]); err != nil {
			return 0, false
		}
		if m, err = strconv.Atoi(parts[1]); err != nil {
			return 0, false
		}
		if s, err = strconv.Atoi(parts[2]); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}

	total := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
	return total, true
}
