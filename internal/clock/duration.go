package clock

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Duration-to-seconds conversion constants, spec.md §4.1 and §9 ("Duration
// semantics ambiguity"): years and months are fixed constants, not
// calendar arithmetic, because key lifetimes are compared in seconds.
const (
	SecondsPerMinute = 60
	SecondsPerHour   = 3600
	SecondsPerDay    = 86400
	SecondsPerWeek   = 7 * SecondsPerDay
	SecondsPerMonth  = 2629800 // 30.4375 days
	SecondsPerYear   = 31536000
)

var isoDurationRe = regexp.MustCompile(
	`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration parses an ISO-8601 duration of the form PnYnMnDTnHnMnS and
// returns its length in seconds using the fixed constants above. An empty
// string, or "P" with nothing following it, is an error: callers that want
// "no duration" should use a pointer or a sentinel, not "".
func ParseDuration(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("clock: empty duration string")
	}
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("clock: %q is not a valid ISO-8601 duration", s)
	}
	if m[1] == "" && m[2] == "" && m[3] == "" && m[4] == "" && m[5] == "" && m[6] == "" {
		return 0, fmt.Errorf("clock: %q has no duration components", s)
	}

	var total int64
	add := func(field string, unit int64) error {
		if field == "" {
			return nil
		}
		n, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return fmt.Errorf("clock: invalid integer %q in duration %q: %w", field, s, err)
		}
		total += n * unit
		return nil
	}

	for i, unit := range []int64{SecondsPerYear, SecondsPerMonth, SecondsPerDay, SecondsPerHour, SecondsPerMinute, 1} {
		if err := add(m[i+1], unit); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// FormatDuration renders seconds back into an ISO-8601 duration, inverse of
// ParseDuration using the same fixed-constant decomposition. The output is
// always in the "PnDTnHnMnS" form (years/months are never re-derived from
// seconds, since that round-trip is lossy at the day level); callers that
// need calendar-accurate years/months should keep the original string.
func FormatDuration(seconds int64) string {
	if seconds == 0 {
		return "PT0S"
	}
	neg := seconds < 0
	if neg {
		seconds = -seconds
	}

	days := seconds / SecondsPerDay
	seconds -= days * SecondsPerDay
	hours := seconds / SecondsPerHour
	seconds -= hours * SecondsPerHour
	minutes := seconds / SecondsPerMinute
	seconds -= minutes * SecondsPerMinute

	var b strings.Builder
	b.WriteString("P")
	if days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if hours > 0 || minutes > 0 || seconds > 0 {
		b.WriteString("T")
		if hours > 0 {
			fmt.Fprintf(&b, "%dH", hours)
		}
		if minutes > 0 {
			fmt.Fprintf(&b, "%dM", minutes)
		}
		if seconds > 0 {
			fmt.Fprintf(&b, "%dS", seconds)
		}
	}
	out := b.String()
	if out == "P" {
		out = "PT0S"
	}
	if neg {
		out = "-" + out
	}
	return out
}
