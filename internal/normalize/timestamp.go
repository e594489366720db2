package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Layouts tried in order for non-epoch timestamps. Zone-less layouts are
// interpreted as UTC (time.Parse default), matching how the sources under
// ingestion emit zone-less exports.
var tsLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05 -0700",
	"2006/01/02 15:04:05",
	"2006-01-02",
	"Jan 2 2006 15:04:05",
}

// ParseTimestamp parses the timestamp formats seen in security-log exports:
// epoch seconds (integer or fractional), epoch milliseconds, and the common
// ISO-8601 variants with or without zone and fractional seconds.
func ParseTimestamp(value string) (time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if isNumeric(s) {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			// 13+ digit integers are epoch millis; shorter are seconds.
			if len(strings.TrimPrefix(s, "-")) >= 13 {
				return time.UnixMilli(i).UTC(), nil
			}
			return time.Unix(i, 0).UTC(), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			sec := int64(f)
			nsec := int64((f - float64(sec)) * 1e9)
			return time.Unix(sec, nsec).UTC(), nil
		}
	}

	for _, layout := range tsLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", value)
}

// FormatUTC renders a timestamp in the wire format every stored and
// API-surfaced timestamp uses: UTC ISO-8601 with a literal Z suffix,
// truncated to whole seconds. The fixed width keeps lexicographic order on
// stored strings identical to chronological order; sub-second detail stays
// available in the retained raw row.
func FormatUTC(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// NowUTC returns the current instant in the wire format, truncated to whole
// seconds.
func NowUTC() string {
	return time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
}

func isNumeric(s string) bool {
	dot := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' && !dot && i > 0:
			dot = true
		case r == '-' && i == 0:
		default:
			return false
		}
	}
	return true
}
