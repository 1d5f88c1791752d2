package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Issue codes look like 2026_SN-0042_03_14_0: year, product serial, month, day and the
// zero-based order of the issue among those created that UTC day.
var issueCodeRe = regexp.MustCompile(`^(\d{4})_(.+)_(\d{2})_(\d{2})_(\d+)$`)

// ParsedIssueCode holds the parts of an issue code.
type ParsedIssueCode struct {
	Date   time.Time
	Serial string
	Order  int
}

// FormatIssueCode builds the display code of an issue.
func FormatIssueCode(created time.Time, serial string, order int) string {
	created = created.UTC()
	serial = strings.TrimSpace(serial)
	if serial == "" {
		serial = "UNK"
	}
	return fmt.Sprintf("%04d_%s_%02d_%02d_%d", created.Year(), serial, int(created.Month()), created.Day(), order)
}

// ParseIssueCode splits an issue code back into its parts. Serials may themselves
// contain underscores; the date and order are taken from the ends.
func ParseIssueCode(code string) (ParsedIssueCode, error) {
	m := issueCodeRe.FindStringSubmatch(strings.TrimSpace(code))
	if m == nil {
		return ParsedIssueCode{}, fmt.Errorf("unable to parse issue code: %q", code)
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[3])
	day, _ := strconv.Atoi(m[4])
	order, err := strconv.Atoi(m[5])
	if err != nil {
		return ParsedIssueCode{}, fmt.Errorf("invalid order in issue code %q: %w", code, err)
	}

	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalises 02-31 into March; reject instead of silently shifting.
	if date.Month() != time.Month(month) || date.Day() != day {
		return ParsedIssueCode{}, fmt.Errorf("invalid date in issue code %q", code)
	}

	return ParsedIssueCode{Date: date, Serial: m[2], Order: order}, nil
}

// DayBounds returns the UTC [start, end) of the day t falls in.
func DayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// ParseDay parses a YYYY-MM-DD calendar day.
func ParseDay(s string) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return d, nil
}
