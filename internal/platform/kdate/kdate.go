// Package kdate parses the Korean-formatted measurement deadline strings used
// by school records ("2025년 12월 31일") into concrete cutoff instants.
package kdate

import (
	"regexp"
	"strconv"
	"time"

	"golang.org/x/text/width"
)

var deadlinePattern = regexp.MustCompile(`(\d{4})\s*년\s*(\d{1,2})\s*월\s*(\d{1,2})\s*일`)

// ParseDeadline extracts a "<year>년 <month>월 <day>일" date from text and
// returns the last instant of that day in loc. Surrounding text is tolerated
// and full-width digits are folded before matching. The second return value is
// false when no valid date can be extracted.
func ParseDeadline(text string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}

	folded := width.Narrow.String(text)
	match := deadlinePattern.FindStringSubmatch(folded)
	if match == nil {
		return time.Time{}, false
	}

	year, err := strconv.Atoi(match[1])
	if err != nil {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(match[2])
	if err != nil {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(match[3])
	if err != nil {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	deadline := time.Date(year, time.Month(month), day, 23, 59, 59, int(time.Second-time.Nanosecond), loc)
	// Reject dates that rolled over, e.g. 2월 30일.
	if deadline.Day() != day || deadline.Month() != time.Month(month) || deadline.Year() != year {
		return time.Time{}, false
	}
	return deadline, true
}

// AfterDeadline reports whether now is strictly after the deadline embedded in
// text. Absent or unparsable deadlines never lock (fail-open).
func AfterDeadline(text string, now time.Time, loc *time.Location) bool {
	deadline, ok := ParseDeadline(text, loc)
	if !ok {
		return false
	}
	return now.After(deadline)
}
