package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

var relativeDate = regexp.MustCompile(`^([+-]?\d+)\s*(day|days|week|weeks|month|months|year|years)(\s+ago)?$`)

// ParseDate resolves an absolute or relative date expression against now.
// Accepted forms: 2024-01-31, 20240131, today, now, yesterday, tomorrow,
// "-1 day", "+2 weeks", "3 months ago".
func ParseDate(value string, now time.Time) (civil.Date, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	today := civil.DateOf(now)

	switch v {
	case "today", "now", "midnight":
		return today, nil
	case "yesterday":
		return today.AddDays(-1), nil
	case "tomorrow":
		return today.AddDays(1), nil
	}

	if d, err := civil.ParseDate(v); err == nil {
		return d, nil
	}
	if t, err := time.Parse("20060102", v); err == nil {
		return civil.DateOf(t), nil
	}

	m := relativeDate.FindStringSubmatch(v)
	if m == nil {
		return civil.Date{}, fmt.Errorf("ParseDate: unrecognized date %q", value)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return civil.Date{}, fmt.Errorf("ParseDate: %q: %w", value, err)
	}
	if m[3] != "" {
		n = -n
	}

	base := time.Date(today.Year, today.Month, today.Day, 0, 0, 0, 0, time.UTC)
	switch strings.TrimSuffix(m[2], "s") {
	case "day":
		base = base.AddDate(0, 0, n)
	case "week":
		base = base.AddDate(0, 0, 7*n)
	case "month":
		base = base.AddDate(0, n, 0)
	case "year":
		base = base.AddDate(n, 0, 0)
	}
	return civil.DateOf(base), nil
}
