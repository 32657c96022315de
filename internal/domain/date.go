package domain

import (
	"slices"
	"time"
)

const DateLayout = "2006-01-02 15:04:05"

// ParseDate parses a record date. Unparsable dates return the zero time so
// they order before every real date.
func ParseDate(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SortByDateDesc orders records newest first in place. The sort is stable, so
// records with equal or unparsable dates keep their relative order.
func SortByDateDesc(records []BattleRecord) {
	keys := make(map[string]time.Time, len(records))
	for _, r := range records {
		if _, ok := keys[r.Date]; !ok {
			keys[r.Date] = ParseDate(r.Date)
		}
	}
	slices.SortStableFunc(records, func(a, b BattleRecord) int {
		return keys[b.Date].Compare(keys[a.Date])
	})
}
