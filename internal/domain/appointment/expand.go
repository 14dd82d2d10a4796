package appointment

import "time"

type Pattern string

const (
	PatternDaily   Pattern = "daily"
	PatternWeekly  Pattern = "weekly"
	PatternMonthly Pattern = "monthly"
)

func (p Pattern) Valid() bool {
	switch p {
	case PatternDaily, PatternWeekly, PatternMonthly:
		return true
	}
	return false
}

// Expand returns up to total occurrence dates starting at start, each interval
// pattern units after the previous one. Occurrences after end (inclusive
// bound) are dropped, so an end before start yields none.
//
// Monthly steps clamp to the last day of short months and continue from the
// clamped date, so a series starting Jan 31 runs Jan 31, Feb 29, Mar 29.
func Expand(pattern Pattern, interval, total int, start time.Time, end *time.Time) []time.Time {
	if interval < 1 || total < 1 || !pattern.Valid() {
		return nil
	}
	var last time.Time
	if end != nil {
		last = truncateDay(*end)
	}

	dates := make([]time.Time, 0, total)
	for d := truncateDay(start); len(dates) < total; d = next(pattern, d, interval) {
		if end != nil && d.After(last) {
			break
		}
		dates = append(dates, d)
	}
	return dates
}

func next(pattern Pattern, d time.Time, interval int) time.Time {
	switch pattern {
	case PatternWeekly:
		return d.AddDate(0, 0, 7*interval)
	case PatternMonthly:
		return addMonthsClamped(d, interval)
	default:
		return d.AddDate(0, 0, interval)
	}
}

// addMonthsClamped adds months without overflowing into the following month,
// which time.AddDate does for Jan 31 + 1 month.
func addMonthsClamped(d time.Time, months int) time.Time {
	y, m, day := d.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, d.Location())
	if last := daysIn(first); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, d.Location())
}

func daysIn(firstOfMonth time.Time) int {
	return firstOfMonth.AddDate(0, 1, -1).Day()
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
