package recurrence

import "time"

// civil is a calendar day counted from the Unix epoch.
type civil int64

func civilOf(t time.Time, loc *time.Location) civil {
	y, m, d := t.In(loc).Date()
	return civil(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

func (c civil) date() time.Time {
	return time.Unix(int64(c)*86400, 0).UTC()
}

func (c civil) weekday() time.Weekday {
	return c.date().Weekday()
}

// in returns midnight of c in loc.
func (c civil) in(loc *time.Location) time.Time {
	y, m, d := c.date().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// weekStart returns the first day of the week containing c.
func (c civil) weekStart(wkst time.Weekday) civil {
	back := (int(c.weekday()) - int(wkst) + 7) % 7
	return c - civil(back)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func containsWeekday(list []time.Weekday, wd time.Weekday) bool {
	for _, v := range list {
		if v == wd {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}

// matchesMonthDay resolves negative entries against the month length.
func matchesMonthDay(list []int, c civil) bool {
	y, m, d := c.date().Date()
	last := daysIn(y, m)
	for _, v := range list {
		if v < 0 {
			v = last + v + 1
		}
		if v == d {
			return true
		}
	}
	return false
}
