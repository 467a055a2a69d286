package recurrence

import (
	"strconv"
	"strings"
	"time"
)

const (
	utcLayout  = "20060102T150405Z"
	dateLayout = "20060102"
)

var weekdayCodes = map[time.Weekday]string{
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
	time.Sunday:    "SU",
}

// ParseWeekday maps a two-letter RRULE day code (MO..SU) to a weekday.
func ParseWeekday(code string) (time.Weekday, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for wd, c := range weekdayCodes {
		if c == code {
			return wd, true
		}
	}
	return 0, false
}

// Encode serializes r into the stored text form. Lines are separated by "\n".
func Encode(r Rule) string {
	freq := r.Freq
	if !freq.valid() {
		freq = Daily
	}
	parts := []string{"FREQ=" + string(freq)}
	if r.interval() > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.interval()))
	}
	if r.Until != nil {
		parts = append(parts, "UNTIL="+r.Until.UTC().Format(utcLayout))
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	if len(r.ByDay) > 0 {
		codes := make([]string, len(r.ByDay))
		for i, wd := range r.ByDay {
			codes[i] = weekdayCodes[wd]
		}
		parts = append(parts, "BYDAY="+strings.Join(codes, ","))
	}
	if len(r.ByMonth) > 0 {
		parts = append(parts, "BYMONTH="+joinInts(r.ByMonth))
	}
	if len(r.ByMonthDay) > 0 {
		parts = append(parts, "BYMONTHDAY="+joinInts(r.ByMonthDay))
	}
	if r.WeekStart != time.Monday {
		parts = append(parts, "WKST="+weekdayCodes[r.WeekStart])
	}
	if r.CycleOn > 0 {
		parts = append(parts, "X-APP-ON="+strconv.Itoa(r.CycleOn), "X-APP-OFF="+strconv.Itoa(r.CycleOff))
	}

	lines := []string{"RRULE:" + strings.Join(parts, ";")}
	for _, d := range r.ExDates {
		lines = append(lines, "EXDATE:"+d.UTC().Format(utcLayout))
	}
	for _, d := range r.RDates {
		lines = append(lines, "RDATE:"+d.UTC().Format(utcLayout))
	}
	return strings.Join(lines, "\n")
}

// Parse decodes stored rule text. Text without a usable RRULE line (missing
// or unknown FREQ) yields Default(); individual malformed parameters and
// date lines are skipped. Parse never fails.
func Parse(text string) Rule {
	rule := Default()
	sawFreq := false

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.ToUpper(name) {
		case "RRULE":
			sawFreq = parseRRule(value, &rule) || sawFreq
		case "EXDATE":
			rule.ExDates = append(rule.ExDates, parseDates(value)...)
		case "RDATE":
			rule.RDates = append(rule.RDates, parseDates(value)...)
		}
	}

	if !sawFreq {
		return Default()
	}
	return rule
}

// parseRRule applies the RRULE parameters to rule and reports whether a
// valid FREQ was seen.
func parseRRule(value string, rule *Rule) bool {
	sawFreq := false
	for _, param := range strings.Split(value, ";") {
		key, val, ok := strings.Cut(param, "=")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "FREQ":
			f := Frequency(strings.ToUpper(val))
			if f.valid() {
				rule.Freq = f
				sawFreq = true
			}
		case "INTERVAL":
			if n, err := strconv.Atoi(val); err == nil && n >= 1 {
				rule.Interval = n
			}
		case "UNTIL":
			if t, ok := parseDate(val); ok {
				rule.Until = &t
			}
		case "COUNT":
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				rule.Count = n
			}
		case "BYDAY":
			for _, code := range strings.Split(val, ",") {
				if wd, ok := ParseWeekday(code); ok {
					rule.ByDay = append(rule.ByDay, wd)
				}
			}
		case "BYMONTH":
			for _, n := range splitInts(val) {
				if n >= 1 && n <= 12 {
					rule.ByMonth = append(rule.ByMonth, n)
				}
			}
		case "BYMONTHDAY":
			for _, n := range splitInts(val) {
				if n != 0 && n >= -31 && n <= 31 {
					rule.ByMonthDay = append(rule.ByMonthDay, n)
				}
			}
		case "WKST":
			if wd, ok := ParseWeekday(val); ok {
				rule.WeekStart = wd
			}
		case "X-APP-ON":
			if n, err := strconv.Atoi(val); err == nil && n > 0 {
				rule.CycleOn = n
			}
		case "X-APP-OFF":
			if n, err := strconv.Atoi(val); err == nil && n >= 0 {
				rule.CycleOff = n
			}
		}
	}
	return sawFreq
}

func parseDates(value string) []time.Time {
	var out []time.Time
	for _, v := range strings.Split(value, ",") {
		if t, ok := parseDate(strings.TrimSpace(v)); ok {
			out = append(out, t)
		}
	}
	return out
}

func parseDate(v string) (time.Time, bool) {
	if t, err := time.Parse(utcLayout, v); err == nil {
		return t, true
	}
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func joinInts(ns []int) string {
	s := make([]string, len(ns))
	for i, n := range ns {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, ",")
}

func splitInts(v string) []int {
	var out []int
	for _, s := range strings.Split(v, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			out = append(out, n)
		}
	}
	return out
}
