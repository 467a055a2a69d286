package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
)

var (
	start   = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC) // a Monday
	morning = []domain.DoseTime{{Hour: 8, Amount: 1}}
	twice   = []domain.DoseTime{{Hour: 20, Amount: 1}, {Hour: 8, Amount: 1}}
)

func day(n int) time.Time {
	return start.AddDate(0, 0, n).Add(12 * time.Hour)
}

func TestCycleGating(t *testing.T) {
	r := Rule{Freq: Daily, Interval: 1, CycleOn: 7, CycleOff: 21}
	for n := 0; n <= 6; n++ {
		assert.NotZero(t, AllowedEventsOnDay(day(n), r, start, 2, time.UTC), "day %d", n)
	}
	for n := 7; n <= 27; n++ {
		assert.Zero(t, AllowedEventsOnDay(day(n), r, start, 2, time.UTC), "day %d", n)
	}
	assert.Equal(t, 2, AllowedEventsOnDay(day(28), r, start, 2, time.UTC))
}

func TestAllowedEventsBounds(t *testing.T) {
	until := start.AddDate(0, 0, 3)
	r := Rule{Freq: Daily, Interval: 1, Until: &until,
		ExDates: []time.Time{start.AddDate(0, 0, 1)},
		RDates:  []time.Time{start.AddDate(0, 0, 10)},
	}
	assert.Zero(t, AllowedEventsOnDay(day(-1), r, start, 2, time.UTC), "before start")
	assert.Equal(t, 2, AllowedEventsOnDay(day(0), r, start, 2, time.UTC))
	assert.Zero(t, AllowedEventsOnDay(day(1), r, start, 2, time.UTC), "exdate")
	assert.Equal(t, 2, AllowedEventsOnDay(day(3), r, start, 2, time.UTC), "until day inclusive")
	assert.Zero(t, AllowedEventsOnDay(day(4), r, start, 2, time.UTC), "after until")
	assert.Equal(t, 1, AllowedEventsOnDay(day(10), r, start, 2, time.UTC), "rdate on an inactive day")
	assert.Zero(t, AllowedEventsOnDay(day(0), r, start, 0, time.UTC), "no doses")
}

func TestNextOccurrenceDaily(t *testing.T) {
	r := Default()
	next := NextOccurrence(r, start, start.Add(9*time.Hour), twice, time.UTC)
	require.NotNil(t, next)
	assert.Equal(t, start.Add(20*time.Hour), *next)

	next = NextOccurrence(r, start, start.Add(20*time.Hour), twice, time.UTC)
	require.NotNil(t, next)
	assert.Equal(t, start.AddDate(0, 0, 1).Add(8*time.Hour), *next, "strictly after")

	next = NextOccurrence(r, start, start.AddDate(0, 0, -30), morning, time.UTC)
	require.NotNil(t, next)
	assert.Equal(t, start.Add(8*time.Hour), *next, "never before start")
}

func TestNextOccurrenceWeekly(t *testing.T) {
	r := Rule{Freq: Weekly, Interval: 2, ByDay: []time.Weekday{time.Wednesday}, WeekStart: time.Monday}
	next := NextOccurrence(r, start, start, morning, time.UTC)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2025, 1, 8, 8, 0, 0, 0, time.UTC), *next)

	next = NextOccurrence(r, start, *next, morning, time.UTC)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2025, 1, 22, 8, 0, 0, 0, time.UTC), *next, "interval skips a week")
}

func TestNextOccurrenceMonthlyLastDay(t *testing.T) {
	r := Rule{Freq: Monthly, Interval: 1, ByMonthDay: []int{-1}}
	next := NextOccurrence(r, start, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), morning, time.UTC)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2025, 2, 28, 8, 0, 0, 0, time.UTC), *next)
}

func TestNextOccurrenceExhausted(t *testing.T) {
	until := start.AddDate(0, 0, 2).Add(10 * time.Hour)
	r := Rule{Freq: Daily, Interval: 1, Until: &until}
	assert.Nil(t, NextOccurrence(r, start, start.AddDate(0, 0, 2).Add(9*time.Hour), morning, time.UTC))

	counted := Rule{Freq: Daily, Interval: 1, Count: 3}
	last := NextOccurrence(counted, start, start.AddDate(0, 0, 1).Add(9*time.Hour), morning, time.UTC)
	require.NotNil(t, last)
	assert.Equal(t, start.AddDate(0, 0, 2).Add(8*time.Hour), *last)
	assert.Nil(t, NextOccurrence(counted, start, *last, morning, time.UTC))
}

func TestNextOccurrenceEmptyDoses(t *testing.T) {
	assert.Nil(t, NextOccurrence(Default(), start, start, nil, time.UTC))
}

func TestNextOccurrenceSkipsCycleOffDays(t *testing.T) {
	r := Rule{Freq: Daily, Interval: 1, CycleOn: 7, CycleOff: 21}
	next := NextOccurrence(r, start, day(6), morning, time.UTC)
	require.NotNil(t, next)
	assert.Equal(t, start.AddDate(0, 0, 28).Add(8*time.Hour), *next)
}

func TestNextOccurrenceMonotonic(t *testing.T) {
	rules := []Rule{
		Default(),
		{Freq: Weekly, Interval: 1, ByDay: []time.Weekday{time.Tuesday, time.Saturday}},
		{Freq: Daily, Interval: 2, CycleOn: 3, CycleOff: 4, ExDates: []time.Time{start.AddDate(0, 0, 2)}},
		{Freq: Monthly, Interval: 1, ByMonthDay: []int{15}},
	}
	for _, r := range rules {
		t.Run(Encode(r), func(t *testing.T) {
			var prev *time.Time
			for h := 0; h < 24*60; h += 5 {
				after := start.Add(time.Duration(h) * time.Hour)
				next := NextOccurrence(r, start, after, twice, time.UTC)
				require.NotNil(t, next)
				if prev != nil {
					assert.False(t, next.Before(*prev), "after=%s next=%s prev=%s", after, next, prev)
				}
				prev = next
			}
		})
	}
}

func TestOccurrencesBetween(t *testing.T) {
	got := OccurrencesBetween(Default(), start, start.Add(10*time.Hour), start.AddDate(0, 0, 1).Add(10*time.Hour), twice, time.UTC)
	require.Len(t, got, 2)
	assert.Equal(t, start.Add(20*time.Hour), got[0].At)
	assert.Equal(t, start.AddDate(0, 0, 1).Add(8*time.Hour), got[1].At)

	assert.Empty(t, OccurrencesBetween(Default(), start, start, start, twice, time.UTC))
}

func TestLocationDayBoundaries(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	localStart := time.Date(2025, 1, 6, 0, 0, 0, 0, ny)
	r := Rule{Freq: Weekly, Interval: 1, ByDay: []time.Weekday{time.Monday}}
	// 02:00 UTC Tuesday is still Monday evening in New York.
	at := time.Date(2025, 1, 14, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, AllowedEventsOnDay(at, r, localStart, 1, ny))
	assert.Zero(t, AllowedEventsOnDay(at, r, localStart, 1, time.UTC))
}
