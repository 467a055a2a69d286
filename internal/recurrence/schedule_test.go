package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
)

func therapy(rule string) domain.Therapy {
	return domain.Therapy{
		ID:        "t1",
		StartDate: start,
		Rule:      rule,
		Doses:     []domain.DoseTime{{Hour: 8, Amount: 1}, {Hour: 20, Amount: 2}},
	}
}

func TestScheduleDeletedNeverOccurs(t *testing.T) {
	th := therapy("RRULE:FREQ=DAILY")
	th.Deleted = true
	s := ForTherapy(th, time.UTC)
	assert.Nil(t, s.Next(start))
	assert.Zero(t, s.AllowedOn(day(1)))
	assert.Empty(t, s.OnDay(day(1)))
	assert.Zero(t, s.DailyUsage(day(1)))
}

func TestScheduleCourseEnds(t *testing.T) {
	th := therapy("RRULE:FREQ=DAILY")
	th.Clinical = &domain.ClinicalRules{Course: &domain.CourseRule{Days: 3}}
	s := ForTherapy(th, time.UTC)

	assert.Len(t, s.OnDay(day(2)), 2)
	assert.Empty(t, s.OnDay(day(3)))
	assert.Nil(t, s.Next(start.AddDate(0, 0, 2).Add(21*time.Hour)))
	assert.Zero(t, s.DailyUsage(day(5)))
}

func TestScheduleTaperScalesAmounts(t *testing.T) {
	th := therapy("RRULE:FREQ=DAILY")
	th.Clinical = &domain.ClinicalRules{Taper: &domain.TaperRule{Steps: []domain.TaperStep{
		{Days: 2, Factor: 1},
		{Days: 2, Factor: 0.5},
	}}}
	s := ForTherapy(th, time.UTC)

	occ := s.OnDay(day(3))
	require.Len(t, occ, 2)
	assert.Equal(t, 0.5, occ[0].Dose.Amount)
	assert.Equal(t, 1.0, occ[1].Dose.Amount)
	assert.InDelta(t, 1.5, s.DailyUsage(day(2)), 1e-9)
	assert.Empty(t, s.OnDay(day(4)), "taper finished")
}

func TestScheduleDailyUsageWithCycle(t *testing.T) {
	s := ForTherapy(therapy("RRULE:FREQ=DAILY;X-APP-ON=21;X-APP-OFF=7"), time.UTC)
	assert.InDelta(t, 3*0.75, s.DailyUsage(day(0)), 1e-9)
}

func TestScheduleGarbledRuleStillDaily(t *testing.T) {
	s := ForTherapy(therapy("not a rule"), time.UTC)
	assert.Len(t, s.OnDay(day(4)), 2)
}
