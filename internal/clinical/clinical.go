// Package clinical derives monitoring, missed-dose and deadline obligations
// from per-therapy clinical rules and medicine deadlines.
package clinical

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/dosing"
)

const monitoringPrefix = "monitoring|dose|"

// MonitoringRef is the parsed form of a monitoring item id.
type MonitoringRef struct {
	Kind       string
	Relation   domain.DoseRelation
	TherapyKey string
	DoseAt     time.Time
	TriggerAt  time.Time
	Legacy     bool
}

// MonitoringID formats
// monitoring|dose|<kind>|<relation>|<therapyKey>|<doseUnix>|<triggerUnix>.
func MonitoringID(kind string, rel domain.DoseRelation, therapyKey string, doseAt, triggerAt time.Time) string {
	return fmt.Sprintf("%s%s|%s|%s|%d|%d", monitoringPrefix, kind, rel, therapyKey, doseAt.Unix(), triggerAt.Unix())
}

// ParseMonitoringID accepts the current format and the legacy
// monitoring|dose|<kind>|<therapyKey>|<doseUnix> format, which implies
// beforeDose with the trigger at the dose time.
func ParseMonitoringID(id string) (MonitoringRef, error) {
	if !strings.HasPrefix(id, monitoringPrefix) {
		return MonitoringRef{}, fmt.Errorf("monitoring id %q: missing prefix", id)
	}
	parts := strings.Split(strings.TrimPrefix(id, monitoringPrefix), "|")
	switch len(parts) {
	case 5:
		rel := domain.DoseRelation(parts[1])
		if rel != domain.BeforeDose && rel != domain.AfterDose {
			return MonitoringRef{}, fmt.Errorf("monitoring id %q: unknown relation %q", id, parts[1])
		}
		dose, err := parseUnix(parts[3])
		if err != nil {
			return MonitoringRef{}, fmt.Errorf("monitoring id %q: %w", id, err)
		}
		trigger, err := parseUnix(parts[4])
		if err != nil {
			return MonitoringRef{}, fmt.Errorf("monitoring id %q: %w", id, err)
		}
		return MonitoringRef{Kind: parts[0], Relation: rel, TherapyKey: parts[2], DoseAt: dose, TriggerAt: trigger}, nil
	case 3:
		dose, err := parseUnix(parts[2])
		if err != nil {
			return MonitoringRef{}, fmt.Errorf("monitoring id %q: %w", id, err)
		}
		return MonitoringRef{Kind: parts[0], Relation: domain.BeforeDose, TherapyKey: parts[1],
			DoseAt: dose, TriggerAt: dose, Legacy: true}, nil
	}
	return MonitoringRef{}, fmt.Errorf("monitoring id %q: want 5 or 3 fields, got %d", id, len(parts))
}

func parseUnix(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q", s)
	}
	return time.Unix(n, 0).UTC(), nil
}

// Skipped reports whether a pending dose has fallen out of its skip window
// and no longer counts as owed.
func Skipped(t domain.Therapy, doseAt, now time.Time) bool {
	if t.Clinical == nil || t.Clinical.MissedDose.Kind != domain.MissedDoseSkip {
		return false
	}
	return now.After(doseAt.Add(time.Duration(t.Clinical.MissedDose.WindowMinutes) * time.Minute))
}

// Items returns monitoring, missed-dose and deadline items for one medicine
// at now. A therapy with bad or missing data contributes nothing.
func Items(snap domain.MedicineSnapshot, now time.Time, loc *time.Location) []domain.TodoItem {
	out := []domain.TodoItem{}
	doses := dosing.Day(snap, now, loc)

	for _, t := range snap.ActiveTherapies() {
		if t.Clinical == nil {
			continue
		}
		mine := dosing.ForTherapy(doses, t.ID)
		out = append(out, monitoringItems(snap.Medicine, t, mine)...)
		out = append(out, missedItems(snap.Medicine, t, mine, now)...)
	}
	if item, ok := DeadlineItem(snap.Medicine, now, loc); ok {
		out = append(out, item)
	}
	return out
}

func monitoringItems(m domain.Medicine, t domain.Therapy, doses []dosing.Dose) []domain.TodoItem {
	out := []domain.TodoItem{}
	for _, rule := range t.Clinical.Monitoring {
		offset := time.Duration(rule.OffsetMinutes) * time.Minute
		for _, d := range doses {
			var trigger time.Time
			switch rule.DoseRelation {
			case domain.AfterDose:
				if !d.Logged {
					continue
				}
				trigger = d.At.Add(offset)
			default:
				if d.Logged {
					continue
				}
				trigger = d.At.Add(-offset)
			}
			due := trigger
			out = append(out, domain.TodoItem{
				ID:         MonitoringID(rule.Kind, rule.DoseRelation, t.Key(), d.At, trigger),
				Title:      fmt.Sprintf("Measure %s", rule.Kind),
				Detail:     fmt.Sprintf("%s %s %s dose", relationText(rule.DoseRelation), m.Name, d.At.Format("15:04")),
				Category:   domain.CategoryMonitoring,
				MedicineID: m.ID,
				DueAt:      &due,
			})
		}
	}
	return out
}

func relationText(rel domain.DoseRelation) string {
	if rel == domain.AfterDose {
		return "after"
	}
	return "before"
}

func missedItems(m domain.Medicine, t domain.Therapy, doses []dosing.Dose, now time.Time) []domain.TodoItem {
	policy := t.Clinical.MissedDose
	if policy.Kind != domain.MissedDoseNotify {
		return []domain.TodoItem{}
	}
	grace := time.Duration(policy.GraceMinutes) * time.Minute
	out := []domain.TodoItem{}
	for _, d := range doses {
		if d.Logged || !now.After(d.At.Add(grace)) {
			continue
		}
		due := d.At
		out = append(out, domain.TodoItem{
			ID:         fmt.Sprintf("missedDose|%s|%d", t.Key(), d.At.Unix()),
			Title:      fmt.Sprintf("Missed dose: %s", m.Name),
			Detail:     fmt.Sprintf("scheduled at %s", d.At.Format("15:04")),
			Category:   domain.CategoryMissedDose,
			MedicineID: m.ID,
			DueAt:      &due,
		})
	}
	return out
}

// DeadlineItem returns a deadline item when the medicine's deadline month
// is the current month or already past.
func DeadlineItem(m domain.Medicine, now time.Time, loc *time.Location) (domain.TodoItem, bool) {
	if m.Deadline == nil || !m.Deadline.Valid() {
		return domain.TodoItem{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	current := local.Year()*12 + int(local.Month())
	deadline := m.Deadline.Year*12 + m.Deadline.Month
	if deadline > current {
		return domain.TodoItem{}, false
	}
	detail := "expires " + m.Deadline.String()
	if deadline < current {
		detail = "expired " + m.Deadline.String()
	}
	return domain.TodoItem{
		ID:         "deadline|" + m.ID,
		Title:      fmt.Sprintf("Check expiry: %s", m.Name),
		Detail:     detail,
		Category:   domain.CategoryDeadline,
		MedicineID: m.ID,
	}, true
}
