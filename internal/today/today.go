// Package today aggregates every medicine's obligations into the ordered
// Today list: doses due, stock to buy, prescriptions to request, vitals to
// measure and packages expiring.
package today

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/clinical"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/dosing"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/forecast"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/recurrence"
)

// DefaultUpcomingDays is the look-ahead of the upcoming bucket.
const DefaultUpcomingDays = 7

// Bucket classifies a medicine for the overview.
type Bucket string

const (
	BucketAttention Bucket = "attention" // depleted or low
	BucketDue       Bucket = "due"       // a dose occurs today
	BucketUpcoming  Bucket = "upcoming"  // next dose within the look-ahead
	BucketFine      Bucket = "fine"
)

// Options tunes the aggregation.
type Options struct {
	ThresholdDays int
	UpcomingDays  int
	Location      *time.Location
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

func (o Options) upcomingDays() int {
	if o.UpcomingDays <= 0 {
		return DefaultUpcomingDays
	}
	return o.UpcomingDays
}

// MedicineState is the per-medicine classification.
type MedicineState struct {
	MedicineID string            `json:"medicineId"`
	Name       string            `json:"name"`
	Bucket     Bucket            `json:"bucket"`
	NextDose   *time.Time        `json:"nextDose,omitempty"`
	Forecast   forecast.Forecast `json:"-"`
}

// State is the computed Today list.
type State struct {
	Items     []domain.TodoItem `json:"items"`     // open items, ordered
	Completed []domain.TodoItem `json:"completed"` // items whose completion key was passed in
	Medicines []MedicineState   `json:"medicines"`
	SyncToken string            `json:"syncToken"`
}

// ByCategory returns the open items of one category in list order.
func (s State) ByCategory(c domain.Category) []domain.TodoItem {
	out := []domain.TodoItem{}
	for _, it := range s.Items {
		if it.Category == c {
			out = append(out, it)
		}
	}
	return out
}

// InBucket returns the medicines classified into b.
func (s State) InBucket(b Bucket) []MedicineState {
	out := []MedicineState{}
	for _, m := range s.Medicines {
		if m.Bucket == b {
			out = append(out, m)
		}
	}
	return out
}

// CompletionKey is the item id for point-in-time categories and
// category|medicineId otherwise, so completing a therapy marks the whole
// day's entry done.
func CompletionKey(item domain.TodoItem) string {
	if item.Category.PointInTime() {
		return item.ID
	}
	return string(item.Category) + "|" + item.MedicineID
}

// DayKey is the calendar day used to scope completion keys.
func DayKey(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).Format("2006-01-02")
}

// SyncToken is id|category|title|detail|medicineId of every item, one line
// per item in order.
func SyncToken(items []domain.TodoItem) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.ID + "|" + string(it.Category) + "|" + it.Title + "|" + it.Detail + "|" + it.MedicineID
	}
	return strings.Join(parts, "\n")
}

// Build computes the Today state. completed holds completion keys already
// done for the current day and may be nil.
func Build(snaps []domain.MedicineSnapshot, now time.Time, completed map[string]bool, opts Options) State {
	loc := opts.location()
	fopts := forecast.Options{ThresholdDays: opts.ThresholdDays, Location: loc}

	b := &builder{seen: make(map[string]bool)}
	medicines := make([]MedicineState, 0, len(snaps))
	forecasts := make([]forecast.Forecast, len(snaps))

	for i, snap := range snaps {
		f := forecast.Medicine(snap, now, fopts)
		forecasts[i] = f
		doses := todayDoses(snap, now, loc)
		ms := MedicineState{
			MedicineID: snap.Medicine.ID,
			Name:       snap.Medicine.Name,
			Forecast:   f,
			NextDose:   nextDose(snap, now, loc),
		}
		ms.Bucket = classify(f, doses, ms.NextDose, now, loc, opts.upcomingDays())
		medicines = append(medicines, ms)

		if f.NeedsAttention() {
			b.supply(snap.Medicine, f)
		}
		if item, ok := therapyItem(snap.Medicine, doses); ok {
			b.add(item)
		}
		for _, item := range clinical.Items(snap, now, loc) {
			b.add(item)
		}
	}

	// Depleted fallback: stock at zero with no usage to estimate from.
	for i, snap := range snaps {
		if forecasts[i].RawLeftover <= 0 {
			b.supply(snap.Medicine, forecasts[i])
		}
	}

	sortItems(b.items)

	state := State{Items: []domain.TodoItem{}, Completed: []domain.TodoItem{}, Medicines: medicines}
	for _, it := range b.items {
		if completed[CompletionKey(it)] {
			state.Completed = append(state.Completed, it)
		} else {
			state.Items = append(state.Items, it)
		}
	}
	state.SyncToken = SyncToken(b.items)
	return state
}

type builder struct {
	items []domain.TodoItem
	seen  map[string]bool // item ids, and supply|medicineId
}

func (b *builder) add(item domain.TodoItem) {
	if b.seen[item.ID] {
		return
	}
	b.seen[item.ID] = true
	b.items = append(b.items, item)
}

// supply emits the single purchase-or-prescription item for a medicine.
func (b *builder) supply(m domain.Medicine, f forecast.Forecast) {
	key := "supply|" + m.ID
	if b.seen[key] {
		return
	}
	b.seen[key] = true

	if f.NeedsPrescription {
		b.add(domain.TodoItem{
			ID:         string(domain.CategoryPrescription) + "|" + m.ID,
			Title:      fmt.Sprintf("Request prescription: %s", m.Name),
			Detail:     stockDetail(f),
			Category:   domain.CategoryPrescription,
			MedicineID: m.ID,
		})
		return
	}
	detail := stockDetail(f)
	if f.PendingPrescription {
		detail += " · prescription requested"
	}
	b.add(domain.TodoItem{
		ID:         string(domain.CategoryPurchase) + "|" + m.ID,
		Title:      fmt.Sprintf("Buy %s", m.Name),
		Detail:     detail,
		Category:   domain.CategoryPurchase,
		MedicineID: m.ID,
	})
}

func stockDetail(f forecast.Forecast) string {
	if f.Depleted {
		return "out of stock"
	}
	if f.Estimable() {
		return fmt.Sprintf("%s left", f.AutonomyText())
	}
	return fmt.Sprintf("%s units left", formatAmount(f.Leftover))
}

// todayDoses lists today's doses with skipped ones dropped.
func todayDoses(snap domain.MedicineSnapshot, now time.Time, loc *time.Location) []dosing.Dose {
	out := []dosing.Dose{}
	for _, d := range dosing.Day(snap, now, loc) {
		t, ok := snap.Therapy(d.TherapyID)
		if ok && !d.Logged && clinical.Skipped(t, d.At, now) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// therapyItem emits one item per medicine while any dose today is unlogged.
func therapyItem(m domain.Medicine, doses []dosing.Dose) (domain.TodoItem, bool) {
	pending := dosing.Pending(doses)
	if len(pending) == 0 {
		return domain.TodoItem{}, false
	}
	first := pending[0]
	due := first.At
	detail := fmt.Sprintf("%s · %s", first.At.Format("15:04"), formatAmount(first.Amount))
	if len(pending) > 1 {
		detail += fmt.Sprintf(" (+%d)", len(pending)-1)
	}
	return domain.TodoItem{
		ID:         string(domain.CategoryTherapy) + "|" + m.ID,
		Title:      m.Name,
		Detail:     detail,
		Category:   domain.CategoryTherapy,
		MedicineID: m.ID,
		DueAt:      &due,
	}, true
}

func nextDose(snap domain.MedicineSnapshot, now time.Time, loc *time.Location) *time.Time {
	var best *time.Time
	for _, t := range snap.ActiveTherapies() {
		next := recurrence.ForTherapy(t, loc).Next(now)
		if next != nil && (best == nil || next.Before(*best)) {
			best = next
		}
	}
	return best
}

func classify(f forecast.Forecast, doses []dosing.Dose, next *time.Time, now time.Time, loc *time.Location, upcomingDays int) Bucket {
	switch {
	case f.NeedsAttention():
		return BucketAttention
	case len(doses) > 0:
		return BucketDue
	case next != nil:
		y, m, d := now.In(loc).Date()
		limit := time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, upcomingDays+1)
		if next.Before(limit) {
			return BucketUpcoming
		}
	}
	return BucketFine
}

func formatAmount(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}

// group orders timed items first, then untimed, then supply, then deadlines.
func group(it domain.TodoItem) int {
	switch it.Category {
	case domain.CategoryPurchase, domain.CategoryPrescription:
		return 2
	case domain.CategoryDeadline:
		return 3
	}
	if it.DueAt != nil {
		return 0
	}
	return 1
}

func sortItems(items []domain.TodoItem) {
	fold := cases.Fold()
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if ga, gb := group(a), group(b); ga != gb {
			return ga < gb
		}
		if a.DueAt != nil && b.DueAt != nil && !a.DueAt.Equal(*b.DueAt) {
			return a.DueAt.Before(*b.DueAt)
		}
		if ra, rb := a.Category.Rank(), b.Category.Rank(); ra != rb {
			return ra < rb
		}
		if ta, tb := fold.String(a.Title), fold.String(b.Title); ta != tb {
			return ta < tb
		}
		return a.ID < b.ID
	})
}
