package cabinet

import (
	"fmt"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/domain"
	"github.com/mattiadebonis/pharmaapp-sub001/internal/recurrence"
)

// Cabinet is a decoded set of medicine definitions.
type Cabinet struct {
	Snapshots []domain.MedicineSnapshot
	FileCount int
}

// Counts returns the number of medicines, packages and therapies.
func (c *Cabinet) Counts() (medicines, packages, therapies int) {
	for _, s := range c.Snapshots {
		medicines++
		packages += len(s.Packages)
		therapies += len(s.Therapies)
	}
	return medicines, packages, therapies
}

// Decode unifies v with the cabinet schema and converts every medicine.
// Medicines are returned ordered by id. In LoadModeCollectAll every bad
// medicine is reported and the good ones are still returned.
func Decode(v cue.Value, opts Options) (*Cabinet, []error) {
	schema := v.Context().CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("cabinet schema: %v", err)}}
	}

	unified := schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		errs := cueErrors(ErrCodeSchema, err)
		if opts.Mode == LoadModeFailFast {
			errs = errs[:1]
		}
		return nil, errs
	}

	cab := &Cabinet{}
	var errs []error
	meds := unified.LookupPath(cue.ParsePath("medicines"))
	if !meds.Exists() {
		return cab, []error{&LoadError{Code: ErrCodeGeneric, Message: "no medicines found in cabinet"}}
	}
	iter, err := meds.Fields()
	if err != nil {
		return nil, cueErrors(ErrCodeGeneric, err)
	}
	for iter.Next() {
		d := &decoder{loc: opts.location()}
		snap := d.medicine(iter.Label(), iter.Value())
		if len(d.errs) > 0 {
			errs = append(errs, d.errs...)
			if opts.Mode == LoadModeFailFast {
				return cab, errs[:1]
			}
			continue
		}
		cab.Snapshots = append(cab.Snapshots, snap)
	}

	sort.Slice(cab.Snapshots, func(i, j int) bool {
		return cab.Snapshots[i].Medicine.ID < cab.Snapshots[j].Medicine.ID
	})
	return cab, errs
}

// decoder accumulates errors while converting one medicine.
type decoder struct {
	loc  *time.Location
	errs []error
}

func (d *decoder) fail(code, field string, v cue.Value, format string, args ...any) {
	d.errs = append(d.errs, &LoadError{Code: code, Field: field, Message: fmt.Sprintf(format, args...), Pos: v.Pos()})
}

func (d *decoder) medicine(id string, v cue.Value) domain.MedicineSnapshot {
	snap := domain.MedicineSnapshot{
		Medicine:  domain.Medicine{ID: id},
		Packages:  []domain.Package{},
		Therapies: []domain.Therapy{},
		Events:    []domain.Event{},
	}
	m := &snap.Medicine
	m.Name, _ = v.LookupPath(cue.ParsePath("name")).String()
	m.RequiresPrescription, _ = v.LookupPath(cue.ParsePath("requiresPrescription")).Bool()
	if th := v.LookupPath(cue.ParsePath("stockThreshold")); th.Exists() {
		n, _ := th.Int64()
		m.StockThreshold = int(n)
	}
	if dl := v.LookupPath(cue.ParsePath("deadline")); dl.Exists() {
		month, _ := dl.LookupPath(cue.ParsePath("month")).Int64()
		year, _ := dl.LookupPath(cue.ParsePath("year")).Int64()
		m.Deadline = &domain.MonthYear{Month: int(month), Year: int(year)}
	}

	packages := make(map[string]bool)
	eachField(v, "packages", func(label string, pv cue.Value) {
		units, _ := pv.LookupPath(cue.ParsePath("units")).Int64()
		unitLabel, _ := pv.LookupPath(cue.ParsePath("unitLabel")).String()
		p := domain.Package{ID: id + "/" + label, MedicineID: id, Units: int(units), UnitLabel: unitLabel}
		packages[p.ID] = true
		snap.Packages = append(snap.Packages, p)
	})

	eachField(v, "therapies", func(label string, tv cue.Value) {
		if t, ok := d.therapy(id, label, tv, packages); ok {
			snap.Therapies = append(snap.Therapies, t)
		}
	})
	return snap
}

func eachField(v cue.Value, path string, fn func(label string, fv cue.Value)) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return
	}
	iter, err := fv.Fields()
	if err != nil {
		return
	}
	for iter.Next() {
		fn(iter.Label(), iter.Value())
	}
}

func (d *decoder) therapy(medID, label string, v cue.Value, packages map[string]bool) (domain.Therapy, bool) {
	field := fmt.Sprintf("medicines.%s.therapies.%s", medID, label)
	before := len(d.errs)

	t := domain.Therapy{ID: medID + "/" + label, MedicineID: medID}
	t.ExternalKey, _ = v.LookupPath(cue.ParsePath("key")).String()
	t.PersonID, _ = v.LookupPath(cue.ParsePath("person")).String()
	t.ManualRegistration, _ = v.LookupPath(cue.ParsePath("manualRegistration")).Bool()

	if pv := v.LookupPath(cue.ParsePath("package")); pv.Exists() {
		name, _ := pv.String()
		t.PackageID = medID + "/" + name
		if !packages[t.PackageID] {
			d.fail(ErrCodeBadPackage, field+".package", pv, "unknown package %q", name)
		}
	}

	sv := v.LookupPath(cue.ParsePath("start"))
	start, _ := sv.String()
	if day, err := time.ParseInLocation("2006-01-02", start, d.loc); err != nil {
		d.fail(ErrCodeBadDate, field+".start", sv, "invalid date %q", start)
	} else {
		t.StartDate = day
	}

	ruleVal := v.LookupPath(cue.ParsePath("rule"))
	schedVal := v.LookupPath(cue.ParsePath("schedule"))
	switch {
	case ruleVal.Exists() && schedVal.Exists():
		d.fail(ErrCodeRuleClash, field, v, "give either rule or schedule, not both")
	case ruleVal.Exists():
		t.Rule, _ = ruleVal.String()
	case schedVal.Exists():
		t.Rule = recurrence.Encode(d.schedule(field+".schedule", schedVal))
	default:
		t.Rule = recurrence.Encode(recurrence.Default())
	}

	dosesVal := v.LookupPath(cue.ParsePath("doses"))
	if list, err := dosesVal.List(); err == nil {
		for i := 0; list.Next(); i++ {
			dv := list.Value()
			clock, _ := dv.LookupPath(cue.ParsePath("time")).String()
			amount, _ := dv.LookupPath(cue.ParsePath("amount")).Float64()
			dose, err := domain.ParseDoseTime(clock, amount)
			if err != nil {
				d.fail(ErrCodeBadDose, fmt.Sprintf("%s.doses[%d]", field, i), dv, "%v", err)
				continue
			}
			t.Doses = append(t.Doses, dose)
		}
	}
	if len(t.Doses) == 0 && len(d.errs) == before {
		d.fail(ErrCodeNoDoses, field+".doses", dosesVal, "at least one dose time is required")
	}
	t.Doses = domain.SortDoses(t.Doses)

	if cv := v.LookupPath(cue.ParsePath("clinical")); cv.Exists() {
		raw, err := cv.MarshalJSON()
		if err != nil {
			d.fail(ErrCodeBadClinical, field+".clinical", cv, "%v", err)
		} else if rules, err := domain.DecodeClinicalRules(raw); err != nil {
			d.fail(ErrCodeBadClinical, field+".clinical", cv, "%v", err)
		} else {
			t.Clinical = rules
		}
	}

	return t, len(d.errs) == before
}

func (d *decoder) schedule(field string, v cue.Value) recurrence.Rule {
	r := recurrence.Default()
	freq, _ := v.LookupPath(cue.ParsePath("freq")).String()
	r.Freq = recurrence.Frequency(freq)
	if iv := v.LookupPath(cue.ParsePath("interval")); iv.Exists() {
		n, _ := iv.Int64()
		r.Interval = int(n)
	}
	if cv := v.LookupPath(cue.ParsePath("count")); cv.Exists() {
		n, _ := cv.Int64()
		r.Count = int(n)
	}
	if uv := v.LookupPath(cue.ParsePath("until")); uv.Exists() {
		s, _ := uv.String()
		if day, err := time.ParseInLocation("2006-01-02", s, d.loc); err != nil {
			d.fail(ErrCodeBadDate, field+".until", uv, "invalid date %q", s)
		} else {
			end := day.AddDate(0, 0, 1).Add(-time.Second)
			r.Until = &end
		}
	}
	r.ByDay = nil
	for _, code := range stringList(v, "byDay") {
		if wd, ok := recurrence.ParseWeekday(code); ok {
			r.ByDay = append(r.ByDay, wd)
		}
	}
	r.ByMonth = intList(v, "byMonth")
	r.ByMonthDay = intList(v, "byMonthDay")
	r.ExDates = d.dates(field+".except", v, "except")
	r.RDates = d.dates(field+".extra", v, "extra")
	if on := v.LookupPath(cue.ParsePath("cycleOn")); on.Exists() {
		n, _ := on.Int64()
		r.CycleOn = int(n)
		off, _ := v.LookupPath(cue.ParsePath("cycleOff")).Int64()
		r.CycleOff = int(off)
	}
	return r
}

func (d *decoder) dates(field string, v cue.Value, path string) []time.Time {
	var out []time.Time
	for _, s := range stringList(v, path) {
		day, err := time.ParseInLocation("2006-01-02", s, d.loc)
		if err != nil {
			d.fail(ErrCodeBadDate, field, v, "invalid date %q", s)
			continue
		}
		out = append(out, day)
	}
	return out
}

func stringList(v cue.Value, path string) []string {
	var out []string
	if list, err := v.LookupPath(cue.ParsePath(path)).List(); err == nil {
		for list.Next() {
			if s, err := list.Value().String(); err == nil {
				out = append(out, s)
			}
		}
	}
	return out
}

func intList(v cue.Value, path string) []int {
	var out []int
	if list, err := v.LookupPath(cue.ParsePath(path)).List(); err == nil {
		for list.Next() {
			if n, err := list.Value().Int64(); err == nil {
				out = append(out, int(n))
			}
		}
	}
	return out
}

// cueErrors converts a CUE error into one LoadError per underlying error,
// keeping the first position of each.
func cueErrors(code string, err error) []error {
	var out []error
	for _, e := range errors.Errors(err) {
		le := &LoadError{Code: code, Message: e.Error()}
		if positions := errors.Positions(e); len(positions) > 0 {
			le.Pos = positions[0]
		}
		out = append(out, le)
	}
	if len(out) == 0 {
		out = append(out, &LoadError{Code: code, Message: err.Error()})
	}
	return out
}
