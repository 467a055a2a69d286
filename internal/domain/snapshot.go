package domain

// MedicineSnapshot is a medicine with everything the calculators read
// through it, loaded in one pass by the repository.
type MedicineSnapshot struct {
	Medicine  Medicine  `json:"medicine"`
	Packages  []Package `json:"packages"`
	Therapies []Therapy `json:"therapies"`
	Events    []Event   `json:"events"`
}

// Package returns the package with the given id.
func (s MedicineSnapshot) Package(id string) (Package, bool) {
	for _, p := range s.Packages {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}

// PackageFor resolves a therapy's package, falling back to the medicine's
// only package when the therapy does not name one.
func (s MedicineSnapshot) PackageFor(t Therapy) (Package, bool) {
	if t.PackageID != "" {
		return s.Package(t.PackageID)
	}
	if len(s.Packages) == 1 {
		return s.Packages[0], true
	}
	return Package{}, false
}

// ActiveTherapies returns therapies that have not been deleted.
func (s MedicineSnapshot) ActiveTherapies() []Therapy {
	out := []Therapy{}
	for _, t := range s.Therapies {
		if !t.Deleted {
			out = append(out, t)
		}
	}
	return out
}

// Therapy returns the therapy with the given id, deleted or not.
func (s MedicineSnapshot) Therapy(id string) (Therapy, bool) {
	for _, t := range s.Therapies {
		if t.ID == id {
			return t, true
		}
	}
	return Therapy{}, false
}
