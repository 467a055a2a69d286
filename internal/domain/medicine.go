package domain

import (
	"fmt"
	"time"
)

// Medicine is the aggregate root that stock, forecast and Today computations
// read through.
type Medicine struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	RequiresPrescription bool       `json:"requiresPrescription"`
	StockThreshold       int        `json:"stockThreshold,omitempty"` // days; 0 = global default
	Deadline             *MonthYear `json:"deadline,omitempty"`
}

// Threshold returns the medicine's own threshold when set, otherwise fallback.
func (m Medicine) Threshold(fallback int) int {
	if m.StockThreshold > 0 {
		return m.StockThreshold
	}
	return fallback
}

// Package is a purchasable pack of a medicine.
type Package struct {
	ID         string `json:"id"`
	MedicineID string `json:"medicineId"`
	Units      int    `json:"units"`               // units per pack
	UnitLabel  string `json:"unitLabel,omitempty"` // "compressa", "bustina", ...
}

// Label returns the display unit, defaulting to "unit".
func (p Package) Label() string {
	if p.UnitLabel == "" {
		return "unit"
	}
	return p.UnitLabel
}

// MonthYear is a deadline expressed at month granularity.
type MonthYear struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// String renders the deadline as MM/YYYY.
func (d MonthYear) String() string {
	return fmt.Sprintf("%02d/%d", d.Month, d.Year)
}

// Valid reports whether the month is in 1..12 and the year is positive.
func (d MonthYear) Valid() bool {
	return d.Month >= 1 && d.Month <= 12 && d.Year > 0
}

// StartOfMonth returns the first instant of the deadline month in loc.
func (d MonthYear) StartOfMonth(loc *time.Location) time.Time {
	return time.Date(d.Year, time.Month(d.Month), 1, 0, 0, 0, 0, loc)
}
