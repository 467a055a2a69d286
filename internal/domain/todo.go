package domain

import "time"

// Category classifies a TodoItem.
type Category string

const (
	CategoryTherapy      Category = "therapy"
	CategoryPurchase     Category = "purchase"
	CategoryPrescription Category = "prescription"
	CategoryMonitoring   Category = "monitoring"
	CategoryDeadline     Category = "deadline"
	CategoryMissedDose   Category = "missedDose"
)

// Rank orders categories for tie-breaking. Lower ranks sort first.
func (c Category) Rank() int {
	switch c {
	case CategoryMissedDose:
		return 0
	case CategoryMonitoring:
		return 1
	case CategoryTherapy:
		return 2
	case CategoryPrescription:
		return 3
	case CategoryPurchase:
		return 4
	case CategoryDeadline:
		return 5
	}
	return 6
}

// PointInTime reports whether items of this category are bound to one
// occurrence and must never collapse across occurrences.
func (c Category) PointInTime() bool {
	return c == CategoryMonitoring || c == CategoryMissedDose
}

// TodoItem is a derived, ephemeral obligation.
type TodoItem struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Detail     string     `json:"detail,omitempty"`
	Category   Category   `json:"category"`
	MedicineID string     `json:"medicineId"`
	DueAt      *time.Time `json:"dueAt,omitempty"`
}
