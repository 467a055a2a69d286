// Package opkey maps a user gesture to a reusable operation id.
//
// A gesture is identified by (actionType, medicineId, packageId,
// sourceSurface). Within the TTL the same gesture yields the same id, so a
// double tap, or the same action routed through a widget and an intent,
// collapses onto one ledger event.
package opkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/keystore"
)

// DefaultTTL is how long an operation id is reused.
const DefaultTTL = 60 * time.Second

// Action types.
const (
	ActionIntake               = "intake"
	ActionPurchase             = "purchase"
	ActionPrescriptionRequest  = "prescription_request"
	ActionPrescriptionReceived = "prescription_received"
	ActionStockAdjustment      = "stock_adjustment"
	ActionUndo                 = "undo"
)

// Key identifies one logical gesture.
type Key struct {
	ActionType string
	MedicineID string
	PackageID  string
	Source     string // "app", "widget", "intent", "live", "cli", "http"
}

// String is the key store key for k.
func (k Key) String() string {
	return strings.Join([]string{"opkey", k.ActionType, k.MedicineID, k.PackageID, k.Source}, "|")
}

// Registry hands out operation ids per Key.
type Registry struct {
	store keystore.Store
	ttl   time.Duration
	gen   IDGenerator
}

// Option configures a Registry.
type Option func(*Registry)

// WithTTL sets the reuse window. Non-positive values keep the default.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithGenerator overrides the id generator.
func WithGenerator(gen IDGenerator) Option {
	return func(r *Registry) {
		r.gen = gen
	}
}

// NewRegistry creates a Registry on top of store.
func NewRegistry(store keystore.Store, opts ...Option) *Registry {
	r := &Registry{store: store, ttl: DefaultTTL, gen: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ID returns the operation id for k, minting a new one when none is live.
func (r *Registry) ID(ctx context.Context, k Key) (string, error) {
	if k.ActionType == "" || k.MedicineID == "" {
		return "", fmt.Errorf("operation key: action type and medicine id are required")
	}
	id, _, err := r.store.GetOrSet(ctx, k.String(), r.gen.Generate(), r.ttl)
	if err != nil {
		return "", fmt.Errorf("operation key %s: %w", k, err)
	}
	return id, nil
}

// Clear discards the live id for k so the next gesture mints a new one.
func (r *Registry) Clear(ctx context.Context, k Key) error {
	if err := r.store.Delete(ctx, k.String()); err != nil {
		return fmt.Errorf("clear operation key %s: %w", k, err)
	}
	return nil
}

// TTL returns the reuse window.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}
