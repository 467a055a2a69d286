// Package keystore provides small TTL key/value backends used for
// operation-key reuse and alert cooldowns.
package keystore

import (
	"context"
	"time"
)

// Store is a TTL key/value store.
type Store interface {
	// GetOrSet stores value under key for ttl unless a live value exists.
	// It returns the live value and whether this call created it.
	GetOrSet(ctx context.Context, key, value string, ttl time.Duration) (current string, created bool, err error)

	// Get returns the live value for key.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key for ttl, replacing any live value.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}
