package store

import (
	"context"
	"fmt"
	"time"
)

// SnoozeKey identifies one dose on the live surface.
type SnoozeKey struct {
	TherapyID    string
	MinuteBucket int64 // scheduled time in unix minutes
}

// MinuteBucket truncates t to unix minutes.
func MinuteBucket(t time.Time) int64 {
	return t.Unix() / 60
}

// PutSnooze records that the dose is snoozed until the given instant.
// Re-snoozing the same dose replaces the expiry.
func (s *Store) PutSnooze(ctx context.Context, key SnoozeKey, until time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO live_snoozes (therapy_id, minute_bucket, until) VALUES (?, ?, ?)
		ON CONFLICT(therapy_id, minute_bucket) DO UPDATE SET until = excluded.until
	`, key.TherapyID, key.MinuteBucket, toUnixNano(until))
	if err != nil {
		return fmt.Errorf("put snooze %s@%d: %w", key.TherapyID, key.MinuteBucket, err)
	}
	return nil
}

// ActiveSnoozes returns snoozes whose expiry is after now.
func (s *Store) ActiveSnoozes(ctx context.Context, now time.Time) (map[SnoozeKey]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT therapy_id, minute_bucket, until FROM live_snoozes WHERE until > ?
	`, toUnixNano(now))
	if err != nil {
		return nil, fmt.Errorf("query snoozes: %w", err)
	}
	defer rows.Close()

	out := make(map[SnoozeKey]time.Time)
	for rows.Next() {
		var (
			key   SnoozeKey
			until int64
		)
		if err := rows.Scan(&key.TherapyID, &key.MinuteBucket, &until); err != nil {
			return nil, fmt.Errorf("scan snooze: %w", err)
		}
		out[key] = fromUnixNano(until)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snoozes: %w", err)
	}
	return out, nil
}

// PruneSnoozes deletes snoozes that expired at or before now.
func (s *Store) PruneSnoozes(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM live_snoozes WHERE until <= ?`, toUnixNano(now))
	if err != nil {
		return 0, fmt.Errorf("prune snoozes: %w", err)
	}
	return res.RowsAffected()
}
