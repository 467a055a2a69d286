package store

import (
	"context"
	"fmt"
	"time"
)

// CompleteTodo marks a Today completion key done for the given day
// (YYYY-MM-DD in the caller's zone). Completing twice keeps the first time.
func (s *Store) CompleteTodo(ctx context.Context, key, day string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO todo_completions (completion_key, day, completed_at) VALUES (?, ?, ?)
		ON CONFLICT(completion_key, day) DO NOTHING
	`, key, day, toUnixNano(at))
	if err != nil {
		return fmt.Errorf("complete todo %s on %s: %w", key, day, err)
	}
	return nil
}

// ReopenTodo removes a completion. Returns ErrNotFound if the key was not
// completed that day.
func (s *Store) ReopenTodo(ctx context.Context, key, day string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM todo_completions WHERE completion_key = ? AND day = ?
	`, key, day)
	if err != nil {
		return fmt.Errorf("reopen todo %s on %s: %w", key, day, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reopen todo %s on %s: %w", key, day, err)
	}
	if n == 0 {
		return fmt.Errorf("reopen todo %s on %s: %w", key, day, ErrNotFound)
	}
	return nil
}

// CompletedKeys returns the completion keys recorded for day.
func (s *Store) CompletedKeys(ctx context.Context, day string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT completion_key FROM todo_completions WHERE day = ?
	`, day)
	if err != nil {
		return nil, fmt.Errorf("query completions for %s: %w", day, err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		out[key] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completions: %w", err)
	}
	return out, nil
}
