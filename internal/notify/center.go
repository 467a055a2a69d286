package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/opkey"
)

// Center is the local notification scheduler the plan is materialized into.
type Center interface {
	Pending(ctx context.Context) ([]Request, error)
	Delivered(ctx context.Context) ([]Request, error)
	Add(ctx context.Context, reqs ...Request) error
	Remove(ctx context.Context, ids ...string) error
}

// Diff reports what Apply changed.
type Diff struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Kept    int `json:"kept"`
}

// Apply diffs the plan against the pending planner-owned requests: stale
// ones are removed, missing ones added. Requests not owned by the planner
// (snoozed series, live follow-ups, immediate stock alerts) are left alone,
// and a candidate already covered by one of them is not scheduled again.
func Apply(ctx context.Context, c Center, plan Plan) (Diff, error) {
	pending, err := c.Pending(ctx)
	if err != nil {
		return Diff{}, fmt.Errorf("apply plan: list pending: %w", err)
	}

	want := make(map[string]bool, len(plan.Requests))
	for _, r := range plan.Requests {
		want[r.ID] = true
	}
	have := make(map[string]bool, len(pending))
	covered := make(map[string]bool)
	var stale []string
	for _, r := range pending {
		have[r.ID] = true
		if r.UserInfo[InfoPlanned] != "true" {
			if r.CandidateID != "" {
				covered[r.CandidateID] = true
			}
			continue
		}
		if !want[r.ID] {
			stale = append(stale, r.ID)
		}
	}

	var add []Request
	var diff Diff
	for _, r := range plan.Requests {
		if covered[r.CandidateID] {
			if have[r.ID] {
				stale = append(stale, r.ID)
			}
			continue
		}
		if have[r.ID] {
			diff.Kept++
			continue
		}
		add = append(add, r)
	}

	if len(stale) > 0 {
		if err := c.Remove(ctx, stale...); err != nil {
			return Diff{}, fmt.Errorf("apply plan: remove: %w", err)
		}
	}
	if len(add) > 0 {
		if err := c.Add(ctx, add...); err != nil {
			return Diff{}, fmt.Errorf("apply plan: add: %w", err)
		}
	}
	diff.Added = len(add)
	diff.Removed = len(stale)
	slog.DebugContext(ctx, "notification plan applied",
		"added", diff.Added, "removed", diff.Removed, "kept", diff.Kept, "dropped", plan.Dropped)
	return diff, nil
}

// StopSeries removes every pending and delivered request of a series.
// It returns the removed requests.
func StopSeries(ctx context.Context, c Center, seriesID string) ([]Request, error) {
	var members []Request
	for _, list := range []func(context.Context) ([]Request, error){c.Pending, c.Delivered} {
		reqs, err := list(ctx)
		if err != nil {
			return nil, fmt.Errorf("stop series %s: %w", seriesID, err)
		}
		for _, r := range reqs {
			if r.UserInfo[InfoSeriesID] == seriesID {
				members = append(members, r)
			}
		}
	}
	if len(members) == 0 {
		return nil, nil
	}
	ids := make([]string, len(members))
	for i, r := range members {
		ids[i] = r.ID
	}
	if err := c.Remove(ctx, ids...); err != nil {
		return nil, fmt.Errorf("stop series %s: %w", seriesID, err)
	}
	return members, nil
}

// SnoozeSeries removes a series and schedules a brand-new one starting
// snoozeMinutes after now under a fresh series id. The new series is not
// planner-owned, so a later Apply keeps it.
func SnoozeSeries(ctx context.Context, c Center, seriesID string, now time.Time, snoozeMinutes int, ids opkey.IDGenerator) ([]Request, error) {
	removed, err := StopSeries(ctx, c, seriesID)
	if err != nil {
		return nil, err
	}
	if len(removed) == 0 {
		return nil, fmt.Errorf("snooze series %s: no such series", seriesID)
	}
	first := removed[0]
	info := make(map[string]string, len(first.UserInfo))
	for k, v := range first.UserInfo {
		if k == InfoPlanned || k == InfoSeriesID {
			continue
		}
		info[k] = v
	}
	info["snoozedFrom"] = seriesID

	start := now.Add(time.Duration(snoozeMinutes) * time.Minute)
	reqs := series(ids.Generate(), first.CandidateID, first.Origin, first.Title, first.Body, start, info)
	if err := c.Add(ctx, reqs...); err != nil {
		return nil, fmt.Errorf("snooze series %s: %w", seriesID, err)
	}
	slog.InfoContext(ctx, "alarm series snoozed", "from", seriesID, "to", reqs[0].SeriesID, "start", start)
	return reqs, nil
}

// MemoryCenter is an in-process Center. Deliver moves due requests from
// pending to delivered.
type MemoryCenter struct {
	mu        sync.Mutex
	pending   map[string]Request
	delivered map[string]Request
}

// NewMemoryCenter creates an empty center.
func NewMemoryCenter() *MemoryCenter {
	return &MemoryCenter{pending: make(map[string]Request), delivered: make(map[string]Request)}
}

func (m *MemoryCenter) Pending(_ context.Context) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sorted(m.pending), nil
}

func (m *MemoryCenter) Delivered(_ context.Context) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sorted(m.delivered), nil
}

func (m *MemoryCenter) Add(_ context.Context, reqs ...Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range reqs {
		m.pending[r.ID] = r
	}
	return nil
}

func (m *MemoryCenter) Remove(_ context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.pending, id)
		delete(m.delivered, id)
	}
	return nil
}

// Deliver moves every pending request due at or before now to delivered.
func (m *MemoryCenter) Deliver(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, r := range m.pending {
		if !r.FireAt.After(now) {
			delete(m.pending, id)
			m.delivered[id] = r
			n++
		}
	}
	return n
}

func sorted(set map[string]Request) []Request {
	out := make([]Request, 0, len(set))
	for _, r := range set {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].FireAt.Before(out[j].FireAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
