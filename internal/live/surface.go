package live

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mattiadebonis/pharmaapp-sub001/internal/opkey"
)

// Activity is the live surface currently on screen.
type Activity struct {
	ID          string    `json:"id"`
	TherapyID   string    `json:"therapyId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Plan        Plan      `json:"plan"`
}

// Surface displays at most one activity.
type Surface interface {
	Current(ctx context.Context) (Activity, bool, error)
	Show(ctx context.Context, a Activity) error
	End(ctx context.Context, id string) error
}

// Change is what ApplyPlan did to the surface.
type Change string

const (
	ChangeNone    Change = "none"
	ChangeStarted Change = "started"
	ChangeUpdated Change = "updated"
	ChangeEnded   Change = "ended"
)

// ActivityID identifies the activity showing one dose.
func ActivityID(therapyID string, scheduledAt time.Time) string {
	return opkey.Derive("live-activity", therapyID, strconv.FormatInt(scheduledAt.Unix(), 10))
}

// ApplyPlan diffs plan against the running activity: a different primary
// dose ends the old activity and starts a new one, the same dose is updated
// in place, and an empty plan ends whatever is running.
func ApplyPlan(ctx context.Context, s Surface, plan Plan) (Change, error) {
	cur, running, err := s.Current(ctx)
	if err != nil {
		return ChangeNone, fmt.Errorf("live surface: %w", err)
	}

	if plan.Empty() {
		if !running {
			return ChangeNone, nil
		}
		if err := s.End(ctx, cur.ID); err != nil {
			return ChangeNone, fmt.Errorf("live surface: end %s: %w", cur.ID, err)
		}
		return ChangeEnded, nil
	}

	next := Activity{
		ID:          ActivityID(plan.Primary.TherapyID, plan.Primary.ScheduledAt),
		TherapyID:   plan.Primary.TherapyID,
		ScheduledAt: plan.Primary.ScheduledAt,
		Plan:        plan,
	}
	change := ChangeStarted
	if running {
		if cur.ID == next.ID {
			change = ChangeUpdated
		} else if err := s.End(ctx, cur.ID); err != nil {
			return ChangeNone, fmt.Errorf("live surface: end %s: %w", cur.ID, err)
		}
	}
	if err := s.Show(ctx, next); err != nil {
		return ChangeNone, fmt.Errorf("live surface: show %s: %w", next.ID, err)
	}
	return change, nil
}

// MemorySurface is an in-process Surface.
type MemorySurface struct {
	mu      sync.Mutex
	current *Activity
	ended   []string
}

// NewMemorySurface creates an empty surface.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{}
}

func (m *MemorySurface) Current(_ context.Context) (Activity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Activity{}, false, nil
	}
	return *m.current, true, nil
}

func (m *MemorySurface) Show(_ context.Context, a Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = &a
	return nil
}

func (m *MemorySurface) End(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.ID == id {
		m.current = nil
	}
	m.ended = append(m.ended, id)
	return nil
}

// Ended lists ended activity ids in order.
func (m *MemorySurface) Ended() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ended...)
}
