package selector

import (
	"testing"
	"time"

	"shillwatch/internal/services/parserexec/domain"
)

var now = time.Date(2025, 5, 20, 10, 30, 0, 0, time.UTC)

func slot(id string, limit, used int, mut ...func(*domain.Slot)) domain.Slot {
	s := domain.Slot{
		ID:           id,
		Kind:         domain.KindRemoteWorker,
		Enabled:      true,
		LimitPerHour: limit,
		UsedInWindow: used,
		WindowStart:  now.Add(-10 * time.Minute),
		Health:       domain.HealthOK,
	}
	for _, m := range mut {
		m(&s)
	}
	return s
}

func TestPick_PrefersLargestRemainingQuota(t *testing.T) {
	t.Parallel()

	// A is over quota, B has headroom
	d := Pick(now, []domain.Slot{slot("a", 10, 10), slot("b", 10, 2)})
	if d.Slot == nil || d.Slot.ID != "b" {
		t.Fatalf("want b, got %+v", d)
	}
}

func TestPick_TieBreaksByUsedThenID(t *testing.T) {
	t.Parallel()

	// same remaining, same used -> lexicographic id
	d := Pick(now, []domain.Slot{slot("b", 10, 3), slot("a", 10, 3)})
	if d.Slot == nil || d.Slot.ID != "a" {
		t.Fatalf("want a, got %+v", d.Slot)
	}

	// same remaining, different used -> lower used wins
	d = Pick(now, []domain.Slot{slot("a", 12, 5), slot("b", 10, 3)})
	if d.Slot.ID != "b" {
		t.Fatalf("want b (remaining tie, fewer used), got %s", d.Slot.ID)
	}
}

func TestPick_Deterministic(t *testing.T) {
	t.Parallel()

	snap := []domain.Slot{slot("c", 8, 1), slot("a", 8, 1), slot("b", 8, 1)}
	first := Pick(now, snap)
	for range 10 {
		if got := Pick(now, snap); got.Slot.ID != first.Slot.ID {
			t.Fatalf("selector not deterministic: %s vs %s", got.Slot.ID, first.Slot.ID)
		}
	}
}

func TestPick_HourlyResetBeforeEligibility(t *testing.T) {
	t.Parallel()

	stale := slot("a", 5, 5, func(s *domain.Slot) {
		s.WindowStart = now.Add(-61 * time.Minute)
	})
	d := Pick(now, []domain.Slot{stale})
	if d.Slot == nil {
		t.Fatalf("expected rolled slot to become eligible: %+v", d.NoSlot)
	}
	if d.Slot.UsedInWindow != 0 || !d.Slot.WindowStart.Equal(now) {
		t.Fatalf("reset not applied: used=%d windowStart=%v", d.Slot.UsedInWindow, d.Slot.WindowStart)
	}
	if len(d.Resets) != 1 || d.Resets[0].ID != "a" {
		t.Fatalf("reset not reported for caller persistence: %+v", d.Resets)
	}
}

func TestPick_CooldownHonoured(t *testing.T) {
	t.Parallel()

	cooling := slot("a", 10, 0, func(s *domain.Slot) {
		s.CooldownUntil = now.Add(2 * time.Minute)
	})
	d := Pick(now, []domain.Slot{cooling})
	if d.Slot != nil {
		t.Fatalf("cooling slot returned: %s", d.Slot.ID)
	}
	if d.NoSlot.InCooldown != 1 {
		t.Fatalf("cooldown not counted: %+v", d.NoSlot)
	}

	// expired cooldown is eligible again
	expired := slot("a", 10, 0, func(s *domain.Slot) {
		s.CooldownUntil = now.Add(-time.Second)
	})
	if d := Pick(now, []domain.Slot{expired}); d.Slot == nil {
		t.Fatalf("expired cooldown still blocking: %+v", d.NoSlot)
	}
}

func TestPick_PrefersOKOverDegraded(t *testing.T) {
	t.Parallel()

	degraded := slot("a", 20, 0, func(s *domain.Slot) { s.Health = domain.HealthDegraded })
	ok := slot("b", 10, 5, func(s *domain.Slot) { s.Health = domain.HealthOK })
	d := Pick(now, []domain.Slot{degraded, ok})
	if d.Slot.ID != "b" {
		t.Fatalf("degraded preferred over ok: got %s", d.Slot.ID)
	}
}

func TestPick_NoSlotAggregates(t *testing.T) {
	t.Parallel()

	slots := []domain.Slot{
		slot("off", 10, 0, func(s *domain.Slot) { s.Enabled = false }),
		slot("quota", 5, 5),
		slot("cool", 10, 0, func(s *domain.Slot) { s.CooldownUntil = now.Add(time.Minute) }),
		slot("sick", 10, 0, func(s *domain.Slot) { s.Health = domain.HealthError }),
	}
	d := Pick(now, slots)
	if d.Slot != nil {
		t.Fatalf("unexpected pick: %s", d.Slot.ID)
	}
	n := d.NoSlot
	if n.Total != 4 || n.Enabled != 3 || n.RateLimited != 1 || n.InCooldown != 1 || n.ErroredHealth != 1 {
		t.Fatalf("bad aggregates: %+v", n)
	}
	if n.Reason() == "" {
		t.Fatalf("empty reason text")
	}
}

func TestPick_InputSnapshotNotMutated(t *testing.T) {
	t.Parallel()

	orig := []domain.Slot{slot("a", 5, 5, func(s *domain.Slot) {
		s.WindowStart = now.Add(-2 * time.Hour)
	})}
	_ = Pick(now, orig)
	if orig[0].UsedInWindow != 5 {
		t.Fatalf("selector mutated its input snapshot")
	}
}
