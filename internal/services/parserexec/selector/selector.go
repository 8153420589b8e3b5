// Package selector holds the pure slot selection policy.
// It performs no I/O; any mutation it reports (the hourly reset) is
// applied and persisted by the caller
package selector

import (
	"fmt"
	"sort"
	"time"

	"shillwatch/internal/services/parserexec/domain"
)

// NoSlot aggregates why no slot was eligible
type NoSlot struct {
	Total         int `json:"total"`
	Enabled       int `json:"enabled"`
	RateLimited   int `json:"rateLimited"`
	InCooldown    int `json:"inCooldown"`
	ErroredHealth int `json:"erroredHealth"`
}

// Reason renders the aggregate as human-readable text
func (n NoSlot) Reason() string {
	return fmt.Sprintf(
		"no eligible slot: total=%d enabled=%d over_quota=%d in_cooldown=%d errored=%d",
		n.Total, n.Enabled, n.RateLimited, n.InCooldown, n.ErroredHealth,
	)
}

// Decision is the selector's answer. Exactly one of Slot / NoSlot is
// set. Resets lists slots whose hourly bucket rolled; the caller must
// persist them even when selection subsequently fails
type Decision struct {
	Slot   *domain.Slot
	NoSlot *NoSlot
	Resets []domain.Slot
}

// Pick applies the hourly reset to the working copies, filters to
// eligible slots and ranks them. Deterministic: equal snapshots and
// equal now yield the same slot id
func Pick(now time.Time, slots []domain.Slot) Decision {
	work := make([]domain.Slot, len(slots))
	copy(work, slots)

	var resets []domain.Slot
	for i := range work {
		if work[i].WindowRolled(now) {
			work[i].UsedInWindow = 0
			work[i].WindowStart = now
			resets = append(resets, work[i])
		}
	}

	agg := NoSlot{Total: len(work)}
	var eligible []domain.Slot
	for _, s := range work {
		if !s.Enabled {
			continue
		}
		agg.Enabled++
		switch {
		case s.Health == domain.HealthError:
			agg.ErroredHealth++
		case s.InCooldown(now):
			agg.InCooldown++
		case s.UsedInWindow >= s.LimitPerHour:
			agg.RateLimited++
		default:
			eligible = append(eligible, s)
		}
	}

	if len(eligible) == 0 {
		return Decision{NoSlot: &agg, Resets: resets}
	}

	// Largest remaining quota first, then lowest used, then id
	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Remaining() != b.Remaining() {
			return a.Remaining() > b.Remaining()
		}
		if a.UsedInWindow != b.UsedInWindow {
			return a.UsedInWindow < b.UsedInWindow
		}
		return a.ID < b.ID
	})

	chosen := eligible[0]

	// When the front-runner is degraded, prefer the best ok-health
	// candidate if one exists
	if chosen.Health == domain.HealthDegraded {
		for _, s := range eligible[1:] {
			if s.Health == domain.HealthOK {
				chosen = s
				break
			}
		}
	}

	return Decision{Slot: &chosen, Resets: resets}
}
