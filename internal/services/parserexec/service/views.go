package service

import (
	"context"
	"runtime"

	ptime "shillwatch/internal/platform/time"
	"shillwatch/internal/services/parserexec/domain"
)

// Capacity summarizes registry-wide quota headroom at now, applying
// hourly rollovers virtually without persisting them
func (s *Svc) Capacity(ctx context.Context) (domain.CapacityInfo, error) {
	snap := s.deps.Registry.Snapshot(ctx)
	now := s.clk.Now()

	var info domain.CapacityInfo
	for _, sl := range snap.Slots {
		used := sl.UsedInWindow
		if sl.WindowRolled(now) {
			used = 0
		}
		info.TotalCapacity += sl.LimitPerHour
		info.UsedThisHour += used

		switch {
		case sl.Health == domain.HealthError:
			// unusable, counts toward capacity only
		case sl.InCooldown(now):
			info.InCooldown++
		case used >= sl.LimitPerHour:
			info.RateLimited++
		default:
			info.ActiveInstances++
		}
	}
	info.AvailableThisHour = info.TotalCapacity - info.UsedThisHour
	if info.AvailableThisHour < 0 {
		info.AvailableThisHour = 0
	}
	return info, nil
}

// Status is the executor diagnostic view
func (s *Svc) Status(ctx context.Context) (domain.StatusView, error) {
	snap := s.deps.Registry.Snapshot(ctx)
	capacity, err := s.Capacity(ctx)
	if err != nil {
		return domain.StatusView{}, err
	}

	return domain.StatusView{
		Worker:         s.WorkerState(),
		Capacity:       capacity,
		LastSync:       ptime.Ptr(s.deps.Registry.LastSync()),
		AccountsCount:  len(snap.Accounts),
		InstancesCount: len(snap.Slots),
		Runtime:        runtime.Version(),
	}, nil
}
