package service

import (
	"time"

	"shillwatch/internal/services/parserexec/domain"
)

const (
	cooldownRateLimitedMin = 5 * time.Minute
	cooldownTimeoutBase    = time.Minute
	cooldownTimeoutCap     = 15 * time.Minute
	cooldownRemoteError    = 30 * time.Second
	cooldownProxyBroken    = 5 * time.Minute
)

// applyOutcome folds one dispatch outcome into the slot's mutable fields
// and returns the single write-back record for it.
//
// Success increments usage, clears the timeout streak and any cooldown.
// A rate limit parks the slot for the remainder of its hourly window but
// never less than five minutes. Timeouts escalate from one minute,
// doubling per consecutive timeout up to fifteen minutes. A generic
// remote error gets a short breather. A broken proxy path is parked for
// five minutes and the slot marked degraded
func applyOutcome(slot domain.Slot, code domain.Code, now time.Time) domain.SlotWriteBack {
	wb := domain.SlotWriteBack{
		SlotID:              slot.ID,
		UsedInWindow:        slot.UsedInWindow,
		WindowStart:         slot.WindowStart,
		Health:              slot.Health,
		CooldownUntil:       slot.CooldownUntil,
		ConsecutiveTimeouts: slot.ConsecutiveTimeouts,
	}
	if wb.WindowStart.IsZero() {
		wb.WindowStart = now
	}

	switch code {
	case domain.CodeNone:
		wb.UsedInWindow++
		wb.ConsecutiveTimeouts = 0
		wb.Health = domain.HealthOK
		wb.CooldownUntil = time.Time{}

	case domain.CodeSlotRateLimited:
		remaining := slot.WindowStart.Add(time.Hour).Sub(now)
		if remaining < cooldownRateLimitedMin {
			remaining = cooldownRateLimitedMin
		}
		wb.CooldownUntil = now.Add(remaining)

	case domain.CodeRemoteTimeout:
		wb.ConsecutiveTimeouts = slot.ConsecutiveTimeouts + 1
		d := cooldownTimeoutCap
		if wb.ConsecutiveTimeouts < 5 {
			d = cooldownTimeoutBase << (wb.ConsecutiveTimeouts - 1)
		}
		if d > cooldownTimeoutCap {
			d = cooldownTimeoutCap
		}
		wb.CooldownUntil = now.Add(d)

	case domain.CodeRemoteError:
		wb.CooldownUntil = now.Add(cooldownRemoteError)

	case domain.CodeProxyNotImplemented:
		wb.CooldownUntil = now.Add(cooldownProxyBroken)
		wb.Health = domain.HealthDegraded
	}

	return wb
}
