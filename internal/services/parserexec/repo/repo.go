// Package repo provides the Postgres persistence for the execution core:
// the slot/account mirror source and the durable task queue
package repo

import (
	"context"
	"time"

	"shillwatch/internal/modkit/repokit"
	"shillwatch/internal/services/parserexec/domain"
)

type (
	// PG is a Postgres execution-core repository
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG constructs a Postgres execution-core repository
func NewPG() repokit.Binder[domain.StorageRepo] { return PG{} }

// Bind binds a Queryer to a Postgres implementation of StorageRepo
func (PG) Bind(q repokit.Queryer) domain.StorageRepo { return &queries{q: q} }

// ListEnabledSlots loads the registry's slot mirror
func (r *queries) ListEnabledSlots(ctx context.Context) ([]domain.Slot, error) {
	const sql = `
		SELECT id, label, kind,
		       COALESCE(base_url,''), COALESCE(proxy_url,''),
		       enabled, COALESCE(account_id,''),
		       limit_per_hour, used_in_window, window_start_at,
		       cooldown_until, health, consecutive_timeouts, updated_at
		FROM slots
		WHERE enabled = TRUE
		ORDER BY id
	`
	rows, err := r.q.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Slot
	for rows.Next() {
		var s domain.Slot
		var kind, health string
		var cooldown *time.Time
		if err := rows.Scan(
			&s.ID, &s.Label, &kind,
			&s.BaseURL, &s.ProxyURL,
			&s.Enabled, &s.AccountID,
			&s.LimitPerHour, &s.UsedInWindow, &s.WindowStart,
			&cooldown, &health, &s.ConsecutiveTimeouts, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		s.Kind = domain.SlotKind(kind)
		s.Health = domain.Health(health)
		if cooldown != nil {
			s.CooldownUntil = *cooldown
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListActiveAccounts loads the enabled credential identities
func (r *queries) ListActiveAccounts(ctx context.Context) ([]domain.Account, error) {
	const sql = `
		SELECT id, label, status = 'active'
		FROM accounts
		WHERE status = 'active'
		ORDER BY id
	`
	rows, err := r.q.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Label, &a.Enabled); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// WriteBackSlot batches the four mutable fields in one update
func (r *queries) WriteBackSlot(ctx context.Context, wb domain.SlotWriteBack) error {
	const sql = `
		UPDATE slots
		SET used_in_window       = $2,
		    window_start_at      = $3,
		    health               = $4,
		    cooldown_until       = NULLIF($5, 'epoch'::timestamptz),
		    consecutive_timeouts = $6,
		    updated_at           = NOW()
		WHERE id = $1
	`
	cooldown := wb.CooldownUntil
	if cooldown.IsZero() {
		cooldown = time.Unix(0, 0).UTC()
	}
	_, err := r.q.Exec(ctx, sql,
		wb.SlotID, wb.UsedInWindow, wb.WindowStart.UTC(),
		string(wb.Health), cooldown, wb.ConsecutiveTimeouts,
	)
	return err
}

// ResetAllCounters zeroes usage and clears cooldowns for every slot
func (r *queries) ResetAllCounters(ctx context.Context, now time.Time) error {
	const sql = `
		UPDATE slots
		SET used_in_window       = 0,
		    window_start_at      = $1,
		    cooldown_until       = NULL,
		    consecutive_timeouts = 0,
		    updated_at           = NOW()
	`
	_, err := r.q.Exec(ctx, sql, now.UTC())
	return err
}
