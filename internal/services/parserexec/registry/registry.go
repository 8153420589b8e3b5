// Package registry keeps the in-memory mirror of persisted slots and
// accounts. The mirror is authoritative for counter accounting between
// syncs; the store owns the durable truth and is reconciled on a cadence
package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"shillwatch/internal/modkit/repokit"
	"shillwatch/internal/platform/clock"
	"shillwatch/internal/platform/logger"
	"shillwatch/internal/services/parserexec/domain"
)

// Config tunes sync cadence and staleness tolerance
type Config struct {
	// SyncEvery is the scheduled resync cadence (default 10s)
	SyncEvery time.Duration

	// StaleAfter forces a resync when a snapshot is requested and the
	// last sync is older than this (default 30s)
	StaleAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.SyncEvery <= 0 {
		c.SyncEvery = 10 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Second
	}
	return c
}

// Snapshot is the immutable view handed to the selector and the
// executor's sync path
type Snapshot struct {
	Slots    []domain.Slot
	Accounts []domain.Account
	SyncedAt time.Time
}

// Registry mirrors enabled slots and active accounts
type Registry struct {
	db     repokit.TxRunner
	binder repokit.Binder[domain.StorageRepo]
	clk    clock.Clock
	cfg    Config
	log    logger.Logger

	mu       sync.RWMutex
	slots    map[string]domain.Slot
	accounts []domain.Account
	lastSync time.Time

	onResync []func()
}

// New constructs a Registry; Sync must run once before first use
func New(db repokit.TxRunner, binder repokit.Binder[domain.StorageRepo], clk clock.Clock, cfg Config) *Registry {
	if db == nil {
		panic("registry requires a non nil TxRunner")
	}
	if binder == nil {
		panic("registry requires a non nil Repo binder")
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Registry{
		db:     db,
		binder: binder,
		clk:    clk,
		cfg:    cfg.withDefaults(),
		log:    *logger.Named("parserexec.registry"),
		slots:  make(map[string]domain.Slot),
	}
}

// SyncEvery exposes the configured cadence for scheduler registration
func (r *Registry) SyncEvery() time.Duration { return r.cfg.SyncEvery }

// OnResync registers a hook fired after every successful sync
// (used to invalidate the dispatcher's adapter cache)
func (r *Registry) OnResync(fn func()) {
	r.mu.Lock()
	r.onResync = append(r.onResync, fn)
	r.mu.Unlock()
}

// Sync reloads the mirror from the store. Failures leave the current
// mirror untouched; operations continue against the last good state
func (r *Registry) Sync(ctx context.Context) error {
	var (
		slots    []domain.Slot
		accounts []domain.Account
	)
	err := r.db.Tx(ctx, func(q repokit.Queryer) error {
		repo := r.binder.Bind(q)
		s, err := repo.ListEnabledSlots(ctx)
		if err != nil {
			return err
		}
		a, err := repo.ListActiveAccounts(ctx)
		if err != nil {
			return err
		}
		slots, accounts = s, a
		return nil
	})
	if err != nil {
		r.log.Warn().Err(err).Msg("registry sync failed, keeping last good snapshot")
		return err
	}

	r.mu.Lock()
	next := make(map[string]domain.Slot, len(slots))
	for _, s := range slots {
		// Keep in-memory counter state when the stored row is older than
		// our last write-back; the mirror is authoritative between syncs
		if cur, ok := r.slots[s.ID]; ok && cur.UpdatedAt.After(s.UpdatedAt) {
			s.UsedInWindow = cur.UsedInWindow
			s.WindowStart = cur.WindowStart
			s.Health = cur.Health
			s.CooldownUntil = cur.CooldownUntil
			s.ConsecutiveTimeouts = cur.ConsecutiveTimeouts
			s.UpdatedAt = cur.UpdatedAt
		}
		next[s.ID] = s
	}
	r.slots = next
	r.accounts = accounts
	r.lastSync = r.clk.Now()
	hooks := append([]func(){}, r.onResync...)
	r.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return nil
}

// Snapshot returns a copy of the mirror. A snapshot older than the
// staleness budget triggers a forced resync first; if that resync
// fails the last good snapshot is returned
func (r *Registry) Snapshot(ctx context.Context) Snapshot {
	r.mu.RLock()
	stale := r.clk.Now().Sub(r.lastSync) > r.cfg.StaleAfter
	r.mu.RUnlock()

	if stale {
		_ = r.Sync(ctx) // failure keeps the last good mirror
	}
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slots := make([]domain.Slot, 0, len(r.slots))
	for _, s := range r.slots {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].ID < slots[j].ID })

	accounts := make([]domain.Account, len(r.accounts))
	copy(accounts, r.accounts)

	return Snapshot{Slots: slots, Accounts: accounts, SyncedAt: r.lastSync}
}

// Slot returns the mirror's current state for one slot id
func (r *Registry) Slot(id string) (domain.Slot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.slots[id]
	return s, ok
}

// LastSync reports when the mirror last reconciled successfully
func (r *Registry) LastSync() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSync
}

// WriteBack persists the mutable slot fields and applies them to the
// mirror in the same step
func (r *Registry) WriteBack(ctx context.Context, wb domain.SlotWriteBack) error {
	err := r.db.Tx(ctx, func(q repokit.Queryer) error {
		return r.binder.Bind(q).WriteBackSlot(ctx, wb)
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	if s, ok := r.slots[wb.SlotID]; ok {
		s.UsedInWindow = wb.UsedInWindow
		s.WindowStart = wb.WindowStart
		s.Health = wb.Health
		s.CooldownUntil = wb.CooldownUntil
		s.ConsecutiveTimeouts = wb.ConsecutiveTimeouts
		s.UpdatedAt = r.clk.Now()
		r.slots[wb.SlotID] = s
	}
	r.mu.Unlock()
	return nil
}

// ResetAllCounters zeroes every slot's usage and cooldown, store first
// then mirror
func (r *Registry) ResetAllCounters(ctx context.Context) error {
	now := r.clk.Now()
	err := r.db.Tx(ctx, func(q repokit.Queryer) error {
		return r.binder.Bind(q).ResetAllCounters(ctx, now)
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	for id, s := range r.slots {
		s.UsedInWindow = 0
		s.WindowStart = now
		s.CooldownUntil = time.Time{}
		s.ConsecutiveTimeouts = 0
		s.UpdatedAt = now
		r.slots[id] = s
	}
	r.mu.Unlock()
	return nil
}
