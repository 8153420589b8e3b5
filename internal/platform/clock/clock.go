// Package clock provides a time source seam plus the window math used
// by quota accounting and signal bucketing
package clock

import (
	"sync"
	"time"
)

// Clock abstracts time acquisition so tests can drive it deterministically
type Clock interface {
	Now() time.Time
}

// System is the wall clock
type System struct{}

// Now returns the current UTC time
func (System) Now() time.Time { return time.Now().UTC() }

// Fake is a settable clock for tests
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake pinned at t
func NewFake(t time.Time) *Fake { return &Fake{now: t.UTC()} }

// Now returns the pinned instant
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set pins the clock at t
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}

// Advance moves the clock forward by d
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Hour is the quota window length; exported so callers and tests agree
const Hour = time.Hour

// WindowStartFor returns the most recent instant s aligned to d such that
// now.Sub(s) < d. Alignment is against the zero epoch so the result is
// stable for a given now regardless of who asks
func WindowStartFor(now time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return now
	}
	return now.Truncate(d)
}

// HourElapsed reports whether a full hour has passed since windowStart.
// Comparisons are millisecond-granular; sub-millisecond drift is ignored
func HourElapsed(now, windowStart time.Time) bool {
	return now.Sub(windowStart) >= Hour-time.Millisecond/2
}

// Bucket identifies one of the fixed lookback windows
type Bucket string

// Fixed lookback windows used by rollups and capacity views
const (
	Bucket24h Bucket = "24h"
	Bucket7d  Bucket = "7d"
	Bucket30d Bucket = "30d"
)

// BucketKey maps a lookback duration onto its named bucket.
// Unknown durations fall back to the 24h bucket
func BucketKey(d time.Duration) Bucket {
	switch {
	case d >= 30*24*time.Hour:
		return Bucket30d
	case d >= 7*24*time.Hour:
		return Bucket7d
	default:
		return Bucket24h
	}
}

// BucketStart returns the date-truncated start of the bucket ending at now
func BucketStart(now time.Time, b Bucket) time.Time {
	day := now.UTC().Truncate(24 * time.Hour)
	switch b {
	case Bucket30d:
		return day.AddDate(0, 0, -30)
	case Bucket7d:
		return day.AddDate(0, 0, -7)
	default:
		return day.AddDate(0, 0, -1)
	}
}
