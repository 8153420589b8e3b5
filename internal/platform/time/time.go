// Package time has helpers for optional timestamps
package time

import "time"

// Ptr returns nil for the zero time so "never happened" serializes as
// null instead of 0001-01-01
func Ptr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
