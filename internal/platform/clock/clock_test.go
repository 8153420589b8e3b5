package clock

import (
	"testing"
	"time"
)

func TestWindowStartFor_AlignsAndBounds(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 7, 14, 37, 12, 0, time.UTC)
	start := WindowStartFor(now, time.Hour)

	if got, want := start, time.Date(2025, 3, 7, 14, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("window start = %v want %v", got, want)
	}
	if d := now.Sub(start); d >= time.Hour {
		t.Fatalf("now-start = %v, must be < 1h", d)
	}
}

func TestHourElapsed(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 7, 14, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"just under", base.Add(time.Hour - time.Second), false},
		{"exact", base.Add(time.Hour), true},
		{"over", base.Add(61 * time.Minute), true},
		{"zero", base, false},
	}
	for _, tc := range cases {
		if got := HourElapsed(tc.now, base); got != tc.want {
			t.Errorf("%s: HourElapsed = %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestBucketKey(t *testing.T) {
	t.Parallel()

	if got := BucketKey(24 * time.Hour); got != Bucket24h {
		t.Fatalf("24h -> %s", got)
	}
	if got := BucketKey(7 * 24 * time.Hour); got != Bucket7d {
		t.Fatalf("7d -> %s", got)
	}
	if got := BucketKey(30 * 24 * time.Hour); got != Bucket30d {
		t.Fatalf("30d -> %s", got)
	}
	// odd duration falls back to the daily bucket
	if got := BucketKey(90 * time.Minute); got != Bucket24h {
		t.Fatalf("90m -> %s", got)
	}
}

func TestFakeClock_SetAndAdvance(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fc := NewFake(base)
	if !fc.Now().Equal(base) {
		t.Fatalf("fake now = %v want %v", fc.Now(), base)
	}
	fc.Advance(61 * time.Minute)
	if want := base.Add(61 * time.Minute); !fc.Now().Equal(want) {
		t.Fatalf("after advance = %v want %v", fc.Now(), want)
	}
	fc.Set(base)
	if !fc.Now().Equal(base) {
		t.Fatalf("after set = %v want %v", fc.Now(), base)
	}
}
