package module

import (
	"time"

	"shillwatch/internal/platform/config"
)

// Options controls the ingest job catalog
type Options struct {
	FeedBaseURL    string
	FeedAPIKey     string
	FeedPageLimit  int
	MaxPages       int
	MinAmountUSD   float64
	TransfersEvery time.Duration
	RollupEvery    time.Duration
	SnapshotEvery  time.Duration
	AccuracyEvery  time.Duration
}

// FromConfig reads with CORE_INGEST_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CORE_INGEST_")
	return Options{
		FeedBaseURL:    c.MayString("FEED_BASE_URL", "http://localhost:8085"),
		FeedAPIKey:     c.MayString("FEED_API_KEY", ""),
		FeedPageLimit:  c.MayInt("FEED_PAGE_LIMIT", 500),
		MaxPages:       c.MayInt("MAX_PAGES", 10),
		MinAmountUSD:   c.MayFloat64("MIN_AMOUNT_USD", 0),
		TransfersEvery: c.MayDuration("TRANSFERS_EVERY", time.Minute),
		RollupEvery:    c.MayDuration("ROLLUP_EVERY", time.Hour),
		SnapshotEvery:  c.MayDuration("SNAPSHOT_EVERY", 24*time.Hour),
		AccuracyEvery:  c.MayDuration("ACCURACY_EVERY", time.Hour),
	}
}
