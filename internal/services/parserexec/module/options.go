package module

import (
	"time"

	"shillwatch/internal/platform/config"
)

// Options controls the execution core
type Options struct {
	SyncEvery       time.Duration
	StaleAfter      time.Duration
	DispatchTimeout time.Duration
	LocalBaseURL    string
	SessionToken    string
	UserAgent       string
	PollEvery       time.Duration
	MaxAttempts     int
}

// FromConfig reads with CORE_EXEC_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("CORE_EXEC_")
	return Options{
		SyncEvery:       c.MayDuration("SYNC_EVERY", 10*time.Second),
		StaleAfter:      c.MayDuration("STALE_AFTER", 30*time.Second),
		DispatchTimeout: c.MayDuration("DISPATCH_TIMEOUT", 30*time.Second),
		LocalBaseURL:    c.MayString("LOCAL_BASE_URL", "http://localhost:5001"),
		SessionToken:    c.MayString("SESSION_TOKEN", ""),
		UserAgent:       c.MayString("USER_AGENT", "shillwatch-parserexec"),
		PollEvery:       c.MayDuration("POLL_EVERY", 2*time.Second),
		MaxAttempts:     c.MayInt("MAX_ATTEMPTS", 3),
	}
}
