package dispatch

import (
	"strconv"
	"strings"

	"shillwatch/internal/services/parserexec/domain"
)

// normalize translates an engine-native result into the product shape.
// Resolution is first-non-nil: engine summary fields win over derived
// values, measured wall time backs a missing durationMs
func normalize(res engineResult, measuredMs int64) domain.Result {
	out := domain.Result{
		Fetched:    len(res.Tweets),
		DurationMs: measuredMs,
		Posts:      res.Tweets,
	}

	if s := res.Summary; s != nil {
		if s.FetchedPosts != nil {
			out.Fetched = *s.FetchedPosts
		}
		switch {
		case s.FinalRisk != nil:
			out.RiskScore = *s.FinalRisk
		case s.RiskMax != nil:
			out.RiskScore = *s.RiskMax
		}
		if s.DurationMs != nil {
			out.DurationMs = *s.DurationMs
		}
		out.Aborted = coerceBool(s.Aborted)
		out.AbortReason = s.AbortReason
	}

	switch {
	case !out.Aborted:
		out.Status = domain.ResultOK
	case out.Fetched > 0:
		out.Status = domain.ResultPartial
	default:
		out.Status = domain.ResultAborted
	}
	return out
}

// coerceBool accepts the loose truthiness engines emit for aborted:
// bools, numbers, and strings like "true"/"1"
func coerceBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case int:
		return x != 0
	case string:
		s := strings.TrimSpace(strings.ToLower(x))
		if s == "" {
			return false
		}
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		return false
	default:
		return false
	}
}
