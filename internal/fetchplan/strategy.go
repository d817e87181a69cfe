// Package fetchplan decides which language tracks must be fetched from the
// host, deduplicates repeated requests, and runs the fetches strictly
// sequentially so the host's single active-track resource never sees
// concurrent switches.
package fetchplan

import "github.com/Vinson1014/SubPal-sub000/internal/subcache"

// Status summarizes cache coverage against the configured language
// preferences.
type Status struct {
	HasPrimary     bool
	HasSecondary   bool
	NeedsPrimary   bool
	NeedsSecondary bool
}

// Strategy is the fetch decision derived from a Status.
type Strategy int

const (
	UseCacheOnly Strategy = iota
	FetchPrimary
	FetchSecondary
	FetchBoth
)

func (s Strategy) String() string {
	switch s {
	case UseCacheOnly:
		return "USE_CACHE_ONLY"
	case FetchPrimary:
		return "FETCH_PRIMARY"
	case FetchSecondary:
		return "FETCH_SECONDARY"
	case FetchBoth:
		return "FETCH_BOTH"
	default:
		return "UNKNOWN"
	}
}

// Analyze computes cache coverage for the current video given the language
// preferences and the dual-mode toggle. The secondary track is only ever
// needed while dual mode is enabled.
func Analyze(byLang map[string]*subcache.Entry, primary, secondary string, dualEnabled bool) Status {
	hasPrimary := byLang[primary] != nil
	hasSecondary := byLang[secondary] != nil
	return Status{
		HasPrimary:     hasPrimary,
		HasSecondary:   hasSecondary,
		NeedsPrimary:   !hasPrimary,
		NeedsSecondary: dualEnabled && !hasSecondary,
	}
}

// Determine maps a coverage status to a fetch strategy. Pure function: same
// booleans in, same strategy out, no side effects.
func Determine(status Status) Strategy {
	switch {
	case status.NeedsPrimary && status.NeedsSecondary:
		return FetchBoth
	case status.NeedsPrimary:
		return FetchPrimary
	case status.NeedsSecondary:
		return FetchSecondary
	default:
		return UseCacheOnly
	}
}

// Languages returns the languages a strategy requires, primary first.
func (s Strategy) Languages(primary, secondary string) []string {
	switch s {
	case FetchPrimary:
		return []string{primary}
	case FetchSecondary:
		return []string{secondary}
	case FetchBoth:
		return []string{primary, secondary}
	default:
		return nil
	}
}
