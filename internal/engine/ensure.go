package engine

import (
	"context"
	"time"

	"github.com/Vinson1014/SubPal-sub000/internal/fetchplan"
	"github.com/Vinson1014/SubPal-sub000/internal/mode"
	"github.com/Vinson1014/SubPal-sub000/internal/subcache"
	"github.com/Vinson1014/SubPal-sub000/pkg/log"
)

// EnsureSubtitles brings the cache in line with the language preferences for
// the current video: analyze coverage, determine a strategy, execute it.
// Concurrent calls for the same video collapse into a single round.
func (e *Engine) EnsureSubtitles(ctx context.Context) error {
	videoID, primary, secondary, dual := e.prefs()
	if videoID == "" {
		return nil
	}

	_, err, _ := e.ensureGroup.Do(videoID, func() (any, error) {
		byLang := e.cache.ForVideo(videoID)
		status := fetchplan.Analyze(byLang, primary, secondary, dual)
		strategy := fetchplan.Determine(status)
		log.Debug("Fetch strategy for video %s: %s", videoID, strategy)

		if strategy == fetchplan.UseCacheOnly {
			return nil, nil
		}
		return nil, e.exec.Execute(ctx, strategy, primary, secondary)
	})

	e.trackFetchOutcome(err)
	return err
}

// trackFetchOutcome counts consecutive fetch failures while interception is
// active; a streak is reported as a runtime source error so the coordinator
// can downgrade.
func (e *Engine) trackFetchOutcome(err error) {
	if err == nil {
		e.fetchFailures.Store(0)
		return
	}
	if e.fetchFailures.Add(1) < maxConsecutiveFetchFailures {
		return
	}
	if e.coord.State() != mode.StateInterceptActive {
		return
	}
	e.fetchFailures.Store(0)
	go e.coord.ReportSourceError(e.ctx(), err)
}

// ensureAsync runs one bounded ensure round off the caller's goroutine.
func (e *Engine) ensureAsync(reason string) {
	ctx, cancel := context.WithTimeout(e.ctx(), e.fetchBudget())
	defer cancel()
	if err := e.EnsureSubtitles(ctx); err != nil {
		log.Warn("Subtitle fetch (%s) failed: %v", reason, err)
	}
}

// fetchBudget bounds one full ensure round: at worst two switch-and-wait
// steps plus the restore switch.
func (e *Engine) fetchBudget() time.Duration {
	return 3*e.cfg.Timing.FetchWaitSwitch + e.cfg.Timing.FetchWaitActive
}

// MaybePrefetch implements render.Prefetcher. Called every render tick with
// the playback position; it requests the next window when playback nears the
// end of the already-requested range, and never blocks the tick.
func (e *Engine) MaybePrefetch(currentTime float64) {
	threshold := e.cfg.Timing.PrefetchThreshold.Seconds()
	window := e.cfg.Timing.PrefetchWindow.Seconds()

	if end, ok := e.book.NearestEnd(currentTime); ok && end-currentTime > threshold {
		return
	}

	start, end := currentTime, currentTime+window
	if e.book.Covered(start, end) {
		return
	}
	e.book.Begin(start, end)

	go func() {
		ctx, cancel := context.WithTimeout(e.ctx(), e.fetchBudget())
		defer cancel()
		err := e.EnsureSubtitles(ctx)
		e.book.Finish(start, end, err == nil)
	}()
}

// ActiveTracks implements render.TrackProvider. The secondary entry is only
// handed out while dual mode is on.
func (e *Engine) ActiveTracks() (primary, secondary *subcache.Entry) {
	videoID, primaryLang, secondaryLang, dual := e.prefs()
	byLang := e.cache.ForVideo(videoID)

	primary = byLang[primaryLang]
	if dual {
		secondary = byLang[secondaryLang]
	}
	return primary, secondary
}
