// Package render samples playback time and turns cached subtitle tracks into
// normalized dual-subtitle events for the display surface.
package render

import (
	"context"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/Vinson1014/SubPal-sub000/internal/host"
	"github.com/Vinson1014/SubPal-sub000/internal/subcache"
	"github.com/Vinson1014/SubPal-sub000/internal/timedtext"
	"github.com/Vinson1014/SubPal-sub000/pkg/log"
)

// TrackProvider hands the loop the cached entries for the two configured
// language tracks. The loop only reads; it never mutates cache state.
type TrackProvider interface {
	ActiveTracks() (primary, secondary *subcache.Entry)
	VideoID() string
}

// Prefetcher is poked every tick with the current playback time so fetch
// planning can run ahead of playback without blocking the tick.
type Prefetcher interface {
	MaybePrefetch(currentTime float64)
}

// Loop is the interception-mode acquisition source: a fixed-interval sampler
// that queries the time index for both tracks, de-duplicates by text, and
// emits one normalized event per caption change.
type Loop struct {
	clock       host.PlaybackClock
	tracks      TrackProvider
	prefetch    Prefetcher
	emit        func(host.SubtitlePayload)
	interval    time.Duration
	tolerance   float64 // seconds
	dualEnabled func() bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool

	lastPrimary   string
	lastSecondary string
	emittedOnce   bool
}

func NewLoop(
	clock host.PlaybackClock,
	tracks TrackProvider,
	prefetch Prefetcher,
	emit func(host.SubtitlePayload),
	interval time.Duration,
	tolerance time.Duration,
	dualEnabled func() bool,
) *Loop {
	return &Loop{
		clock:       clock,
		tracks:      tracks,
		prefetch:    prefetch,
		emit:        emit,
		interval:    interval,
		tolerance:   tolerance.Seconds(),
		dualEnabled: dualEnabled,
		stopCh:      make(chan struct{}),
	}
}

func (l *Loop) Name() string { return "interception" }

func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return nil
	}
	l.started = true
	l.mu.Unlock()

	l.wg.Add(1)
	go l.run(ctx)
	return nil
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick()
		}
	}
}

// tick samples once. Nothing may throw across the tick boundary, so the
// whole body is panic-guarded.
func (l *Loop) tick() {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Render tick panicked: %v", r)
		}
	}()

	now := l.clock.CurrentTime()
	primary, secondary := l.tracks.ActiveTracks()

	primaryCue := lookupCue(primary, now, l.tolerance)
	var secondaryCue *timedtext.Entry
	dual := l.dualEnabled()
	if dual {
		secondaryCue = lookupCue(secondary, now, l.tolerance)
	}

	primaryText := cueText(primaryCue)
	secondaryText := cueText(secondaryCue)

	// prefetch runs every tick, independent of whether anything is emitted
	if l.prefetch != nil {
		l.prefetch.MaybePrefetch(now)
	}

	// emit only when either text changed; timestamp/position churn alone
	// must not flood the display surface
	if l.emittedOnce && primaryText == l.lastPrimary && secondaryText == l.lastSecondary {
		return
	}
	l.lastPrimary = primaryText
	l.lastSecondary = secondaryText
	l.emittedOnce = true

	l.emit(l.buildPayload(now, primary, secondary, primaryCue, secondaryCue, dual))
}

func (l *Loop) buildPayload(
	now float64,
	primary, secondary *subcache.Entry,
	primaryCue, secondaryCue *timedtext.Entry,
	dual bool,
) host.SubtitlePayload {
	payload := host.SubtitlePayload{
		Text:      cueText(primaryCue),
		Timestamp: now,
		Mode:      host.ModeIntercept,
		VideoID:   l.tracks.VideoID(),
	}
	payload.HTMLContent = toHTML(payload.Text)

	if primaryCue != nil && primary != nil {
		payload.Position = regionPosition(primary.Regions, primaryCue)
	}

	if dual && secondaryCue != nil {
		payload.IsDualSubtitle = true
		payload.DualSubtitle = &host.DualSubtitleData{
			Primary:   toTrackCue(primary, primaryCue),
			Secondary: toTrackCue(secondary, secondaryCue),
		}
		if payload.HTMLContent != "" {
			payload.HTMLContent += "<br>" + toHTML(secondaryCue.Text)
		} else {
			payload.HTMLContent = toHTML(secondaryCue.Text)
		}
	}
	return payload
}

// Stop halts the sampling loop. Idempotent.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	l.wg.Wait()
}

// lookupCue queries an entry's time index, falling back to the linear scan
// when the index lookup itself panics.
func lookupCue(entry *subcache.Entry, now, tolerance float64) (cue *timedtext.Entry) {
	if entry == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn("Index lookup panicked, using linear scan: %v", r)
			cue = timedtext.FindByTime(entry.Subtitles, now, tolerance)
		}
	}()
	return entry.Index.Lookup(now, tolerance)
}

func cueText(cue *timedtext.Entry) string {
	if cue == nil {
		return ""
	}
	return cue.Text
}

func toHTML(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = html.EscapeString(line)
	}
	return strings.Join(lines, "<br>")
}

func toTrackCue(entry *subcache.Entry, cue *timedtext.Entry) host.TrackCue {
	tc := host.TrackCue{
		Text:      cue.Text,
		StartTime: cue.StartTime,
		EndTime:   cue.EndTime,
	}
	if entry != nil {
		tc.Language = entry.Key.Language
	}
	return tc
}

func regionPosition(regions map[string]timedtext.RegionConfig, cue *timedtext.Entry) *host.Position {
	if !cue.HasRegion || regions == nil {
		return nil
	}
	region, ok := regions[cue.RegionID]
	if !ok {
		return nil
	}
	return &host.Position{
		X:     region.Origin.X,
		Y:     region.Origin.Y,
		W:     region.Extent.W,
		H:     region.Extent.H,
		Align: string(region.DisplayAlign),
	}
}
