package render

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vinson1014/SubPal-sub000/internal/host"
	"github.com/Vinson1014/SubPal-sub000/internal/subcache"
	"github.com/Vinson1014/SubPal-sub000/internal/timedtext"
)

type settableClock struct {
	mu sync.Mutex
	t  float64
}

func (c *settableClock) CurrentTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *settableClock) set(t float64) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type staticTracks struct {
	primary   *subcache.Entry
	secondary *subcache.Entry
}

func (s *staticTracks) ActiveTracks() (*subcache.Entry, *subcache.Entry) {
	return s.primary, s.secondary
}

func (s *staticTracks) VideoID() string { return "vid1" }

type countingPrefetcher struct {
	mu    sync.Mutex
	calls []float64
}

func (p *countingPrefetcher) MaybePrefetch(t float64) {
	p.mu.Lock()
	p.calls = append(p.calls, t)
	p.mu.Unlock()
}

func (p *countingPrefetcher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type renderSink struct {
	mu       sync.Mutex
	payloads []host.SubtitlePayload
}

func (s *renderSink) collect(p host.SubtitlePayload) {
	s.mu.Lock()
	s.payloads = append(s.payloads, p)
	s.mu.Unlock()
}

func (s *renderSink) all() []host.SubtitlePayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]host.SubtitlePayload, len(s.payloads))
	copy(out, s.payloads)
	return out
}

func trackEntry(lang string, doc timedtext.Document) *subcache.Entry {
	store := subcache.NewStore(10)
	return store.Put(subcache.NewKey(lang, "vid1"), doc)
}

func primaryDoc() timedtext.Document {
	return timedtext.Document{
		Subtitles: []timedtext.Entry{
			{ID: "p1", StartTime: 10, EndTime: 12, Text: "first line"},
			{ID: "p2", StartTime: 15, EndTime: 18, Text: "second <em>line</em>", RegionID: "r1", HasRegion: true},
		},
		Regions: map[string]timedtext.RegionConfig{
			"r1": {
				Origin:       timedtext.Point{X: 0.1, Y: 0.5},
				Extent:       timedtext.Size{W: 0.8, H: 0.4},
				DisplayAlign: timedtext.DisplayAlignAfter,
			},
		},
	}
}

func secondaryDoc() timedtext.Document {
	return timedtext.Document{
		Subtitles: []timedtext.Entry{
			{ID: "s1", StartTime: 10, EndTime: 12, Text: "première ligne"},
		},
	}
}

func newTestLoop(clock *settableClock, tracks TrackProvider, prefetch Prefetcher,
	sink *renderSink, dual bool) *Loop {
	return NewLoop(clock, tracks, prefetch, sink.collect,
		time.Millisecond, 100*time.Millisecond, func() bool { return dual })
}

func TestTickDeduplicatesByText(t *testing.T) {
	clock := &settableClock{t: 11}
	tracks := &staticTracks{primary: trackEntry("en", primaryDoc())}
	sink := &renderSink{}
	loop := newTestLoop(clock, tracks, nil, sink, false)

	loop.tick()
	loop.tick()
	loop.tick()

	payloads := sink.all()
	require.Len(t, payloads, 1)
	assert.Equal(t, "first line", payloads[0].Text)
	assert.Equal(t, host.ModeIntercept, payloads[0].Mode)
	assert.Equal(t, "vid1", payloads[0].VideoID)
}

func TestTickEmitsOnCueChangeAndGap(t *testing.T) {
	clock := &settableClock{t: 11}
	tracks := &staticTracks{primary: trackEntry("en", primaryDoc())}
	sink := &renderSink{}
	loop := newTestLoop(clock, tracks, nil, sink, false)

	loop.tick() // "first line"
	clock.set(13.5)
	loop.tick() // gap: empty text
	loop.tick() // still gap, no new event
	clock.set(16)
	loop.tick() // "second line"

	payloads := sink.all()
	require.Len(t, payloads, 3)
	assert.Equal(t, "first line", payloads[0].Text)
	assert.Equal(t, "", payloads[1].Text)
	assert.Equal(t, "second <em>line</em>", payloads[2].Text)
}

func TestTickEscapesHTMLAndMapsRegion(t *testing.T) {
	clock := &settableClock{t: 16}
	tracks := &staticTracks{primary: trackEntry("en", primaryDoc())}
	sink := &renderSink{}
	loop := newTestLoop(clock, tracks, nil, sink, false)

	loop.tick()

	payloads := sink.all()
	require.Len(t, payloads, 1)
	assert.Equal(t, "second &lt;em&gt;line&lt;/em&gt;", payloads[0].HTMLContent)

	require.NotNil(t, payloads[0].Position)
	assert.InDelta(t, 0.1, payloads[0].Position.X, 1e-9)
	assert.InDelta(t, 0.5, payloads[0].Position.Y, 1e-9)
	assert.InDelta(t, 0.8, payloads[0].Position.W, 1e-9)
	assert.InDelta(t, 0.4, payloads[0].Position.H, 1e-9)
	assert.Equal(t, "after", payloads[0].Position.Align)
}

func TestTickBuildsDualPayload(t *testing.T) {
	clock := &settableClock{t: 11}
	tracks := &staticTracks{
		primary:   trackEntry("en", primaryDoc()),
		secondary: trackEntry("fr", secondaryDoc()),
	}
	sink := &renderSink{}
	loop := newTestLoop(clock, tracks, nil, sink, true)

	loop.tick()

	payloads := sink.all()
	require.Len(t, payloads, 1)
	p := payloads[0]
	assert.True(t, p.IsDualSubtitle)
	require.NotNil(t, p.DualSubtitle)
	assert.Equal(t, "first line", p.DualSubtitle.Primary.Text)
	assert.Equal(t, "en", p.DualSubtitle.Primary.Language)
	assert.Equal(t, "première ligne", p.DualSubtitle.Secondary.Text)
	assert.Equal(t, "fr", p.DualSubtitle.Secondary.Language)
	assert.Equal(t, "first line<br>première ligne", p.HTMLContent)
}

func TestTickSecondaryGapStaysSingle(t *testing.T) {
	clock := &settableClock{t: 16}
	tracks := &staticTracks{
		primary:   trackEntry("en", primaryDoc()),
		secondary: trackEntry("fr", secondaryDoc()),
	}
	sink := &renderSink{}
	loop := newTestLoop(clock, tracks, nil, sink, true)

	loop.tick() // secondary has no cue at 16s

	payloads := sink.all()
	require.Len(t, payloads, 1)
	assert.False(t, payloads[0].IsDualSubtitle)
	assert.Nil(t, payloads[0].DualSubtitle)
}

func TestTickPokesPrefetcherEveryTick(t *testing.T) {
	clock := &settableClock{t: 11}
	tracks := &staticTracks{primary: trackEntry("en", primaryDoc())}
	prefetch := &countingPrefetcher{}
	sink := &renderSink{}
	loop := newTestLoop(clock, tracks, prefetch, sink, false)

	loop.tick()
	loop.tick()
	loop.tick()

	// prefetch runs every tick even though only the first tick emitted
	assert.Equal(t, 3, prefetch.count())
	assert.Len(t, sink.all(), 1)
}

func TestTickWithNoTracksEmitsNothingUntilCue(t *testing.T) {
	clock := &settableClock{t: 11}
	tracks := &staticTracks{}
	sink := &renderSink{}
	loop := newTestLoop(clock, tracks, nil, sink, false)

	loop.tick()

	// the very first sample emits the empty state once
	payloads := sink.all()
	require.Len(t, payloads, 1)
	assert.Equal(t, "", payloads[0].Text)

	loop.tick()
	assert.Len(t, sink.all(), 1)
}

func TestLoopStartStopLifecycle(t *testing.T) {
	clock := &settableClock{t: 11}
	tracks := &staticTracks{primary: trackEntry("en", primaryDoc())}
	sink := &renderSink{}
	loop := newTestLoop(clock, tracks, nil, sink, false)

	require.NoError(t, loop.Start(context.Background()))
	require.NoError(t, loop.Start(context.Background())) // idempotent

	require.Eventually(t, func() bool {
		return len(sink.all()) >= 1
	}, time.Second, time.Millisecond)

	loop.Stop()
	loop.Stop()
	assert.Equal(t, "interception", loop.Name())
}
