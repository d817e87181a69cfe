package mode

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vinson1014/SubPal-sub000/internal/config"
)

// stubBridge is a configurable in-memory host bridge shared by the mode
// package tests.
type stubBridge struct {
	mu sync.Mutex

	supported      bool
	scriptPresent  bool
	scriptErr      error
	injectErr      error
	injections     int
	injectionFixes bool
	apiAvailable   bool
	apiPanics      bool
	ready          bool
	readyOnRetry   bool
	readyBlocks    bool
	readyCalls     int
	languages      []string
	fetchTestErr   error
	active         string
	switches       []string
	videoID        string
}

func capableBridge() *stubBridge {
	return &stubBridge{
		supported:     true,
		scriptPresent: true,
		apiAvailable:  true,
		ready:         true,
		languages:     []string{"en", "zh"},
		active:        "en",
		videoID:       "vid1",
	}
}

func (b *stubBridge) IsSupportedPage() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.supported
}

func (b *stubBridge) CheckCapabilityScript(context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.scriptErr != nil {
		return false, b.scriptErr
	}
	return b.scriptPresent, nil
}

func (b *stubBridge) InjectCapabilityScript(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.injections++
	if b.injectErr != nil {
		return b.injectErr
	}
	if b.injectionFixes {
		b.scriptPresent = true
	}
	return nil
}

func (b *stubBridge) CheckCapabilityAPIAvailable(context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.apiPanics {
		panic("api probe exploded")
	}
	return b.apiAvailable, nil
}

func (b *stubBridge) CheckPlayerReady(ctx context.Context) (bool, error) {
	b.mu.Lock()
	b.readyCalls++
	if b.readyBlocks {
		b.mu.Unlock()
		<-ctx.Done()
		return false, ctx.Err()
	}
	ready := b.ready
	if b.readyOnRetry && b.readyCalls >= 2 {
		ready = true
	}
	b.mu.Unlock()
	return ready, nil
}

func (b *stubBridge) FetchAvailableLanguages(context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.languages))
	copy(out, b.languages)
	return out, nil
}

func (b *stubBridge) setLanguages(languages []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.languages = languages
}

func (b *stubBridge) GetCurrentActiveLanguage(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active, nil
}

func (b *stubBridge) SwitchActiveLanguage(_ context.Context, code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = code
	b.switches = append(b.switches, code)
	return nil
}

func (b *stubBridge) TestFetchCapability(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetchTestErr
}

func (b *stubBridge) CurrentVideoID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.videoID
}

func testModeConfig() config.ModeConfig {
	return config.ModeConfig{
		ProbeTimeout:          200 * time.Millisecond,
		PlayerReadyTimeout:    200 * time.Millisecond,
		PlayerReadyRetryDelay: 5 * time.Millisecond,
		UpgradeInterval:       10 * time.Millisecond,
		UpgradeMaxAttempts:    100,
		UpgradeMaxElapsed:     5 * time.Second,
	}
}

func TestDetectAllChecksPass(t *testing.T) {
	bridge := capableBridge()
	d := NewDetector(bridge, testModeConfig())

	verdict := d.Detect(context.Background())

	assert.Equal(t, VerdictIntercept, verdict)
	results := d.Results()
	require.Len(t, results, 5)
	for _, r := range results {
		assert.True(t, r.Passed, "check %s should pass", r.Name)
	}
}

func TestDetectUnsupportedPageShortCircuits(t *testing.T) {
	bridge := capableBridge()
	bridge.supported = false
	d := NewDetector(bridge, testModeConfig())

	verdict := d.Detect(context.Background())

	assert.Equal(t, VerdictDOM, verdict)
	// later checks never run
	require.Len(t, d.Results(), 1)
	assert.Equal(t, "supported-page", d.Results()[0].Name)
}

func TestDetectScriptReinjectionRecovers(t *testing.T) {
	bridge := capableBridge()
	bridge.scriptPresent = false
	bridge.injectionFixes = true
	d := NewDetector(bridge, testModeConfig())

	verdict := d.Detect(context.Background())

	assert.Equal(t, VerdictIntercept, verdict)
	assert.Equal(t, 1, bridge.injections)
}

func TestDetectScriptUnreachableAfterReinjection(t *testing.T) {
	bridge := capableBridge()
	bridge.scriptPresent = false
	d := NewDetector(bridge, testModeConfig())

	assert.Equal(t, VerdictDOM, d.Detect(context.Background()))
	assert.Equal(t, 1, bridge.injections)
}

func TestDetectPlayerReadyOnRetry(t *testing.T) {
	bridge := capableBridge()
	bridge.ready = false
	bridge.readyOnRetry = true
	d := NewDetector(bridge, testModeConfig())

	assert.Equal(t, VerdictIntercept, d.Detect(context.Background()))
	assert.GreaterOrEqual(t, bridge.readyCalls, 2)
}

func TestDetectProbeTimeoutFallsToDOM(t *testing.T) {
	bridge := capableBridge()
	bridge.readyBlocks = true
	d := NewDetector(bridge, testModeConfig())

	verdict := d.Detect(context.Background())
	assert.Equal(t, VerdictDOM, verdict)

	var readyResult *ProbeResult
	for i := range d.Results() {
		if d.Results()[i].Name == "player-ready" {
			r := d.Results()[i]
			readyResult = &r
		}
	}
	require.NotNil(t, readyResult)
	assert.True(t, errors.Is(readyResult.Err, ErrProbeTimeout))
}

func TestDetectPlayerReadinessBoundedByOwnTimeout(t *testing.T) {
	bridge := capableBridge()
	bridge.readyBlocks = true

	// the readiness wait must give up on its own bound, well before the
	// generic probe bound would fire
	cfg := testModeConfig()
	cfg.ProbeTimeout = 5 * time.Second
	cfg.PlayerReadyTimeout = 50 * time.Millisecond
	d := NewDetector(bridge, cfg)

	start := time.Now()
	verdict := d.Detect(context.Background())
	elapsed := time.Since(start)

	assert.Equal(t, VerdictDOM, verdict)
	assert.Less(t, elapsed, 2*time.Second)

	var readyResult *ProbeResult
	for _, r := range d.Results() {
		if r.Name == "player-ready" {
			readyResult = &r
		}
	}
	require.NotNil(t, readyResult)
	assert.True(t, errors.Is(readyResult.Err, ErrProbeTimeout))
}

func TestDetectProbePanicFallsToDOM(t *testing.T) {
	bridge := capableBridge()
	bridge.apiPanics = true
	d := NewDetector(bridge, testModeConfig())

	assert.NotPanics(t, func() {
		assert.Equal(t, VerdictDOM, d.Detect(context.Background()))
	})
}

func TestDetectNoLanguagesFallsToDOM(t *testing.T) {
	bridge := capableBridge()
	bridge.languages = nil
	d := NewDetector(bridge, testModeConfig())

	assert.Equal(t, VerdictDOM, d.Detect(context.Background()))
}

func TestDetectFetchSelfTestFailureFallsToDOM(t *testing.T) {
	bridge := capableBridge()
	bridge.fetchTestErr = errors.New("fetch blocked")
	d := NewDetector(bridge, testModeConfig())

	assert.Equal(t, VerdictDOM, d.Detect(context.Background()))
}
