// Package mode owns how subtitles are acquired: it probes the host for
// interception capability and runs the state machine that switches between
// network interception and DOM observation.
package mode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Vinson1014/SubPal-sub000/internal/config"
	"github.com/Vinson1014/SubPal-sub000/internal/host"
	"github.com/Vinson1014/SubPal-sub000/pkg/log"
)

// Verdict is the detector's capability decision.
type Verdict string

const (
	VerdictDOM       Verdict = "dom"
	VerdictIntercept Verdict = "intercept"
)

// ErrProbeTimeout marks a capability check that did not respond in time.
// Treated as capability absent, never as a failure of the detector itself.
var ErrProbeTimeout = errors.New("capability probe timed out")

// ProbeResult is one probe's diagnostic record. Retained for logging only;
// correctness never depends on it.
type ProbeResult struct {
	Name    string
	Passed  bool
	Err     error
	Elapsed time.Duration
}

// Detector decides whether the host environment can support passive network
// interception. Detect never fails outward: any failing check, timeout, or
// panic resolves to the DOM verdict.
type Detector struct {
	bridge host.Bridge
	cfg    config.ModeConfig

	mu      sync.Mutex
	results []ProbeResult
}

func NewDetector(bridge host.Bridge, cfg config.ModeConfig) *Detector {
	return &Detector{bridge: bridge, cfg: cfg}
}

// Detect runs the sequential, short-circuiting capability checks.
func (d *Detector) Detect(ctx context.Context) (verdict Verdict) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Mode detection panicked, falling back to DOM mode: %v", r)
			verdict = VerdictDOM
		}
	}()

	d.mu.Lock()
	d.results = nil
	d.mu.Unlock()

	checks := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"supported-page", d.checkSupportedPage},
		{"capability-script", d.checkCapabilityScript},
		{"player-api", d.checkPlayerAPI},
		{"player-ready", d.checkPlayerReady},
		{"fetch-self-test", d.checkFetchSelfTest},
	}

	for _, check := range checks {
		if !d.probe(ctx, check.name, check.fn) {
			log.Info("Mode detection: check %q failed, using DOM mode", check.name)
			return VerdictDOM
		}
	}

	log.Info("Mode detection: all checks passed, using interception mode")
	return VerdictIntercept
}

// probe runs one check with its own time bound, recording the outcome.
// A panic inside the check counts as a failed probe.
func (d *Detector) probe(ctx context.Context, name string, fn func(context.Context) error) (passed bool) {
	start := time.Now()
	var probeErr error

	defer func() {
		if r := recover(); r != nil {
			probeErr = fmt.Errorf("probe panicked: %v", r)
			passed = false
		}
		d.mu.Lock()
		d.results = append(d.results, ProbeResult{
			Name:    name,
			Passed:  passed,
			Err:     probeErr,
			Elapsed: time.Since(start),
		})
		d.mu.Unlock()
		if probeErr != nil {
			log.Debug("Probe %q failed after %v: %v", name, time.Since(start), probeErr)
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("probe panicked: %v", r)
			}
		}()
		done <- fn(probeCtx)
	}()

	select {
	case err := <-done:
		probeErr = err
		return err == nil
	case <-probeCtx.Done():
		probeErr = fmt.Errorf("%w: %s", ErrProbeTimeout, name)
		return false
	}
}

// Results returns the diagnostic records of the most recent detection.
func (d *Detector) Results() []ProbeResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ProbeResult, len(d.results))
	copy(out, d.results)
	return out
}

func (d *Detector) checkSupportedPage(context.Context) error {
	if !d.bridge.IsSupportedPage() {
		return errors.New("not a supported host page")
	}
	return nil
}

// checkCapabilityScript probes for the injected script, retrying once after
// a re-injection.
func (d *Detector) checkCapabilityScript(ctx context.Context) error {
	present, err := d.bridge.CheckCapabilityScript(ctx)
	if err == nil && present {
		return nil
	}

	if err := d.bridge.InjectCapabilityScript(ctx); err != nil {
		return fmt.Errorf("script re-injection failed: %w", err)
	}
	present, err = d.bridge.CheckCapabilityScript(ctx)
	if err != nil {
		return fmt.Errorf("script probe failed after re-injection: %w", err)
	}
	if !present {
		return errors.New("capability script unreachable after re-injection")
	}
	return nil
}

func (d *Detector) checkPlayerAPI(ctx context.Context) error {
	available, err := d.bridge.CheckCapabilityAPIAvailable(ctx)
	if err != nil {
		return fmt.Errorf("player API probe failed: %w", err)
	}
	if !available {
		return errors.New("player API unavailable")
	}
	return nil
}

// checkPlayerReady waits for readiness, retrying once after a fixed delay.
// The whole wait, both attempts included, is bounded by PlayerReadyTimeout.
func (d *Detector) checkPlayerReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, d.cfg.PlayerReadyTimeout)
	defer cancel()

	ready, err := d.bridge.CheckPlayerReady(readyCtx)
	if err == nil && ready {
		return nil
	}

	select {
	case <-readyCtx.Done():
		return fmt.Errorf("%w: player readiness", ErrProbeTimeout)
	case <-time.After(d.cfg.PlayerReadyRetryDelay):
	}

	ready, err = d.bridge.CheckPlayerReady(readyCtx)
	if err != nil {
		if readyCtx.Err() != nil {
			return fmt.Errorf("%w: player readiness", ErrProbeTimeout)
		}
		return fmt.Errorf("player readiness probe failed: %w", err)
	}
	if !ready {
		return errors.New("player not ready")
	}
	return nil
}

// checkFetchSelfTest requires at least one enumerable language and a passing
// lightweight fetch test.
func (d *Detector) checkFetchSelfTest(ctx context.Context) error {
	languages, err := d.bridge.FetchAvailableLanguages(ctx)
	if err != nil {
		return fmt.Errorf("language enumeration failed: %w", err)
	}
	if len(languages) == 0 {
		return errors.New("no languages enumerable")
	}
	if err := d.bridge.TestFetchCapability(ctx); err != nil {
		return fmt.Errorf("fetch self-test failed: %w", err)
	}
	return nil
}
