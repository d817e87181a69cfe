package mode

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Vinson1014/SubPal-sub000/internal/config"
	"github.com/Vinson1014/SubPal-sub000/internal/host"
	"github.com/Vinson1014/SubPal-sub000/pkg/log"
)

// State is the coordinator's acquisition state. The only legal transitions
// are uninitialized -> {dom-active, intercept-active}, the downgrade edge
// intercept-active -> dom-active, and the background upgrade edge
// dom-active -> intercept-active.
type State string

const (
	StateUninitialized   State = "uninitialized"
	StateDOMActive       State = "dom-active"
	StateInterceptActive State = "intercept-active"
)

// ErrDOMModeFailed is the one fatal condition: DOM mode failed while it was
// already the fallback. There is no further degrade path.
var ErrDOMModeFailed = errors.New("dom acquisition failed with no fallback remaining")

// Source is one subtitle acquisition backend. Stop must be idempotent and
// must halt all of the source's polling or observation before returning.
type Source interface {
	Start(ctx context.Context) error
	Stop()
	Name() string
}

// Notice is a user-visible message surfaced by the coordinator.
type Notice struct {
	Message string
	Fatal   bool
}

// Deps wires the coordinator to its collaborators. Factories construct a
// fresh source per activation; VerifyIntercept must confirm the interception
// source actually produced usable entries before an upgrade commits.
type Deps struct {
	Bridge          host.Bridge
	NewIntercept    func() (Source, error)
	NewDOM          func() Source
	VerifyIntercept func(ctx context.Context) error
	OnNotice        func(Notice)
}

// Coordinator owns the active acquisition mode. It performs automatic
// downgrade on interception failure and silent background upgrade when
// capability later becomes available.
type Coordinator struct {
	detector *Detector
	cfg      config.ModeConfig
	deps     Deps

	mu     sync.Mutex
	state  State
	active Source
	poller *Poller
}

func NewCoordinator(detector *Detector, cfg config.ModeConfig, deps Deps) *Coordinator {
	return &Coordinator{
		detector: detector,
		cfg:      cfg,
		deps:     deps,
		state:    StateUninitialized,
	}
}

// State returns the current acquisition state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Initialize runs detection once and enters the matching state. A failed
// interception start falls through to DOM mode rather than erroring.
func (c *Coordinator) Initialize(ctx context.Context) error {
	verdict := c.detector.Detect(ctx)
	for _, r := range c.detector.Results() {
		log.Debug("Probe %s: passed=%v err=%v elapsed=%v", r.Name, r.Passed, r.Err, r.Elapsed)
	}

	if verdict == VerdictIntercept {
		if err := c.enterIntercept(ctx); err == nil {
			return nil
		} else {
			log.Warn("Interception source failed to start, falling back to DOM mode: %v", err)
		}
	}
	return c.enterDOM(ctx)
}

// enterIntercept builds and starts a fresh interception source, stopping
// whatever ran before. Requesting the already-active mode is a no-op.
func (c *Coordinator) enterIntercept(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateInterceptActive {
		c.mu.Unlock()
		return nil
	}
	prev := c.active
	poller := c.poller
	c.poller = nil
	c.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
	if prev != nil {
		prev.Stop()
	}

	source, err := c.deps.NewIntercept()
	if err != nil {
		return fmt.Errorf("failed to construct interception source: %w", err)
	}
	if err := source.Start(ctx); err != nil {
		source.Stop()
		return fmt.Errorf("failed to start interception source: %w", err)
	}

	c.mu.Lock()
	c.active = source
	c.state = StateInterceptActive
	c.mu.Unlock()
	log.Info("Acquisition mode: interception active")
	return nil
}

// enterDOM starts the DOM-observation source and schedules the background
// upgrade loop. A DOM start failure is fatal: there is nothing left to fall
// back to.
func (c *Coordinator) enterDOM(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateDOMActive {
		c.mu.Unlock()
		return nil
	}
	prev := c.active
	c.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}

	source := c.deps.NewDOM()
	if err := source.Start(ctx); err != nil {
		source.Stop()
		c.surface(Notice{Message: "subtitle display unavailable", Fatal: true})
		return fmt.Errorf("%w: %v", ErrDOMModeFailed, err)
	}

	c.mu.Lock()
	c.active = source
	c.state = StateDOMActive
	c.mu.Unlock()
	log.Info("Acquisition mode: DOM observation active")

	c.startUpgradePoller(ctx)
	return nil
}

// startUpgradePoller begins the silent background upgrade loop. It only does
// anything while DOM mode stays active, and is bounded by both an attempt
// count and an elapsed-time limit. parent outlives the poller and is what a
// committed interception source gets started with; the per-attempt context
// dies with the poll loop.
func (c *Coordinator) startUpgradePoller(parent context.Context) {
	poller := NewPoller(c.cfg.UpgradeInterval, c.cfg.UpgradeMaxAttempts, c.cfg.UpgradeMaxElapsed)

	c.mu.Lock()
	if c.poller != nil {
		old := c.poller
		go old.Stop()
	}
	c.poller = poller
	c.mu.Unlock()

	poller.Start(func(ctx context.Context) bool {
		if c.State() != StateDOMActive {
			return true // superseded, stop polling
		}
		if !c.capabilityAvailable(ctx) {
			return false
		}
		return c.tryUpgrade(parent, ctx)
	})
}

// capabilityAvailable is the cheap upgrade precondition: can we enumerate
// languages now?
func (c *Coordinator) capabilityAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	languages, err := c.deps.Bridge.FetchAvailableLanguages(probeCtx)
	return err == nil && len(languages) > 0
}

// tryUpgrade verifies interception capability and, only then, swaps sources.
// Verification runs before any interception source exists: the fetch round it
// performs fills the cache, and a source ticking over that cache would emit
// intercept payloads to the display while DOM mode is still active. The DOM
// source is stopped before the new one starts so the two never interleave.
func (c *Coordinator) tryUpgrade(parent, probeCtx context.Context) bool {
	if c.deps.VerifyIntercept != nil {
		verifyCtx, cancel := context.WithTimeout(probeCtx, c.cfg.ProbeTimeout)
		err := c.deps.VerifyIntercept(verifyCtx)
		cancel()
		if err != nil {
			log.Debug("Background upgrade: verification failed: %v", err)
			return false
		}
	}

	source, err := c.deps.NewIntercept()
	if err != nil {
		log.Debug("Background upgrade: source construction failed: %v", err)
		return false
	}

	c.mu.Lock()
	if c.state != StateDOMActive {
		c.mu.Unlock()
		return true
	}
	prev := c.active
	c.active = source
	c.state = StateInterceptActive
	c.poller = nil
	c.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}

	// parent, not probeCtx: the poll loop exits after the commit and takes
	// its attempt context with it
	if err := source.Start(parent); err != nil {
		log.Warn("Background upgrade: source start failed, returning to DOM mode: %v", err)
		source.Stop()
		c.mu.Lock()
		c.active = nil
		c.state = StateUninitialized
		c.mu.Unlock()
		if domErr := c.enterDOM(parent); domErr != nil {
			log.Error("Return to DOM mode after failed upgrade failed: %v", domErr)
		}
		return true
	}

	log.Info("Background upgrade succeeded: interception active")
	return true
}

// ReportSourceError is called by the active source when it fails at runtime.
// Interception errors trigger an automatic downgrade with a non-fatal user
// notice; a DOM error is surfaced as fatal because no further fallback
// exists.
func (c *Coordinator) ReportSourceError(ctx context.Context, err error) {
	switch c.State() {
	case StateInterceptActive:
		log.Warn("Interception source failed at runtime, downgrading to DOM mode: %v", err)
		c.surface(Notice{Message: "subtitle interception degraded, using on-page captions"})
		if domErr := c.enterDOM(ctx); domErr != nil {
			log.Error("Downgrade to DOM mode failed: %v", domErr)
		}
	case StateDOMActive:
		log.Error("DOM acquisition failed with no fallback remaining: %v", err)
		c.surface(Notice{Message: "subtitle display unavailable", Fatal: true})
	default:
	}
}

func (c *Coordinator) surface(n Notice) {
	if c.deps.OnNotice != nil {
		c.deps.OnNotice(n)
	}
}

// Shutdown stops the poller and the active source and resets the state.
// Called on cleanup and on video identity change.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	poller := c.poller
	active := c.active
	c.poller = nil
	c.active = nil
	c.state = StateUninitialized
	c.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
	if active != nil {
		active.Stop()
	}
}
