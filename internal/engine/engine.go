// Package engine composes the subtitle pipeline: the cache, the fetch
// planner, the mode coordinator and the render loop, wired to the host
// surfaces. It is the single owner of the current video identity and the
// language preferences.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/Vinson1014/SubPal-sub000/internal/config"
	"github.com/Vinson1014/SubPal-sub000/internal/fetchplan"
	"github.com/Vinson1014/SubPal-sub000/internal/host"
	"github.com/Vinson1014/SubPal-sub000/internal/mode"
	"github.com/Vinson1014/SubPal-sub000/internal/render"
	"github.com/Vinson1014/SubPal-sub000/internal/subcache"
	"github.com/Vinson1014/SubPal-sub000/pkg/icron"
	"github.com/Vinson1014/SubPal-sub000/pkg/log"
)

// maxConsecutiveFetchFailures is how many ensure rounds may fail in a row
// while interception is active before the failure is treated as a runtime
// source error and reported for downgrade.
const maxConsecutiveFetchFailures = 3

// Deps are the host-side collaborators the engine drives. Settings and
// Notices are optional.
type Deps struct {
	Bridge   host.Bridge
	Clock    host.PlaybackClock
	Captions host.CaptionReader
	Display  host.DisplaySurface

	Settings *config.RuntimeSettingsStore
	Notices  func(message string, fatal bool)
}

// Engine owns the subtitle acquisition pipeline for one player session.
type Engine struct {
	cfg  *config.Config
	deps Deps

	cache *subcache.Store
	book  *fetchplan.Book
	exec  *fetchplan.Executor
	coord *mode.Coordinator
	cron  *cron.Cron

	// collapses concurrent ensure calls for the same video into one round
	ensureGroup singleflight.Group

	mu        sync.RWMutex
	videoID   string
	primary   string
	secondary string
	dual      bool
	waiters   map[string][]chan struct{}
	runCtx    context.Context

	fetchFailures atomic.Int32

	cancel   context.CancelFunc
	stopOnce sync.Once
}

func New(cfg *config.Config, deps Deps) (*Engine, error) {
	if deps.Bridge == nil || deps.Clock == nil || deps.Captions == nil || deps.Display == nil {
		return nil, fmt.Errorf("bridge, clock, captions and display are all required")
	}

	e := &Engine{
		cfg:       cfg,
		deps:      deps,
		cache:     subcache.NewStore(cfg.Index.BucketSeconds),
		book:      fetchplan.NewBook(fetchplan.DefaultMergeGap),
		cron:      cron.New(),
		videoID:   deps.Bridge.CurrentVideoID(),
		primary:   cfg.Subtitles.PrimaryLanguage.String(),
		secondary: cfg.Subtitles.SecondaryLanguage.String(),
		dual:      cfg.Subtitles.DualSubtitles,
		waiters:   make(map[string][]chan struct{}),
	}
	e.exec = fetchplan.NewExecutor(deps.Bridge, e, cfg.Timing.FetchWaitActive, cfg.Timing.FetchWaitSwitch)

	detector := mode.NewDetector(deps.Bridge, cfg.Mode)
	e.coord = mode.NewCoordinator(detector, cfg.Mode, mode.Deps{
		Bridge:          deps.Bridge,
		NewIntercept:    e.newInterceptSource,
		NewDOM:          e.newDOMSource,
		VerifyIntercept: e.verifyIntercept,
		OnNotice:        e.onNotice,
	})

	if deps.Settings != nil {
		if settings, err := deps.Settings.GetRuntimeSettings(); err == nil {
			e.applySettings(settings)
		}
		deps.Settings.Observe(e.onSettingsChanged)
	}

	return e, nil
}

// Start runs mode detection, activates the resulting acquisition source and
// schedules the stale cache sweep. It returns an error only when no
// acquisition mode could be brought up at all.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.runCtx = runCtx
	e.mu.Unlock()
	e.cancel = cancel

	if info, err := icron.GetTriggerInfo(e.cfg.Maintenance.SweepCronExpr, time.Now()); err == nil {
		log.Debug("Cache sweep schedule %q: next run in %v", info.Expression, info.TimeUntilNext)
	}
	if _, err := e.cron.AddFunc(e.cfg.Maintenance.SweepCronExpr, e.sweep); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule cache sweep: %w", err)
	}
	e.cron.Start()

	if err := e.coord.Initialize(runCtx); err != nil {
		return fmt.Errorf("failed to initialize acquisition mode: %w", err)
	}
	log.Info("Engine started for video %s in state %s", e.VideoID(), e.coord.State())

	if e.coord.State() == mode.StateInterceptActive {
		go e.ensureAsync("initial fill")
	}
	return nil
}

// Stop shuts the pipeline down. Idempotent.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.cron.Stop()
		e.coord.Shutdown()
		if e.cancel != nil {
			e.cancel()
		}

		e.mu.Lock()
		e.waiters = make(map[string][]chan struct{})
		e.mu.Unlock()
		log.Info("Engine stopped")
	})
}

// State exposes the coordinator's acquisition state.
func (e *Engine) State() mode.State {
	return e.coord.State()
}

// VideoID implements render.TrackProvider.
func (e *Engine) VideoID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.videoID
}

func (e *Engine) prefs() (videoID, primary, secondary string, dual bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.videoID, e.primary, e.secondary, e.dual
}

func (e *Engine) dualEnabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dual
}

// ctx returns the running context, or Background before Start.
func (e *Engine) ctx() context.Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.runCtx == nil {
		return context.Background()
	}
	return e.runCtx
}

func (e *Engine) emit(payload host.SubtitlePayload) {
	e.deps.Display.OnSubtitleChanged(payload)
}

func (e *Engine) newInterceptSource() (mode.Source, error) {
	return render.NewLoop(
		e.deps.Clock,
		e,
		e,
		e.emit,
		e.cfg.Timing.RenderInterval,
		e.cfg.Timing.LookupTolerance,
		e.dualEnabled,
	), nil
}

func (e *Engine) newDOMSource() mode.Source {
	return mode.NewDOMSource(
		e.deps.Captions,
		e.deps.Clock,
		e.VideoID,
		e.emit,
		e.onSourceError,
		e.cfg.Timing.RenderInterval,
	)
}

func (e *Engine) onSourceError(err error) {
	e.coord.ReportSourceError(e.ctx(), err)
}

// verifyIntercept is the upgrade gate: interception only commits once a fetch
// round leaves usable entries for the primary track in the cache.
func (e *Engine) verifyIntercept(ctx context.Context) error {
	if err := e.EnsureSubtitles(ctx); err != nil {
		return err
	}
	videoID, primary, _, _ := e.prefs()
	byLang := e.cache.ForVideo(videoID)
	entry := byLang[primary]
	if entry == nil || len(entry.Subtitles) == 0 {
		return fmt.Errorf("no usable entries cached for language %s", primary)
	}
	return nil
}

func (e *Engine) onNotice(n mode.Notice) {
	if n.Fatal {
		log.Error("User notice (fatal): %s", n.Message)
	} else {
		log.Warn("User notice: %s", n.Message)
	}
	if e.deps.Notices != nil {
		e.deps.Notices(n.Message, n.Fatal)
	}
}

// onSettingsChanged re-applies the user's language preferences and refreshes
// the cache coverage when interception is active.
func (e *Engine) onSettingsChanged(settings config.RuntimeSettings) {
	e.applySettings(settings)
	log.Info("Runtime settings changed: primary=%s secondary=%s dual=%v",
		settings.PrimaryLanguage, settings.SecondaryLanguage, settings.DualSubtitles)

	if e.coord.State() == mode.StateInterceptActive {
		go e.ensureAsync("settings change")
	}
}

func (e *Engine) applySettings(settings config.RuntimeSettings) {
	e.mu.Lock()
	e.primary = settings.PrimaryLanguage
	e.secondary = settings.SecondaryLanguage
	e.dual = settings.DualSubtitles
	e.mu.Unlock()
}

// sweep evicts every cached entry that does not belong to the current video.
// Runs on the maintenance cron schedule.
func (e *Engine) sweep() {
	e.cache.EvictOthers(e.VideoID())
}
