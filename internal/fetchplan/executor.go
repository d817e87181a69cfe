package fetchplan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Vinson1014/SubPal-sub000/internal/host"
	"github.com/Vinson1014/SubPal-sub000/pkg/log"
)

// ErrFetchTimeout marks a switch-and-wait that did not complete in time. The
// affected language stays eligible for retry on the next prefetch trigger.
var ErrFetchTimeout = errors.New("fetch wait timed out")

// DocumentWaiter blocks until an intercepted document for the given language
// (correlated by the language-prefixed cache key) arrives, or the context
// expires.
type DocumentWaiter interface {
	WaitForDocument(ctx context.Context, language string) error
}

// Executor runs a fetch strategy against the host. Fetches for different
// languages are strictly sequential: the host's active text track is a
// single shared mutable resource, so mutual exclusion comes from one
// executor awaiting each step in order, never from overlapping switches.
type Executor struct {
	bridge     host.Bridge
	waiter     DocumentWaiter
	waitActive time.Duration // bound when the target track is already active
	waitSwitch time.Duration // bound after an explicit switch command

	mu sync.Mutex // serializes whole executions
}

func NewExecutor(bridge host.Bridge, waiter DocumentWaiter, waitActive, waitSwitch time.Duration) *Executor {
	return &Executor{
		bridge:     bridge,
		waiter:     waiter,
		waitActive: waitActive,
		waitSwitch: waitSwitch,
	}
}

// Execute fetches every language the strategy requires, then restores the
// host's originally active language. The restore runs even when individual
// fetches fail or time out, so the user's own selection is never silently
// altered.
func (e *Executor) Execute(ctx context.Context, strategy Strategy, primary, secondary string) error {
	languages := strategy.Languages(primary, secondary)
	if len(languages) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	original, err := e.bridge.GetCurrentActiveLanguage(ctx)
	if err != nil {
		return fmt.Errorf("failed to read active language: %w", err)
	}
	log.Debug("Executing strategy %s, original active language %q", strategy, original)

	current := original
	var errs []error
	for _, lang := range languages {
		nowActive, err := e.fetchOne(ctx, lang, current)
		current = nowActive
		if err != nil {
			log.Warn("Fetch for language %s failed: %v", lang, err)
			errs = append(errs, fmt.Errorf("language %s: %w", lang, err))
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}

	// Restore on a fresh bounded context so a cancelled caller cannot leave
	// the user's track switched away.
	if current != original {
		restoreCtx, cancel := context.WithTimeout(context.Background(), e.waitSwitch)
		defer cancel()
		if err := e.bridge.SwitchActiveLanguage(restoreCtx, original); err != nil {
			log.Error("Failed to restore original language %q: %v", original, err)
			errs = append(errs, fmt.Errorf("restore %s: %w", original, err))
		}
	}

	return errors.Join(errs...)
}

// fetchOne obtains the document for one language and reports which track is
// active afterward. If the host is already on the target track, merely being
// active does not guarantee the document was captured, so it waits (briefly)
// for the passive interception notification instead of re-issuing a switch.
// Otherwise it switches and waits longer.
func (e *Executor) fetchOne(ctx context.Context, lang, active string) (string, error) {
	if lang == active {
		waitCtx, cancel := context.WithTimeout(ctx, e.waitActive)
		defer cancel()
		if err := e.waiter.WaitForDocument(waitCtx, lang); err != nil {
			return active, fmt.Errorf("%w (already-active track %s)", ErrFetchTimeout, lang)
		}
		return active, nil
	}

	if err := e.bridge.SwitchActiveLanguage(ctx, lang); err != nil {
		return active, fmt.Errorf("switch to %s: %w", lang, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, e.waitSwitch)
	defer cancel()
	if err := e.waiter.WaitForDocument(waitCtx, lang); err != nil {
		return lang, fmt.Errorf("%w (after switch to %s)", ErrFetchTimeout, lang)
	}
	return lang, nil
}
