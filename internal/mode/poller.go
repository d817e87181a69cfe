package mode

import (
	"context"
	"sync"
	"time"

	"github.com/Vinson1014/SubPal-sub000/pkg/log"
)

// Poller runs a function on a fixed interval until it reports success, an
// attempt or elapsed-time bound is hit, or the poller is stopped. It replaces
// ad-hoc timer chains with one cancellable handle whose bounds are explicit
// configuration.
type Poller struct {
	interval    time.Duration
	maxAttempts int
	maxElapsed  time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPoller(interval time.Duration, maxAttempts int, maxElapsed time.Duration) *Poller {
	return &Poller{
		interval:    interval,
		maxAttempts: maxAttempts,
		maxElapsed:  maxElapsed,
		stopCh:      make(chan struct{}),
	}
}

// Start launches the polling loop. fn returns true when its work is done;
// the context it receives is cancelled when the poller stops.
func (p *Poller) Start(fn func(ctx context.Context) bool) {
	p.wg.Add(1)
	go p.run(fn)
}

func (p *Poller) run(fn func(ctx context.Context) bool) {
	defer p.wg.Done()
	// release the stop-channel watcher even when the loop finishes on its
	// own (success or bound reached) and nobody ever calls Stop
	defer p.halt()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-p.stopCh
		cancel()
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	start := time.Now()
	for attempt := 1; p.maxAttempts <= 0 || attempt <= p.maxAttempts; attempt++ {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
		}

		if p.maxElapsed > 0 && time.Since(start) > p.maxElapsed {
			log.Debug("Poller giving up after %v elapsed", time.Since(start))
			return
		}

		if done := p.attempt(ctx, fn); done {
			return
		}
	}
	log.Debug("Poller giving up after attempt bound reached")
}

// attempt isolates one invocation so a panicking fn never kills the loop.
func (p *Poller) attempt(ctx context.Context, fn func(ctx context.Context) bool) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Poller attempt panicked: %v", r)
			done = false
		}
	}()
	return fn(ctx)
}

func (p *Poller) halt() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
}

// Stop cancels the loop. Safe to call more than once; waits for the loop to
// exit so no stale attempt can run after Stop returns.
func (p *Poller) Stop() {
	p.halt()
	p.wg.Wait()
}
