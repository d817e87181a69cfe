package mode

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerStopsAfterSuccess(t *testing.T) {
	p := NewPoller(5*time.Millisecond, 0, 0)
	var attempts atomic.Int32

	p.Start(func(context.Context) bool {
		return attempts.Add(1) >= 3
	})

	require.Eventually(t, func() bool {
		return attempts.Load() == 3
	}, time.Second, time.Millisecond)

	// no further attempts after success
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(3), attempts.Load())
	p.Stop()
}

func TestPollerAttemptBound(t *testing.T) {
	p := NewPoller(5*time.Millisecond, 2, 0)
	var attempts atomic.Int32

	p.Start(func(context.Context) bool {
		attempts.Add(1)
		return false
	})

	require.Eventually(t, func() bool {
		return attempts.Load() == 2
	}, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(2), attempts.Load())
	p.Stop()
}

func TestPollerElapsedBound(t *testing.T) {
	p := NewPoller(5*time.Millisecond, 0, 20*time.Millisecond)
	var attempts atomic.Int32

	p.Start(func(context.Context) bool {
		attempts.Add(1)
		return false
	})

	time.Sleep(100 * time.Millisecond)
	after := attempts.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, attempts.Load(), "no attempts after the elapsed bound")
	p.Stop()
}

func TestPollerStopIsIdempotentAndCancelsContext(t *testing.T) {
	p := NewPoller(5*time.Millisecond, 0, 0)
	cancelled := make(chan struct{})
	started := make(chan struct{})
	var once atomic.Bool

	p.Start(func(ctx context.Context) bool {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		select {
		case <-ctx.Done():
			close(cancelled)
			return true
		case <-time.After(time.Second):
			return true
		}
	})

	<-started
	p.Stop()
	p.Stop()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("attempt context was not cancelled by Stop")
	}
}

func TestPollerReleasesWatcherWithoutStop(t *testing.T) {
	before := runtime.NumGoroutine()

	// pollers that finish on their own are routinely abandoned without Stop;
	// their stop-channel watchers must not outlive the run loop
	var finished atomic.Int32
	for i := 0; i < 50; i++ {
		p := NewPoller(time.Millisecond, 0, 0)
		p.Start(func(context.Context) bool {
			finished.Add(1)
			return true
		})
	}

	require.Eventually(t, func() bool {
		return finished.Load() == 50
	}, 5*time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		runtime.GC()
		return runtime.NumGoroutine() <= before+2
	}, 5*time.Second, 10*time.Millisecond,
		"watcher goroutines leaked: before=%d now=%d", before, runtime.NumGoroutine())
}

func TestPollerSurvivesPanickingAttempt(t *testing.T) {
	p := NewPoller(5*time.Millisecond, 0, 0)
	var attempts atomic.Int32

	p.Start(func(context.Context) bool {
		if attempts.Add(1) == 1 {
			panic("first attempt explodes")
		}
		return true
	})

	require.Eventually(t, func() bool {
		return attempts.Load() == 2
	}, time.Second, time.Millisecond)
	p.Stop()
}
