package mode

import (
	"context"
	"sync"
	"time"

	"github.com/Vinson1014/SubPal-sub000/internal/host"
	"github.com/Vinson1014/SubPal-sub000/pkg/log"
)

// DOMSource acquires subtitle text by polling the host player's already
// rendered caption markup. It never produces dual-subtitle payloads.
type DOMSource struct {
	reader   host.CaptionReader
	clock    host.PlaybackClock
	videoID  func() string
	emit     func(host.SubtitlePayload)
	onError  func(error)
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

func NewDOMSource(
	reader host.CaptionReader,
	clock host.PlaybackClock,
	videoID func() string,
	emit func(host.SubtitlePayload),
	onError func(error),
	interval time.Duration,
) *DOMSource {
	return &DOMSource{
		reader:   reader,
		clock:    clock,
		videoID:  videoID,
		emit:     emit,
		onError:  onError,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (s *DOMSource) Name() string { return "dom-observation" }

func (s *DOMSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

func (s *DOMSource) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	lastText := "\x00" // sentinel so the first real caption always emits
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		text, err := s.reader.CurrentCaption()
		if err != nil {
			log.Error("DOM caption read failed: %v", err)
			// report from a fresh goroutine so the coordinator can Stop()
			// this source without deadlocking on our own loop
			if s.onError != nil {
				go s.onError(err)
			}
			return
		}

		if text == lastText {
			continue
		}
		lastText = text

		s.emit(host.SubtitlePayload{
			Text:           text,
			HTMLContent:    text,
			Timestamp:      s.clock.CurrentTime(),
			Mode:           host.ModeDOM,
			VideoID:        s.videoID(),
			IsDualSubtitle: false,
		})
	}
}

// Stop halts the polling loop. Idempotent.
func (s *DOMSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}
