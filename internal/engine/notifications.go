package engine

import (
	"context"

	"golang.org/x/text/language"

	"github.com/Vinson1014/SubPal-sub000/internal/host"
	"github.com/Vinson1014/SubPal-sub000/internal/mode"
	"github.com/Vinson1014/SubPal-sub000/internal/subcache"
	"github.com/Vinson1014/SubPal-sub000/internal/timedtext"
	"github.com/Vinson1014/SubPal-sub000/pkg/log"
)

// OnDocumentIntercepted handles a passively captured timed-text document. The
// cache key doubles as the correlation token: parsing it yields the language
// and video identity, and any fetch currently waiting on that pair is woken.
func (e *Engine) OnDocumentIntercepted(n host.DocumentIntercepted) {
	key, err := subcache.ParseKey(n.CacheKey)
	if err != nil {
		log.Warn("Discarding intercepted document with bad cache key: %v", err)
		return
	}

	current := e.VideoID()
	if current != "" && key.VideoID != current {
		log.Debug("Discarding intercepted document for video %s, current is %s", key.VideoID, current)
		return
	}

	doc := timedtext.Parse(n.Raw)
	if len(doc.Subtitles) == 0 {
		log.Warn("Intercepted document %s parsed to zero cues", key)
	}
	e.verifyClaimedLanguage(key, n.Language, doc.Subtitles)

	e.cache.Put(key, doc)
	e.wakeWaiters(key.Language, key.VideoID)
}

// verifyClaimedLanguage cross-checks the track's claimed language against a
// content-based detection. Mismatches are logged, never rejected: detection
// over short cue text is only a heuristic.
func (e *Engine) verifyClaimedLanguage(key subcache.Key, claimed string, entries []timedtext.Entry) {
	if claimed == "" {
		claimed = key.Language
	}
	claimedTag, err := language.Parse(claimed)
	if err != nil {
		return
	}
	detected := timedtext.DetectLanguage(entries)
	if detected == language.Und {
		return
	}

	claimedBase, _ := claimedTag.Base()
	detectedBase, _ := detected.Base()
	if claimedBase != detectedBase {
		log.Warn("Document %s claims language %s but content looks like %s", key, claimed, detected)
	}
}

// OnVideoIdentityChanged purges every trace of the previous video: cache
// entries, requested intervals, pending waits and the mode state. Mode
// detection reruns for the new video.
func (e *Engine) OnVideoIdentityChanged(n host.VideoIdentityChanged) {
	if n.NewID == "" || n.NewID == n.OldID {
		return
	}

	e.mu.Lock()
	e.videoID = n.NewID
	abandoned := 0
	for _, chans := range e.waiters {
		abandoned += len(chans)
	}
	// abandoned waits expire through their own bounded contexts
	e.waiters = make(map[string][]chan struct{})
	e.mu.Unlock()

	log.Info("Video identity changed %s -> %s, abandoning %d pending waits", n.OldID, n.NewID, abandoned)

	e.cache.Evict(n.OldID)
	e.cache.EvictOthers(n.NewID)
	e.book.Reset()
	e.fetchFailures.Store(0)

	e.coord.Shutdown()
	go func() {
		ctx := e.ctx()
		if err := e.coord.Initialize(ctx); err != nil {
			log.Error("Mode initialization for video %s failed: %v", n.NewID, err)
			return
		}
		if e.coord.State() == mode.StateInterceptActive {
			e.ensureAsync("video change")
		}
	}()
}

// WaitForDocument implements fetchplan.DocumentWaiter. The channel is
// registered before the cache re-check so a document landing in between can
// never be missed.
func (e *Engine) WaitForDocument(ctx context.Context, lang string) error {
	videoID := e.VideoID()
	token := waiterToken(lang, videoID)

	ch := make(chan struct{})
	e.mu.Lock()
	e.waiters[token] = append(e.waiters[token], ch)
	e.mu.Unlock()
	defer e.removeWaiter(token, ch)

	if byLang := e.cache.ForVideo(videoID); byLang[lang] != nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

func waiterToken(lang, videoID string) string {
	return lang + "_" + videoID
}

// wakeWaiters closes every channel registered for the (language, videoId)
// pair and drops the registration.
func (e *Engine) wakeWaiters(lang, videoID string) {
	token := waiterToken(lang, videoID)

	e.mu.Lock()
	chans := e.waiters[token]
	delete(e.waiters, token)
	e.mu.Unlock()

	for _, ch := range chans {
		close(ch)
	}
}

func (e *Engine) removeWaiter(token string, ch chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	chans := e.waiters[token]
	for i, c := range chans {
		if c == ch {
			e.waiters[token] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(e.waiters[token]) == 0 {
		delete(e.waiters, token)
	}
}
