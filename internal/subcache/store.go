package subcache

import (
	"sync"
	"time"

	"github.com/Vinson1014/SubPal-sub000/internal/timedtext"
	"github.com/Vinson1014/SubPal-sub000/pkg/log"
)

// Entry is one cached parsed document plus its derived lookup structures.
// The store exclusively owns Entry lifetime; readers get the shared value
// but must treat it as immutable.
type Entry struct {
	Key       Key
	Subtitles []timedtext.Entry
	Index     *timedtext.Index
	Regions   map[string]timedtext.RegionConfig
	FetchedAt time.Time
}

// Store caches parsed documents per (language, videoId) key. All methods are
// safe for concurrent use.
type Store struct {
	bucketSeconds int

	mu      sync.RWMutex
	entries map[string]*Entry
}

func NewStore(bucketSeconds int) *Store {
	if bucketSeconds <= 0 {
		bucketSeconds = timedtext.DefaultBucketSeconds
	}
	return &Store{
		bucketSeconds: bucketSeconds,
		entries:       make(map[string]*Entry),
	}
}

// Put stores a parsed document under the given key, building its time index.
// Putting the same key again replaces the previous entry, so enqueueing the
// same document twice leaves exactly one stored entry.
func (s *Store) Put(key Key, doc timedtext.Document) *Entry {
	entry := &Entry{
		Key:       key,
		Subtitles: doc.Subtitles,
		Index:     timedtext.BuildIndex(doc.Subtitles, s.bucketSeconds),
		Regions:   doc.Regions,
		FetchedAt: time.Now(),
	}

	s.mu.Lock()
	if _, exists := s.entries[key.String()]; exists {
		log.Debug("Replacing cached document for key %s", key)
	}
	s.entries[key.String()] = entry
	s.mu.Unlock()
	return entry
}

// Get returns the entry stored under key, if any.
func (s *Store) Get(key Key) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key.String()]
	return entry, ok
}

// ForVideo returns the cached entries whose embedded videoId matches the
// given one, keyed by language. Keys embedding a different videoId are
// skipped and logged; they are not deleted here, eviction is explicit.
func (s *Store) ForVideo(videoID string) map[string]*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret := make(map[string]*Entry)
	for _, entry := range s.entries {
		if entry.Key.VideoID != videoID {
			log.Debug("Stale-skip: cache key %s does not match current video %s", entry.Key, videoID)
			continue
		}
		// keep the freshest entry per language
		if existing, ok := ret[entry.Key.Language]; !ok || entry.FetchedAt.After(existing.FetchedAt) {
			ret[entry.Key.Language] = entry
		}
	}
	return ret
}

// Evict purges every entry whose embedded videoId matches and reports how
// many were removed.
func (s *Store) Evict(videoID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for keyStr, entry := range s.entries {
		if entry.Key.VideoID == videoID {
			delete(s.entries, keyStr)
			removed++
		}
	}
	if removed > 0 {
		log.Info("Evicted %d cache entries for video %s", removed, videoID)
	}
	return removed
}

// EvictOthers purges every entry whose embedded videoId does NOT match the
// current one. Used on video switch and by the periodic sweep.
func (s *Store) EvictOthers(currentVideoID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for keyStr, entry := range s.entries {
		if entry.Key.VideoID != currentVideoID {
			delete(s.entries, keyStr)
			removed++
		}
	}
	if removed > 0 {
		log.Info("Evicted %d stale cache entries (current video %s)", removed, currentVideoID)
	}
	return removed
}

// Len reports the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
