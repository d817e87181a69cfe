package timedtext

import (
	"math"

	"github.com/Vinson1014/SubPal-sub000/pkg/log"
)

// DefaultBucketSeconds is the default width of one time index bucket.
const DefaultBucketSeconds = 10

// maxPlausibleSeconds rejects timestamps beyond 24 hours as anomalies.
const maxPlausibleSeconds = 24 * 60 * 60

// Index is a coarse time index: a map from floor(time/bucketSeconds) to the
// entries overlapping that bucket. Every entry appears in every bucket it
// spans, so a lookup touches exactly one bucket plus its tolerance neighbors.
type Index struct {
	bucketSeconds int
	buckets       map[int][]Entry
}

// BuildIndex builds a time index over the given entries. Entries with
// negative, inverted, or implausible (>24h) timestamps are skipped with a
// logged anomaly; they never fail the whole build. Empty input yields an
// empty, usable index.
func BuildIndex(entries []Entry, bucketSeconds int) *Index {
	if bucketSeconds <= 0 {
		bucketSeconds = DefaultBucketSeconds
	}
	idx := &Index{
		bucketSeconds: bucketSeconds,
		buckets:       make(map[int][]Entry),
	}

	for _, e := range entries {
		if !plausible(e) {
			log.Warn("Skipping implausible cue %s [%f, %f] during index build", e.ID, e.StartTime, e.EndTime)
			continue
		}
		first := int(e.StartTime) / bucketSeconds
		last := int(e.EndTime) / bucketSeconds
		for b := first; b <= last; b++ {
			idx.buckets[b] = append(idx.buckets[b], e)
		}
	}
	return idx
}

func plausible(e Entry) bool {
	if math.IsNaN(e.StartTime) || math.IsNaN(e.EndTime) {
		return false
	}
	if e.StartTime < 0 || e.EndTime < e.StartTime {
		return false
	}
	if e.EndTime > maxPlausibleSeconds {
		return false
	}
	return true
}

// BucketSeconds reports the bucket width the index was built with.
func (idx *Index) BucketSeconds() int {
	return idx.bucketSeconds
}

// Len reports the number of non-empty buckets.
func (idx *Index) Len() int {
	return len(idx.buckets)
}

// Lookup returns the first entry whose [start-tolerance, end+tolerance]
// window contains t, or nil. Bucket selection is O(1); the scan is bounded by
// the bucket size. The tolerance neighbors are checked so cues just across a
// bucket boundary are still found.
func (idx *Index) Lookup(t, tolerance float64) *Entry {
	if idx == nil || t < -tolerance {
		return nil
	}

	seen := make(map[int]struct{}, 2)
	for _, probe := range []float64{t - tolerance, t, t + tolerance} {
		if probe < 0 {
			probe = 0
		}
		bucket := int(probe) / idx.bucketSeconds
		if _, done := seen[bucket]; done {
			continue
		}
		seen[bucket] = struct{}{}

		for i := range idx.buckets[bucket] {
			e := &idx.buckets[bucket][i]
			if e.StartTime-tolerance <= t && t <= e.EndTime+tolerance {
				return e
			}
		}
	}
	return nil
}

// FindByTime is the tolerance-aware linear-scan fallback for callers that
// have no index yet.
func FindByTime(entries []Entry, t, tolerance float64) *Entry {
	for i := range entries {
		e := &entries[i]
		if e.StartTime-tolerance <= t && t <= e.EndTime+tolerance {
			return e
		}
	}
	return nil
}
