package fetchplan

import (
	"sort"
	"sync"
)

// IntervalStatus tracks the lifecycle of one requested time range.
type IntervalStatus int

const (
	IntervalInProgress IntervalStatus = iota
	IntervalDone
	IntervalFailed
)

func (s IntervalStatus) String() string {
	switch s {
	case IntervalInProgress:
		return "in-progress"
	case IntervalDone:
		return "done"
	case IntervalFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Interval is an already-requested or in-flight playback time range.
type Interval struct {
	Start  float64
	End    float64
	Status IntervalStatus
}

// DefaultMergeGap is the maximum gap, in seconds, across which adjacent
// intervals are merged into one.
const DefaultMergeGap = 10

// Book records requested fetch ranges so the render loop's periodic prefetch
// check and explicit planner calls never issue redundant requests for the
// same window. All methods are safe for concurrent use.
type Book struct {
	mergeGap float64

	mu        sync.Mutex
	intervals []Interval
}

func NewBook(mergeGap float64) *Book {
	if mergeGap <= 0 {
		mergeGap = DefaultMergeGap
	}
	return &Book{mergeGap: mergeGap}
}

// Covered reports whether [start, end] is already fully inside an
// in-progress or done interval. Failed intervals do not count; they stay
// eligible for retry.
func (b *Book) Covered(start, end float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, iv := range b.intervals {
		if iv.Status == IntervalFailed {
			continue
		}
		if iv.Start <= start && end <= iv.End {
			return true
		}
	}
	return false
}

// Begin records [start, end] as in-progress, merging it with any overlapping
// or near (gap <= mergeGap) non-failed interval. Failed intervals the new
// range touches are absorbed and retried.
func (b *Book) Begin(start, end float64) {
	if end < start {
		start, end = end, start
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	merged := Interval{Start: start, End: end, Status: IntervalInProgress}
	kept := b.intervals[:0]
	for _, iv := range b.intervals {
		if iv.Start-b.mergeGap <= merged.End && merged.Start-b.mergeGap <= iv.End {
			if iv.Start < merged.Start {
				merged.Start = iv.Start
			}
			if iv.End > merged.End {
				merged.End = iv.End
			}
			continue
		}
		kept = append(kept, iv)
	}
	b.intervals = append(kept, merged)
	sort.Slice(b.intervals, func(i, j int) bool {
		return b.intervals[i].Start < b.intervals[j].Start
	})
}

// Finish resolves the in-progress interval containing [start, end] to done
// or failed.
func (b *Book) Finish(start, end float64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.intervals {
		iv := &b.intervals[i]
		if iv.Status != IntervalInProgress {
			continue
		}
		if iv.Start <= start && end <= iv.End {
			if success {
				iv.Status = IntervalDone
			} else {
				iv.Status = IntervalFailed
			}
			return
		}
	}
}

// NearestEnd returns the end of the non-failed interval containing t. The
// render loop's prefetch trigger compares this against its threshold.
func (b *Book) NearestEnd(t float64) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, iv := range b.intervals {
		if iv.Status == IntervalFailed {
			continue
		}
		if iv.Start <= t && t <= iv.End {
			return iv.End, true
		}
	}
	return 0, false
}

// Reset drops all recorded intervals. Called on video identity change.
func (b *Book) Reset() {
	b.mu.Lock()
	b.intervals = nil
	b.mu.Unlock()
}

// Snapshot returns a copy of the current intervals for diagnostics.
func (b *Book) Snapshot() []Interval {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Interval, len(b.intervals))
	copy(out, b.intervals)
	return out
}
