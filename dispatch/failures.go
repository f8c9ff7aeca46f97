package dispatch

import "sync"

// FailureTracker counts consecutive transport failures per (lambda,
// destination) and reports when a threshold is crossed, so a Dispatcher
// can evict a destination that has gone bad. This is explicitly left as
// an implementer's choice by §4.5 ("Implementations MAY evict the
// destination... this policy is out of scope of the core") — it is not
// part of the forwarding table or local optimizer contracts.
type FailureTracker struct {
	mu        sync.Mutex
	threshold int
	counts    map[string]map[string]int
}

// NewFailureTracker creates a tracker that reports eviction-worthy after
// threshold consecutive failures. threshold <= 0 disables eviction
// (RecordFailure never reports true).
func NewFailureTracker(threshold int) *FailureTracker {
	return &FailureTracker{
		threshold: threshold,
		counts:    make(map[string]map[string]int),
	}
}

// RecordFailure increments the consecutive-failure count for (lambda,
// dest) and reports whether it has now reached the configured
// threshold.
func (f *FailureTracker) RecordFailure(lambda, dest string) (shouldEvict bool) {
	if f.threshold <= 0 {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	byDest, ok := f.counts[lambda]
	if !ok {
		byDest = make(map[string]int)
		f.counts[lambda] = byDest
	}
	byDest[dest]++
	return byDest[dest] >= f.threshold
}

// RecordSuccess resets the consecutive-failure count for (lambda, dest).
func (f *FailureTracker) RecordSuccess(lambda, dest string) {
	if f.threshold <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if byDest, ok := f.counts[lambda]; ok {
		delete(byDest, dest)
	}
}
