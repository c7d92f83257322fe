package health

import (
	"sync"
	"time"
)

// maxAge bounds how long outcome timestamps are retained.
const maxAge = 5 * time.Minute

// Tracker maintains sliding windows of upstream call outcomes per source
// (weather, soil, geocode, model). The health endpoint reads it to report a
// degraded status when a provider's recent error rate crosses the threshold.
type Tracker struct {
	mu      sync.Mutex
	sources map[string]*outcomes
}

type outcomes struct {
	successTimes []time.Time
	errorTimes   []time.Time
}

func NewTracker() *Tracker {
	return &Tracker{sources: make(map[string]*outcomes)}
}

// RecordSuccess records one successful upstream call for source.
func (t *Tracker) RecordSuccess(source string) {
	t.record(source, true)
}

// RecordError records one failed upstream call for source.
func (t *Tracker) RecordError(source string) {
	t.record(source, false)
}

func (t *Tracker) record(source string, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	o, ok := t.sources[source]
	if !ok {
		o = &outcomes{}
		t.sources[source] = o
	}
	now := time.Now()
	if success {
		o.successTimes = append(o.successTimes, now)
	} else {
		o.errorTimes = append(o.errorTimes, now)
	}
	o.prune(now)
}

// ErrorRate returns (errors, total) for source within the window.
func (t *Tracker) ErrorRate(source string, window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	o, ok := t.sources[source]
	if !ok {
		return 0, 0
	}
	cutoff := time.Now().Add(-window)
	errCount := countSince(o.errorTimes, cutoff)
	return errCount, errCount + countSince(o.successTimes, cutoff)
}

// Degraded reports whether any source's error rate within the window meets
// threshold (0..1). Sources with fewer than minSamples outcomes are skipped so
// a single cold-start failure does not flip the service status. The second
// return value names the first offending source.
func (t *Tracker) Degraded(window time.Duration, threshold float64, minSamples int) (bool, string) {
	t.mu.Lock()
	sources := make([]string, 0, len(t.sources))
	for s := range t.sources {
		sources = append(sources, s)
	}
	t.mu.Unlock()

	for _, s := range sources {
		errs, total := t.ErrorRate(s, window)
		if total < minSamples {
			continue
		}
		if float64(errs)/float64(total) >= threshold {
			return true, s
		}
	}
	return false, ""
}

// Reset clears all recorded outcomes. For tests only.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources = make(map[string]*outcomes)
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// prune drops timestamps older than maxAge. Timestamps are appended in order,
// so the retained suffix starts at the first fresh entry.
func (o *outcomes) prune(now time.Time) {
	cutoff := now.Add(-maxAge)
	o.successTimes = pruneBefore(o.successTimes, cutoff)
	o.errorTimes = pruneBefore(o.errorTimes, cutoff)
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(times) && times[i].Before(cutoff); i++ {
	}
	if i == 0 {
		return times
	}
	return append(times[:0], times[i:]...)
}
