// Package padstats tracks the padding cost the scheduler accumulates as it
// classifies real packets into oversized slots (spec §3/§9: "the
// cumulative-padding counter is process-wide state"). It is adapted from
// the teacher's cache.Cache: the same current/previous double-buffer and
// cycle counter, repurposed from tracking connection records to tracking a
// windowed padding total.
//
// Spec §9 carries an open question forward unresolved: "whether the
// cumulative-padding counter should be reset per sampling window or kept
// cumulative — two comments in the source disagree." This package resolves
// it (see DESIGN.md): the running total stays cumulative for the lifetime
// of the process, and EndCycle derives a windowed delta from it without
// resetting the total, mirroring how the teacher's Cache.EndCycle swaps
// current into previous without discarding history.
package padstats

import "sync"

// Tracker accumulates cumulative padding seconds (spec §4.3: "(Li-l)/R"
// per classified packet) and derives a windowed rate from periodic
// snapshots, the way the teacher's Cache swaps current/previous message
// maps every netlink polling cycle.
type Tracker struct {
	mu sync.Mutex

	total    float64 // cumulative, never reset
	previous float64 // total as of the previous EndCycle
	cycles   int64
}

// NewTracker returns a zeroed Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Add records seconds of padding cost, as produced by the scheduler's
// classification path. Called only from the obfuscate task (spec §5).
func (t *Tracker) Add(seconds float64) {
	t.mu.Lock()
	t.total += seconds
	t.mu.Unlock()
}

// Total returns the cumulative padding accumulated since process start.
func (t *Tracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// EndCycle marks the completion of one telemetry sampling window (spec
// §6's pad_log_interval) and returns the padding added since the previous
// call, without resetting the running total — matching the teacher's
// Cache.EndCycle, which swaps its current map into previous but never
// discards the cumulative cycle count.
func (t *Tracker) EndCycle() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	delta := t.total - t.previous
	t.previous = t.total
	t.cycles++
	return delta
}

// CycleCount returns the number of times EndCycle has been called.
func (t *Tracker) CycleCount() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cycles
}
