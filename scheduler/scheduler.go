// Package scheduler implements the round-robin scheduler of spec §4.3: it
// owns one bounded queue per pattern slot, classifies real packets into a
// queue (in reorder or no-reorder mode), and serves one queue per
// transmit tick in pattern order.
package scheduler

import (
	"log"
	"strconv"
	"sync"

	"github.com/maxb0u/go-ditto/codec"
	"github.com/maxb0u/go-ditto/metrics"
	"github.com/maxb0u/go-ditto/pattern"
	"github.com/maxb0u/go-ditto/queue"
)

// Scheduler owns the vector of per-length queues plus the scalar counters
// shared across the pipeline (spec §3). It is safe to share a *Scheduler
// across the three pipeline tasks: Classify and PushNoReorder must only be
// called by the obfuscate task, Pop only by the transmit task, and the
// padding accumulator is internally synchronized because it's the one
// piece of state the spec allows to be touched from outside the hot path
// (metrics scraping, periodic CSV sampling).
type Scheduler struct {
	tbl    *pattern.Table
	queues []*queue.Queue
	ep     codec.TunnelEndpoints
	pps    float64

	padMu    sync.Mutex
	totalPad float64
}

// New builds a Scheduler with one queue per pattern slot, each pre-loaded
// with its chaff template (spec §4.2/§4.4.2).
func New(tbl *pattern.Table, ep codec.TunnelEndpoints, pps float64) *Scheduler {
	queues := make([]*queue.Queue, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		slotLen := tbl.Slot(i)
		queues[i] = queue.New(slotLen, codec.ChaffTemplate(slotLen, ep))
	}
	return &Scheduler{tbl: tbl, queues: queues, ep: ep, pps: pps}
}

// Pattern returns the pattern table backing this scheduler.
func (s *Scheduler) Pattern() *pattern.Table {
	return s.tbl
}

// NumQueues returns n, the number of pattern slots/queues.
func (s *Scheduler) NumQueues() int {
	return len(s.queues)
}

// Pop returns one frame from queue idx, and whether it was a real frame
// (false means the chaff template was returned). Only the transmit task
// may call Pop (spec invariant I4).
func (s *Scheduler) Pop(idx int) ([]byte, bool) {
	frame, real := s.queues[idx].Pop()
	metrics.QueueDepth.WithLabelValues(slotLabel(idx)).Set(float64(s.queues[idx].Len()))
	return frame, real
}

// addPadding accumulates (Li - l)/R into the process-wide padding counter.
// This is the one piece of scheduler state touched under a lock, per spec
// §5: "A single global counter (cumulative padding) is protected by a
// mutex but updated only on the obfuscate-task's path; the transmit task
// never touches it."
func (s *Scheduler) addPadding(seconds float64) {
	s.padMu.Lock()
	s.totalPad += seconds
	total := s.totalPad
	s.padMu.Unlock()
	metrics.CumulativePadSeconds.Set(total)
}

// CumulativePadSeconds reports the current value of the padding
// accumulator. Spec §9 carries an open question on whether this should be
// cumulative or reset per sampling window; DESIGN.md records the decision
// to keep it cumulative and derive any windowed rate separately.
func (s *Scheduler) CumulativePadSeconds() float64 {
	s.padMu.Lock()
	defer s.padMu.Unlock()
	return s.totalPad
}

func slotLabel(idx int) string {
	return strconv.Itoa(idx)
}

func logDrop(reason string, length int) {
	metrics.DroppedTotal.WithLabelValues(reason).Inc()
	log.Printf("scheduler: dropped %d-byte packet (%s)", length, reason)
}
