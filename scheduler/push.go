package scheduler

import (
	"github.com/maxb0u/go-ditto/codec"
	"github.com/maxb0u/go-ditto/metrics"
	"github.com/maxb0u/go-ditto/pattern"
)

// PushState is the obfuscate task's private working copy of the
// push-state vector (spec §3/§9: "PSV is owned exclusively by the
// obfuscate task — not shared — to avoid cross-task coordination in the
// classification fast path"). It augments pattern.GroupState with the
// group's start index, which the spec's 2-field (nextQueue, end) tuple
// omits but which the rotation in Classify needs to find the wrap point.
type PushState struct {
	nextQueue int
	start     int
	end       int
}

// NewPushState builds the obfuscate task's PSV from the pattern table.
// Call this once per task startup; the returned slice must not be shared
// with any other goroutine.
func NewPushState(tbl *pattern.Table) []PushState {
	psv := tbl.PushStateVector()
	out := make([]PushState, len(psv))
	for i, g := range psv {
		start := i
		for start > 0 && psv[start-1].End == g.End {
			start--
		}
		out[i] = PushState{nextQueue: g.NextQueue, start: start, end: g.End}
	}
	return out
}

// Classify implements the reorder-mode push of spec §4.3: find the
// smallest fitting slot for frame, consult state[slot] for which queue in
// that state group receives it, push, then rotate nextQueue within the
// group. It returns the slot index classified into (s.NumQueues() when no
// slot fits; a frame dropped because its queue is full still returns its
// slot) so the caller can account for it; state is mutated in place and
// must be the caller's own PushState slice, never shared across tasks.
func (s *Scheduler) Classify(state []PushState, frame []byte) int {
	length := len(frame)
	slot := s.tbl.ClassifySlot(length)
	n := s.tbl.Len()
	if slot == n {
		logDrop("oversize", length)
		return n
	}

	group := &state[slot]
	qIdx := group.nextQueue
	slotLen := s.tbl.Slot(qIdx)

	wrapped, err := codec.Wrap(frame, slotLen, s.ep)
	if err != nil {
		logDrop("oversize", length)
		return n
	}
	if !s.queues[qIdx].Push(wrapped) {
		logDrop("queue_full", length)
	}

	metrics.PaddingBytesHistogram.Observe(float64(slotLen - length))
	s.addPadding(float64(slotLen-length) / s.pps)

	next := qIdx + 1
	if next >= group.end {
		next = group.start
	}
	for i := group.start; i < group.end; i++ {
		state[i].nextQueue = next
	}

	return slot
}

// PushNoReorder implements the no-reorder push of spec §4.3: starting at
// the current queue index idx, scan queues idx, idx+1, … (mod n) and push
// into the first whose slot length accommodates the packet. It returns
// the next idx the caller should use on its following call (chosen+1 mod
// n), or idx unchanged if the packet was dropped as oversize. Preserves
// arrival order at the cost of potentially heavier padding than reorder
// mode (spec §4.3).
func (s *Scheduler) PushNoReorder(idx int, frame []byte) int {
	length := len(frame)
	n := len(s.queues)
	for k := 0; k < n; k++ {
		cand := (idx + k) % n
		slotLen := s.tbl.Slot(cand)
		if slotLen < length {
			continue
		}
		wrapped, err := codec.Wrap(frame, slotLen, s.ep)
		if err != nil {
			break
		}
		if !s.queues[cand].Push(wrapped) {
			logDrop("queue_full", length)
		}
		metrics.PaddingBytesHistogram.Observe(float64(slotLen - length))
		s.addPadding(float64(slotLen-length) / s.pps)
		return (cand + 1) % n
	}
	logDrop("oversize", length)
	return idx
}
