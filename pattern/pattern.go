// Package pattern holds the static, ordered sequence of permitted on-wire
// packet lengths and the lookup tables derived from it.
//
// The pattern is fixed for the lifetime of the process: it is built once at
// startup from the obfuscator's -pattern flag and never mutated afterwards. The
// push-state vector it produces, however, is mutated by the obfuscate task
// as packets are classified; see Table.PushStateVector.
package pattern

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MTU is the largest permissible slot length.
const MTU = 1500

// IPHeaderLen is the size of the outer IPv4 header prepended to every frame.
const IPHeaderLen = 20

// overheadBytes accounts for the outer encapsulation when converting a
// configured throughput into a packets-per-second budget (spec §4.1).
const overheadBytes = 100

var (
	// ErrEmpty is returned when a pattern with no slots is supplied.
	ErrEmpty = errors.New("pattern: must have at least one slot")
	// ErrNotSorted is returned when the slots are not non-decreasing.
	ErrNotSorted = errors.New("pattern: slots must be non-decreasing")
	// ErrOutOfRange is returned when a slot is non-positive or exceeds MTU.
	ErrOutOfRange = errors.New("pattern: slot length out of range")
)

// Table is the ordered, immutable sequence of permitted packet lengths.
type Table struct {
	slots []int
}

// New validates slots and builds a Table. slots must be non-empty,
// non-decreasing, and every value must be in (0, MTU].
func New(slots []int) (*Table, error) {
	if len(slots) == 0 {
		return nil, ErrEmpty
	}
	for i, l := range slots {
		if l <= 0 || l > MTU {
			return nil, fmt.Errorf("%w: slot %d = %d", ErrOutOfRange, i, l)
		}
		if i > 0 && slots[i-1] > l {
			return nil, fmt.Errorf("%w: slot %d (%d) < slot %d (%d)", ErrNotSorted, i, l, i-1, slots[i-1])
		}
	}
	cp := make([]int, len(slots))
	copy(cp, slots)
	return &Table{slots: cp}, nil
}

// Len returns the number of slots n.
func (t *Table) Len() int {
	return len(t.slots)
}

// Slot returns the length of slot i.
func (t *Table) Slot(i int) int {
	return t.slots[i]
}

// Slots returns a defensive copy of the slot lengths.
func (t *Table) Slots() []int {
	cp := make([]int, len(t.slots))
	copy(cp, t.slots)
	return cp
}

// SortedIndices returns the indices of the pattern sorted ascending by
// value. Since Table enforces a non-decreasing pattern, this is the
// identity permutation; it is kept as an explicit derived product because
// the scheduler consults it by name, and because a future pattern source
// that drops the non-decreasing constraint would still be served correctly.
func (t *Table) SortedIndices() []int {
	idx := make([]int, len(t.slots))
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// AverageLength is the mean slot length plus the fixed outer-encapsulation
// overhead (spec §4.1), used to convert a configured Mbit/s budget into pps.
func (t *Table) AverageLength() float64 {
	sum := 0
	for _, l := range t.slots {
		sum += l
	}
	return float64(sum)/float64(len(t.slots)) + overheadBytes
}

// PacketsPerSecond derives the target emission rate from a throughput
// configured in megabits per second: pps = rate*1e6/8/(mean(PATTERN)+100).
func (t *Table) PacketsPerSecond(rateMbitPerSec float64) float64 {
	return rateMbitPerSec * 1e6 / 8 / t.AverageLength()
}

// GroupState is one entry of the push-state vector (PSV): the queue within
// a state group that the next fitting packet is assigned to, and the
// exclusive end of that group.
type GroupState struct {
	NextQueue int
	End       int
}

// PushStateVector builds PSV per spec §3: for any maximal run of equal
// PATTERN values spanning [a, b), every PSV[i] for i in [a,b) starts as
// (a, b). The scheduler subsequently mutates only the NextQueue field,
// rotating it within [a, b).
func (t *Table) PushStateVector() []GroupState {
	psv := make([]GroupState, len(t.slots))
	a := 0
	for a < len(t.slots) {
		b := a + 1
		for b < len(t.slots) && t.slots[b] == t.slots[a] {
			b++
		}
		for i := a; i < b; i++ {
			psv[i] = GroupState{NextQueue: a, End: b}
		}
		a = b
	}
	return psv
}

// ParseCSV parses a comma-separated list of slot lengths, e.g.
// "500,1000,1400", into the slice New expects. It is the CLI's bridge
// between the compile-time-constant pattern table of spec §9 ("a
// compile-time array is acceptable") and an operator-supplied value,
// without requiring a rebuild to change PATTERN between deployments.
func ParseCSV(s string) ([]int, error) {
	fields := strings.Split(s, ",")
	slots := make([]int, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("pattern: invalid slot length %q: %w", f, err)
		}
		slots = append(slots, n)
	}
	return slots, nil
}

// ClassifySlot finds the smallest index i in [0,n) with Slot(i) >= length.
// It returns Len() — the drop sentinel — if no slot fits.
func (t *Table) ClassifySlot(length int) int {
	for i, l := range t.slots {
		if l >= length {
			return i
		}
	}
	return len(t.slots)
}
