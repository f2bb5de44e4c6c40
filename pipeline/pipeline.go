// Package pipeline implements the three long-running tasks of spec §4.5:
// obfuscate (capture → classify → enqueue), transmit (pop → pace → send),
// and deobfuscate (capture → classify/unwrap → forward). Each task is
// meant to run on its own goroutine, locked to its own OS thread and
// optionally pinned to a dedicated core at real-time priority via the
// affinity package — mirroring the teacher's three-stage collector →
// cache/saver → CSV pipeline, generalized from netlink polling to raw
// Ethernet capture.
package pipeline

import (
	"context"
	"fmt"
	"runtime"

	"github.com/maxb0u/go-ditto/affinity"
)

// Isolation carries one task's isolation flag, core id, and real-time
// priority (spec §4.5, §6 [isolation]). Priority is shared process-wide in
// the configuration document; Core and Enabled are per-task.
type Isolation struct {
	Enabled  bool
	Core     int
	Priority int
}

// isolate binds the calling goroutine's OS thread per Isolation, or does
// nothing if isolation is disabled. Spec §4.5: "Isolation failures are
// fatal for the task" — the caller is expected to abort the task (and, per
// §6's exit-code contract, the process) on a non-nil error.
func isolate(taskName string, cfg Isolation) error {
	if !cfg.Enabled {
		return nil
	}
	runtime.LockOSThread()
	if err := affinity.Isolate(cfg.Core, cfg.Priority); err != nil {
		return fmt.Errorf("pipeline: %s isolation failed: %w", taskName, err)
	}
	return nil
}

// done reports whether ctx has been cancelled, used by each task's main
// loop as its cooperative-shutdown check (spec §5: "Implementers should
// add a cooperative shutdown channel ... this is not required for
// behavioural conformance").
func done(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
