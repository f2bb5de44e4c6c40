// Package affinity pins a pipeline task to a single CPU core and raises it
// to fixed-priority real-time scheduling, per spec §4.5: "Each task, if
// its isolation flag is set, binds itself to a configured core via an OS
// affinity call and elevates to fixed-priority real-time scheduling with a
// configurable numeric priority. Isolation failures are fatal for the
// task."
package affinity

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Isolate pins the calling OS thread to core and raises its scheduling
// policy to SCHED_FIFO at priority. The caller must already be locked to
// its OS thread (runtime.LockOSThread) before calling Isolate — pinning an
// affinity/policy to a thread the Go scheduler is free to reuse for other
// goroutines would silently isolate the wrong work.
func Isolate(core, priority int) error {
	if err := setAffinity(core); err != nil {
		return fmt.Errorf("affinity: pinning to core %d: %w", core, err)
	}
	if err := setRealTimePriority(priority); err != nil {
		return fmt.Errorf("affinity: raising to SCHED_FIFO priority %d: %w", priority, err)
	}
	return nil
}

func setAffinity(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}

// schedParam mirrors the kernel's struct sched_param. x/sys/unix wraps
// sched_setaffinity but not sched_setscheduler, so the syscall is made
// directly.
type schedParam struct {
	priority int32
}

func setRealTimePriority(priority int) error {
	param := schedParam{priority: int32(priority)}
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER, 0, uintptr(unix.SCHED_FIFO), uintptr(unsafe.Pointer(&param)))
	if errno != 0 {
		return errno
	}
	return nil
}
