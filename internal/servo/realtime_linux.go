//go:build linux

package servo

import "golang.org/x/sys/unix"

// bumpSchedPriority asks the kernel to schedule the worker thread under
// SCHED_FIFO so the pulse train survives scheduler pressure from the
// rest of the system. SCHED_FIFO needs CAP_SYS_NICE; without it, fall
// back to a niceness bump. Best effort either way: on a lightly loaded
// Pi the hybrid wait holds timing fine at default priority.
func bumpSchedPriority() {
	attr := &unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: 10,
	}
	if err := unix.SchedSetAttr(0, attr, 0); err == nil {
		return
	}
	_ = unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), -10)
}
