//go:build unix

package gc

import "golang.org/x/sys/unix"

// osYield yields the calling OS thread's remaining timeslice directly via
// the kernel, rather than Go's cooperative scheduler, which better matches
// the spin-yield wait's intent of letting sibling mutator OS threads make
// progress.
func osYield() {
	_, _, _ = unix.Syscall(unix.SYS_SCHED_YIELD, 0, 0, 0)
}
