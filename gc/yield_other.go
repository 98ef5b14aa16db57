//go:build !unix

package gc

import "runtime"

// osYield falls back to the Go scheduler's yield on non-unix platforms,
// where the sched_yield system call is not used.
func osYield() {
	runtime.Gosched()
}
