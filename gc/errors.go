package gc

import "fmt"

// invariant is the Go analogue of RuntimeAssert: a failed invariant is a
// fatal programming bug, not a recoverable error. There is no
// retry path — every primitive either succeeds or aborts the process.
func invariant(cond bool, format string, args ...any) {
	if !cond {
		panic("gc: invariant violated: " + fmt.Sprintf(format, args...))
	}
}
