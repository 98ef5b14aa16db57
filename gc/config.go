package gc

import (
	"os"
	"sync/atomic"
)

// MarkingBehavior selects whether mutators participate in marking their
// own roots, or the GC thread does all marking alone.
type MarkingBehavior int

const (
	// MarkOwnStack: each mutator, upon suspension, marks its own
	// thread-local root set and drains a private mark queue in parallel
	// with its peers. This is the default.
	MarkOwnStack MarkingBehavior = iota
	// DoNotMark: mutators do not participate; the GC thread performs all
	// marking while every mutator is suspended.
	DoNotMark
)

func (m MarkingBehavior) String() string {
	if m == DoNotMark {
		return "do-not-mark"
	}
	return "mark-own-stack"
}

// defaultMarkingBehavior returns the built-in default, MarkOwnStack, unless
// the GC_MARK_MODE environment variable, read at run time when New calls
// this function, is "do-not-mark", mirroring readgogc()'s
// GOGC-environment-variable convention in runtime/internal/gc/mgc.go. A
// test hook (Collector.SetMarkingBehaviorForTests) can override it at
// runtime regardless of this default.
func defaultMarkingBehavior() MarkingBehavior {
	switch os.Getenv("GC_MARK_MODE") {
	case "do-not-mark":
		return DoNotMark
	default:
		return MarkOwnStack
	}
}

// Config collects the external collaborators the Collector needs. Every
// field is a required interface implemented by the runtime embedding this
// package; see traits.go for each contract.
type Config struct {
	Objects         ObjectFactory
	ExtraObjects    ExtraObjectFactory
	Mutators        MutatorRegistry
	Suspension      Suspension
	StableRefs      StableRefRegistry
	GlobalRootSet   GlobalRootSetFunc
	Scheduler       Scheduler
	FinalizerWork   FinalizerWorker
	Clock           Clock
	MarkingBehavior MarkingBehavior
}

// atomicMarkingBehavior lets SetMarkingBehaviorForTests override the
// effective marking behavior concurrently with a running collector.
type atomicMarkingBehavior struct {
	v atomic.Int32
}

func (a *atomicMarkingBehavior) store(b MarkingBehavior) { a.v.Store(int32(b)) }
func (a *atomicMarkingBehavior) load() MarkingBehavior   { return MarkingBehavior(a.v.Load()) }
