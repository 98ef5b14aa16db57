package gc

import "context"

// Object is the external collaborator contract for a managed heap object.
// The collector never owns an Object's lifetime or allocates one; it only
// reads classification predicates and walks the field graph.
type Object interface {
	// Heap reports whether this object lives in the collected heap. Only
	// heap objects ever carry an ObjectData color and are ever enqueued
	// directly; non-heap (permanent/stack) objects are traversed for their
	// heap-resident fields instead.
	Heap() bool
	// Permanent reports whether the object is a permanent (immortal)
	// object, never swept.
	Permanent() bool
	// Local reports whether the object is a stack-local (non-heap) object.
	Local() bool
	// HasFinalizer reports whether the object has a registered finalizer.
	HasFinalizer() bool
	// VisitFields calls fn once for every object field, including nils,
	// which the caller must filter.
	VisitFields(fn func(Object))
	// Data returns the per-object atomic color slot. Must be non-nil for
	// every heap object.
	Data() *AtomicColor
	// ExtraData returns the object's side record, or nil if it has none.
	ExtraData() ExtraObject
	// AllocatedSize reports the factory-reported allocation size in bytes,
	// used for MarkStats.AliveHeapSetBytes.
	AllocatedSize() uint64
}

// ExtraObject is the per-object side structure described here:
// an optional weak-reference counter, an optional associated native
// object, and the FLAGS_IN_FINALIZER_QUEUE lifecycle flag.
type ExtraObject interface {
	// WeakCounter returns the associated weak-reference counter object, or
	// nil if there is none. If the base object is Black the counter must
	// also be enqueued and thus Black at sweep.
	WeakCounter() Object
	ClearWeakCounter()
	HasAssociatedObject() bool
	DetachAssociatedObject()
	InFinalizerQueue() bool
	SetInFinalizerQueue(bool)
	// Uninstall releases this record entirely; called only when the base
	// object is dead and carries no associated native object.
	Uninstall()
	// BaseObject returns the object this extra record is attached to.
	BaseObject() Object
}

// MarkTraits is the generic contract the marking loop drains through.
// Enqueue must perform the atomic White->Black transition and push the
// object only if the transition succeeded; a failed transition is a no-op.
// Mark calls these methods through the interface; the package's only
// implementation is the stateless defaultTraits value.
type MarkTraits interface {
	IsEmpty(q *MarkQueue) bool
	Clear(q *MarkQueue)
	Enqueue(q *MarkQueue, obj Object)
	Dequeue(q *MarkQueue) Object
}

// SweepTraits is the sweep-side counterpart: how to test and reset an
// object's mark, and how a non-heap base object should be treated as
// always-Black by extra-object sweep.
type SweepTraits interface {
	IsMarkedByExtraObject(e ExtraObject) bool
	TryResetMark(obj Object) bool
}

// RootRef is one entry yielded by a root-set enumerator.
type RootRef struct {
	Object Object
	Source RootSource
}

// RootSource classifies where a RootRef came from, for RootSetStatistics.
type RootSource int

const (
	SourceStack RootSource = iota
	SourceTLS
	SourceGlobal
	SourceStable
)

// MutatorHandle is the external collaborator's per-thread state, as seen by
// the collector: a thread registry entry plus the hooks the suspension
// protocol needs.
type MutatorHandle interface {
	ID() int64
	// Publish flushes thread-local allocation buffers into the global
	// object factory so the GC can see objects that thread has allocated.
	Publish()
	// ThreadRootSet enumerates this thread's stack and TLS roots.
	ThreadRootSet() []RootRef
	// Suspended reports whether the thread is currently suspended.
	Suspended() bool
	// Native reports whether the thread is executing native (unmanaged)
	// code and therefore cannot be holding new, unpublished references.
	Native() bool
	// Marking reports whether the thread has raised its own marking_ flag
	// (it is cooperatively marking its own roots right now).
	Marking() bool
	// SetMarking raises or lowers this thread's marking_ flag. Lowering it
	// is the completion signal WaitForThreadsSuspension depends on.
	SetMarking(bool)
}

// MutatorRegistry is the external thread registry collaborator.
type MutatorRegistry interface {
	// LockForIter returns a stable snapshot of all registered mutators and
	// an unlock function that must be called when iteration is done.
	LockForIter() (mutators []MutatorHandle, unlock func())
}

// Suspension is the external suspension-primitive collaborator.
type Suspension interface {
	RequestThreadsSuspension() bool
	WaitForThreadsSuspension()
	ResumeThreads()
	// SuspendIfRequested is polled by a mutator at a safepoint; it blocks
	// until the mutator is resumed if suspension was requested, otherwise
	// it returns immediately.
	SuspendIfRequested()
}

// ObjectFactory is the external object allocator/iterator collaborator.
type ObjectFactory interface {
	// LockForIter acquires the iteration lock (held during Sweep) and
	// returns every currently-live object plus an unlock function.
	LockForIter() (objects []Object, unlock func())
	// ObjectsCount and TotalSize report pre/post-sweep heap usage for
	// GCInfo, matching GetObjectsCountUnsafe/GetTotalObjectsSizeUnsafe.
	ObjectsCount() uint64
	TotalSize() uint64
	// Erase permanently removes a dead object with no finalizer.
	Erase(obj Object)
}

// ExtraObjectFactory is the external side-table collaborator for
// ExtraObjectData records.
type ExtraObjectFactory interface {
	ProcessDeletions()
	// LockForIter returns every extra-object record currently installed.
	LockForIter() (extras []ExtraObject, unlock func())
	Erase(e ExtraObject)
	ObjectsCount() uint64
	TotalSize() uint64
}

// StableRefRegistry is the external stable-external-reference collaborator.
type StableRefRegistry interface {
	ProcessDeletions()
}

// GlobalRootSetFunc enumerates global and stable-ref roots.
type GlobalRootSetFunc func() []RootRef

// Clock is the external monotonic clock collaborator.
type Clock interface {
	NowMicros() int64
	NowNanos() int64
}

// Scheduler is the external dynamic GC-scheduling collaborator: it decides
// *when* to request a GC; the collector only reports back to it.
type Scheduler interface {
	OnSafePointAllocation(size uintptr)
	OnPerformFullGC()
	UpdateAliveSetBytes(bytes uint64)
}

// FinalizerWorker is the external finalizer-processing collaborator.
type FinalizerWorker interface {
	// Schedule hands off a finalizer queue tagged with the epoch that
	// produced it. The worker must eventually call done(epoch) once it has
	// run every finalizer in the queue.
	Schedule(ctx context.Context, queue []Object, epoch uint64, done func(epoch uint64))
	StartIfNeeded()
	StopIfRunning()
	IsRunning() bool
}
