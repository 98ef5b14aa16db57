package gc

// RootSetStatistics holds the four root-reference counts reported per
// epoch. Total intentionally preserves an apparent double-count of
// StableReferences; see DESIGN.md "Open Questions" for the rationale to
// preserve rather than silently fix it.
type RootSetStatistics struct {
	ThreadLocalReferences int64
	StackReferences       int64
	GlobalReferences      int64
	StableReferences      int64
}

// Total is deliberately kept bug-compatible; see the doc comment above.
func (r RootSetStatistics) Total() int64 {
	return r.ThreadLocalReferences + r.StackReferences + r.GlobalReferences + r.StableReferences + r.StableReferences
}

func (r *RootSetStatistics) addThread(tls, stack int64) {
	r.ThreadLocalReferences += tls
	r.StackReferences += stack
}

func (r *RootSetStatistics) addGlobal(global, stable int64) {
	r.GlobalReferences += global
	r.StableReferences += stable
}

// enqueueRootObject implements the shared heap/non-heap branch used by both
// per-thread and global root collection: a heap object is enqueued
// directly; a non-heap (permanent/stack) object has no color of its own,
// so its heap-resident fields are traversed and enqueued instead.
func enqueueRootObject(traits MarkTraits, queue *MarkQueue, object Object) {
	if object == nil {
		return
	}
	if object.Heap() {
		traits.Enqueue(queue, object)
		return
	}
	object.VisitFields(func(field Object) {
		if field != nil && field.Heap() {
			traits.Enqueue(queue, field)
		}
	})
}

// collectRootSetForThread enumerates one mutator's stack and TLS roots,
// after first publishing its thread-local allocation buffers. Named after
// MarkAndSweepUtils.hpp's function of the same purpose.
func collectRootSetForThread(handle *GCHandle, traits MarkTraits, queue *MarkQueue, thread MutatorHandle) {
	var stackRoots, tlsRoots int64
	for _, ref := range thread.ThreadRootSet() {
		if ref.Object == nil {
			continue
		}
		enqueueRootObject(traits, queue, ref.Object)
		switch ref.Source {
		case SourceStack:
			stackRoots++
		case SourceTLS:
			tlsRoots++
		}
	}
	handle.threadRootSet(thread.ID(), tlsRoots, stackRoots)
}

// collectRootSetGlobals processes pending stable-ref deletions, then
// enumerates every global and stable-ref root.
func collectRootSetGlobals(handle *GCHandle, traits MarkTraits, queue *MarkQueue, stableRefs StableRefRegistry, globals GlobalRootSetFunc) {
	stableRefs.ProcessDeletions()
	var globalRoots, stableRoots int64
	for _, ref := range globals() {
		if ref.Object == nil {
			continue
		}
		enqueueRootObject(traits, queue, ref.Object)
		switch ref.Source {
		case SourceGlobal:
			globalRoots++
		case SourceStable:
			stableRoots++
		}
	}
	handle.globalRootSet(globalRoots, stableRoots)
}

// collectRootSet is the top-level root-set pass driven from the GC thread:
// for every mutator the filter elects, publish and collect its thread
// roots, then collect the global root set. filter lets the driver skip
// mutators that have already entered the cooperative-mark path and will
// collect their own roots themselves.
func collectRootSet(
	handle *GCHandle,
	traits MarkTraits,
	queue *MarkQueue,
	registry MutatorRegistry,
	stableRefs StableRefRegistry,
	globals GlobalRootSetFunc,
	filter func(MutatorHandle) bool,
) {
	traits.Clear(queue)
	mutators, unlock := registry.LockForIter()
	defer unlock()
	for _, thread := range mutators {
		if !filter(thread) {
			continue
		}
		thread.Publish()
		collectRootSetForThread(handle, traits, queue, thread)
	}
	collectRootSetGlobals(handle, traits, queue, stableRefs, globals)
}
