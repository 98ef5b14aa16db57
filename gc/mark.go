package gc

// MarkStats is the per-drain result of Mark, merged across every mutator
// and the GC thread under markingMutex by the driver.
type MarkStats struct {
	AliveHeapSet      uint64
	AliveHeapSetBytes uint64
}

// Merge accumulates other into s.
func (s *MarkStats) Merge(other MarkStats) {
	s.AliveHeapSet += other.AliveHeapSet
	s.AliveHeapSetBytes += other.AliveHeapSetBytes
}

// Mark drains queue, blackening and traversing every gray object it finds.
// It may be invoked concurrently by multiple goroutines, each over its own
// private queue; the caller merges stats.
func Mark(traits MarkTraits, queue *MarkQueue) MarkStats {
	var stats MarkStats
	for !traits.IsEmpty(queue) {
		top := traits.Dequeue(queue)
		invariant(top != nil, "got nil object in mark queue")
		invariant(top.Heap(), "got non-heap reference in mark queue, permanent=%v local=%v", top.Permanent(), top.Local())

		stats.AliveHeapSet++
		stats.AliveHeapSetBytes += top.AllocatedSize()

		top.VisitFields(func(field Object) {
			if field != nil && field.Heap() {
				traits.Enqueue(queue, field)
			}
		})

		if extra := top.ExtraData(); extra != nil {
			if counter := extra.WeakCounter(); counter != nil {
				invariant(counter.Heap(), "weak counter must be a heap object")
				traits.Enqueue(queue, counter)
			}
		}
	}
	return stats
}
