package gc

// SweepExtraObjects runs the first sweep sub-phase, while mutators remain
// suspended. For every extra-object record whose base object is not Black
// and that is not already queued for finalization: drop its weak counter,
// and either detach its associated native object (deferring the record
// itself to the finalizer queue) or uninstall and erase it outright.
func SweepExtraObjects(traits SweepTraits, factory ExtraObjectFactory) {
	factory.ProcessDeletions()
	extras, unlock := factory.LockForIter()
	defer unlock()
	for _, extra := range extras {
		if extra.InFinalizerQueue() || traits.IsMarkedByExtraObject(extra) {
			continue
		}
		extra.ClearWeakCounter()
		if extra.HasAssociatedObject() {
			extra.DetachAssociatedObject()
			extra.SetInFinalizerQueue(true)
		} else {
			extra.Uninstall()
			factory.Erase(extra)
		}
	}
}

// Sweep runs the second sub-phase, after mutators resume, holding only the
// object factory's iteration lock. TryResetMark returns true iff the
// object was Black (and resets it to White): the object survives. A false
// return means the object is dead: objects with finalizers move to the
// returned finalizer queue, everything else is erased immediately.
func Sweep(traits SweepTraits, factory ObjectFactory) []Object {
	objects, unlock := factory.LockForIter()
	return sweepIter(traits, factory, objects, unlock)
}

// sweepIter is Sweep's logic over an iteration snapshot the caller already
// holds the lock for — used by the driver, which must record post-mark
// heap usage between acquiring the iteration lock and running the sweep
// itself.
func sweepIter(traits SweepTraits, factory ObjectFactory, objects []Object, unlock func()) []Object {
	defer unlock()
	var finalizerQueue []Object
	for _, obj := range objects {
		if traits.TryResetMark(obj) {
			continue
		}
		if obj.HasFinalizer() {
			finalizerQueue = append(finalizerQueue, obj)
		} else {
			factory.Erase(obj)
		}
	}
	return finalizerQueue
}
