package gc

import "golang.org/x/sync/errgroup"

// setMarkingRequested publishes the process-wide marking request for this
// epoch. When the effective behavior is DoNotMark, markingRequested stays
// false and no mutator will ever enter the cooperative-mark wait below.
func (c *Collector) setMarkingRequested(epoch uint64) {
	c.markingMu.Lock()
	c.markingRequested = c.markingMode.load() == MarkOwnStack
	c.markingEpoch = epoch
	c.markingMu.Unlock()
}

// waitForThreadsReadyToMark spins until every mutator but the GC thread
// itself is suspended, native, or has raised its own marking_ flag. This is
// an intentional cooperative spin-yield rather than a blocking wait: the
// window is short and the predicate depends on mutator thread-state
// transitions that have no condition-variable path of their own.
func (c *Collector) waitForThreadsReadyToMark() {
	for !c.allMutatorsReadyToMark() {
		osYield()
	}
}

func (c *Collector) allMutatorsReadyToMark() bool {
	mutators, unlock := c.cfg.Mutators.LockForIter()
	defer unlock()
	for _, m := range mutators {
		if m.Suspended() || m.Native() || m.Marking() {
			continue
		}
		return false
	}
	return true
}

// collectRootSetAndStartMarking collects the global root set (and the
// roots of any mutator that is not self-marking) under markingMutex, then
// releases every self-marking mutator simultaneously by clearing
// markingRequested and broadcasting.
func (c *Collector) collectRootSetAndStartMarking(handle *GCHandle) {
	c.markingMu.Lock()
	defer c.markingMu.Unlock()
	c.markingRequested = false
	collectRootSet(
		handle, c.traits, &c.markQueue,
		c.cfg.Mutators, c.cfg.StableRefs, c.cfg.GlobalRootSet,
		func(m MutatorHandle) bool { return !m.Marking() },
	)
	c.logger.Debug("requesting marking in mutators", "epoch", handle.epoch)
	c.markingCond.Broadcast()
}

// OnSuspendForGC is called from a mutator's suspend-request hook; it is the
// only entry point into the cooperative-mark protocol.
// If no marking is currently requested for this mutator's suspension
// (DoNotMark mode, or the mutator suspended outside a GC), it returns
// immediately and the suspension primitive alone is responsible for
// parking the thread.
func (c *Collector) OnSuspendForGC(self MutatorHandle) {
	c.markingMu.Lock()
	if !c.markingRequested {
		c.markingMu.Unlock()
		return
	}
	self.SetMarking(true)
	defer self.SetMarking(false)
	self.Publish()
	for c.markingRequested {
		c.markingCond.Wait()
	}
	epoch := c.markingEpoch
	c.markingMu.Unlock()

	c.logger.Debug("parallel marking", "epoch", epoch, "thread", self.ID())
	var queue MarkQueue
	handle := existingGCHandle(epoch, c.stats(), c.logger, c.cfg.Clock)
	collectRootSetForThread(handle, c.traits, &queue, self)
	stats := Mark(c.traits, &queue)
	c.mergeMarkStats(stats)
}

// MarkMutatorsInParallel is an alternative entry point used when the
// embedding runtime drives mutator marking from the GC thread itself,
// instead of letting each mutator discover its own safepoint (e.g. a
// runtime with no native suspend signal, or a test harness): it launches
// one goroutine per mutator, each of which raises the mutator's marking
// flag, collects its thread roots into a private queue, drains it and
// merges the stats, and waits for all of them, using errgroup in place of
// a hand-rolled WaitGroup loop. The goroutines report no errors, so the
// returned error is always nil.
func (c *Collector) MarkMutatorsInParallel(mutators []MutatorHandle) error {
	c.markingMu.Lock()
	epoch := c.markingEpoch
	c.markingMu.Unlock()
	var g errgroup.Group
	for _, m := range mutators {
		m := m
		g.Go(func() error {
			m.SetMarking(true)
			defer m.SetMarking(false)
			m.Publish()
			var queue MarkQueue
			handle := existingGCHandle(epoch, c.stats(), c.logger, c.cfg.Clock)
			collectRootSetForThread(handle, c.traits, &queue, m)
			c.mergeMarkStats(Mark(c.traits, &queue))
			return nil
		})
	}
	return g.Wait()
}
