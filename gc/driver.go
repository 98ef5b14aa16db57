package gc

import (
	"context"
	"log/slog"
	"sync"
)

// Collector is the top-level stop-the-world mark-and-sweep garbage
// collector. One Collector owns exactly one dedicated GC goroutine (started
// by Start) and one epoch state machine; construct it once per runtime
// instance, never per collection.
type Collector struct {
	cfg    Config
	epochs *epochState
	logger *slog.Logger

	traits      defaultTraits
	markingMode atomicMarkingBehavior

	markQueue     MarkQueue
	lastMarkStats MarkStats

	markingMu        sync.Mutex
	markingCond      *sync.Cond
	markingRequested bool
	markingEpoch     uint64

	statsStore *statsStore

	driverDone chan struct{}
}

// stats returns the collector's stats store, lazily so a zero-value
// Collector constructed outside New (tests) still works.
func (c *Collector) stats() *statsStore {
	if c.statsStore == nil {
		c.statsStore = &statsStore{}
	}
	return c.statsStore
}

// New constructs a Collector from its external collaborators. It does not
// start the GC thread; call Start for that.
func New(cfg Config, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Collector{
		cfg:        cfg,
		epochs:     newEpochState(),
		logger:     logger.With("component", "GC"),
		statsStore: &statsStore{},
		driverDone: make(chan struct{}),
	}
	c.markingCond = sync.NewCond(&c.markingMu)
	behavior := cfg.MarkingBehavior
	if behavior == MarkOwnStack {
		// MarkOwnStack is also the zero value, so an embedder that never
		// set Config.MarkingBehavior falls through to the compile-time
		// default (possibly env-overridden), matching readgogc()'s
		// "unset means consult environment" convention.
		behavior = defaultMarkingBehavior()
	}
	c.markingMode.store(behavior)
	return c
}

// SetMarkingBehaviorForTests overrides the marking behavior at runtime,
// regardless of the compile-time default.
func (c *Collector) SetMarkingBehaviorForTests(behavior MarkingBehavior) {
	c.markingMode.store(behavior)
}

// Start launches the dedicated GC goroutine.
func (c *Collector) Start() {
	go c.driverLoop()
}

// Shutdown causes the GC thread to exit after any in-flight epoch
// completes; it does not abort a collection already in progress.
func (c *Collector) Shutdown() {
	c.epochs.shutdown()
	<-c.driverDone
}

func (c *Collector) driverLoop() {
	defer close(c.driverDone)
	for {
		epoch, ok := c.epochs.waitScheduled()
		if !ok {
			return
		}
		c.performFullGC(epoch)
	}
}

// SafePointAllocation is called by the allocation slow path: it notifies
// the scheduler of the pending allocation, then polls for suspension.
func (c *Collector) SafePointAllocation(size uintptr) {
	c.cfg.Scheduler.OnSafePointAllocation(size)
	c.cfg.Suspension.SuspendIfRequested()
}

// ScheduleAndWaitFullGC requests a collection and blocks until sweep has
// finished for an epoch at least as new as the one scheduled.
func (c *Collector) ScheduleAndWaitFullGC(ctx context.Context) error {
	epoch := c.epochs.schedule()
	return c.epochs.waitEpochFinished(ctx, epoch)
}

// ScheduleAndWaitFullGCWithFinalizers is like ScheduleAndWaitFullGC but
// additionally waits for the finalizer worker to finish running finalizers
// for that epoch.
func (c *Collector) ScheduleAndWaitFullGCWithFinalizers(ctx context.Context) error {
	epoch := c.epochs.schedule()
	return c.epochs.waitEpochFinalized(ctx, epoch)
}

// OnOOM is equivalent to ScheduleAndWaitFullGC, called from an allocation
// failure path.
func (c *Collector) OnOOM(ctx context.Context, size uintptr) error {
	c.logger.Debug("attempting GC on OOM", "size", size)
	return c.ScheduleAndWaitFullGC(ctx)
}

func (c *Collector) StartFinalizerThreadIfNeeded() { c.cfg.FinalizerWork.StartIfNeeded() }
func (c *Collector) StopFinalizerThreadIfRunning() { c.cfg.FinalizerWork.StopIfRunning() }
func (c *Collector) FinalizersThreadIsRunning() bool {
	return c.cfg.FinalizerWork.IsRunning()
}

// performFullGC runs the full suspend/mark/sweep/resume sequence for one epoch.
func (c *Collector) performFullGC(epoch uint64) {
	handle := c.newGCHandle(epoch)

	c.setMarkingRequested(epoch)
	didSuspend := c.cfg.Suspension.RequestThreadsSuspension()
	invariant(didSuspend, "only the GC thread may request suspension")
	handle.suspensionRequested()

	c.waitForThreadsReadyToMark()
	handle.threadsAreSuspended()
	c.lastMarkStats = MarkStats{}

	c.cfg.Scheduler.OnPerformFullGC()

	c.epochs.start(epoch)

	c.collectRootSetAndStartMarking(handle)

	markStats := Mark(c.traits, &c.markQueue)
	c.mergeMarkStats(markStats)

	c.cfg.Suspension.WaitForThreadsSuspension()

	handle.heapUsageBefore(c.cfg.Objects.ObjectsCount(), c.cfg.Objects.TotalSize())
	handle.extraObjectsUsageBefore(c.cfg.ExtraObjects.ObjectsCount(), c.cfg.ExtraObjects.TotalSize())
	c.cfg.Scheduler.UpdateAliveSetBytes(c.lastMarkStats.AliveHeapSetBytes)

	SweepExtraObjects(c.traits, c.cfg.ExtraObjects)

	objects, unlockObjects := c.cfg.Objects.LockForIter()
	handle.heapUsageAfter(c.lastMarkStats.AliveHeapSet, c.lastMarkStats.AliveHeapSetBytes)
	handle.extraObjectsUsageAfter(c.cfg.ExtraObjects.ObjectsCount(), c.cfg.ExtraObjects.TotalSize())

	c.cfg.Suspension.ResumeThreads()
	handle.threadsAreResumed()

	finalizerQueue := sweepIter(c.traits, c.cfg.Objects, objects, unlockObjects)

	c.epochs.finish(epoch)
	handle.finalizersScheduled(uint64(len(finalizerQueue)))
	handle.finish()

	c.cfg.FinalizerWork.Schedule(context.Background(), finalizerQueue, epoch, func(doneEpoch uint64) {
		existingGCHandle(doneEpoch, c.stats(), c.logger, c.cfg.Clock).finalizersDone()
		c.epochs.finalizedDone(doneEpoch)
	})
}

func (c *Collector) mergeMarkStats(stats MarkStats) {
	c.markingMu.Lock()
	defer c.markingMu.Unlock()
	c.lastMarkStats.Merge(stats)
}
