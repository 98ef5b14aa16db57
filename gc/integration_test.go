package gc_test

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/obask/stwgc/gc"
	"github.com/obask/stwgc/internal/heapsim"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// harness bundles one Collector with its heapsim collaborators and a
// background safepoint poller per mutator that parks it whenever
// suspension is requested, so every collection (not only the first) finds
// its mutators suspended; in MarkOwnStack runs the poller also takes the
// cooperative-mark path.
type harness struct {
	factory      *heapsim.Factory
	extraFactory *heapsim.ExtraFactory
	registry     *heapsim.Registry
	suspension   *heapsim.Suspension
	globals      *heapsim.Globals
	scheduler    *heapsim.Scheduler
	finalizers   *heapsim.FinalizerWorker
	clock        *heapsim.Clock
	collector    *gc.Collector

	stopPollers context.CancelFunc
	pollersDone sync.WaitGroup
}

func newHarness(t *testing.T, behavior gc.MarkingBehavior, mutators ...*heapsim.Mutator) *harness {
	t.Helper()
	h := &harness{
		factory:      heapsim.NewFactory(),
		extraFactory: heapsim.NewExtraFactory(),
		registry:     heapsim.NewRegistry(mutators...),
		globals:      heapsim.NewGlobals(),
		scheduler:    heapsim.NewScheduler(),
		finalizers:   heapsim.NewFinalizerWorker(),
		clock:        heapsim.NewClock(1),
	}
	h.suspension = heapsim.NewSuspension(h.registry)

	cfg := gc.Config{
		Objects:         h.factory,
		ExtraObjects:    h.extraFactory,
		Mutators:        h.registry,
		Suspension:      h.suspension,
		StableRefs:      h.globals,
		GlobalRootSet:   h.globals.RootSetFunc(),
		Scheduler:       h.scheduler,
		FinalizerWork:   h.finalizers,
		Clock:           h.clock,
		MarkingBehavior: behavior,
	}
	h.collector = gc.New(cfg, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	h.stopPollers = cancel
	for _, m := range mutators {
		h.pollersDone.Add(1)
		go h.safepointPoller(ctx, m)
	}

	h.collector.Start()
	h.finalizers.StartIfNeeded()
	t.Cleanup(func() {
		h.stopPollers()
		h.pollersDone.Wait()
		h.finalizers.StopIfRunning()
		h.collector.Shutdown()
	})
	return h
}

// safepointPoller simulates a mutator thread reaching its allocation
// safepoint shortly after suspension is requested: it enters the
// cooperative-mark protocol (a no-op under DoNotMark), then parks until
// resumed. ResumeThreads clears the suspended flag, so a cleared flag also
// ends the park even if the next request has already been raised.
func (h *harness) safepointPoller(ctx context.Context, m *heapsim.Mutator) {
	defer h.pollersDone.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if h.suspension.Requested() {
			h.collector.OnSuspendForGC(m)
			m.SetSuspended(true)
			for h.suspension.Requested() && m.Suspended() {
				select {
				case <-ctx.Done():
					return
				default:
					runtime.Gosched()
				}
			}
			m.SetSuspended(false)
		}
		runtime.Gosched()
	}
}

func (h *harness) gc(t *testing.T) {
	t.Helper()
	if err := h.gcErr(); err != nil {
		t.Fatalf("ScheduleAndWaitFullGC: %v", err)
	}
}

func (h *harness) gcErr() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.collector.ScheduleAndWaitFullGC(ctx)
}

func (h *harness) gcWithFinalizers(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.collector.ScheduleAndWaitFullGCWithFinalizers(ctx); err != nil {
		t.Fatalf("ScheduleAndWaitFullGCWithFinalizers: %v", err)
	}
}

func TestSimpleCycleIsCollected(t *testing.T) {
	m := heapsim.NewMutator(1)
	h := newHarness(t, gc.DoNotMark, m)

	a := h.factory.Alloc(heapsim.NewObj("A", 1))
	b := h.factory.Alloc(heapsim.NewObj("B", 1))
	c := h.factory.Alloc(heapsim.NewObj("C", 1))
	a.SetFields(b)
	b.SetFields(c)
	c.SetFields(a)

	before := h.factory.ObjectsCount()
	h.gc(t)

	if h.factory.Live(a) || h.factory.Live(b) || h.factory.Live(c) {
		t.Fatal("an unrooted cycle must be collected")
	}
	after := h.factory.ObjectsCount()
	if before-after != 3 {
		t.Fatalf("heap count decreased by %d, want 3", before-after)
	}
}

func TestLiveRootKeepsChain(t *testing.T) {
	m := heapsim.NewMutator(1)
	h := newHarness(t, gc.DoNotMark, m)

	a := h.factory.Alloc(heapsim.NewObj("A", 1))
	b := h.factory.Alloc(heapsim.NewObj("B", 1))
	c := h.factory.Alloc(heapsim.NewObj("C", 1))
	root := h.factory.Alloc(heapsim.NewObj("R", 1))
	root.SetFields(a)
	a.SetFields(b)
	b.SetFields(c)
	m.SetStack(root)

	h.gc(t)

	for name, o := range map[string]*heapsim.Obj{"root": root, "a": a, "b": b, "c": c} {
		if !h.factory.Live(o) {
			t.Fatalf("%s must survive while reachable from a live root", name)
		}
	}
}

func TestWeakCounterFollowsObject(t *testing.T) {
	m := heapsim.NewMutator(1)
	h := newHarness(t, gc.DoNotMark, m)

	x := h.factory.Alloc(heapsim.NewObj("X", 1))
	w := h.factory.Alloc(heapsim.NewObj("W", 1))
	extra := x.AttachExtra()
	extra.SetWeakCounter(w)
	h.extraFactory.Install(extra)
	m.SetStack(x)

	h.gc(t)
	if !h.factory.Live(x) || !h.factory.Live(w) {
		t.Fatal("X and its weak counter must both survive while X is rooted")
	}

	m.SetStack()
	h.gc(t)
	if h.factory.Live(x) || h.factory.Live(w) {
		t.Fatal("dropping X's root must collect both X and its weak counter")
	}
}

func TestFinalizedBeforeReturn(t *testing.T) {
	m := heapsim.NewMutator(1)
	h := newHarness(t, gc.DoNotMark, m)

	obj := h.factory.Alloc(heapsim.NewObj("F", 1))
	obj.SetFinalizer(true)

	h.gcWithFinalizers(t)

	ran := h.finalizers.Ran()
	found := false
	for _, o := range ran {
		if o == gc.Object(obj) {
			found = true
		}
	}
	if !found {
		t.Fatal("finalizer must have run before ScheduleAndWaitFullGCWithFinalizers returns")
	}

	var gotEpoch uint64
	var hasFinalizedTime bool
	h.collector.FillStats(0, &captureBuilder{onFinalizersDoneTime: func(int64) { hasFinalizedTime = true }, onEpoch: func(e uint64) { gotEpoch = e }})
	if gotEpoch == 0 || !hasFinalizedTime {
		t.Fatal("GCInfo.finalizersDoneTime must be set for the last completed epoch")
	}
}

func TestConcurrentScheduleCoalescing(t *testing.T) {
	m := heapsim.NewMutator(1)
	h := newHarness(t, gc.DoNotMark, m)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			errs <- h.gcErr()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ScheduleAndWaitFullGC: %v", err)
		}
	}

	if calls := h.scheduler.FullGCCalls(); calls < 1 || calls > n {
		t.Fatalf("FullGCCalls = %d, want between 1 and %d", calls, n)
	}
}

func TestParallelMarkingMatchesSerial(t *testing.T) {
	build := func(f *heapsim.Factory, m *heapsim.Mutator) (*heapsim.Obj, *heapsim.Obj, *heapsim.Obj) {
		a := f.Alloc(heapsim.NewObj("A", 3))
		b := f.Alloc(heapsim.NewObj("B", 5))
		c := f.Alloc(heapsim.NewObj("C", 7))
		a.SetFields(b)
		b.SetFields(c)
		m.SetStack(a)
		return a, b, c
	}

	mSerial := heapsim.NewMutator(1)
	hSerial := newHarness(t, gc.DoNotMark, mSerial)
	build(hSerial.factory, mSerial)
	hSerial.gc(t)

	mParallel := heapsim.NewMutator(1)
	hParallel := newHarness(t, gc.MarkOwnStack, mParallel)
	build(hParallel.factory, mParallel)
	hParallel.gc(t)

	if hSerial.factory.ObjectsCount() != hParallel.factory.ObjectsCount() {
		t.Fatalf("surviving object count differs: serial=%d parallel=%d",
			hSerial.factory.ObjectsCount(), hParallel.factory.ObjectsCount())
	}
	if hSerial.factory.TotalSize() != hParallel.factory.TotalSize() {
		t.Fatalf("surviving byte total differs: serial=%d parallel=%d",
			hSerial.factory.TotalSize(), hParallel.factory.TotalSize())
	}
}

// captureBuilder is a minimal StatsBuilder that only records the fields
// these tests check.
type captureBuilder struct {
	onEpoch              func(uint64)
	onFinalizersDoneTime func(int64)
}

func (c *captureBuilder) SetEpoch(v uint64) {
	if c.onEpoch != nil {
		c.onEpoch(v)
	}
}
func (c *captureBuilder) SetStartTime(int64)      {}
func (c *captureBuilder) SetEndTime(int64)        {}
func (c *captureBuilder) SetPauseStartTime(int64) {}
func (c *captureBuilder) SetPauseEndTime(int64)   {}
func (c *captureBuilder) SetFinalizersDoneTime(v int64) {
	if c.onFinalizersDoneTime != nil {
		c.onFinalizersDoneTime(v)
	}
}
func (c *captureBuilder) SetRootSet(threadLocal, stack, global, stable int64)           {}
func (c *captureBuilder) SetMemoryUsageBefore(pool string, objectsCount, totalSize uint64) {}
func (c *captureBuilder) SetMemoryUsageAfter(pool string, objectsCount, totalSize uint64)  {}
