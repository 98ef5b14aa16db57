package gc

import (
	"context"
	"sync"
)

// epochState is the epoch state machine driving collection requests: a single monotonic
// counter plus four milestones per in-flight epoch (scheduled, started,
// finished, finalized). It uses a counter-and-broadcast discipline rather
// than edge-triggered events, so every wait is safe against spurious
// wakeups and lost signals.
type epochState struct {
	mu   sync.Mutex
	cond *sync.Cond

	nextEpoch uint64
	pending   bool
	scheduled uint64

	started    uint64
	finished   uint64
	finalized  uint64
	shutdownFl bool
}

func newEpochState() *epochState {
	s := &epochState{nextEpoch: 1}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// schedule allocates the next epoch if none is pending, or returns the
// already-pending one, coalescing concurrent callers onto one collection.
func (s *epochState) schedule() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		s.pending = true
		s.scheduled = s.nextEpoch
		s.nextEpoch++
		s.cond.Broadcast()
	}
	return s.scheduled
}

// waitScheduled blocks the GC thread until a scheduled epoch exists or
// shutdown is requested, returning (epoch, true) or (0, false).
func (s *epochState) waitScheduled() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.pending && !s.shutdownFl {
		s.cond.Wait()
	}
	if s.shutdownFl && !s.pending {
		return 0, false
	}
	s.pending = false
	return s.scheduled, true
}

func (s *epochState) start(epoch uint64) {
	s.mu.Lock()
	s.started = epoch
	if s.pending && s.scheduled <= epoch {
		// A started epoch is no longer pending: the next schedule() must
		// allocate a newer one rather than coalesce onto it.
		s.pending = false
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *epochState) finish(epoch uint64) {
	s.mu.Lock()
	s.finished = epoch
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *epochState) finalizedDone(epoch uint64) {
	s.mu.Lock()
	s.finalized = epoch
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *epochState) shutdown() {
	s.mu.Lock()
	s.shutdownFl = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// waitEpochFinished blocks until the given (or any later) epoch has
// finished sweep, or ctx is done. A nil ctx never cancels: the collection
// machinery itself is never cancelled, only a caller's willingness to
// keep blocking.
func (s *epochState) waitEpochFinished(ctx context.Context, epoch uint64) error {
	return s.waitFor(ctx, epoch, func() uint64 { return s.finished })
}

func (s *epochState) waitEpochFinalized(ctx context.Context, epoch uint64) error {
	return s.waitFor(ctx, epoch, func() uint64 { return s.finalized })
}

func (s *epochState) waitFor(ctx context.Context, epoch uint64, current func() uint64) error {
	if ctx != nil {
		stop := context.AfterFunc(ctx, func() {
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		})
		defer stop()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for current() < epoch {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		s.cond.Wait()
	}
	return nil
}
