package gc

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestScheduleCoalescesConcurrentCallers(t *testing.T) {
	s := newEpochState()
	const n = 10
	epochs := make([]uint64, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			epochs[i] = s.schedule()
		}(i)
	}
	wg.Wait()
	for _, e := range epochs {
		if e != epochs[0] {
			t.Fatalf("expected every concurrent schedule() to coalesce onto one epoch, got %v", epochs)
		}
	}

	epoch, ok := s.waitScheduled()
	if !ok || epoch != epochs[0] {
		t.Fatalf("waitScheduled() = (%d, %v), want (%d, true)", epoch, ok, epochs[0])
	}

	next := s.schedule()
	if next == epoch {
		t.Fatal("schedule() after the pending epoch was claimed must allocate a new one")
	}
}

func TestWaitScheduledReturnsFalseOnShutdown(t *testing.T) {
	s := newEpochState()
	done := make(chan struct{})
	go func() {
		_, ok := s.waitScheduled()
		if ok {
			t.Error("waitScheduled() after shutdown with nothing pending must return ok=false")
		}
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	s.shutdown()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waitScheduled() did not wake up on shutdown")
	}
}

func TestWaitEpochFinishedMonotonicity(t *testing.T) {
	s := newEpochState()
	e1 := s.schedule()
	s.start(e1)
	s.finish(e1)

	e3 := s.schedule()
	if e3 <= e1 {
		t.Fatalf("epoch numbers must be strictly increasing, got e1=%d e3=%d", e1, e3)
	}
	s.start(e3)

	if err := s.waitEpochFinished(context.Background(), e1); err != nil {
		t.Fatalf("waitEpochFinished(e1) after finish(e1): %v", err)
	}
	s.finish(e3)
	if err := s.waitEpochFinished(context.Background(), e3); err != nil {
		t.Fatalf("waitEpochFinished(e3): %v", err)
	}
}

func TestWaitEpochFinishedRespectsContextCancellation(t *testing.T) {
	s := newEpochState()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.waitEpochFinished(ctx, 1)
	if err == nil {
		t.Fatal("expected waitEpochFinished to return an error when the epoch never finishes and ctx expires")
	}
}
