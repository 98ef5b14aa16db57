package heapsim

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/obask/stwgc/gc"
)

type finalizerJob struct {
	queue []gc.Object
	epoch uint64
	done  func(uint64)
}

// FinalizerWorker is the reference FinalizerWorker: a single background
// goroutine draining a channel of scheduled finalizer queues, standing in
// for a dedicated finalizer thread.
type FinalizerWorker struct {
	running atomic.Bool
	jobs    chan finalizerJob
	stop    chan struct{}
	wg      sync.WaitGroup

	mu  sync.Mutex
	ran []gc.Object
}

func NewFinalizerWorker() *FinalizerWorker {
	return &FinalizerWorker{}
}

func (f *FinalizerWorker) StartIfNeeded() {
	if !f.running.CompareAndSwap(false, true) {
		return
	}
	f.jobs = make(chan finalizerJob, 16)
	f.stop = make(chan struct{})
	f.wg.Add(1)
	go f.loop()
}

func (f *FinalizerWorker) loop() {
	defer f.wg.Done()
	for {
		select {
		case job := <-f.jobs:
			f.run(job)
		case <-f.stop:
			return
		}
	}
}

func (f *FinalizerWorker) run(job finalizerJob) {
	f.mu.Lock()
	f.ran = append(f.ran, job.queue...)
	f.mu.Unlock()
	if job.done != nil {
		job.done(job.epoch)
	}
}

func (f *FinalizerWorker) StopIfRunning() {
	if !f.running.CompareAndSwap(true, false) {
		return
	}
	close(f.stop)
	f.wg.Wait()
}

func (f *FinalizerWorker) IsRunning() bool { return f.running.Load() }

// Schedule hands the queue to the background worker if it is running,
// otherwise it runs the job inline so a caller that never started the
// worker still observes its finalizers.
func (f *FinalizerWorker) Schedule(ctx context.Context, queue []gc.Object, epoch uint64, done func(uint64)) {
	job := finalizerJob{queue: queue, epoch: epoch, done: done}
	if f.running.Load() {
		select {
		case f.jobs <- job:
			return
		case <-ctx.Done():
		}
	}
	f.run(job)
}

// Ran returns every object the worker has finalized so far, for test
// assertions.
func (f *FinalizerWorker) Ran() []gc.Object {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gc.Object(nil), f.ran...)
}
