package heapsim

import "sync/atomic"

// Scheduler is a no-op Scheduler that only records the calls it receives,
// for test assertions; it never itself requests a collection.
type Scheduler struct {
	safePointCalls atomic.Int64
	fullGCCalls    atomic.Int64
	aliveSetBytes  atomic.Uint64
}

func NewScheduler() *Scheduler { return &Scheduler{} }

func (s *Scheduler) OnSafePointAllocation(size uintptr) { s.safePointCalls.Add(1) }
func (s *Scheduler) OnPerformFullGC()                   { s.fullGCCalls.Add(1) }
func (s *Scheduler) UpdateAliveSetBytes(bytes uint64)   { s.aliveSetBytes.Store(bytes) }

func (s *Scheduler) FullGCCalls() int64    { return s.fullGCCalls.Load() }
func (s *Scheduler) AliveSetBytes() uint64 { return s.aliveSetBytes.Load() }
