package gc

import (
	"log/slog"
	"sync"
)

// MemoryUsage is one named pool's object count and total byte size,
// reported for the "heap" and "meta" (extra-object) pools.
type MemoryUsage struct {
	ObjectsCount    uint64
	TotalObjectSize uint64
}

// GCInfo is the per-epoch record described here: start/end wall
// clock, pause start/end, finalizers-done time, root-set counts, and
// memory usage before/after for both the heap and meta (extra-object)
// pools. Optional fields are nil until the corresponding milestone runs.
type GCInfo struct {
	Epoch              uint64
	StartTime          *int64
	EndTime            *int64
	PauseStartTime     *int64
	PauseEndTime       *int64
	FinalizersDoneTime *int64
	RootSet            *RootSetStatistics
	HeapBefore         *MemoryUsage
	HeapAfter          *MemoryUsage
	MetaBefore         *MemoryUsage
	MetaAfter          *MemoryUsage
}

// statsStore holds the "last completed" and "current in-flight" GCInfo
// records, queried externally by id (0 = last, 1 = current). A
// self-marking mutator may take this lock while fully runnable, so every
// critical section here stays short enough to never stall a collection.
type statsStore struct {
	mu      sync.Mutex
	last    *GCInfo
	current *GCInfo
}

func (s *statsStore) byEpoch(epoch uint64) *GCInfo {
	if s.current != nil && s.current.Epoch == epoch {
		return s.current
	}
	if s.last != nil && s.last.Epoch == epoch {
		return s.last
	}
	return nil
}

// GCHandle is a lightweight, copyable per-epoch reference into the
// Collector's stats store, scoped to exactly one epoch's record.
type GCHandle struct {
	epoch  uint64
	stats  *statsStore
	logger *slog.Logger
	clock  Clock
}

func (c *Collector) newGCHandle(epoch uint64) *GCHandle {
	h := &GCHandle{epoch: epoch, stats: c.stats(), logger: c.logger, clock: c.cfg.Clock}
	logger, clock := h.logger, h.clock
	h.stats.mu.Lock()
	start := clock.NowNanos()
	h.stats.current = &GCInfo{Epoch: epoch, StartTime: &start}
	prev := h.stats.last
	h.stats.mu.Unlock()

	if prev != nil && prev.EndTime != nil {
		logger.Info("started", "epoch", epoch, "since_last_us", (start-*prev.EndTime)/1000)
	} else {
		logger.Info("started", "epoch", epoch)
	}
	return h
}

// existingGCHandle references an epoch's stats without creating a new
// current record; used by the cooperative-mark path and the finalizer-done
// callback, which both run against an epoch that newGCHandle already
// opened.
func existingGCHandle(epoch uint64, stats *statsStore, logger *slog.Logger, clock Clock) *GCHandle {
	return &GCHandle{epoch: epoch, stats: stats, logger: logger, clock: clock}
}

func (h *GCHandle) finish() {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	stat := h.stats.byEpoch(h.epoch)
	if stat == nil {
		return
	}
	now := h.clock.NowNanos()
	stat.EndTime = &now
	if stat.StartTime != nil {
		cur := h.stats.current
		// Deliberately preserved bug: the elapsed-time log always reads
		// the *current* record, even when `stat` resolved to the
		// already-demoted `last` record below, so this can report stale
		// data across a finish/demote boundary. See DESIGN.md "Open
		// Questions".
		if cur != nil && cur.EndTime != nil && cur.StartTime != nil {
			h.logger.Info("finished", "epoch", h.epoch, "elapsed_us", (*cur.EndTime-*cur.StartTime)/1000)
		}
	}
	if stat == h.stats.current {
		h.stats.last = h.stats.current
		h.stats.current = nil
	}
}

func (h *GCHandle) suspensionRequested() {
	h.stats.mu.Lock()
	now := h.clock.NowNanos()
	if stat := h.stats.byEpoch(h.epoch); stat != nil {
		stat.PauseStartTime = &now
	}
	h.stats.mu.Unlock()
	h.logger.Debug("requested thread suspension", "epoch", h.epoch)
}

func (h *GCHandle) threadsAreSuspended() {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	stat := h.stats.byEpoch(h.epoch)
	if stat == nil || stat.PauseStartTime == nil {
		return
	}
	now := h.clock.NowNanos()
	h.logger.Debug("suspended all threads", "epoch", h.epoch, "elapsed_us", (now-*stat.PauseStartTime)/1000)
}

func (h *GCHandle) threadsAreResumed() {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	stat := h.stats.byEpoch(h.epoch)
	if stat == nil {
		return
	}
	now := h.clock.NowNanos()
	stat.PauseEndTime = &now
	if stat.PauseStartTime != nil {
		h.logger.Info("resumed all threads", "epoch", h.epoch, "pause_us", (now-*stat.PauseStartTime)/1000)
	}
}

func (h *GCHandle) finalizersDone() {
	h.stats.mu.Lock()
	stat := h.stats.byEpoch(h.epoch)
	now := h.clock.NowNanos()
	var sinceEnd *int64
	if stat != nil {
		stat.FinalizersDoneTime = &now
		if stat.EndTime != nil {
			d := (now - *stat.EndTime) / 1000
			sinceEnd = &d
		}
	}
	h.stats.mu.Unlock()

	if sinceEnd != nil {
		h.logger.Info("finalization done", "epoch", h.epoch, "since_epoch_end_us", *sinceEnd)
	} else {
		h.logger.Info("finalization done", "epoch", h.epoch)
	}
}

func (h *GCHandle) finalizersScheduled(count uint64) {
	h.logger.Info("finalization scheduled", "epoch", h.epoch, "count", count)
}

func (h *GCHandle) threadRootSet(threadID int64, threadLocalReferences, stackReferences int64) {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	stat := h.stats.byEpoch(h.epoch)
	if stat == nil {
		return
	}
	if stat.RootSet == nil {
		stat.RootSet = &RootSetStatistics{}
	}
	stat.RootSet.addThread(threadLocalReferences, stackReferences)
	h.logger.Debug("collected thread root set", "epoch", h.epoch, "thread", threadID,
		"stack", stackReferences, "tls", threadLocalReferences, "total", stat.RootSet.Total())
}

func (h *GCHandle) globalRootSet(globalReferences, stableReferences int64) {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	stat := h.stats.byEpoch(h.epoch)
	if stat == nil {
		return
	}
	if stat.RootSet == nil {
		stat.RootSet = &RootSetStatistics{}
	}
	stat.RootSet.addGlobal(globalReferences, stableReferences)
	h.logger.Debug("collected global root set", "epoch", h.epoch,
		"global", globalReferences, "stable", stableReferences, "total", stat.RootSet.Total())
}

func (h *GCHandle) heapUsageBefore(objectsCount, totalSize uint64) {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	if stat := h.stats.byEpoch(h.epoch); stat != nil {
		stat.HeapBefore = &MemoryUsage{ObjectsCount: objectsCount, TotalObjectSize: totalSize}
	}
}

func (h *GCHandle) heapUsageAfter(objectsCount, totalSize uint64) {
	h.stats.mu.Lock()
	stat := h.stats.byEpoch(h.epoch)
	if stat == nil {
		h.stats.mu.Unlock()
		return
	}
	stat.HeapAfter = &MemoryUsage{ObjectsCount: objectsCount, TotalObjectSize: totalSize}
	before := stat.HeapBefore
	h.stats.mu.Unlock()

	if before != nil {
		h.logger.Info("collected heap objects", "epoch", h.epoch,
			"count", before.ObjectsCount-objectsCount, "bytes", before.TotalObjectSize-totalSize)
	}
	h.logger.Info("heap objects still alive", "epoch", h.epoch, "count", objectsCount, "bytes", totalSize)
}

func (h *GCHandle) extraObjectsUsageBefore(objectsCount, totalSize uint64) {
	h.stats.mu.Lock()
	defer h.stats.mu.Unlock()
	if stat := h.stats.byEpoch(h.epoch); stat != nil {
		stat.MetaBefore = &MemoryUsage{ObjectsCount: objectsCount, TotalObjectSize: totalSize}
	}
}

func (h *GCHandle) extraObjectsUsageAfter(objectsCount, totalSize uint64) {
	h.stats.mu.Lock()
	stat := h.stats.byEpoch(h.epoch)
	if stat == nil {
		h.stats.mu.Unlock()
		return
	}
	stat.MetaAfter = &MemoryUsage{ObjectsCount: objectsCount, TotalObjectSize: totalSize}
	before := stat.MetaBefore
	h.stats.mu.Unlock()

	if before != nil {
		h.logger.Info("collected meta objects", "epoch", h.epoch,
			"count", before.ObjectsCount-objectsCount, "bytes", before.TotalObjectSize-totalSize)
	}
	h.logger.Info("meta objects still alive", "epoch", h.epoch, "count", objectsCount, "bytes", totalSize)
}

// StatsBuilder is the opaque builder collaborator for a stats query: the
// fill function copies the chosen GCInfo under the stats lock, then
// invokes these setters outside the lock.
type StatsBuilder interface {
	SetEpoch(epoch uint64)
	SetStartTime(v int64)
	SetEndTime(v int64)
	SetPauseStartTime(v int64)
	SetPauseEndTime(v int64)
	SetFinalizersDoneTime(v int64)
	SetRootSet(threadLocal, stack, global, stable int64)
	SetMemoryUsageBefore(pool string, objectsCount, totalSize uint64)
	SetMemoryUsageAfter(pool string, objectsCount, totalSize uint64)
}

// FillStats is the stats query entry point: id 0 selects the last
// completed epoch, id 1 the current in-flight one. It copies the record
// under the stats lock and invokes builder setters outside it, since the
// builder may do arbitrary work.
func (c *Collector) FillStats(id int, builder StatsBuilder) {
	store := c.stats()
	store.mu.Lock()
	var copy GCInfo
	switch id {
	case 0:
		if store.last == nil {
			store.mu.Unlock()
			return
		}
		copy = *store.last
	case 1:
		if store.current == nil {
			store.mu.Unlock()
			return
		}
		copy = *store.current
	default:
		store.mu.Unlock()
		return
	}
	store.mu.Unlock()

	copy.build(builder)
}

func (info *GCInfo) build(b StatsBuilder) {
	if info.Epoch == 0 {
		return
	}
	b.SetEpoch(info.Epoch)
	if info.StartTime != nil {
		b.SetStartTime(*info.StartTime)
	}
	if info.EndTime != nil {
		b.SetEndTime(*info.EndTime)
	}
	if info.PauseStartTime != nil {
		b.SetPauseStartTime(*info.PauseStartTime)
	}
	if info.PauseEndTime != nil {
		b.SetPauseEndTime(*info.PauseEndTime)
	}
	if info.FinalizersDoneTime != nil {
		b.SetFinalizersDoneTime(*info.FinalizersDoneTime)
	}
	if info.RootSet != nil {
		b.SetRootSet(info.RootSet.ThreadLocalReferences, info.RootSet.StackReferences, info.RootSet.GlobalReferences, info.RootSet.StableReferences)
	}
	if info.HeapBefore != nil {
		b.SetMemoryUsageBefore("heap", info.HeapBefore.ObjectsCount, info.HeapBefore.TotalObjectSize)
	}
	if info.MetaBefore != nil {
		b.SetMemoryUsageBefore("meta", info.MetaBefore.ObjectsCount, info.MetaBefore.TotalObjectSize)
	}
	if info.HeapAfter != nil {
		b.SetMemoryUsageAfter("heap", info.HeapAfter.ObjectsCount, info.HeapAfter.TotalObjectSize)
	}
	if info.MetaAfter != nil {
		b.SetMemoryUsageAfter("meta", info.MetaAfter.ObjectsCount, info.MetaAfter.TotalObjectSize)
	}
}
