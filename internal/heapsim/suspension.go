package heapsim

import (
	"runtime"
	"sync/atomic"
)

// Suspension is the reference stop-the-world primitive: a single
// requested flag plus a spin-wait on the registry's mutators. A real
// runtime would signal OS threads and block on their acknowledgment;
// this stands in with cooperative polling, since heapsim mutators are
// plain goroutines with no OS-level suspend mechanism.
type Suspension struct {
	registry  *Registry
	requested atomic.Bool
}

// NewSuspension creates a suspension primitive driving the given registry.
func NewSuspension(registry *Registry) *Suspension {
	return &Suspension{registry: registry}
}

func (s *Suspension) RequestThreadsSuspension() bool {
	s.requested.Store(true)
	return true
}

// Requested reports whether suspension is currently requested; the test
// harness polls this to simulate a mutator reaching a safepoint.
func (s *Suspension) Requested() bool { return s.requested.Load() }

func (s *Suspension) WaitForThreadsSuspension() {
	for {
		allSuspended := true
		for _, m := range s.registry.All() {
			if !m.Suspended() {
				allSuspended = false
				break
			}
		}
		if allSuspended {
			return
		}
		runtime.Gosched()
	}
}

func (s *Suspension) ResumeThreads() {
	s.requested.Store(false)
	for _, m := range s.registry.All() {
		m.SetSuspended(false)
	}
}

func (s *Suspension) SuspendIfRequested() {
	for s.requested.Load() {
		runtime.Gosched()
	}
}
