package heapsim

import (
	"sync"
	"sync/atomic"

	"github.com/obask/stwgc/gc"
)

// Mutator is the reference MutatorHandle: a simulated application thread
// with a fixed stack of root references and the three atomic flags the
// suspension protocol reads and writes.
type Mutator struct {
	id int64

	mu    sync.Mutex
	stack []*Obj
	tls   []*Obj

	suspended atomic.Bool
	native    atomic.Bool
	marking   atomic.Bool
}

// NewMutator creates a mutator with the given stable identity.
func NewMutator(id int64) *Mutator {
	return &Mutator{id: id}
}

func (m *Mutator) ID() int64 { return m.id }

// SetStack replaces the mutator's simulated stack roots.
func (m *Mutator) SetStack(objs ...*Obj) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stack = append([]*Obj(nil), objs...)
}

// SetTLS replaces the mutator's simulated thread-local-storage roots.
func (m *Mutator) SetTLS(objs ...*Obj) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tls = append([]*Obj(nil), objs...)
}

func (m *Mutator) Publish() {}

func (m *Mutator) ThreadRootSet() []gc.RootRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := make([]gc.RootRef, 0, len(m.stack)+len(m.tls))
	for _, o := range m.stack {
		refs = append(refs, gc.RootRef{Object: o, Source: gc.SourceStack})
	}
	for _, o := range m.tls {
		refs = append(refs, gc.RootRef{Object: o, Source: gc.SourceTLS})
	}
	return refs
}

func (m *Mutator) Suspended() bool   { return m.suspended.Load() }
func (m *Mutator) Native() bool      { return m.native.Load() }
func (m *Mutator) Marking() bool     { return m.marking.Load() }
func (m *Mutator) SetMarking(v bool) { m.marking.Store(v) }

// SetSuspended lets the test harness (or a real suspension primitive)
// report that this mutator has fully parked.
func (m *Mutator) SetSuspended(v bool) { m.suspended.Store(v) }

// SetNative marks the mutator as executing unmanaged code, exempting it
// from the ready-to-mark wait.
func (m *Mutator) SetNative(v bool) { m.native.Store(v) }

// Registry is the reference MutatorRegistry: a fixed slice of mutators
// guarded by a mutex, standing in for a real thread registry.
type Registry struct {
	mu       sync.Mutex
	mutators []*Mutator
}

func NewRegistry(mutators ...*Mutator) *Registry {
	return &Registry{mutators: mutators}
}

func (r *Registry) LockForIter() ([]gc.MutatorHandle, func()) {
	r.mu.Lock()
	out := make([]gc.MutatorHandle, len(r.mutators))
	for i, m := range r.mutators {
		out[i] = m
	}
	return out, r.mu.Unlock
}

// All returns the registry's concrete Mutator values, for the test
// harness to drive suspend/resume directly.
func (r *Registry) All() []*Mutator {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Mutator(nil), r.mutators...)
}
