package heapsim

import (
	"sync"

	"github.com/obask/stwgc/gc"
)

// Globals is the reference GlobalRootSetFunc provider plus the
// StableRefRegistry collaborator: a fixed set of global objects and a set
// of stable (externally pinned) references, both mutex-guarded.
type Globals struct {
	mu      sync.Mutex
	globals []*Obj
	stable  []*Obj
}

func NewGlobals() *Globals { return &Globals{} }

// SetGlobals replaces the simulated global root objects.
func (g *Globals) SetGlobals(objs ...*Obj) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.globals = append([]*Obj(nil), objs...)
}

// Pin adds obj to the stable-reference set, simulating an external
// (e.g. foreign-function) handle that must keep it alive.
func (g *Globals) Pin(obj *Obj) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stable = append(g.stable, obj)
}

// Unpin removes obj from the stable-reference set.
func (g *Globals) Unpin(obj *Obj) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, o := range g.stable {
		if o == obj {
			g.stable = append(g.stable[:i], g.stable[i+1:]...)
			return
		}
	}
}

func (g *Globals) ProcessDeletions() {}

// RootSetFunc returns the gc.GlobalRootSetFunc closing over this Globals.
func (g *Globals) RootSetFunc() gc.GlobalRootSetFunc {
	return func() []gc.RootRef {
		g.mu.Lock()
		defer g.mu.Unlock()
		refs := make([]gc.RootRef, 0, len(g.globals)+len(g.stable))
		for _, o := range g.globals {
			refs = append(refs, gc.RootRef{Object: o, Source: gc.SourceGlobal})
		}
		for _, o := range g.stable {
			refs = append(refs, gc.RootRef{Object: o, Source: gc.SourceStable})
		}
		return refs
	}
}
