// Package heapsim is an in-memory reference heap used to exercise the gc
// package end to end: plain Go slices and maps standing in for an
// embedding runtime's object factory, thread registry, and suspension
// primitive.
package heapsim

import (
	"sync"

	"github.com/obask/stwgc/gc"
)

// Obj is a heap-simulated object: a name (for test diagnostics), a list of
// outgoing field references, an optional finalizer flag, and the
// AtomicColor slot every collected object must carry.
type Obj struct {
	Name       string
	Size       uint64
	finalizer  bool
	permanent  bool
	local      bool
	color      gc.AtomicColor
	mu         sync.Mutex
	fields     []*Obj
	extra      *Extra
}

// NewObj creates a heap object with no fields and no finalizer.
func NewObj(name string, size uint64) *Obj {
	return &Obj{Name: name, Size: size}
}

// NewPermanent creates a non-heap (immortal) object, e.g. a class literal
// or global constant, which is never swept but whose fields are still
// traversed for roots.
func NewPermanent(name string) *Obj {
	return &Obj{Name: name, permanent: true}
}

// NewStackLocal creates a non-heap, stack-resident object: traversed for
// roots but never itself colored or swept.
func NewStackLocal(name string) *Obj {
	return &Obj{Name: name, local: true}
}

func (o *Obj) Heap() bool         { return !o.permanent && !o.local }
func (o *Obj) Permanent() bool    { return o.permanent }
func (o *Obj) Local() bool        { return o.local }
func (o *Obj) HasFinalizer() bool { return o.finalizer }
func (o *Obj) AllocatedSize() uint64 {
	if o.Size == 0 {
		return 1
	}
	return o.Size
}

// SetFinalizer marks the object as carrying a finalizer; the sweep moves
// such objects to the finalizer queue instead of erasing them outright.
func (o *Obj) SetFinalizer(v bool) { o.finalizer = v }

// SetFields replaces the object's outgoing references, simulating a
// mutator storing new pointers into the object's fields.
func (o *Obj) SetFields(fields ...*Obj) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fields = append([]*Obj(nil), fields...)
}

func (o *Obj) VisitFields(fn func(gc.Object)) {
	o.mu.Lock()
	fields := append([]*Obj(nil), o.fields...)
	o.mu.Unlock()
	for _, f := range fields {
		if f == nil {
			fn(nil)
			continue
		}
		fn(f)
	}
}

func (o *Obj) Data() *gc.AtomicColor { return &o.color }

func (o *Obj) ExtraData() gc.ExtraObject {
	if o.extra == nil {
		return nil
	}
	return o.extra
}

// AttachExtra installs an Extra side record for this object, returning it.
func (o *Obj) AttachExtra() *Extra {
	o.extra = &Extra{base: o}
	return o.extra
}

// Extra is the heap-simulated ExtraObject: an optional weak counter, an
// optional associated native object, and the finalizer-queue flag.
type Extra struct {
	base           *Obj
	weakCounter    *Obj
	hasAssociated  bool
	inFinalizerQ   bool
	uninstalled    bool
}

func (e *Extra) WeakCounter() gc.Object {
	if e.weakCounter == nil {
		return nil
	}
	return e.weakCounter
}
func (e *Extra) SetWeakCounter(o *Obj)     { e.weakCounter = o }
func (e *Extra) ClearWeakCounter()         { e.weakCounter = nil }
func (e *Extra) HasAssociatedObject() bool { return e.hasAssociated }
func (e *Extra) SetAssociatedObject(v bool) { e.hasAssociated = v }
func (e *Extra) DetachAssociatedObject()   { e.hasAssociated = false }
func (e *Extra) InFinalizerQueue() bool    { return e.inFinalizerQ }
func (e *Extra) SetInFinalizerQueue(v bool) { e.inFinalizerQ = v }
func (e *Extra) Uninstall()                { e.uninstalled = true }
func (e *Extra) BaseObject() gc.Object      { return e.base }
func (e *Extra) Uninstalled() bool          { return e.uninstalled }
