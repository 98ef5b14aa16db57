package heapsim

import (
	"sync"

	"github.com/obask/stwgc/gc"
)

// Factory is the reference ObjectFactory: a mutex-guarded set of live
// objects, standing in for an embedding runtime's heap allocator.
type Factory struct {
	mu      sync.Mutex
	objects map[*Obj]struct{}
}

// NewFactory creates an empty object factory.
func NewFactory() *Factory {
	return &Factory{objects: make(map[*Obj]struct{})}
}

// Alloc registers obj as live and returns it, simulating an allocation.
func (f *Factory) Alloc(obj *Obj) *Obj {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[obj] = struct{}{}
	return obj
}

func (f *Factory) LockForIter() ([]gc.Object, func()) {
	f.mu.Lock()
	out := make([]gc.Object, 0, len(f.objects))
	for o := range f.objects {
		out = append(out, o)
	}
	return out, f.mu.Unlock
}

func (f *Factory) ObjectsCount() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.objects))
}

func (f *Factory) TotalSize() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total uint64
	for o := range f.objects {
		total += o.AllocatedSize()
	}
	return total
}

// Erase is called by the sweep while it holds the lock taken by
// LockForIter, so it does not take that lock again.
func (f *Factory) Erase(obj gc.Object) {
	delete(f.objects, obj.(*Obj))
}

// Live reports whether obj is still registered, for test assertions.
func (f *Factory) Live(obj *Obj) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[obj]
	return ok
}

// ExtraFactory is the reference ExtraObjectFactory.
type ExtraFactory struct {
	mu     sync.Mutex
	extras map[*Extra]struct{}
}

func NewExtraFactory() *ExtraFactory {
	return &ExtraFactory{extras: make(map[*Extra]struct{})}
}

func (f *ExtraFactory) Install(e *Extra) *Extra {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extras[e] = struct{}{}
	return e
}

func (f *ExtraFactory) ProcessDeletions() {}

func (f *ExtraFactory) LockForIter() ([]gc.ExtraObject, func()) {
	f.mu.Lock()
	out := make([]gc.ExtraObject, 0, len(f.extras))
	for e := range f.extras {
		out = append(out, e)
	}
	return out, f.mu.Unlock
}

// Erase is called by the extra-object sweep while it holds the lock taken
// by LockForIter, so it does not take that lock again.
func (f *ExtraFactory) Erase(e gc.ExtraObject) {
	delete(f.extras, e.(*Extra))
}

func (f *ExtraFactory) ObjectsCount() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.extras))
}

func (f *ExtraFactory) TotalSize() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.extras))
}

// Live reports whether e is still installed, for test assertions.
func (f *ExtraFactory) Live(e *Extra) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.extras[e]
	return ok
}
