package gc

import "testing"

func TestEnqueueRootObjectTraversesNonHeapRoot(t *testing.T) {
	leaf := &fakeObj{heap: true}
	stackFrame := &fakeObj{heap: false, fields: []*fakeObj{leaf, nil}}

	var traits defaultTraits
	var q MarkQueue
	enqueueRootObject(traits, &q, stackFrame)

	if stackFrame.data.Color() == Black {
		t.Fatal("a non-heap root must never itself be colored")
	}
	if leaf.data.Color() != Black {
		t.Fatal("a non-heap root's heap-resident fields must be enqueued")
	}
}

func TestEnqueueRootObjectHeapRootEnqueuedDirectly(t *testing.T) {
	obj := &fakeObj{heap: true}
	var traits defaultTraits
	var q MarkQueue
	enqueueRootObject(traits, &q, obj)
	if obj.data.Color() != Black {
		t.Fatal("a heap root must be enqueued (and thus colored) directly")
	}
}

func TestEnqueueRootObjectNilIsNoOp(t *testing.T) {
	var traits defaultTraits
	var q MarkQueue
	enqueueRootObject(traits, &q, nil)
	if !traits.IsEmpty(&q) {
		t.Fatal("enqueueRootObject(nil) must not push anything")
	}
}

func TestRootSetStatisticsTotalDoubleCountsStableReferences(t *testing.T) {
	var r RootSetStatistics
	r.addThread(2, 3)
	r.addGlobal(5, 7)
	// StableReferences is deliberately summed twice, so Total() is 7
	// higher than the four counts alone.
	want := r.ThreadLocalReferences + r.StackReferences + r.GlobalReferences + 2*r.StableReferences
	if got := r.Total(); got != want {
		t.Fatalf("Total() = %d, want %d (ThreadLocal=%d Stack=%d Global=%d Stable=%d)",
			got, want, r.ThreadLocalReferences, r.StackReferences, r.GlobalReferences, r.StableReferences)
	}
}
