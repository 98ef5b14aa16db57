package gc

import "testing"

// fakeMutator is a minimal MutatorHandle used only to exercise the
// GC-thread-driven marking fan-out, without a full mutator simulation.
type fakeMutator struct {
	id      int64
	roots   []*fakeObj
	marking bool
}

func (m *fakeMutator) ID() int64               { return m.id }
func (m *fakeMutator) Publish()                {}
func (m *fakeMutator) Suspended() bool         { return true }
func (m *fakeMutator) Native() bool            { return false }
func (m *fakeMutator) Marking() bool           { return m.marking }
func (m *fakeMutator) SetMarking(v bool)       { m.marking = v }
func (m *fakeMutator) ThreadRootSet() []RootRef {
	refs := make([]RootRef, len(m.roots))
	for i, r := range m.roots {
		refs[i] = RootRef{Object: r, Source: SourceStack}
	}
	return refs
}

type fakeClock struct{}

func (fakeClock) NowNanos() int64  { return 1 }
func (fakeClock) NowMicros() int64 { return 1 }

func TestMarkMutatorsInParallelMarksEveryMutatorsRoots(t *testing.T) {
	c := New(Config{Clock: fakeClock{}, MarkingBehavior: MarkOwnStack}, nil)
	c.newGCHandle(1)
	c.setMarkingRequested(1)
	// Simulate collectRootSetAndStartMarking's release: global roots are
	// already collected and self-marking mutators are cleared to proceed.
	c.markingMu.Lock()
	c.markingRequested = false
	c.markingMu.Unlock()

	a := &fakeObj{heap: true}
	b := &fakeObj{heap: true}
	mutators := []MutatorHandle{
		&fakeMutator{id: 1, roots: []*fakeObj{a}},
		&fakeMutator{id: 2, roots: []*fakeObj{b}},
	}

	if err := c.MarkMutatorsInParallel(mutators); err != nil {
		t.Fatalf("MarkMutatorsInParallel: %v", err)
	}
	if a.data.Color() != Black {
		t.Error("mutator 1's rooted object must be marked Black")
	}
	if b.data.Color() != Black {
		t.Error("mutator 2's rooted object must be marked Black")
	}
	for _, m := range mutators {
		if m.(*fakeMutator).marking {
			t.Errorf("mutator %d must have lowered its marking flag when done", m.ID())
		}
	}
}
