package gc

// MarkQueue is an ordered sequence of gray objects, already colored Black
// on insert. Ordering is not semantically significant; this uses LIFO
// (append/pop from the tail) over a plain slice for locality, since the
// work list itself carries no ordering invariant.
type MarkQueue struct {
	items []Object
}

// defaultTraits is the package's sole MarkTraits/SweepTraits implementation.
// It is a stateless value type so the hot Mark drain loop never boxes it
// through an interface call more than a direct method dispatch requires.
type defaultTraits struct{}

func (defaultTraits) IsEmpty(q *MarkQueue) bool {
	return len(q.items) == 0
}

func (defaultTraits) Clear(q *MarkQueue) {
	q.items = q.items[:0]
}

func (defaultTraits) Enqueue(q *MarkQueue, obj Object) {
	if obj == nil {
		return
	}
	if !obj.Data().AtomicSetToBlack() {
		return
	}
	q.items = append(q.items, obj)
}

func (defaultTraits) Dequeue(q *MarkQueue) Object {
	n := len(q.items)
	if n == 0 {
		return nil
	}
	top := q.items[n-1]
	q.items = q.items[:n-1]
	return top
}

func (defaultTraits) IsMarkedByExtraObject(e ExtraObject) bool {
	base := e.BaseObject()
	if !base.Heap() {
		return true
	}
	return base.Data().Color() == Black
}

func (defaultTraits) TryResetMark(obj Object) bool {
	return obj.Data().ResetIfBlack()
}
