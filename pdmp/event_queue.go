package pdmp

import "container/heap"

// poissonEvent is a queued proposal of one factor at an absolute time.
type poissonEvent struct {
	factorID int
	time     float64
	accept   func() bool
	// valid is cleared when the factor is resimulated before the event pops.
	valid bool
	seq   uint64
}

func (e *poissonEvent) accepted() bool {
	return e.accept == nil || e.accept()
}

// eventQueue implements heap.Interface with deterministic ordering:
// time, then factor id, then push sequence.
type eventQueue []*poissonEvent

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].time != q[j].time {
		return q[i].time < q[j].time
	}
	if q[i].factorID != q[j].factorID {
		return q[i].factorID < q[j].factorID
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) {
	*q = append(*q, x.(*poissonEvent))
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[0 : n-1]
	return item
}

func (q *eventQueue) schedule(e *poissonEvent) {
	heap.Push(q, e)
}

func (q *eventQueue) popNext() *poissonEvent {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*poissonEvent)
}
