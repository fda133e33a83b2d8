// Package eventqueue provides a deterministic priority queue keyed by
// planned dispatch time, used by the invocation driver to serialize
// arrivals within a function (see Design Notes §9: "implementations
// without lightweight tasks should use a thread pool with a priority
// queue keyed by planned_start").
package eventqueue

import "container/heap"

// Item is anything dispatchable at a planned offset within the current
// minute. Seq breaks ties deterministically when two items share a
// PlannedOffsetNs (stable by insertion order).
type Item struct {
	PlannedOffsetNs int64
	Seq             uint64
	Value           any
}

// Queue is a min-heap over Item ordered by (PlannedOffsetNs, Seq).
type Queue struct {
	items []Item
	seq   uint64
}

// New creates an empty Queue.
func New() *Queue {
	q := &Queue{}
	heap.Init(q)
	return q
}

// Len implements heap.Interface.
func (q *Queue) Len() int { return len(q.items) }

// Less implements heap.Interface: earlier offset first, ties by sequence.
func (q *Queue) Less(i, j int) bool {
	if q.items[i].PlannedOffsetNs != q.items[j].PlannedOffsetNs {
		return q.items[i].PlannedOffsetNs < q.items[j].PlannedOffsetNs
	}
	return q.items[i].Seq < q.items[j].Seq
}

// Swap implements heap.Interface.
func (q *Queue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

// Push implements heap.Interface. Use Schedule, not this directly.
func (q *Queue) Push(x any) { q.items = append(q.items, x.(Item)) }

// Pop implements heap.Interface. Use Next, not this directly.
func (q *Queue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

// Schedule enqueues value at the given planned offset, assigning the next
// sequence number for tie-breaking.
func (q *Queue) Schedule(plannedOffsetNs int64, value any) {
	q.seq++
	heap.Push(q, Item{PlannedOffsetNs: plannedOffsetNs, Seq: q.seq, Value: value})
}

// Next pops and returns the earliest-scheduled item, or false if empty.
func (q *Queue) Next() (Item, bool) {
	if q.Len() == 0 {
		return Item{}, false
	}
	return heap.Pop(q).(Item), true
}

// Peek returns the earliest-scheduled item without removing it.
func (q *Queue) Peek() (Item, bool) {
	if q.Len() == 0 {
		return Item{}, false
	}
	return q.items[0], true
}
