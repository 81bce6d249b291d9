package sched

import "container/heap"

// deadlineItem pairs a thread with its current deadline entry in the heap.
type deadlineItem struct {
	thread *Thread
	params DeadlineParams
}

type deadlineHeap []*deadlineItem

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].params.Deadline < h[j].params.Deadline }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x interface{}) { *h = append(*h, x.(*deadlineItem)) }
func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// DeadlineQueue is a min-heap of SCHED_DEADLINE threads ordered by absolute
// deadline (earliest-deadline-first).
type DeadlineQueue struct {
	heap deadlineHeap
}

// NewDeadlineQueue creates an empty deadline queue.
func NewDeadlineQueue() *DeadlineQueue {
	return &DeadlineQueue{}
}

// Enqueue admits a thread with the given deadline parameters.
func (q *DeadlineQueue) Enqueue(t *Thread, params DeadlineParams) {
	t.Deadline = params
	heap.Push(&q.heap, &deadlineItem{thread: t, params: params})
}

// PickNext pops the thread with the earliest deadline.
func (q *DeadlineQueue) PickNext() *Thread {
	if q.heap.Len() == 0 {
		return nil
	}
	item := heap.Pop(&q.heap).(*deadlineItem)
	return item.thread
}

// Peek returns the earliest deadline entry without removing it.
func (q *DeadlineQueue) Peek() (*Thread, DeadlineParams, bool) {
	if q.heap.Len() == 0 {
		return nil, DeadlineParams{}, false
	}
	item := q.heap[0]
	return item.thread, item.params, true
}

// IsEmpty reports whether the queue holds no threads.
func (q *DeadlineQueue) IsEmpty() bool { return q.heap.Len() == 0 }

// Len reports the number of threads queued.
func (q *DeadlineQueue) Len() int { return q.heap.Len() }
