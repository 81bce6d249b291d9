package sched

import "container/heap"

// niceWeights is the Linux CFS weight table indexed by nice+20. No
// ecosystem library models this lookup; it is a fixed constant table, not
// a scheduling algorithm, so a plain array is the right tool.
var niceWeights = [40]uint32{
	88761, 71755, 56483, 46273, 36291, 29154, 23254, 18705, 14949, 11916,
	9548, 7620, 6100, 4904, 3906, 3121, 2501, 1991, 1586, 1277,
	1024, 820, 655, 526, 423, 335, 272, 215, 172, 137,
	110, 87, 70, 56, 45, 36, 29, 23, 18, 15,
}

// NiceToWeight maps a nice value in [-20, 19] (clamped outside that range)
// to its CFS scheduling weight.
func NiceToWeight(nice int32) uint32 {
	idx := nice + 20
	if idx < 0 {
		idx = 0
	}
	if idx > 39 {
		idx = 39
	}
	return niceWeights[idx]
}

// NiceZeroWeight is the weight of a thread at nice 0, the divisor every
// vruntime delta is normalized against.
const NiceZeroWeight uint64 = 1024

// VruntimeDelta converts a wall-clock runtime slice into the virtual
// runtime a thread of the given weight accrues for it: lighter (higher
// nice) threads accrue vruntime faster and so get picked less often.
func VruntimeDelta(runtimeNanos uint64, weight uint32) uint64 {
	if weight == 0 {
		weight = 1
	}
	return (runtimeNanos * NiceZeroWeight) / uint64(weight)
}

// cfsItem is one entry in the fair run queue: a thread ordered by vruntime,
// with insertion sequence as a stable tiebreaker so threads with identical
// vruntime are picked in arrival order.
type cfsItem struct {
	thread   *Thread
	vruntime uint64
	seq      uint64
}

type cfsHeap []*cfsItem

func (h cfsHeap) Len() int { return len(h) }
func (h cfsHeap) Less(i, j int) bool {
	if h[i].vruntime != h[j].vruntime {
		return h[i].vruntime < h[j].vruntime
	}
	return h[i].seq < h[j].seq
}
func (h cfsHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cfsHeap) Push(x interface{}) { *h = append(*h, x.(*cfsItem)) }
func (h *cfsHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// CfsQueue is a min-heap of runnable Normal/Batch threads ordered by
// vruntime, mirroring a red-black tree keyed by vruntime: the thread with
// the least accumulated virtual runtime always runs next.
type CfsQueue struct {
	heap        cfsHeap
	minVruntime uint64
	seq         uint64
}

// NewCfsQueue creates an empty fair queue.
func NewCfsQueue() *CfsQueue {
	return &CfsQueue{}
}

// Enqueue admits a thread at the queue's current min_vruntime, preventing a
// newly woken thread from starving out threads that have been waiting.
func (q *CfsQueue) Enqueue(t *Thread) {
	t.Vruntime = q.minVruntime
	q.EnqueueWithVruntime(t, q.minVruntime)
}

// EnqueueWithVruntime admits a thread at an explicit vruntime, used when
// migrating a thread that already has accrued runtime on another CPU.
func (q *CfsQueue) EnqueueWithVruntime(t *Thread, vruntime uint64) {
	q.seq++
	heap.Push(&q.heap, &cfsItem{thread: t, vruntime: vruntime, seq: q.seq})
}

// PickNext pops the thread with the lowest vruntime, advancing
// min_vruntime to match.
func (q *CfsQueue) PickNext() *Thread {
	if q.heap.Len() == 0 {
		return nil
	}
	item := heap.Pop(&q.heap).(*cfsItem)
	q.minVruntime = item.vruntime
	return item.thread
}

// Len reports the number of runnable threads queued.
func (q *CfsQueue) Len() int { return q.heap.Len() }

// IsEmpty reports whether the queue holds no threads.
func (q *CfsQueue) IsEmpty() bool { return q.heap.Len() == 0 }
