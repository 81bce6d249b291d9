package sched

import "sync"

// CpuScheduler is one CPU's run queues. Its own state is mutated only by
// the CPU that owns it, except during migration, which always locks the
// lower-indexed CPU first to prevent deadlock against a concurrent
// migration running the opposite direction.
type CpuScheduler struct {
	mtx sync.Mutex

	CpuID      uint32
	Current    *Thread
	deadline   *DeadlineQueue
	fair       *CfsQueue
	rtQueue    []*Thread
	idleThread *Thread
}

// NewCpuScheduler creates an empty per-CPU scheduler for cpuID.
func NewCpuScheduler(cpuID uint32) *CpuScheduler {
	return &CpuScheduler{
		CpuID:    cpuID,
		deadline: NewDeadlineQueue(),
		fair:     NewCfsQueue(),
	}
}

// SetIdleThread installs the thread run when nothing else is runnable.
func (c *CpuScheduler) SetIdleThread(t *Thread) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.idleThread = t
}

// Enqueue admits a thread onto the queue matching its scheduling class.
// Deadline threads must already carry DeadlineParams (set via EnqueueDeadline).
func (c *CpuScheduler) Enqueue(t *Thread) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.enqueueLocked(t)
}

func (c *CpuScheduler) enqueueLocked(t *Thread) {
	t.State = Ready
	switch t.SchedClass {
	case Deadline:
		c.deadline.Enqueue(t, t.Deadline)
	case RtFifo, RtRr:
		c.rtQueue = append(c.rtQueue, t)
	case Idle:
		c.idleThread = t
	default: // Normal, Batch
		c.fair.Enqueue(t)
	}
}

// EnqueueDeadline admits a Deadline-class thread with explicit parameters.
func (c *CpuScheduler) EnqueueDeadline(t *Thread, params DeadlineParams) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	t.SchedClass = Deadline
	c.deadline.Enqueue(t, params)
}

// PickNext implements the fixed class precedence: deadline threads first
// (earliest deadline wins), then real-time FIFO/round-robin in arrival
// order, then the fair queue (lowest vruntime), and only the idle thread
// when every other queue is empty (testable property 5: scheduler
// priority).
func (c *CpuScheduler) PickNext() *Thread {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if t := c.deadline.PickNext(); t != nil {
		return t
	}
	if len(c.rtQueue) > 0 {
		t := c.rtQueue[0]
		c.rtQueue = c.rtQueue[1:]
		return t
	}
	if t := c.fair.PickNext(); t != nil {
		return t
	}
	return c.idleThread
}

// Len reports the total number of runnable (non-idle, non-current) threads
// across every queue.
func (c *CpuScheduler) Len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.deadline.Len() + len(c.rtQueue) + c.fair.Len()
}

// Migrate enqueues t on dest, renormalizing a Normal/Batch thread's
// vruntime to dest's min_vruntime if it lies more than one scheduling
// period below or above that baseline — a thread parked a long time on one
// CPU shouldn't arrive on another and monopolize it by virtue of a stale,
// too-low vruntime. It does not remove t from any of src's queues; src is
// only locked. Locks are always
// acquired in ascending CpuID order so two simultaneous migrations moving
// threads in opposite directions cannot deadlock.
func Migrate(src, dest *CpuScheduler, t *Thread, period uint64) {
	first, second := src, dest
	if dest.CpuID < src.CpuID {
		first, second = dest, src
	}
	first.mtx.Lock()
	second.mtx.Lock()
	defer first.mtx.Unlock()
	defer second.mtx.Unlock()

	if t.SchedClass != Normal && t.SchedClass != Batch {
		dest.enqueueLocked(t)
		return
	}
	vr := t.Vruntime
	if vr+period < dest.fair.minVruntime || vr > dest.fair.minVruntime+period {
		vr = dest.fair.minVruntime
	}
	t.State = Ready
	t.Vruntime = vr
	dest.fair.EnqueueWithVruntime(t, vr)
}
