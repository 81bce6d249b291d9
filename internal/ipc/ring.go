package ipc

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/abi"
)

var (
	ErrInvalidRingSize = errors.New("ipc: ring size must be a non-zero power of two")
	ErrSQFull          = errors.New("ipc: submission queue full")
)

// SQEntry is one submission-queue slot: a syscall to execute and the raw
// register frame, tagged with an opaque user_data the kernel never
// interprets and always echoes back in the matching completion.
type SQEntry struct {
	UserData uint64
	Syscall  abi.Syscall
	Args     abi.Args
}

// CQEntry is one completion-queue slot.
type CQEntry struct {
	UserData uint64
	Result   int64
	Errno    abi.Errno
}

// Executor runs one submission synchronously, the ring's only connection to
// the rest of the kernel. The ring is deliberately ignorant of how a
// syscall is actually carried out: it submits into the same dispatch path
// a direct syscall would use, so there is exactly one place that
// understands capability checks and IPC matching.
type Executor func(abi.Syscall, abi.Args) (int64, abi.Errno)

// paddedIndex is a 32-bit counter padded out to a cache line so the
// producer and consumer sides of a ring never false-share.
type paddedIndex struct {
	v atomic.Uint32
	_ [60]byte
}

// Ring is a paired submission/completion queue of power-of-two capacity,
// each with independent cache-line-separated producer and consumer
// indices. Submissions execute in SQ order; completions may be posted out
// of order and are coalesced up to CQ capacity (testable property 8 holds
// only when completions are generated single-threaded against one ring, as
// ring_enter itself does).
type Ring struct {
	sq     []SQEntry
	sqMask uint32
	sqProd paddedIndex
	sqCons paddedIndex

	cq     []CQEntry
	cqMask uint32
	cqProd paddedIndex
	cqCons paddedIndex

	mtx      sync.Mutex
	cond     *sync.Cond
	executor Executor
	limiter  *rate.Limiter
}

// SetSubmissionRateLimit caps how fast RingEnter drains the submission
// queue into the executor, the way a throttled ingest connection caps its
// send rate: a noisy submitter fills the SQ as fast as it likes, but
// RingEnter stops draining it for this call once the limiter is exhausted
// and picks back up on the next ring_enter instead of burning a whole CPU
// on one ring.
func (r *Ring) SetSubmissionRateLimit(limit rate.Limit, burst int) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.limiter = rate.NewLimiter(limit, burst)
}

func isPowerOfTwo(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}

// NewRing allocates a ring with the given SQ/CQ sizes, both of which must
// be non-zero powers of two.
func NewRing(sqSize, cqSize uint32, executor Executor) (*Ring, error) {
	if !isPowerOfTwo(sqSize) || !isPowerOfTwo(cqSize) {
		return nil, ErrInvalidRingSize
	}
	r := &Ring{
		sq:       make([]SQEntry, sqSize),
		sqMask:   sqSize - 1,
		cq:       make([]CQEntry, cqSize),
		cqMask:   cqSize - 1,
		executor: executor,
	}
	r.cond = sync.NewCond(&r.mtx)
	return r, nil
}

// PushSubmission writes e into the next free SQ slot and advances the
// producer index, the user-space half of filling the ring. It fails with
// ErrSQFull if the queue has reached capacity (producer has lapped
// consumer).
func (r *Ring) PushSubmission(e SQEntry) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	prod := r.sqProd.v.Load()
	cons := r.sqCons.v.Load()
	if prod-cons > r.sqMask {
		return ErrSQFull
	}
	r.sq[prod&r.sqMask] = e
	r.sqProd.v.Store(prod + 1)
	return nil
}

// postCompletion writes c into the next CQ slot, overwriting the oldest
// unconsumed entry once the ring is full — the "coalesced up to CQ
// capacity" behavior — and bumps the completion's consumer index to match
// so PopCompletion never observes a stale slot.
func (r *Ring) postCompletion(c CQEntry) {
	prod := r.cqProd.v.Load()
	cons := r.cqCons.v.Load()
	if prod-cons > r.cqMask {
		r.cqCons.v.Store(cons + 1)
	}
	r.cq[prod&r.cqMask] = c
	r.cqProd.v.Store(prod + 1)
	r.cond.Broadcast()
}

// PopCompletion dequeues the oldest unconsumed CQ entry.
func (r *Ring) PopCompletion() (CQEntry, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	cons := r.cqCons.v.Load()
	prod := r.cqProd.v.Load()
	if cons == prod {
		return CQEntry{}, false
	}
	c := r.cq[cons&r.cqMask]
	r.cqCons.v.Store(cons + 1)
	return c, true
}

func (r *Ring) pendingCompletions() uint32 {
	return r.cqProd.v.Load() - r.cqCons.v.Load()
}

// RingEnter drains up to toSubmit pending SQ entries in submission order,
// executing each through the ring's Executor and posting a CQ entry keyed
// by its user_data, then blocks until at least minComplete completions are
// available (counting ones already posted before this call) or interrupt
// fires. It returns the number of completions available when it returns.
func (r *Ring) RingEnter(toSubmit, minComplete uint32, interrupt <-chan struct{}) (uint32, error) {
	r.mtx.Lock()
	drained := uint32(0)
	for drained < toSubmit {
		cons := r.sqCons.v.Load()
		prod := r.sqProd.v.Load()
		if cons == prod {
			break
		}
		if r.limiter != nil && !r.limiter.Allow() {
			break
		}
		entry := r.sq[cons&r.sqMask]
		r.sqCons.v.Store(cons + 1)
		r.mtx.Unlock()
		result, errno := r.executor(entry.Syscall, entry.Args)
		r.mtx.Lock()
		r.postCompletion(CQEntry{UserData: entry.UserData, Result: result, Errno: errno})
		drained++
	}
	r.mtx.Unlock()

	if minComplete == 0 {
		return r.pendingCompletions(), nil
	}

	var cancelled atomic.Bool
	done := make(chan struct{})
	go func() {
		r.mtx.Lock()
		for r.pendingCompletions() < minComplete && !cancelled.Load() {
			r.cond.Wait()
		}
		r.mtx.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return r.pendingCompletions(), nil
	case <-interrupt:
		cancelled.Store(true)
		r.mtx.Lock()
		r.cond.Broadcast() // release the waiter goroutine above
		r.mtx.Unlock()
		<-done
		return r.pendingCompletions(), ErrInterrupted
	}
}

// RingEnterTimeout is RingEnter bounded by a wall-clock deadline instead of
// an interrupt channel, for callers without one.
func (r *Ring) RingEnterTimeout(toSubmit, minComplete uint32, timeout time.Duration) (uint32, error) {
	interrupt := make(chan struct{})
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() { close(interrupt) })
		defer timer.Stop()
	}
	n, err := r.RingEnter(toSubmit, minComplete, interrupt)
	if err == ErrInterrupted {
		return n, ErrTimeout
	}
	return n, err
}
