package ipc

import (
	"sync"
	"time"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/cap"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/shm"
)

// waiter is one party parked at an endpoint: either a sender with a message
// ready to hand off, or a receiver with destination slots nominated ahead
// of time. replyCh is non-nil only for a sender that arrived via Call, and
// is where that sender's eventual answer is delivered.
type waiter struct {
	space     *cap.CSpace
	msg       Message
	destSlots [MaxCaps]cap.Slot
	done      chan result
	replyCh   chan result
}

// result is what a blocked party eventually wakes up to: the message it
// received (if any), a reply token if the message came from a Call and
// this party is the one meant to answer it, and any transfer error.
type result struct {
	msg   Message
	token *ReplyToken
	err   error
}

// Endpoint is a synchronous IPC rendezvous: FIFO queues of blocked senders
// and blocked receivers. Arrival on an empty opposite queue completes
// immediately; otherwise the caller is appended to its own queue and
// blocks. The scheduler-visible Blocked(Ipc) state is set by whatever owns
// the calling goroutine, not by Endpoint itself, keeping this package free
// of a dependency on the scheduler.
type Endpoint struct {
	mtx       sync.Mutex
	ID        cap.ObjectID
	senders   []*waiter
	receivers []*waiter
	regions   *shm.Manager
}

// NewEndpoint creates an endpoint bound to id. regions is the shared-memory
// manager used to realize a message's MemoryGrant, if any; it may be nil
// for endpoints that never carry grants (e.g. most tests).
func NewEndpoint(id cap.ObjectID, regions *shm.Manager) *Endpoint {
	return &Endpoint{ID: id, regions: regions}
}

// transfer moves up to CapCount capabilities from src to dest and, if msg
// carries a MemoryGrant, maps the granted region on the receiver's behalf —
// all validated before anything is mutated, so a failure leaves both
// cspaces and the region's ref count untouched (invariant 5: conservation
// of capabilities on transfer, extended to the memory grant §4.3 describes
// alongside it).
func transfer(regions *shm.Manager, src, dest *cap.CSpace, msg Message, destSlots [MaxCaps]cap.Slot) error {
	count := msg.Header.CapCount
	if count > MaxCaps {
		return ErrInvalidFormat
	}
	for i := uint8(0); i < count; i++ {
		if _, err := src.Resolve(msg.Caps[i]); err != nil {
			return err
		}
		if !dest.IsFree(destSlots[i]) {
			return ErrNoDestSlots
		}
	}

	var grantRegion cap.ObjectID
	grantMapped := false
	if msg.Grant != nil {
		if regions == nil {
			return ErrBadAddress
		}
		c, err := src.Resolve(msg.Grant.CapSlot)
		if err != nil {
			return err
		}
		if !msg.Grant.Rights.IsSubsetOf(c.Rights) {
			return cap.ErrInsufficientRights
		}
		if err := regions.Map(c.ObjectID, msg.Grant.Rights, c.Rights); err != nil {
			return err
		}
		grantRegion = c.ObjectID
		grantMapped = true
	}

	for i := uint8(0); i < count; i++ {
		c, err := src.Remove(msg.Caps[i])
		if err == nil {
			if err = dest.InstallAt(destSlots[i], c); err != nil {
				src.InstallAt(msg.Caps[i], c)
			}
		}
		if err != nil {
			for j := uint8(0); j < i; j++ {
				if moved, rerr := dest.Remove(destSlots[j]); rerr == nil {
					src.InstallAt(msg.Caps[j], moved)
				}
			}
			if grantMapped {
				regions.Unmap(grantRegion)
			}
			return err
		}
	}
	return nil
}

// waitResult blocks on done until it fires, timeout elapses, or interrupt
// fires. On the latter two, cancel is called to remove the waiter that fed
// done from its queue before anyone else can match it; if cancel reports it
// lost that race (the waiter was already matched concurrently), the result
// already in flight on done is awaited and returned instead of a spurious
// timeout/interrupt error, so a transfer that committed is never reported
// as having failed.
func waitResult(done chan result, timeout time.Duration, interrupt <-chan struct{}, cancel func() bool) (Message, *ReplyToken, error) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutCh = t.C
	}
	select {
	case r := <-done:
		return r.msg, r.token, r.err
	case <-timeoutCh:
		if cancel() {
			return Message{}, nil, ErrTimeout
		}
		r := <-done
		return r.msg, r.token, r.err
	case <-interrupt:
		if cancel() {
			return Message{}, nil, ErrInterrupted
		}
		r := <-done
		return r.msg, r.token, r.err
	}
}

// cancelSender removes w from e.senders if it is still queued there,
// reporting whether it found and removed it.
func (e *Endpoint) cancelSender(w *waiter) bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	for i, s := range e.senders {
		if s == w {
			e.senders = append(e.senders[:i], e.senders[i+1:]...)
			return true
		}
	}
	return false
}

// cancelReceiver removes w from e.receivers if it is still queued there,
// reporting whether it found and removed it.
func (e *Endpoint) cancelReceiver(w *waiter) bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	for i, r := range e.receivers {
		if r == w {
			e.receivers = append(e.receivers[:i], e.receivers[i+1:]...)
			return true
		}
	}
	return false
}

// deliver hands msg (with transfer error err and optional reply token) to a
// dequeued receiver waiter.
func deliver(r *waiter, msg Message, token *ReplyToken, err error) {
	r.done <- result{msg: msg, token: token, err: err}
}

// Send blocks until a receiver is ready, or completes immediately against
// an already-waiting receiver.
func (e *Endpoint) Send(space *cap.CSpace, msg Message, timeout time.Duration, interrupt <-chan struct{}) error {
	e.mtx.Lock()
	if len(e.receivers) > 0 {
		r := e.receivers[0]
		e.receivers = e.receivers[1:]
		err := transfer(e.regions, space, r.space, msg, r.destSlots)
		e.mtx.Unlock()
		deliver(r, msg, nil, err)
		return err
	}
	w := &waiter{space: space, msg: msg, done: make(chan result, 1)}
	e.senders = append(e.senders, w)
	e.mtx.Unlock()
	_, _, err := waitResult(w.done, timeout, interrupt, func() bool { return e.cancelSender(w) })
	return err
}

// NbSend is the non-blocking variant: it fails with ErrWouldBlock instead
// of enqueuing when no receiver is waiting.
func (e *Endpoint) NbSend(space *cap.CSpace, msg Message) error {
	e.mtx.Lock()
	if len(e.receivers) == 0 {
		e.mtx.Unlock()
		return ErrWouldBlock
	}
	r := e.receivers[0]
	e.receivers = e.receivers[1:]
	err := transfer(e.regions, space, r.space, msg, r.destSlots)
	e.mtx.Unlock()
	deliver(r, msg, nil, err)
	return err
}

// Receive blocks until a sender arrives, nominating destSlots as the
// destination for any transferred capabilities. If the message came from
// Call, the returned ReplyToken is non-nil and must eventually be
// completed with Reply; otherwise it is nil.
func (e *Endpoint) Receive(space *cap.CSpace, destSlots [MaxCaps]cap.Slot, timeout time.Duration, interrupt <-chan struct{}) (Message, *ReplyToken, error) {
	e.mtx.Lock()
	if len(e.senders) > 0 {
		s := e.senders[0]
		e.senders = e.senders[1:]
		err := transfer(e.regions, s.space, space, s.msg, destSlots)
		e.mtx.Unlock()
		if s.replyCh != nil {
			if err != nil {
				s.replyCh <- result{err: err}
				return Message{}, nil, err
			}
			return s.msg, &ReplyToken{reply: s.replyCh}, nil
		}
		s.done <- result{msg: s.msg, err: err}
		return s.msg, nil, err
	}
	w := &waiter{space: space, destSlots: destSlots, done: make(chan result, 1)}
	e.receivers = append(e.receivers, w)
	e.mtx.Unlock()
	return waitResult(w.done, timeout, interrupt, func() bool { return e.cancelReceiver(w) })
}

// NbReceive is the non-blocking variant of Receive.
func (e *Endpoint) NbReceive(space *cap.CSpace, destSlots [MaxCaps]cap.Slot) (Message, *ReplyToken, error) {
	e.mtx.Lock()
	if len(e.senders) == 0 {
		e.mtx.Unlock()
		return Message{}, nil, ErrWouldBlock
	}
	s := e.senders[0]
	e.senders = e.senders[1:]
	err := transfer(e.regions, s.space, space, s.msg, destSlots)
	e.mtx.Unlock()
	if s.replyCh != nil {
		if err != nil {
			s.replyCh <- result{err: err}
			return Message{}, nil, err
		}
		return s.msg, &ReplyToken{reply: s.replyCh}, nil
	}
	s.done <- result{msg: s.msg, err: err}
	return s.msg, nil, err
}

// ReplyToken is the single-use reply capability a receiver gets when it
// drains a Call-origin message, allowing it to answer exactly that sender.
type ReplyToken struct {
	reply chan result
}

// Call is an atomic send + receive-reply: it behaves like Send, except the
// matching receiver is handed a ReplyToken instead of an ordinary
// completion, and Call itself blocks until Reply answers (or
// timeout/interrupt fires).
func (e *Endpoint) Call(space *cap.CSpace, msg Message, timeout time.Duration, interrupt <-chan struct{}) (Message, error) {
	replyCh := make(chan result, 1)
	e.mtx.Lock()
	var w *waiter
	if len(e.receivers) > 0 {
		r := e.receivers[0]
		e.receivers = e.receivers[1:]
		err := transfer(e.regions, space, r.space, msg, r.destSlots)
		e.mtx.Unlock()
		if err != nil {
			deliver(r, Message{}, nil, err)
			return Message{}, err
		}
		deliver(r, msg, &ReplyToken{reply: replyCh}, nil)
	} else {
		w = &waiter{space: space, msg: msg, done: make(chan result, 1), replyCh: replyCh}
		e.senders = append(e.senders, w)
		e.mtx.Unlock()
	}
	cancel := func() bool { return false }
	if w != nil {
		cancel = func() bool { return e.cancelSender(w) }
	}
	reply, _, err := waitResult(replyCh, timeout, interrupt, cancel)
	return reply, err
}

// Reply completes a Call using the token Receive returned.
func (rt *ReplyToken) Reply(msg Message) error {
	rt.reply <- result{msg: msg, err: nil}
	return nil
}
