package ipc

import (
	"testing"
	"time"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/cap"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/shm"
)

func newEndpointFixture(t *testing.T) (*cap.Registry, *Endpoint) {
	t.Helper()
	reg := cap.NewRegistry()
	id := reg.Alloc(cap.ObjectEndpoint)
	return reg, NewEndpoint(id, nil)
}

// TestS4EndpointRendezvous is scenario S4: a receiver blocks first, a sender
// arrives with {tag=42, data=[0xAB]}, and the receiver unblocks with
// len=1, tag=42, data[0]=0xAB.
func TestS4EndpointRendezvous(t *testing.T) {
	_, ep := newEndpointFixture(t)
	reg := cap.NewRegistry()
	receiverSpace := cap.NewCSpace(reg, 16)
	senderSpace := cap.NewCSpace(reg, 16)

	type recvResult struct {
		msg Message
		err error
	}
	recvDone := make(chan recvResult, 1)
	go func() {
		var dest [MaxCaps]cap.Slot
		msg, _, err := ep.Receive(receiverSpace, dest, 0, nil)
		recvDone <- recvResult{msg, err}
	}()

	// Give the receiver a chance to block first.
	time.Sleep(10 * time.Millisecond)

	msg := Simple(42, []byte{0xAB})
	if err := ep.Send(senderSpace, msg, 0, nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	select {
	case r := <-recvDone:
		if r.err != nil {
			t.Fatalf("receive failed: %v", r.err)
		}
		data := r.msg.Data()
		if len(data) != 1 || r.msg.Header.Tag != 42 || data[0] != 0xAB {
			t.Fatalf("unexpected message: tag=%d data=%v", r.msg.Header.Tag, data)
		}
	case <-time.After(time.Second):
		t.Fatal("receive never unblocked")
	}
}

// TestEndpointFIFO is testable property 4: messages sent by senders queued
// in order S1, S2, S3 are delivered to receivers in the same order.
func TestEndpointFIFO(t *testing.T) {
	_, ep := newEndpointFixture(t)
	reg := cap.NewRegistry()
	senderSpace := cap.NewCSpace(reg, 16)
	receiverSpace := cap.NewCSpace(reg, 16)

	order := []uint32{1, 2, 3}
	errs := make(chan error, len(order))
	for _, tag := range order {
		tag := tag
		go func() {
			errs <- ep.Send(senderSpace, Simple(tag, nil), 0, nil)
		}()
		time.Sleep(5 * time.Millisecond) // preserve enqueue order
	}

	var got []uint32
	for range order {
		var dest [MaxCaps]cap.Slot
		msg, _, err := ep.Receive(receiverSpace, dest, time.Second, nil)
		if err != nil {
			t.Fatalf("receive failed: %v", err)
		}
		got = append(got, msg.Header.Tag)
	}
	for i, tag := range order {
		if got[i] != tag {
			t.Fatalf("FIFO violated: want %v got %v", order, got)
		}
	}
	for range order {
		if err := <-errs; err != nil {
			t.Fatalf("send failed: %v", err)
		}
	}
}

// TestIpcConservation is testable property 3: a capability transferred
// through an endpoint disappears from the sender's cspace and appears,
// with equal rights, in exactly one slot of the receiver's cspace.
func TestIpcConservation(t *testing.T) {
	_, ep := newEndpointFixture(t)
	reg := cap.NewRegistry()
	senderSpace := cap.NewCSpace(reg, 16)
	receiverSpace := cap.NewCSpace(reg, 16)

	regionID := reg.Alloc(cap.ObjectRegion)
	srcSlot, err := senderSpace.Install(cap.Capability{ObjectID: regionID, Rights: cap.Read | cap.Write, Generation: 1})
	if err != nil {
		t.Fatal(err)
	}

	destSlot := cap.Slot(5)
	msg := WithCaps(9, []cap.Slot{srcSlot})

	recvDone := make(chan struct {
		msg Message
		err error
	}, 1)
	go func() {
		var dest [MaxCaps]cap.Slot
		dest[0] = destSlot
		m, _, e := ep.Receive(receiverSpace, dest, time.Second, nil)
		recvDone <- struct {
			msg Message
			err error
		}{m, e}
	}()
	time.Sleep(10 * time.Millisecond)

	if err := ep.Send(senderSpace, msg, time.Second, nil); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	r := <-recvDone
	if r.err != nil {
		t.Fatalf("receive failed: %v", r.err)
	}

	if !senderSpace.IsFree(srcSlot) {
		t.Fatal("capability still present in sender cspace after transfer")
	}
	got, err := receiverSpace.Resolve(destSlot)
	if err != nil {
		t.Fatalf("transferred capability not resolvable: %v", err)
	}
	if got.ObjectID != regionID || got.Rights != (cap.Read|cap.Write) {
		t.Fatalf("transferred capability altered: %+v", got)
	}
}

// TestCallReplyRoundTrip exercises Call against a receiver that uses the
// returned ReplyToken, confirming the caller sees the replied payload.
func TestCallReplyRoundTrip(t *testing.T) {
	_, ep := newEndpointFixture(t)
	reg := cap.NewRegistry()
	callerSpace := cap.NewCSpace(reg, 16)
	serverSpace := cap.NewCSpace(reg, 16)

	go func() {
		var dest [MaxCaps]cap.Slot
		msg, token, err := ep.Receive(serverSpace, dest, time.Second, nil)
		if err != nil || token == nil {
			return
		}
		reply := Simple(msg.Header.Tag+1, []byte("pong"))
		token.Reply(reply)
	}()
	time.Sleep(10 * time.Millisecond)

	reply, err := ep.Call(callerSpace, Simple(100, []byte("ping")), time.Second, nil)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	if reply.Header.Tag != 101 || string(reply.Data()) != "pong" {
		t.Fatalf("unexpected reply: tag=%d data=%q", reply.Header.Tag, reply.Data())
	}
}

// TestCallReplyWhenReceiverAlreadyWaiting covers the case where Receive
// blocks first and Call arrives afterward, still yielding a usable token.
func TestCallReplyWhenReceiverAlreadyWaiting(t *testing.T) {
	_, ep := newEndpointFixture(t)
	reg := cap.NewRegistry()
	callerSpace := cap.NewCSpace(reg, 16)
	serverSpace := cap.NewCSpace(reg, 16)

	type recvOut struct {
		msg   Message
		token *ReplyToken
		err   error
	}
	recvCh := make(chan recvOut, 1)
	go func() {
		var dest [MaxCaps]cap.Slot
		msg, token, err := ep.Receive(serverSpace, dest, time.Second, nil)
		recvCh <- recvOut{msg, token, err}
	}()
	time.Sleep(10 * time.Millisecond)

	callDone := make(chan struct {
		msg Message
		err error
	}, 1)
	go func() {
		m, e := ep.Call(callerSpace, Simple(5, []byte("hi")), time.Second, nil)
		callDone <- struct {
			msg Message
			err error
		}{m, e}
	}()

	r := <-recvCh
	if r.err != nil || r.token == nil {
		t.Fatalf("receive did not yield a reply token: %+v", r)
	}
	r.token.Reply(Simple(6, []byte("bye")))

	cr := <-callDone
	if cr.err != nil {
		t.Fatalf("call failed: %v", cr.err)
	}
	if cr.msg.Header.Tag != 6 || string(cr.msg.Data()) != "bye" {
		t.Fatalf("unexpected call result: %+v", cr.msg)
	}
}

// TestCallTransferErrorWakesWaitingReceiver covers the case where a
// receiver is already parked when Call arrives and the capability transfer
// fails (here, because the nominated destination slot is occupied): the
// blocked receiver must still be woken with the transfer error instead of
// hanging forever, and Call itself must report the same error.
func TestCallTransferErrorWakesWaitingReceiver(t *testing.T) {
	_, ep := newEndpointFixture(t)
	reg := cap.NewRegistry()
	callerSpace := cap.NewCSpace(reg, 16)
	serverSpace := cap.NewCSpace(reg, 16)

	occupiedSlot := cap.Slot(3)
	otherID := reg.Alloc(cap.ObjectRegion)
	if err := serverSpace.InstallAt(occupiedSlot, cap.Capability{ObjectID: otherID, Rights: cap.Read, Generation: 1}); err != nil {
		t.Fatalf("failed to occupy destination slot: %v", err)
	}

	type recvOut struct {
		msg   Message
		token *ReplyToken
		err   error
	}
	recvCh := make(chan recvOut, 1)
	go func() {
		var dest [MaxCaps]cap.Slot
		dest[0] = occupiedSlot
		msg, token, err := ep.Receive(serverSpace, dest, time.Second, nil)
		recvCh <- recvOut{msg, token, err}
	}()
	time.Sleep(10 * time.Millisecond)

	capSlot, err := callerSpace.Install(cap.Capability{ObjectID: reg.Alloc(cap.ObjectRegion), Rights: cap.Read, Generation: 1})
	if err != nil {
		t.Fatal(err)
	}
	callDone := make(chan struct {
		msg Message
		err error
	}, 1)
	go func() {
		m, e := ep.Call(callerSpace, WithCaps(7, []cap.Slot{capSlot}), time.Second, nil)
		callDone <- struct {
			msg Message
			err error
		}{m, e}
	}()

	select {
	case r := <-recvCh:
		if r.err == nil {
			t.Fatal("expected transfer error to reach the blocked receiver, got nil")
		}
	case <-time.After(time.Second):
		t.Fatal("blocked receiver never woke up after a failed transfer")
	}

	select {
	case cr := <-callDone:
		if cr.err == nil {
			t.Fatal("expected Call to report the transfer error")
		}
	case <-time.After(time.Second):
		t.Fatal("Call never returned after a failed transfer")
	}
}

// TestReceiveTimeoutDoesNotLeaveStaleWaiter covers the bug where a
// receiver abandoned by a timeout stayed queued: a later Send must not be
// silently absorbed by that stale waiter, since nothing would ever read
// its done channel again. It must instead queue as a sender and wait for
// a fresh receiver.
func TestReceiveTimeoutDoesNotLeaveStaleWaiter(t *testing.T) {
	_, ep := newEndpointFixture(t)
	reg := cap.NewRegistry()
	receiverSpace := cap.NewCSpace(reg, 16)
	senderSpace := cap.NewCSpace(reg, 16)

	var dest [MaxCaps]cap.Slot
	_, _, err := ep.Receive(receiverSpace, dest, 20*time.Millisecond, nil)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- ep.Send(senderSpace, Simple(1, []byte{0x01}), 0, nil)
	}()
	time.Sleep(20 * time.Millisecond)

	var dest2 [MaxCaps]cap.Slot
	msg, _, err := ep.Receive(receiverSpace, dest2, time.Second, nil)
	if err != nil {
		t.Fatalf("fresh receive failed: %v", err)
	}
	if msg.Header.Tag != 1 {
		t.Fatalf("unexpected message delivered to fresh receiver: %+v", msg)
	}
	if err := <-sendErr; err != nil {
		t.Fatalf("send failed: %v", err)
	}
}

// TestSendGrantMapsRegionForReceiver covers §4.3's memory grant: a Send
// carrying a MemoryGrant must map the granted region (via shm.Manager) on
// the receiver's behalf, with rights no broader than the grant allows.
func TestSendGrantMapsRegionForReceiver(t *testing.T) {
	reg := cap.NewRegistry()
	alloc, err := shm.NewFrameAllocator(16)
	if err != nil {
		t.Fatal(err)
	}
	regions := shm.NewManager(alloc, reg)
	ep := NewEndpoint(reg.Alloc(cap.ObjectEndpoint), regions)

	senderSpace := cap.NewCSpace(reg, 16)
	receiverSpace := cap.NewCSpace(reg, 16)

	regionID, err := regions.Create(4096, 0)
	if err != nil {
		t.Fatal(err)
	}
	regionSlot, err := senderSpace.Install(cap.Capability{ObjectID: regionID, Rights: cap.Read | cap.Write | cap.Grant, Generation: regionID.Generation})
	if err != nil {
		t.Fatal(err)
	}

	msg := Simple(1, nil)
	msg.Grant = &MemoryGrant{CapSlot: regionSlot, Length: 4096, Rights: cap.Read}

	recvDone := make(chan error, 1)
	go func() {
		var dest [MaxCaps]cap.Slot
		_, _, err := ep.Receive(receiverSpace, dest, time.Second, nil)
		recvDone <- err
	}()
	time.Sleep(10 * time.Millisecond)

	if err := ep.Send(senderSpace, msg, time.Second, nil); err != nil {
		t.Fatalf("send with grant failed: %v", err)
	}
	if err := <-recvDone; err != nil {
		t.Fatalf("receive with grant failed: %v", err)
	}

	// Mapping should have added a ref; unmapping it must not free the
	// region out from under the sender's own still-held capability.
	if err := regions.Unmap(regionID); err != nil {
		t.Fatalf("unexpected error releasing mapped region: %v", err)
	}
	if _, err := senderSpace.Resolve(regionSlot); err != nil {
		t.Fatalf("sender's region capability should still resolve: %v", err)
	}
}

// TestSendGrantRejectsExcessiveRights covers the case where the grant asks
// for more rights than the sender's own capability holds.
func TestSendGrantRejectsExcessiveRights(t *testing.T) {
	reg := cap.NewRegistry()
	alloc, err := shm.NewFrameAllocator(16)
	if err != nil {
		t.Fatal(err)
	}
	regions := shm.NewManager(alloc, reg)
	ep := NewEndpoint(reg.Alloc(cap.ObjectEndpoint), regions)

	senderSpace := cap.NewCSpace(reg, 16)
	receiverSpace := cap.NewCSpace(reg, 16)

	regionID, err := regions.Create(4096, 0)
	if err != nil {
		t.Fatal(err)
	}
	regionSlot, err := senderSpace.Install(cap.Capability{ObjectID: regionID, Rights: cap.Read, Generation: regionID.Generation})
	if err != nil {
		t.Fatal(err)
	}

	msg := Simple(1, nil)
	msg.Grant = &MemoryGrant{CapSlot: regionSlot, Length: 4096, Rights: cap.Read | cap.Write}

	go func() {
		var dest [MaxCaps]cap.Slot
		ep.Receive(receiverSpace, dest, time.Second, nil)
	}()
	time.Sleep(10 * time.Millisecond)

	if err := ep.Send(senderSpace, msg, time.Second, nil); err != cap.ErrInsufficientRights {
		t.Fatalf("expected ErrInsufficientRights, got %v", err)
	}
}

func TestNbSendWouldBlock(t *testing.T) {
	_, ep := newEndpointFixture(t)
	reg := cap.NewRegistry()
	senderSpace := cap.NewCSpace(reg, 16)
	if err := ep.NbSend(senderSpace, Simple(1, nil)); err != ErrWouldBlock {
		t.Fatalf("expected ErrWouldBlock, got %v", err)
	}
}
