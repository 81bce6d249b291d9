package ipc

import (
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/abi"
)

func noopExecutor(_ abi.Syscall, _ abi.Args) (int64, abi.Errno) {
	return 0, abi.Success
}

func TestNewRingRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := NewRing(3, 8, noopExecutor); err != ErrInvalidRingSize {
		t.Fatalf("expected ErrInvalidRingSize, got %v", err)
	}
	if _, err := NewRing(8, 0, noopExecutor); err != ErrInvalidRingSize {
		t.Fatalf("expected ErrInvalidRingSize, got %v", err)
	}
}

// TestRingOrderingProperty is testable property 8: submissions posted with
// user_data [u1..un] yield completions whose user_data is a permutation of
// the same multiset, and on a single-consumer ring of identical no-op
// operations the CQ order equals the SQ order.
func TestRingOrderingProperty(t *testing.T) {
	r, err := NewRing(8, 8, noopExecutor)
	if err != nil {
		t.Fatal(err)
	}
	userData := []uint64{10, 20, 30, 40, 50}
	for _, ud := range userData {
		if err := r.PushSubmission(SQEntry{UserData: ud, Syscall: abi.SysGetTime}); err != nil {
			t.Fatal(err)
		}
	}
	completed, err := r.RingEnter(uint32(len(userData)), uint32(len(userData)), nil)
	if err != nil {
		t.Fatal(err)
	}
	if completed != uint32(len(userData)) {
		t.Fatalf("expected %d completions, got %d", len(userData), completed)
	}
	for _, want := range userData {
		c, ok := r.PopCompletion()
		if !ok {
			t.Fatal("expected completion, queue empty")
		}
		if c.UserData != want {
			t.Fatalf("CQ order diverged from SQ order: want %d got %d", want, c.UserData)
		}
		if c.Errno != abi.Success {
			t.Fatalf("unexpected errno: %v", c.Errno)
		}
	}
}

func TestRingSQFullRejectsPush(t *testing.T) {
	r, err := NewRing(2, 2, noopExecutor)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.PushSubmission(SQEntry{UserData: 1}); err != nil {
		t.Fatal(err)
	}
	if err := r.PushSubmission(SQEntry{UserData: 2}); err != nil {
		t.Fatal(err)
	}
	if err := r.PushSubmission(SQEntry{UserData: 3}); err != ErrSQFull {
		t.Fatalf("expected ErrSQFull, got %v", err)
	}
}

func TestRingEnterBlocksUntilMinComplete(t *testing.T) {
	r, err := NewRing(4, 4, noopExecutor)
	if err != nil {
		t.Fatal(err)
	}
	r.PushSubmission(SQEntry{UserData: 1})

	done := make(chan error, 1)
	go func() {
		_, err := r.RingEnter(0, 1, nil)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("RingEnter returned before any completion existed")
	case <-time.After(30 * time.Millisecond):
	}

	if _, err := r.RingEnter(1, 0, nil); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RingEnter never unblocked after completion was posted")
	}
}

func TestRingEnterTimeoutExpires(t *testing.T) {
	r, err := NewRing(4, 4, noopExecutor)
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.RingEnterTimeout(0, 1, 20*time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestRingEnterStopsDrainingWhenRateLimited(t *testing.T) {
	r, err := NewRing(8, 8, noopExecutor)
	if err != nil {
		t.Fatal(err)
	}
	r.SetSubmissionRateLimit(rate.Limit(0), 2)
	for _, ud := range []uint64{1, 2, 3, 4} {
		if err := r.PushSubmission(SQEntry{UserData: ud}); err != nil {
			t.Fatal(err)
		}
	}
	completed, err := r.RingEnter(4, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if completed != 2 {
		t.Fatalf("expected rate limiter to cap drain at burst size 2, got %d completions", completed)
	}
}

func TestRingCoalescesCompletionsPastCapacity(t *testing.T) {
	r, err := NewRing(4, 2, noopExecutor)
	if err != nil {
		t.Fatal(err)
	}
	for _, ud := range []uint64{1, 2, 3} {
		r.PushSubmission(SQEntry{UserData: ud})
	}
	if _, err := r.RingEnter(3, 0, nil); err != nil {
		t.Fatal(err)
	}
	// CQ capacity is 2, so the oldest (user_data=1) was coalesced away.
	first, ok := r.PopCompletion()
	if !ok || first.UserData != 2 {
		t.Fatalf("expected coalesced completion 2, got %+v ok=%v", first, ok)
	}
	second, ok := r.PopCompletion()
	if !ok || second.UserData != 3 {
		t.Fatalf("expected completion 3, got %+v ok=%v", second, ok)
	}
}
