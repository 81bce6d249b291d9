package dispatch

import (
	"io"
	"testing"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/abi"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/cap"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/debug"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/log"
)

func newTestContext() *Context {
	reg := cap.NewRegistry()
	return &Context{
		CSpace:   cap.NewCSpace(reg, 64),
		Registry: reg,
		Objects:  NewObjects(),
	}
}

// TestS6SleepBoundRejected is scenario S6: THREAD_SLEEP(3_700_000_000_000)
// exceeds the one-hour bound and fails with InvalidArgument (-5).
func TestS6SleepBoundRejected(t *testing.T) {
	ctx := newTestContext()
	req := &Request{}
	req.Args.Regs[0] = 3_700_000_000_000
	resp := Dispatch(ctx, abi.SysThreadSleep, req)
	if resp.Errno != abi.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", resp.Errno)
	}
	if int32(resp.Errno) != -5 {
		t.Fatalf("expected literal errno -5, got %d", int32(resp.Errno))
	}
}

func TestSleepWithinBoundSucceeds(t *testing.T) {
	ctx := newTestContext()
	req := &Request{}
	req.Args.Regs[0] = 1 // 1ns, negligible actual sleep
	resp := Dispatch(ctx, abi.SysThreadSleep, req)
	if resp.Errno != abi.Success {
		t.Fatalf("expected Success, got %v", resp.Errno)
	}
}

func TestUnknownSyscallIsInvalidSyscall(t *testing.T) {
	ctx := newTestContext()
	resp := Dispatch(ctx, abi.Syscall(0xFFFF), &Request{})
	if resp.Errno != abi.InvalidSyscall {
		t.Fatalf("expected InvalidSyscall, got %v", resp.Errno)
	}
}

// TestS1PermissionDeniedThroughDispatch is scenario S1 surfaced at the
// syscall boundary: deriving with a right the parent lacks fails with
// PermissionDenied (-3).
func TestS1PermissionDeniedThroughDispatch(t *testing.T) {
	ctx := newTestContext()
	regionID := ctx.Registry.Alloc(cap.ObjectRegion)
	rootSlot, err := ctx.CSpace.Install(cap.Capability{ObjectID: regionID, Rights: cap.Read, Generation: 1})
	if err != nil {
		t.Fatal(err)
	}

	req := &Request{}
	req.Args.Regs[0] = uint64(rootSlot)
	req.Args.Regs[1] = uint64(cap.Read | cap.Write)
	req.Args.Regs[2] = 1
	resp := Dispatch(ctx, abi.SysCapDerive, req)
	if resp.Errno != abi.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", resp.Errno)
	}
	if int32(resp.Errno) != -3 {
		t.Fatalf("expected literal errno -3, got %d", int32(resp.Errno))
	}
}

func TestDispatchGuardedRecoversPanic(t *testing.T) {
	ctx := newTestContext()
	Register(abi.Syscall(0xABCD), func(ctx *Context, req *Request) Response {
		panic("handler fault")
	})
	faulted := false
	lg := log.New(io.Discard)
	resp := DispatchGuarded(ctx, abi.Syscall(0xABCD), &Request{}, lg, func(_ debug.PanicInfo) {
		faulted = true
	})
	if !faulted {
		t.Fatal("expected onFault to run after recovered panic")
	}
	if resp.Errno != abi.IoError {
		t.Fatalf("expected IoError after recovered panic, got %v", resp.Errno)
	}
}
