package dispatch

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/abi"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/cap"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/ipc"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/sched"
)

const sleepReason = sched.Sleep

// ringSubmissionRate bounds how many SQEs one ring_enter call can drain per
// second; it exists so one thread cannot starve every other ring sharing a
// CPU by submitting in a tight loop.
const ringSubmissionRate = rate.Limit(1_000_000)

// Request is one syscall invocation. Args carries the fixed six-register
// frame every syscall sees; Message, DestSlots, Timeout and Interrupt carry
// the variable-shaped pieces a raw register frame can't (the envelope a
// send/call carries, where a receive should land transferred capabilities,
// and how long a blocking call should wait) the way a real ABI would pass
// them through a pointer argument into mapped memory.
type Request struct {
	Args      abi.Args
	Message   ipc.Message
	DestSlots [ipc.MaxCaps]cap.Slot
	Timeout   time.Duration
	Interrupt <-chan struct{}
}

// Response is what a handler produces: a register-sized result, an errno,
// and — for IPC_RECV/IPC_CALL — the message that arrived.
type Response struct {
	Result  int64
	Errno   abi.Errno
	Message ipc.Message
}

// Handler services exactly one syscall number.
type Handler func(ctx *Context, req *Request) Response

func ok(result int64) Response { return Response{Result: result, Errno: abi.Success} }

func fail(errno abi.Errno) Response { return Response{Errno: errno} }

func handleGetTime(ctx *Context, req *Request) Response {
	return ok(time.Now().UnixNano())
}

func handleThreadSleep(ctx *Context, req *Request) Response {
	nanos := req.Args.Regs[0]
	if nanos > abi.MaxSleepNanos {
		return fail(abi.InvalidArgument)
	}
	if ctx.Thread != nil {
		ctx.Thread.Block(sleepReason)
	}
	time.Sleep(time.Duration(nanos))
	if ctx.Thread != nil {
		ctx.Thread.Unblock()
	}
	return ok(0)
}

func handleThreadYield(ctx *Context, req *Request) Response {
	return ok(0)
}

func handleCapDerive(ctx *Context, req *Request) Response {
	parent := cap.Slot(req.Args.Regs[0])
	mask := cap.Rights(req.Args.Regs[1])
	keepGrant := req.Args.Regs[2] != 0
	slot, err := ctx.CSpace.Derive(parent, mask, keepGrant)
	if err != nil {
		return fail(ToErrno(err))
	}
	return ok(int64(slot))
}

func handleCapRevoke(ctx *Context, req *Request) Response {
	slot := cap.Slot(req.Args.Regs[0])
	if err := ctx.CSpace.Revoke(slot); err != nil {
		return fail(ToErrno(err))
	}
	return ok(0)
}

func handleCapCopy(ctx *Context, req *Request) Response {
	src := cap.Slot(req.Args.Regs[0])
	dest := cap.Slot(req.Args.Regs[1])
	if err := ctx.CSpace.Copy(src, ctx.CSpace, dest); err != nil {
		return fail(ToErrno(err))
	}
	return ok(0)
}

func handleCapDelete(ctx *Context, req *Request) Response {
	slot := cap.Slot(req.Args.Regs[0])
	if err := ctx.CSpace.Delete(slot); err != nil {
		return fail(ToErrno(err))
	}
	return ok(0)
}

func resolveEndpoint(ctx *Context, slot cap.Slot, need cap.Rights) (*ipc.Endpoint, error) {
	c, err := ctx.CSpace.Resolve(slot)
	if err != nil {
		return nil, err
	}
	if !need.IsSubsetOf(c.Rights) {
		return nil, cap.ErrInsufficientRights
	}
	ep, ok := ctx.Objects.Endpoint(c.ObjectID)
	if !ok {
		return nil, cap.ErrObjectNotFound
	}
	return ep, nil
}

func handleIpcSend(ctx *Context, req *Request) Response {
	ep, err := resolveEndpoint(ctx, cap.Slot(req.Args.Regs[0]), cap.EndpointSend)
	if err != nil {
		return fail(ToErrno(err))
	}
	if err := ep.Send(ctx.CSpace, req.Message, req.Timeout, req.Interrupt); err != nil {
		return fail(ToErrno(err))
	}
	return ok(0)
}

func handleIpcRecv(ctx *Context, req *Request) Response {
	ep, err := resolveEndpoint(ctx, cap.Slot(req.Args.Regs[0]), cap.EndpointRecv)
	if err != nil {
		return fail(ToErrno(err))
	}
	msg, token, err := ep.Receive(ctx.CSpace, req.DestSlots, req.Timeout, req.Interrupt)
	if err != nil {
		return fail(ToErrno(err))
	}
	ctx.setPendingReply(token)
	return Response{Errno: abi.Success, Message: msg}
}

func handleIpcCall(ctx *Context, req *Request) Response {
	ep, err := resolveEndpoint(ctx, cap.Slot(req.Args.Regs[0]), cap.EndpointSend)
	if err != nil {
		return fail(ToErrno(err))
	}
	reply, err := ep.Call(ctx.CSpace, req.Message, req.Timeout, req.Interrupt)
	if err != nil {
		return fail(ToErrno(err))
	}
	return Response{Errno: abi.Success, Message: reply}
}

func handleIpcReply(ctx *Context, req *Request) Response {
	token := ctx.takePendingReply()
	if token == nil {
		return fail(abi.InvalidArgument)
	}
	token.Reply(req.Message)
	return ok(0)
}

func handleRingSetup(ctx *Context, req *Request) Response {
	sqSize := uint32(req.Args.Regs[0])
	cqSize := uint32(req.Args.Regs[1])
	r, err := ipc.NewRing(sqSize, cqSize, func(sc abi.Syscall, a abi.Args) (int64, abi.Errno) {
		resp := Dispatch(ctx, sc, &Request{Args: a})
		return resp.Result, resp.Errno
	})
	if err != nil {
		return fail(ToErrno(err))
	}
	r.SetSubmissionRateLimit(ringSubmissionRate, int(sqSize))
	id := ctx.Registry.Alloc(cap.ObjectRing)
	ctx.Objects.PutRing(id, r)
	slot, err := ctx.CSpace.Install(cap.Capability{ObjectID: id, Rights: cap.AllRights, Generation: 1})
	if err != nil {
		return fail(ToErrno(err))
	}
	return ok(int64(slot))
}

func handleRingEnter(ctx *Context, req *Request) Response {
	slot := cap.Slot(req.Args.Regs[0])
	toSubmit := uint32(req.Args.Regs[1])
	minComplete := uint32(req.Args.Regs[2])
	c, err := ctx.CSpace.Resolve(slot)
	if err != nil {
		return fail(ToErrno(err))
	}
	r, okFound := ctx.Objects.Ring(c.ObjectID)
	if !okFound {
		return fail(abi.NotFound)
	}
	n, err := r.RingEnter(toSubmit, minComplete, req.Interrupt)
	if err != nil {
		return Response{Result: int64(n), Errno: ToErrno(err)}
	}
	return ok(int64(n))
}
