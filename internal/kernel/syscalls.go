package kernel

import (
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/abi"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/cap"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/dispatch"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/sched"
)

func okResp(result int64) dispatch.Response { return dispatch.Response{Result: result, Errno: abi.Success} }

func failResp(errno abi.Errno) dispatch.Response { return dispatch.Response{Errno: errno} }

// registerSyscalls wires the process and memory syscall groups and
// THREAD_CREATE/EXIT/JOIN into the dispatch table. dispatch itself owns the
// stateless handlers (time, THREAD_SLEEP/YIELD, capability, IPC); these
// need a live *Kernel — the process table,
// the address-space bookkeeping, the region manager — that internal/dispatch
// has no reference to, so the Kernel installs them via dispatch.Register
// instead of dispatch carrying a dependency back on internal/kernel.
func (k *Kernel) registerSyscalls() {
	dispatch.Register(abi.SysProcessGetpid, k.sysProcessGetpid)
	dispatch.Register(abi.SysProcessGetppid, k.sysProcessGetppid)
	dispatch.Register(abi.SysProcessSpawn, k.sysProcessSpawn)
	dispatch.Register(abi.SysProcessExit, k.sysProcessExit)
	dispatch.Register(abi.SysProcessWait, k.sysProcessWait)

	dispatch.Register(abi.SysThreadCreate, k.sysThreadCreate)
	dispatch.Register(abi.SysThreadExit, k.sysThreadExit)
	dispatch.Register(abi.SysThreadJoin, k.sysThreadJoin)

	dispatch.Register(abi.SysMemMap, k.sysMemMap)
	dispatch.Register(abi.SysMemUnmap, k.sysMemUnmap)
	dispatch.Register(abi.SysMemProtect, k.sysMemProtect)
	dispatch.Register(abi.SysMemAlloc, k.sysMemAlloc)
	dispatch.Register(abi.SysMemFree, k.sysMemFree)
}

func (k *Kernel) sysProcessGetpid(ctx *dispatch.Context, req *dispatch.Request) dispatch.Response {
	return okResp(int64(ctx.OwnerPID))
}

func (k *Kernel) sysProcessGetppid(ctx *dispatch.Context, req *dispatch.Request) dispatch.Response {
	p := k.processByPID(ctx.OwnerPID)
	if p == nil || p.Parent == nil {
		return okResp(0)
	}
	return okResp(int64(p.Parent.PID))
}

// sysProcessSpawn creates a child process and enqueues its first thread,
// exactly mirroring Kernel.Spawn's boot-time pattern. path/argv are taken
// (Regs[0..3]) but, like the reference libnyx caller, not consulted: this
// simulation has one globally registered ThreadEntry, not a loader able to
// select between distinct on-disk binaries.
func (k *Kernel) sysProcessSpawn(ctx *dispatch.Context, req *dispatch.Request) dispatch.Response {
	parent := k.processByPID(ctx.OwnerPID)
	child := k.Spawn(parent, sched.Normal, 0)
	return okResp(int64(child.PID))
}

func (k *Kernel) sysProcessExit(ctx *dispatch.Context, req *dispatch.Request) dispatch.Response {
	code := int32(req.Args.Regs[0])
	if ctx.Thread != nil {
		ctx.Thread.Terminate(code)
	}
	if p := k.processByPID(ctx.OwnerPID); p != nil {
		p.Exit(int(code))
	}
	return okResp(0)
}

// sysProcessWait implements PROCESS_WAIT(pid|0), packing the result as
// (exit_code:i32 << 32 | pid:u32) per the reference ABI. pid==0 waits for
// any child; a specific pid waits for that child only. The waited-on child
// is reaped once its exit status has been observed, the way a UNIX wait(2)
// consumes its zombie.
func (k *Kernel) sysProcessWait(ctx *dispatch.Context, req *dispatch.Request) dispatch.Response {
	p := k.processByPID(ctx.OwnerPID)
	if p == nil {
		return failResp(abi.NotFound)
	}
	pid := req.Args.Regs[0]
	var waitedPID uint64
	var exitCode int
	if pid == 0 {
		wp, code, err := p.WaitAny()
		if err != nil {
			return failResp(abi.NoChild)
		}
		waitedPID, exitCode = wp, code
		if child := p.child(wp); child != nil {
			k.Reap(child)
		}
	} else {
		child := p.child(pid)
		if child == nil {
			return failResp(abi.NoChild)
		}
		code, _ := child.Wait()
		waitedPID, exitCode = pid, code
		k.Reap(child)
	}
	packed := (int64(exitCode) << 32) | int64(waitedPID)
	return okResp(packed)
}

// sysThreadCreate adds a thread to the calling process and enqueues it onto
// CPU 0, the same admission path Kernel.Spawn uses for a process's first
// thread. entry/stack/arg (Regs[0..2]) are accepted but unused for the same
// reason sysProcessSpawn ignores path/argv: every thread in this simulation
// runs the one registered ThreadEntry.
func (k *Kernel) sysThreadCreate(ctx *dispatch.Context, req *dispatch.Request) dispatch.Response {
	p := k.processByPID(ctx.OwnerPID)
	if p == nil {
		return failResp(abi.NotFound)
	}
	th := p.NewThread(k, sched.Normal, 0)
	if len(k.Scheduler.CPUs) > 0 {
		k.Scheduler.CPUs[0].Enqueue(th)
	}
	return okResp(int64(th.ID))
}

func (k *Kernel) sysThreadExit(ctx *dispatch.Context, req *dispatch.Request) dispatch.Response {
	code := int32(req.Args.Regs[0])
	if ctx.Thread != nil {
		ctx.Thread.Terminate(code)
	}
	return okResp(0)
}

func (k *Kernel) sysThreadJoin(ctx *dispatch.Context, req *dispatch.Request) dispatch.Response {
	p := k.processByPID(ctx.OwnerPID)
	if p == nil {
		return failResp(abi.NotFound)
	}
	t := p.thread(sched.ThreadID(req.Args.Regs[0]))
	if t == nil {
		return failResp(abi.NotFound)
	}
	code := t.Join()
	return okResp(int64(code))
}

// sysMemMap implements MEM_MAP(hint, length, prot, flags): it creates a
// fresh region sized to length, installs a capability for it in the calling
// process's cspace with rights derived from prot, and hands back a
// synthetic virtual address the process can later pass to MEM_UNMAP. hint
// and the ANONYMOUS/PRIVATE/SHARED/FIXED flags are accepted but do not
// change placement — there is no real page table underneath to honor a
// fixed-address request against.
func (k *Kernel) sysMemMap(ctx *dispatch.Context, req *dispatch.Request) dispatch.Response {
	length := req.Args.Regs[1]
	prot := abi.MemProt(req.Args.Regs[2])
	if length == 0 {
		return failResp(abi.InvalidArgument)
	}
	id, err := ctx.Regions.Create(length, 0)
	if err != nil {
		return failResp(dispatch.ToErrno(err))
	}
	slot, err := ctx.CSpace.Install(cap.Capability{ObjectID: id, Rights: protToRights(prot), Generation: id.Generation})
	if err != nil {
		ctx.Regions.Release(id)
		return failResp(dispatch.ToErrno(err))
	}
	p := k.processByPID(ctx.OwnerPID)
	if p == nil {
		ctx.CSpace.Delete(slot)
		return failResp(abi.NotFound)
	}
	addr := p.AddrSpace.reserve(length, &mapping{region: id, slot: slot, size: length, prot: prot})
	return okResp(int64(addr))
}

func (k *Kernel) sysMemUnmap(ctx *dispatch.Context, req *dispatch.Request) dispatch.Response {
	p := k.processByPID(ctx.OwnerPID)
	if p == nil {
		return failResp(abi.NotFound)
	}
	addr := req.Args.Regs[0]
	m, ok := p.AddrSpace.remove(addr)
	if !ok {
		return failResp(abi.BadAddress)
	}
	ctx.CSpace.Delete(m.slot)
	if err := ctx.Regions.Unmap(m.region); err != nil {
		return failResp(dispatch.ToErrno(err))
	}
	return okResp(0)
}

// sysMemProtect changes the bookkeeping protection recorded for an existing
// mapping. The underlying region has no hardware page table to reprogram in
// this simulation, so this only updates what MEM_PROTECT would otherwise
// have to track faithfully for a later MEM_UNMAP/inspection to see.
func (k *Kernel) sysMemProtect(ctx *dispatch.Context, req *dispatch.Request) dispatch.Response {
	p := k.processByPID(ctx.OwnerPID)
	if p == nil {
		return failResp(abi.NotFound)
	}
	addr := req.Args.Regs[0]
	prot := abi.MemProt(req.Args.Regs[2])
	m, ok := p.AddrSpace.lookup(addr)
	if !ok {
		return failResp(abi.BadAddress)
	}
	m.prot = prot
	return okResp(0)
}

// sysMemAlloc implements MEM_ALLOC(size, flags): like sysMemMap it backs
// the allocation with a region, but installs no mapping-specific
// protection (the reference treats this as raw physical memory the caller
// must separately map), instead recording it with full read/write rights.
func (k *Kernel) sysMemAlloc(ctx *dispatch.Context, req *dispatch.Request) dispatch.Response {
	size := req.Args.Regs[0]
	if size == 0 {
		return failResp(abi.InvalidArgument)
	}
	id, err := ctx.Regions.Create(size, 0)
	if err != nil {
		return failResp(dispatch.ToErrno(err))
	}
	rights := cap.Read | cap.Write | cap.RegionMap
	slot, err := ctx.CSpace.Install(cap.Capability{ObjectID: id, Rights: rights, Generation: id.Generation})
	if err != nil {
		ctx.Regions.Release(id)
		return failResp(dispatch.ToErrno(err))
	}
	p := k.processByPID(ctx.OwnerPID)
	if p == nil {
		ctx.CSpace.Delete(slot)
		return failResp(abi.NotFound)
	}
	addr := p.AddrSpace.reserve(size, &mapping{region: id, slot: slot, size: size, prot: abi.ProtRead | abi.ProtWrite})
	return okResp(int64(addr))
}

func (k *Kernel) sysMemFree(ctx *dispatch.Context, req *dispatch.Request) dispatch.Response {
	return k.sysMemUnmap(ctx, req)
}
