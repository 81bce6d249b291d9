package dispatch

import "github.com/Daemoniorum-LLC/nyx-os-sub004/internal/abi"

// table maps syscall numbers to their handlers. This package installs the
// handlers that need only a dispatch.Context (time, thread sleep/yield,
// capability, IPC); internal/kernel installs the process and memory groups
// and the remaining thread calls via Register at
// construction time, since those need a live *Kernel (the process table,
// address-space bookkeeping) this package has no reference to. Any syscall
// number still unregistered at call time fails with InvalidSyscall rather
// than panicking, matching an unimplemented syscall number on real
// hardware.
var table = map[abi.Syscall]Handler{
	abi.SysGetTime: handleGetTime,

	abi.SysThreadSleep: handleThreadSleep,
	abi.SysThreadYield: handleThreadYield,

	abi.SysCapDerive: handleCapDerive,
	abi.SysCapRevoke: handleCapRevoke,
	abi.SysCapCopy:   handleCapCopy,
	abi.SysCapDelete: handleCapDelete,

	abi.SysIpcSend:   handleIpcSend,
	abi.SysIpcRecv:   handleIpcRecv,
	abi.SysIpcCall:   handleIpcCall,
	abi.SysIpcReply:  handleIpcReply,
	abi.SysRingSetup: handleRingSetup,
	abi.SysRingEnter: handleRingEnter,
}

// Register installs or overrides the handler for a syscall number. Used by
// internal/kernel to wire in process/thread/memory handlers that need
// access to state (the process table, the frame allocator) this package
// doesn't own.
func Register(sc abi.Syscall, h Handler) {
	table[sc] = h
}
