package dispatch

import (
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/abi"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/debug"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/log"
)

// Dispatch looks up sc in the syscall table and invokes its handler,
// translating an unknown syscall number into InvalidSyscall rather than
// failing to compile a call at all.
func Dispatch(ctx *Context, sc abi.Syscall, req *Request) Response {
	h, found := table[sc]
	if !found {
		return fail(abi.InvalidSyscall)
	}
	return h(ctx, req)
}

// DispatchGuarded is Dispatch wrapped in debug.Recover: a handler panic is
// logged and converted into an IoError response instead of unwinding into
// whatever goroutine called it, and onFault (normally: tear down the
// calling thread's process) still runs.
func DispatchGuarded(ctx *Context, sc abi.Syscall, req *Request, lg *log.Logger, onFault func(debug.PanicInfo)) (resp Response) {
	resp = fail(abi.IoError)
	defer debug.Recover(lg, func(pi debug.PanicInfo) {
		resp = fail(abi.IoError)
		if onFault != nil {
			onFault(pi)
		}
	})
	resp = Dispatch(ctx, sc, req)
	return
}
