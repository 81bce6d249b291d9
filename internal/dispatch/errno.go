// Package dispatch is the syscall boundary: a numbered table of
// capability-checked handlers, each invoked inside a fault-isolating
// recover so one faulting handler cannot take the rest of the kernel down.
package dispatch

import (
	"errors"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/abi"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/cap"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/ipc"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/shm"
)

// ToErrno translates the kernel's internal sentinel errors into the fixed
// ABI taxonomy at the one place that needs to know about both sides.
func ToErrno(err error) abi.Errno {
	if err == nil {
		return abi.Success
	}
	switch {
	case errors.Is(err, cap.ErrInsufficientRights):
		return abi.PermissionDenied
	case errors.Is(err, cap.ErrObjectNotFound):
		return abi.NotFound
	case errors.Is(err, cap.ErrRevoked):
		return abi.InvalidCapability
	case errors.Is(err, cap.ErrSlotInUse), errors.Is(err, cap.ErrNoFreeSlots), errors.Is(err, cap.ErrInvalidSlot):
		return abi.InvalidArgument
	case errors.Is(err, ipc.ErrWouldBlock):
		return abi.WouldBlock
	case errors.Is(err, ipc.ErrTimeout):
		return abi.Timeout
	case errors.Is(err, ipc.ErrInterrupted):
		return abi.Interrupted
	case errors.Is(err, ipc.ErrInvalidFormat), errors.Is(err, ipc.ErrInvalidDestBuff), errors.Is(err, ipc.ErrInvalidSrcBuff):
		return abi.InvalidFormat
	case errors.Is(err, ipc.ErrNoDestSlots):
		return abi.InvalidArgument
	case errors.Is(err, ipc.ErrBadAddress):
		return abi.BadAddress
	case errors.Is(err, ipc.ErrInvalidCapability):
		return abi.InvalidCapability
	case errors.Is(err, ipc.ErrTooManyCaps), errors.Is(err, ipc.ErrPayloadTooLarge):
		return abi.InvalidFormat
	case errors.Is(err, ipc.ErrInvalidRingSize), errors.Is(err, ipc.ErrSQFull):
		return abi.InvalidArgument
	case errors.Is(err, shm.ErrInvalidSize):
		return abi.InvalidArgument
	case errors.Is(err, shm.ErrOutOfMemory):
		return abi.OutOfMemory
	case errors.Is(err, shm.ErrPermissionDenied):
		return abi.PermissionDenied
	case errors.Is(err, shm.ErrBadFrame):
		return abi.BadAddress
	default:
		return abi.IoError
	}
}
