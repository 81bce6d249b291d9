package ipc

import "errors"

var (
	ErrWouldBlock        = errors.New("ipc: would block")
	ErrTimeout           = errors.New("ipc: timeout")
	ErrInterrupted       = errors.New("ipc: interrupted")
	ErrInvalidCapability = errors.New("ipc: invalid capability")
	ErrBadAddress        = errors.New("ipc: bad address")
	ErrInvalidFormat     = errors.New("ipc: invalid format")
	ErrNoDestSlots       = errors.New("ipc: receiver nominated no destination slots")
)
