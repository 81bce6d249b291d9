// Package shm implements the shared-memory substrate: a physical-frame
// allocator backed by one real anonymous mmap arena, and reference-counted
// regions built out of frames for zero-copy IPC.
package shm

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

// PageSize is the frame size the allocator hands out.
const PageSize = 4096

var (
	ErrInvalidSize    = errors.New("shm: invalid size")
	ErrOutOfMemory    = errors.New("shm: out of memory")
	ErrPermissionDenied = errors.New("shm: permission denied")
	ErrBadFrame       = errors.New("shm: frame index out of range")
)

// FrameAllocator owns one real anonymous mapping (via mmap/MADV_DONTFORK,
// mirroring how ipexist maps and advises its own backing region) and hands
// out fixed-size, page-aligned frames from it.
type FrameAllocator struct {
	mtx   sync.Mutex
	arena []byte
	free  []uint64 // free frame indices
	total uint64
}

// NewFrameAllocator reserves capacityPages worth of real memory up front.
func NewFrameAllocator(capacityPages uint64) (*FrameAllocator, error) {
	if capacityPages == 0 {
		return nil, ErrInvalidSize
	}
	length := int(capacityPages * PageSize)
	arena, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	_ = unix.Madvise(arena, unix.MADV_DONTFORK)
	_ = unix.Madvise(arena, unix.MADV_DONTDUMP)

	free := make([]uint64, capacityPages)
	for i := range free {
		free[i] = uint64(i)
	}
	return &FrameAllocator{arena: arena, free: free, total: capacityPages}, nil
}

// Close releases the backing arena.
func (a *FrameAllocator) Close() error {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if a.arena == nil {
		return nil
	}
	err := unix.Munmap(a.arena)
	a.arena = nil
	return err
}

// AllocFrame reserves one free frame and returns its index.
func (a *FrameAllocator) AllocFrame() (uint64, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if len(a.free) == 0 {
		return 0, ErrOutOfMemory
	}
	n := len(a.free) - 1
	idx := a.free[n]
	a.free = a.free[:n]
	return idx, nil
}

// FreeFrame returns a previously allocated frame to the pool.
func (a *FrameAllocator) FreeFrame(idx uint64) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.free = append(a.free, idx)
}

// FrameBytes returns the backing slice for frame idx.
func (a *FrameAllocator) FrameBytes(idx uint64) ([]byte, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	if idx >= a.total {
		return nil, ErrBadFrame
	}
	start := idx * PageSize
	return a.arena[start : start+PageSize], nil
}

// AvailableFrames reports the current free-list depth.
func (a *FrameAllocator) AvailableFrames() int {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return len(a.free)
}
