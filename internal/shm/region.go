package shm

import (
	"sync"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/cap"
)

// Flags are the region creation flags from the data model table.
type Flags uint32

const (
	Locked Flags = 1 << iota
	HugePages
	GPUAccessible
)

// Region is an array of physical frames addressable by ObjectID, the unit
// IPC memory grants and user-space mappings both point at.
type Region struct {
	mtx      sync.RWMutex
	ID       cap.ObjectID
	Size     uint64
	frames   []uint64
	refCount uint32
	flags    Flags
	alloc    *FrameAllocator
}

// Manager creates and tears down regions, registering each one's ObjectID
// with the shared capability registry so revocation and generation checks
// apply uniformly.
type Manager struct {
	mtx     sync.RWMutex
	alloc   *FrameAllocator
	reg     *cap.Registry
	regions map[cap.ObjectID]*Region
}

// NewManager builds a region manager over alloc, registering objects in reg.
func NewManager(alloc *FrameAllocator, reg *cap.Registry) *Manager {
	return &Manager{alloc: alloc, reg: reg, regions: make(map[cap.ObjectID]*Region)}
}

// Create allocates ⌈size/PageSize⌉ frames and registers a new region.
func (m *Manager) Create(size uint64, flags Flags) (cap.ObjectID, error) {
	if size == 0 {
		return cap.ObjectID{}, ErrInvalidSize
	}
	numPages := (size + PageSize - 1) / PageSize
	frames := make([]uint64, 0, numPages)
	for i := uint64(0); i < numPages; i++ {
		f, err := m.alloc.AllocFrame()
		if err != nil {
			for _, used := range frames {
				m.alloc.FreeFrame(used)
			}
			return cap.ObjectID{}, ErrOutOfMemory
		}
		frames = append(frames, f)
	}

	id := m.reg.Alloc(cap.ObjectRegion)
	r := &Region{ID: id, Size: size, frames: frames, refCount: 1, flags: flags, alloc: m.alloc}

	m.mtx.Lock()
	m.regions[id] = r
	m.mtx.Unlock()
	return id, nil
}

func (m *Manager) lookup(id cap.ObjectID) (*Region, error) {
	m.mtx.RLock()
	r, ok := m.regions[id]
	m.mtx.RUnlock()
	if !ok {
		return nil, ErrBadFrame
	}
	return r, nil
}

// GetFrame returns the frame index backing the page containing offset.
func (r *Region) GetFrame(offset uint64) (uint64, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	idx := offset / PageSize
	if idx >= uint64(len(r.frames)) {
		return 0, false
	}
	return r.frames[idx], true
}

// AddRef increments the mapping reference count.
func (r *Region) AddRef() {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.refCount++
}

// release decrements refCount and reports whether it reached zero.
func (r *Region) release() bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.refCount > 0 {
		r.refCount--
	}
	return r.refCount == 0
}

// Map increments a region's reference count, failing with
// ErrPermissionDenied if requested is not a subset of held.
func (m *Manager) Map(id cap.ObjectID, requested cap.Rights, held cap.Rights) error {
	if !requested.IsSubsetOf(held) {
		return ErrPermissionDenied
	}
	r, err := m.lookup(id)
	if err != nil {
		return err
	}
	r.AddRef()
	return nil
}

// Unmap decrements a region's reference count, freeing its frames back to
// the allocator once the count reaches zero.
func (m *Manager) Unmap(id cap.ObjectID) error {
	r, err := m.lookup(id)
	if err != nil {
		return err
	}
	if r.release() {
		m.free(id, r)
	}
	return nil
}

// Release is the capability-delete path: same bookkeeping as Unmap.
func (m *Manager) Release(id cap.ObjectID) error {
	return m.Unmap(id)
}

func (m *Manager) free(id cap.ObjectID, r *Region) {
	m.mtx.Lock()
	delete(m.regions, id)
	m.mtx.Unlock()
	for _, f := range r.frames {
		m.alloc.FreeFrame(f)
	}
}
