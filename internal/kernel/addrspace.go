package kernel

import (
	"sync"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/abi"
	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/cap"
)

const pageSize = 4096

// mapping records one MEM_MAP/MEM_ALLOC extent so MEM_UNMAP/MEM_FREE can
// find the region it came from.
type mapping struct {
	region cap.ObjectID
	slot   cap.Slot
	size   uint64
	prot   abi.MemProt
}

// addrSpace hands out distinct, page-aligned addresses for a process's
// MEM_MAP/MEM_ALLOC calls and remembers which region backs each one. There
// is no real MMU or page table underneath it — a hosted kernel has no
// address space of its own to carve up — so this is a bump allocator over
// a synthetic range plus a lookup table, just enough for MEM_UNMAP/MEM_FREE
// to resolve an address back to the region shm.Manager tracks.
type addrSpace struct {
	mtx      sync.Mutex
	next     uint64
	mappings map[uint64]*mapping
}

func newAddrSpace() *addrSpace {
	return &addrSpace{next: 0x1000_0000, mappings: make(map[uint64]*mapping)}
}

func (a *addrSpace) reserve(size uint64, m *mapping) uint64 {
	pages := (size + pageSize - 1) / pageSize
	if pages == 0 {
		pages = 1
	}
	a.mtx.Lock()
	defer a.mtx.Unlock()
	addr := a.next
	a.next += pages * pageSize
	a.mappings[addr] = m
	return addr
}

func (a *addrSpace) remove(addr uint64) (*mapping, bool) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	m, ok := a.mappings[addr]
	if ok {
		delete(a.mappings, addr)
	}
	return m, ok
}

func (a *addrSpace) lookup(addr uint64) (*mapping, bool) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	m, ok := a.mappings[addr]
	return m, ok
}

// protToRights translates MEM_MAP/MEM_PROTECT's prot bits to the capability
// rights the mapped region's capability is installed with. USER carries no
// capability-system meaning here (every process is already its own
// unprivileged cspace), so it is accepted and otherwise ignored.
func protToRights(prot abi.MemProt) cap.Rights {
	var r cap.Rights
	if prot&abi.ProtRead != 0 {
		r |= cap.Read
	}
	if prot&abi.ProtWrite != 0 {
		r |= cap.Write
	}
	if prot&abi.ProtExec != 0 {
		r |= cap.Execute
	}
	return r | cap.RegionMap
}
