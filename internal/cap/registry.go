package cap

import "sync"

type objectEntry struct {
	generation uint32
	refCount   int
}

// Registry is the central, ObjectId-indexed table of live objects that
// breaks the cyclic-ownership problem (endpoints ref-counted by
// capabilities, capabilities stored in cspaces, cspaces owned by processes
// holding endpoint caps): nothing ever holds a pointer across that cycle,
// only an ObjectID resolved through here under a reader/writer lock.
type Registry struct {
	mtx     sync.RWMutex
	byType  map[ObjectType]map[uint32]*objectEntry
	nextIdx map[ObjectType]uint32
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType:  make(map[ObjectType]map[uint32]*objectEntry),
		nextIdx: make(map[ObjectType]uint32),
	}
}

// Alloc reserves a fresh {type, index} slot at generation 1 with refCount 1
// and returns its ObjectID.
func (r *Registry) Alloc(t ObjectType) ObjectID {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.byType[t] == nil {
		r.byType[t] = make(map[uint32]*objectEntry)
	}
	idx := r.nextIdx[t]
	r.nextIdx[t] = idx + 1
	r.byType[t][idx] = &objectEntry{generation: 1, refCount: 1}
	return ObjectID{Type: t, Index: idx, Generation: 1}
}

// Generation returns the live generation for {type, index}; ok is false if
// the object was never allocated or has been fully released.
func (r *Registry) Generation(id ObjectID) (gen uint32, ok bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	m := r.byType[id.Type]
	if m == nil {
		return 0, false
	}
	e, present := m[id.Index]
	if !present {
		return 0, false
	}
	return e.generation, true
}

// Resolve validates id against the live registry state, returning
// ErrObjectNotFound if the slot was never allocated or has been released,
// and ErrRevoked if id's generation is stale.
func (r *Registry) Resolve(id ObjectID) error {
	gen, ok := r.Generation(id)
	if !ok {
		return ErrObjectNotFound
	}
	if gen != id.Generation {
		return ErrRevoked
	}
	return nil
}

// Revoke bumps {type, index}'s generation, atomically invalidating every
// outstanding capability to it in O(1) without walking any capability
// table.
func (r *Registry) Revoke(id ObjectID) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	m := r.byType[id.Type]
	if m == nil {
		return ErrObjectNotFound
	}
	e, ok := m[id.Index]
	if !ok {
		return ErrObjectNotFound
	}
	e.generation++
	return nil
}

// ObjectSnapshot is a live registry entry's state at the moment Snapshot
// was called.
type ObjectSnapshot struct {
	Generation uint32
	RefCount   int
}

// Snapshot returns a point-in-time copy of every live object's generation
// and reference count, keyed by ObjectID, for debug/test dumps.
func (r *Registry) Snapshot() map[ObjectID]ObjectSnapshot {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	out := make(map[ObjectID]ObjectSnapshot)
	for t, m := range r.byType {
		for idx, e := range m {
			id := ObjectID{Type: t, Index: idx, Generation: e.generation}
			out[id] = ObjectSnapshot{Generation: e.generation, RefCount: e.refCount}
		}
	}
	return out
}

// IncRef increments {type, index}'s reference count, e.g. on a successful
// map or a capability copy that carries mapping rights.
func (r *Registry) IncRef(id ObjectID) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if m := r.byType[id.Type]; m != nil {
		if e, ok := m[id.Index]; ok {
			e.refCount++
		}
	}
}

// DecRef decrements the reference count and frees the entry (returning
// freed=true) once it reaches zero.
func (r *Registry) DecRef(id ObjectID) (freed bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	m := r.byType[id.Type]
	if m == nil {
		return false
	}
	e, ok := m[id.Index]
	if !ok {
		return false
	}
	e.refCount--
	if e.refCount <= 0 {
		delete(m, id.Index)
		return true
	}
	return false
}
