package cap

import "sync"

// Slot is the user-visible handle into a CSpace: a small integer the kernel
// allocates, never one the caller forges.
type Slot uint32

// CSpace is a process's sparse capability table. It never stores a pointer
// to the object itself, only an ObjectID resolved through a shared Registry
// — that indirection is what lets Revoke be O(1) and lets slots be reused
// freely within a generation window.
type CSpace struct {
	mtx      sync.RWMutex
	reg      *Registry
	slots    map[Slot]Capability
	capacity uint32
	next     Slot
}

// NewCSpace creates an empty table backed by reg with room for up to
// capacity live slots.
func NewCSpace(reg *Registry, capacity uint32) *CSpace {
	return &CSpace{reg: reg, slots: make(map[Slot]Capability), capacity: capacity}
}

func (cs *CSpace) allocSlot() (Slot, error) {
	if uint32(len(cs.slots)) >= cs.capacity {
		return 0, ErrNoFreeSlots
	}
	for {
		s := cs.next
		cs.next++
		if _, used := cs.slots[s]; !used {
			return s, nil
		}
	}
}

// Install places cap into a freshly allocated slot and returns that slot.
// It performs no validation of its own; callers that have already checked
// the capability just need storage for it.
func (cs *CSpace) Install(cap Capability) (Slot, error) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	slot, err := cs.allocSlot()
	if err != nil {
		return 0, err
	}
	cs.slots[slot] = cap
	return slot, nil
}

// InstallAt places cap into an explicit destination slot, failing with
// ErrSlotInUse if occupied.
func (cs *CSpace) InstallAt(slot Slot, c Capability) error {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	if _, used := cs.slots[slot]; used {
		return ErrSlotInUse
	}
	if uint32(len(cs.slots)) >= cs.capacity {
		return ErrNoFreeSlots
	}
	cs.slots[slot] = c
	return nil
}

// Resolve looks up slot and validates its generation against the live
// registry, returning ErrRevoked (not silently succeeding) on staleness.
func (cs *CSpace) Resolve(slot Slot) (Capability, error) {
	cs.mtx.RLock()
	c, ok := cs.slots[slot]
	cs.mtx.RUnlock()
	if !ok {
		return Capability{}, ErrInvalidSlot
	}
	if err := cs.reg.Resolve(c.ObjectID); err != nil {
		return Capability{}, err
	}
	return c, nil
}

// Derive creates a child capability of parentSlot with rights
// parent.rights ∩ mask (GRANT stripped unless keepGrant), installing it at
// a freshly allocated slot. It fails with ErrInsufficientRights if mask
// requests a bit the parent does not hold — the S1 scenario ("derive with
// WRITE when the parent only has READ") — rather than silently masking it
// away.
func (cs *CSpace) Derive(parentSlot Slot, mask Rights, keepGrant bool) (Slot, error) {
	parent, err := cs.Resolve(parentSlot)
	if err != nil {
		return 0, err
	}
	if !mask.IsSubsetOf(parent.Rights) {
		return 0, ErrInsufficientRights
	}
	childRights := ComputeDerivedRights(parent.Rights, mask, keepGrant)
	child := Capability{ObjectID: parent.ObjectID, Rights: childRights, Generation: parent.Generation}
	if err := VerifyDerivation(parent, child); err != nil {
		return 0, err
	}
	if child.Rights.Has(Grant) {
		cs.reg.IncRef(child.ObjectID)
	}
	return cs.Install(child)
}

// Revoke bumps the generation of the object named by slot, invalidating
// every outstanding capability to it across every cspace.
func (cs *CSpace) Revoke(slot Slot) error {
	cap, err := cs.Resolve(slot)
	if err != nil {
		return err
	}
	return cs.reg.Revoke(cap.ObjectID)
}

// Copy resolves slot and installs an equivalent capability into dest at
// destSlot.
func (cs *CSpace) Copy(slot Slot, dest *CSpace, destSlot Slot) error {
	c, err := cs.Resolve(slot)
	if err != nil {
		return err
	}
	if err := dest.InstallAt(destSlot, c); err != nil {
		return err
	}
	cs.reg.IncRef(c.ObjectID)
	return nil
}

// Delete removes slot from the table and drops the registry reference it
// held.
func (cs *CSpace) Delete(slot Slot) error {
	cs.mtx.Lock()
	c, ok := cs.slots[slot]
	if !ok {
		cs.mtx.Unlock()
		return ErrInvalidSlot
	}
	delete(cs.slots, slot)
	cs.mtx.Unlock()
	cs.reg.DecRef(c.ObjectID)
	return nil
}

// Remove deletes slot without touching the registry refcount; used by IPC
// transfer, which moves ownership rather than releasing it.
func (cs *CSpace) Remove(slot Slot) (Capability, error) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	c, ok := cs.slots[slot]
	if !ok {
		return Capability{}, ErrInvalidSlot
	}
	delete(cs.slots, slot)
	return c, nil
}

// IsFree reports whether slot is currently unoccupied.
func (cs *CSpace) IsFree(slot Slot) bool {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	_, used := cs.slots[slot]
	return !used
}

// Len reports the number of occupied slots.
func (cs *CSpace) Len() int {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	return len(cs.slots)
}

// Snapshot returns a point-in-time copy of every occupied slot, for
// debug/test dumps that must not hold the table's lock while serializing.
func (cs *CSpace) Snapshot() map[Slot]Capability {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	out := make(map[Slot]Capability, len(cs.slots))
	for s, c := range cs.slots {
		out[s] = c
	}
	return out
}
