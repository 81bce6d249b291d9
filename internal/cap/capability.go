package cap

// Capability is the triple a cspace slot holds: which object, what rights,
// and the generation it was valid against at derivation time.
type Capability struct {
	ObjectID   ObjectID
	Rights     Rights
	Generation uint32
}

// Stale reports whether this capability's generation no longer matches the
// object's live generation — the sole revocation check.
func (c Capability) Stale(liveGeneration uint32) bool {
	return c.Generation != liveGeneration
}
