package cap

// VerifyDerivation checks that derived is a valid child of parent, in the
// exact order the checks must run: rights monotonicity, then object
// identity, then generation freshness. The order matters because it fixes
// which CapError a given malformed derivation reports.
func VerifyDerivation(parent, derived Capability) error {
	if !derived.Rights.IsSubsetOf(parent.Rights) {
		return ErrInsufficientRights
	}
	if !derived.ObjectID.SameIdentity(parent.ObjectID) {
		return ErrObjectNotFound
	}
	if derived.Generation != parent.Generation {
		return ErrRevoked
	}
	return nil
}

// ComputeDerivedRights intersects parentRights with mask, stripping GRANT
// unless keepGrant is set.
func ComputeDerivedRights(parentRights, mask Rights, keepGrant bool) Rights {
	result := parentRights.And(mask)
	if !keepGrant {
		result = result.WithoutGrant()
	}
	return result
}
