package cap

import "errors"

// The first three form the closed CapError set the derivation calculus and
// Registry.Resolve emit; the remaining three are cspace slot-management
// errors (CSpace.Resolve returns ErrInvalidSlot for an empty slot). Every
// other package translates these to abi.Errno at
// its own boundary rather than importing abi directly, keeping the capability
// core free of ABI concerns.
var (
	ErrObjectNotFound     = errors.New("capability: object not found")
	ErrInsufficientRights = errors.New("capability: insufficient rights")
	ErrRevoked            = errors.New("capability: revoked")
	ErrSlotInUse          = errors.New("capability: destination slot in use")
	ErrNoFreeSlots        = errors.New("capability: cspace exhausted")
	ErrInvalidSlot        = errors.New("capability: invalid slot")
)
