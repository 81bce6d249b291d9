package cap

import "testing"

func TestDeriveThenFailOnWrite(t *testing.T) {
	reg := NewRegistry()
	cs := NewCSpace(reg, 16)
	obj := reg.Alloc(ObjectRegion)
	root := Capability{ObjectID: obj, Rights: Read, Generation: obj.Generation}
	rootSlot, err := cs.Install(root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cs.Derive(rootSlot, Read|Write, true); err != ErrInsufficientRights {
		t.Fatalf("expected ErrInsufficientRights, got %v", err)
	}
}

func TestRevocationImmediacy(t *testing.T) {
	reg := NewRegistry()
	cs := NewCSpace(reg, 16)
	obj := reg.Alloc(ObjectEndpoint)
	root := Capability{ObjectID: obj, Rights: Read | Write, Generation: obj.Generation}
	slot, err := cs.Install(root)
	if err != nil {
		t.Fatal(err)
	}
	childSlot, err := cs.Derive(slot, Read, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := cs.Revoke(slot); err != nil {
		t.Fatal(err)
	}
	if _, err := cs.Resolve(slot); err != ErrRevoked {
		t.Fatalf("expected ErrRevoked on the revoked slot itself, got %v", err)
	}
	if _, err := cs.Resolve(childSlot); err != ErrRevoked {
		t.Fatalf("expected ErrRevoked on a derived child, got %v", err)
	}
}

func TestCopyConservesRegistryRef(t *testing.T) {
	reg := NewRegistry()
	src := NewCSpace(reg, 16)
	dst := NewCSpace(reg, 16)
	obj := reg.Alloc(ObjectRegion)
	root := Capability{ObjectID: obj, Rights: Read, Generation: obj.Generation}
	slot, err := src.Install(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Copy(slot, dst, 5); err != nil {
		t.Fatal(err)
	}
	got, err := dst.Resolve(5)
	if err != nil {
		t.Fatal(err)
	}
	if got.ObjectID != obj {
		t.Fatalf("copied capability names wrong object: %v", got.ObjectID)
	}
}

func TestDeriveStripsGrantWithoutKeepGrant(t *testing.T) {
	reg := NewRegistry()
	cs := NewCSpace(reg, 16)
	obj := reg.Alloc(ObjectRegion)
	root := Capability{ObjectID: obj, Rights: Read | Grant, Generation: obj.Generation}
	slot, err := cs.Install(root)
	if err != nil {
		t.Fatal(err)
	}
	childSlot, err := cs.Derive(slot, Read|Grant, false)
	if err != nil {
		t.Fatal(err)
	}
	child, err := cs.Resolve(childSlot)
	if err != nil {
		t.Fatal(err)
	}
	if child.Rights.Has(Grant) {
		t.Fatalf("GRANT should have been stripped, got %v", child.Rights)
	}
}

func TestCSpaceCapacityExhausted(t *testing.T) {
	reg := NewRegistry()
	cs := NewCSpace(reg, 1)
	obj := reg.Alloc(ObjectRegion)
	root := Capability{ObjectID: obj, Rights: Read, Generation: obj.Generation}
	if _, err := cs.Install(root); err != nil {
		t.Fatal(err)
	}
	if _, err := cs.Install(root); err != ErrNoFreeSlots {
		t.Fatalf("expected ErrNoFreeSlots, got %v", err)
	}
}
