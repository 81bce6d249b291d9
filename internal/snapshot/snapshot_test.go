package snapshot

import (
	"testing"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/cap"
)

func TestCaptureEncodeDecodeRoundTrip(t *testing.T) {
	reg := cap.NewRegistry()
	id := reg.Alloc(cap.ObjectEndpoint)

	snap := Capture(reg)
	if snap.ID.String() == "" {
		t.Fatal("expected a non-empty snapshot id")
	}
	if _, ok := snap.Objects[id]; !ok {
		t.Fatalf("expected allocated object %v in snapshot", id)
	}

	data, err := Encode(snap)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty encoded snapshot")
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != snap.ID {
		t.Fatalf("expected id %v after round trip, got %v", snap.ID, got.ID)
	}
	entry, ok := got.Objects[id]
	if !ok {
		t.Fatalf("expected object %v to survive round trip", id)
	}
	if entry.Generation != 1 {
		t.Fatalf("expected generation 1, got %d", entry.Generation)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not a snapshot")); err == nil {
		t.Fatal("expected an error decoding garbage input")
	}
}
