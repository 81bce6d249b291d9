package ipc

import (
	"bytes"
	"testing"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/cap"
)

// TestRoundTripMessageData is testable property 7: recv(send(p)).data() == p
// for any payload of length <= 256.
func TestRoundTripMessageData(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 256)
	m := Simple(42, payload)
	buf := make([]byte, EncodedSize)
	if _, err := m.Encode(buf); err != nil {
		t.Fatal(err)
	}
	var out Message
	if err := out.Decode(buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Data(), payload) {
		t.Fatalf("round trip mismatch: got %v", out.Data())
	}
}

func TestSimpleTruncatesOversizedPayload(t *testing.T) {
	payload := bytes.Repeat([]byte{1}, 300)
	m := Simple(1, payload)
	if len(m.Data()) != InlineCapacity {
		t.Fatalf("expected truncation to %d bytes, got %d", InlineCapacity, len(m.Data()))
	}
}

func TestWithCapsRoundTrip(t *testing.T) {
	m := WithCaps(7, []cap.Slot{1, 2, 3})
	buf := make([]byte, EncodedSize)
	if _, err := m.Encode(buf); err != nil {
		t.Fatal(err)
	}
	var out Message
	if err := out.Decode(buf); err != nil {
		t.Fatal(err)
	}
	if out.Header.CapCount != 3 || out.Caps[0] != 1 || out.Caps[2] != 3 {
		t.Fatalf("unexpected caps after round trip: %+v", out)
	}
}

// TestMemoryGrantRoundTrips covers §4.3's memory grant field: Encode must
// actually put it on the wire and Decode must read it back, not just carry
// it in memory.
func TestMemoryGrantRoundTrips(t *testing.T) {
	m := Simple(3, []byte("grant"))
	m.Grant = &MemoryGrant{CapSlot: 9, Offset: 4096, Length: 8192, Rights: cap.Read | cap.Write}
	buf := make([]byte, EncodedSize)
	if _, err := m.Encode(buf); err != nil {
		t.Fatal(err)
	}
	var out Message
	if err := out.Decode(buf); err != nil {
		t.Fatal(err)
	}
	if out.Grant == nil {
		t.Fatal("expected grant to survive round trip")
	}
	if out.Grant.CapSlot != 9 || out.Grant.Offset != 4096 || out.Grant.Length != 8192 || out.Grant.Rights != (cap.Read|cap.Write) {
		t.Fatalf("grant fields corrupted by round trip: %+v", out.Grant)
	}
}

// TestNoGrantRoundTripsAsNil covers the other half: a message with no grant
// must decode back with a nil Grant, not a zero-valued one.
func TestNoGrantRoundTripsAsNil(t *testing.T) {
	m := Simple(3, []byte("no grant"))
	buf := make([]byte, EncodedSize)
	if _, err := m.Encode(buf); err != nil {
		t.Fatal(err)
	}
	var out Message
	if err := out.Decode(buf); err != nil {
		t.Fatal(err)
	}
	if out.Grant != nil {
		t.Fatalf("expected nil grant, got %+v", out.Grant)
	}
}

func TestEncodeRejectsShortBuffer(t *testing.T) {
	m := Simple(1, []byte("hi"))
	buf := make([]byte, 4)
	if _, err := m.Encode(buf); err != ErrInvalidDestBuff {
		t.Fatalf("expected ErrInvalidDestBuff, got %v", err)
	}
}
