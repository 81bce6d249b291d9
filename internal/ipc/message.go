// Package ipc implements the synchronous send/receive/call/reply path and
// the asynchronous submission/completion ring, both operating on the same
// fixed-layout Message envelope.
package ipc

import (
	"encoding/binary"
	"errors"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/cap"
)

const (
	// HeaderSize is the encoded size of MessageHeader: length, tag,
	// cap_count, flags, and six reserved bytes.
	HeaderSize = 4 + 4 + 1 + 1 + 6
	// InlineCapacity is the maximum inline payload in bytes.
	InlineCapacity = 256
	// MaxCaps is the maximum number of capability slots a message carries.
	MaxCaps = 4
	// GrantSize is the encoded size of an optional MemoryGrant: a
	// present-flag byte, CapSlot, Offset, Length, and Rights.
	GrantSize = 1 + 4 + 8 + 8 + 4
	// EncodedSize is the full fixed wire size of a Message.
	EncodedSize = HeaderSize + InlineCapacity + MaxCaps*4 + GrantSize
)

var (
	ErrInvalidDestBuff = errors.New("ipc: destination buffer too small")
	ErrInvalidSrcBuff  = errors.New("ipc: source buffer too small or malformed")
	ErrPayloadTooLarge = errors.New("ipc: inline payload exceeds 256 bytes")
	ErrTooManyCaps     = errors.New("ipc: more than 4 capability slots")
)

// Flag bits carried in the message header.
type Flag uint8

const (
	FlagHasGrant Flag = 1 << iota
)

// Header is the fixed 16-byte envelope header.
type Header struct {
	Length   uint32
	Tag      uint32
	CapCount uint8
	Flags    Flag
}

func (h Header) encode(b []byte) error {
	if len(b) < HeaderSize {
		return ErrInvalidDestBuff
	}
	binary.LittleEndian.PutUint32(b[0:], h.Length)
	binary.LittleEndian.PutUint32(b[4:], h.Tag)
	b[8] = h.CapCount
	b[9] = byte(h.Flags)
	for i := 10; i < HeaderSize; i++ {
		b[i] = 0
	}
	return nil
}

func (h *Header) decode(b []byte) error {
	if len(b) < HeaderSize {
		return ErrInvalidSrcBuff
	}
	h.Length = binary.LittleEndian.Uint32(b[0:])
	h.Tag = binary.LittleEndian.Uint32(b[4:])
	h.CapCount = b[8]
	h.Flags = Flag(b[9])
	return nil
}

// MemoryGrant carries {region_cap_slot, offset, length, rights} for
// zero-copy bulk transfer alongside a message.
type MemoryGrant struct {
	CapSlot cap.Slot
	Offset  uint64
	Length  uint64
	Rights  cap.Rights
}

// Message is the bounded IPC envelope: a header, up to 256 bytes of inline
// payload, up to 4 capability slot numbers, and an optional memory grant.
type Message struct {
	Header      Header
	Inline      [InlineCapacity]byte
	Caps        [MaxCaps]cap.Slot
	Grant       *MemoryGrant
}

// Simple builds a message carrying only inline data, truncated (silently,
// matching the reference's min(len, 256)) to InlineCapacity.
func Simple(tag uint32, data []byte) Message {
	var m Message
	m.Header.Tag = tag
	n := len(data)
	if n > InlineCapacity {
		n = InlineCapacity
	}
	copy(m.Inline[:n], data[:n])
	m.Header.Length = uint32(HeaderSize + n)
	return m
}

// WithCaps builds a message transferring up to 4 capability slots.
func WithCaps(tag uint32, caps []cap.Slot) Message {
	var m Message
	m.Header.Tag = tag
	n := len(caps)
	if n > MaxCaps {
		n = MaxCaps
	}
	copy(m.Caps[:n], caps[:n])
	m.Header.CapCount = uint8(n)
	m.Header.Length = HeaderSize
	return m
}

// Data returns the inline payload actually carried, per Header.Length.
func (m *Message) Data() []byte {
	dataLen := int(m.Header.Length) - HeaderSize
	if dataLen < 0 {
		dataLen = 0
	}
	if dataLen > InlineCapacity {
		dataLen = InlineCapacity
	}
	return m.Inline[:dataLen]
}

// Encode renders the message onto the flat wire buffer: header, inline
// payload (zero-padded), capability slots, then a single grant-present byte
// and (if present) the grant fields.
func (m *Message) Encode(buf []byte) (int, error) {
	if m.Header.CapCount > MaxCaps {
		return 0, ErrTooManyCaps
	}
	if int(m.Header.Length)-HeaderSize > InlineCapacity {
		return 0, ErrPayloadTooLarge
	}
	if len(buf) < EncodedSize {
		return 0, ErrInvalidDestBuff
	}
	header := m.Header
	if m.Grant != nil {
		header.Flags |= FlagHasGrant
	} else {
		header.Flags &^= FlagHasGrant
	}
	if err := header.encode(buf[:HeaderSize]); err != nil {
		return 0, err
	}
	off := HeaderSize
	copy(buf[off:off+InlineCapacity], m.Inline[:])
	off += InlineCapacity
	for i := 0; i < MaxCaps; i++ {
		binary.LittleEndian.PutUint32(buf[off:], uint32(m.Caps[i]))
		off += 4
	}
	if m.Grant != nil {
		buf[off] = 1
		off++
		binary.LittleEndian.PutUint32(buf[off:], uint32(m.Grant.CapSlot))
		off += 4
		binary.LittleEndian.PutUint64(buf[off:], m.Grant.Offset)
		off += 8
		binary.LittleEndian.PutUint64(buf[off:], m.Grant.Length)
		off += 8
		binary.LittleEndian.PutUint32(buf[off:], uint32(m.Grant.Rights))
		off += 4
	} else {
		for i := 0; i < GrantSize; i++ {
			buf[off+i] = 0
		}
		off += GrantSize
	}
	return off, nil
}

// Decode parses buf (at least EncodedSize bytes) into m.
func (m *Message) Decode(buf []byte) error {
	if len(buf) < EncodedSize {
		return ErrInvalidSrcBuff
	}
	if err := m.Header.decode(buf[:HeaderSize]); err != nil {
		return err
	}
	off := HeaderSize
	copy(m.Inline[:], buf[off:off+InlineCapacity])
	off += InlineCapacity
	for i := 0; i < MaxCaps; i++ {
		m.Caps[i] = cap.Slot(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	present := buf[off]
	off++
	slot := cap.Slot(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	offset := binary.LittleEndian.Uint64(buf[off:])
	off += 8
	length := binary.LittleEndian.Uint64(buf[off:])
	off += 8
	rights := cap.Rights(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	if present != 0 && m.Header.Flags&FlagHasGrant != 0 {
		m.Grant = &MemoryGrant{CapSlot: slot, Offset: offset, Length: length, Rights: rights}
	} else {
		m.Grant = nil
	}
	return nil
}
