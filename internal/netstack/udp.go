// Package netstack holds the wire-format pieces of a network stack the
// kernel core needs for its own test fixtures, without running through an
// actual packet-capture stack; nothing here opens a socket.
package netstack

import (
	"encoding/binary"
	"errors"
)

// UdpHeaderSize is the fixed UDP header length in bytes.
const UdpHeaderSize = 8

var ErrBufferTooSmall = errors.New("netstack: buffer too small")

// UdpHeader is a parsed UDP datagram header. All multi-byte fields are
// big-endian on the wire, per RFC 768.
type UdpHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
}

// ParseUdp reads a UDP header off the front of data and returns it along
// with whatever payload bytes follow it in data, failing with
// ErrBufferTooSmall only if data is shorter than the header itself. The
// header's own Length field is reported as parsed but is not used to bound
// the payload slice: this parser serves kernel test fixtures fed synthetic
// packets, not a wire receiver that must distrust a peer's length claim.
func ParseUdp(data []byte) (UdpHeader, []byte, error) {
	if len(data) < UdpHeaderSize {
		return UdpHeader{}, nil, ErrBufferTooSmall
	}
	h := UdpHeader{
		SrcPort:  binary.BigEndian.Uint16(data[0:2]),
		DstPort:  binary.BigEndian.Uint16(data[2:4]),
		Length:   binary.BigEndian.Uint16(data[4:6]),
		Checksum: binary.BigEndian.Uint16(data[6:8]),
	}
	payload := data[UdpHeaderSize:]
	return h, payload, nil
}

// BuildUdp encodes a UDP datagram with a zero checksum, leaving optional
// integrity checking to a lower layer.
func BuildUdp(srcPort, dstPort uint16, payload []byte) []byte {
	length := UdpHeaderSize + len(payload)
	out := make([]byte, length)
	binary.BigEndian.PutUint16(out[0:2], srcPort)
	binary.BigEndian.PutUint16(out[2:4], dstPort)
	binary.BigEndian.PutUint16(out[4:6], uint16(length))
	binary.BigEndian.PutUint16(out[6:8], 0)
	copy(out[UdpHeaderSize:], payload)
	return out
}
