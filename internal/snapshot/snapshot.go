// Package snapshot dumps a point-in-time view of kernel object state for
// debugging and test assertions. It is strictly read-only and one-way:
// nothing in this package ever reconstitutes a running kernel from a
// snapshot file.
package snapshot

import (
	"bytes"
	"encoding/gob"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/cap"
)

// Snapshot is a gob-encodable capture of the capability registry's live
// object state at one instant.
type Snapshot struct {
	ID        uuid.UUID
	TakenAt   time.Time
	Objects   map[cap.ObjectID]cap.ObjectSnapshot
}

// RegistrySource is the subset of kernel state a snapshot needs; a
// *cap.Registry (such as kernel.Kernel's Registry field) satisfies it.
type RegistrySource interface {
	Snapshot() map[cap.ObjectID]cap.ObjectSnapshot
}

// Capture takes a point-in-time snapshot of reg, tagged with a fresh UUID.
func Capture(reg RegistrySource) Snapshot {
	return Snapshot{
		ID:      uuid.New(),
		TakenAt: time.Now(),
		Objects: reg.Snapshot(),
	}
}

// Encode gob-encodes s and compresses it with zstd.
func Encode(s Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	zw, err := zstd.NewWriter(&out)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(buf.Bytes()); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Decode reverses Encode.
func Decode(data []byte) (Snapshot, error) {
	zr, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return Snapshot{}, err
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return Snapshot{}, err
	}

	var s Snapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}
