// Package tsid provides the time-sortable identifier used across the
// inference log. Identifiers are UUIDv7: the natural numeric ordering of
// their 128 bits equals creation-time ordering, so id range queries double
// as time range queries.
package tsid

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID is a time-sortable unique identifier (UUIDv7).
type ID uuid.UUID

// New generates a fresh ID. The returned id sorts after every id generated
// earlier (within clock resolution; the random tail breaks same-millisecond
// collisions).
func New() (ID, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return ID{}, fmt.Errorf("generating uuidv7: %w", err)
	}
	return ID(u), nil
}

// Parse decodes an ID from its canonical string form.
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("parsing id %q: %w", s, err)
	}
	return ID(u), nil
}

// FromBytes decodes an ID from its 16-byte binary form (the storage encoding).
func FromBytes(b []byte) (ID, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return ID{}, fmt.Errorf("decoding id bytes: %w", err)
	}
	return ID(u), nil
}

// String returns the canonical lowercase hex-and-dash form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// Bytes returns the 16-byte big-endian binary form. Byte-wise comparison of
// this form equals numeric comparison of the full identifier, which is why
// ids are stored as BLOBs rather than strings.
func (id ID) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, id[:])
	return b
}

// MarshalText encodes the id in canonical string form; this is the wire
// encoding used by the HTTP and MCP surfaces.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText decodes an id from its canonical string form.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// IsZero reports whether id is the all-zero identifier.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Compare orders two ids numerically over their full bit width. It returns
// -1, 0, or +1. All id ordering in this module must go through Compare (or
// the BLOB storage form); identifiers must never be ordered as strings,
// since not every encoding of a UUID is byte-comparable.
func Compare(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}

// Timestamp derives the creation time from the id's leading 48-bit
// millisecond field.
func (id ID) Timestamp() time.Time {
	var buf [8]byte
	copy(buf[2:], id[:6])
	ms := int64(binary.BigEndian.Uint64(buf[:]))
	return time.UnixMilli(ms).UTC()
}
