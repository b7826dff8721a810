// Package point defines the identifiers, timestamps, intervals and values
// shared by every component of the processing engine.
package point

import (
	"github.com/google/uuid"
)

// ID identifies a point. It is an opaque 128 bit value with one reserved bit
// used to key deletion tombstones: the "deleted" companion of an ID carries
// the same bits with that flag set.
type ID uuid.UUID

// deletedBit is within the clock-seq octet, outside the RFC 4122 variant
// bits; NewID clears it, so a generated identifier never carries it.
const deletedBit = 0x20

// NewID returns a new random ID, with the deleted flag clear.
func NewID() ID {
	return ID(uuid.New()).Undeleted()
}

// ParseID parses the canonical string form of an ID.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	return ID(u), err
}

// MustParseID parses the canonical string form of an ID, panicking on error.
func MustParseID(s string) ID {
	return ID(uuid.MustParse(s))
}

func (x ID) String() string {
	return uuid.UUID(x).String()
}

// IsZero returns true for the zero ID.
func (x ID) IsZero() bool {
	return x == ID{}
}

// Deleted returns the deleted companion of this ID.
func (x ID) Deleted() ID {
	x[8] |= deletedBit
	return x
}

// Undeleted returns the ID with the deleted flag cleared.
func (x ID) Undeleted() ID {
	x[8] &^= deletedBit
	return x
}

// IsDeleted returns true when the deleted flag is set.
func (x ID) IsDeleted() bool {
	return x[8]&deletedBit != 0
}
