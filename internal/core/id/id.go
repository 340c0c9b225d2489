// Package id provides UUIDv7 identifiers for ledger rows.
// UUIDv7 values are time-ordered and compare byte-wise the same way
// PostgreSQL compares the uuid type, so (date, id) is a total chain order.
package id

import (
	"bytes"

	"github.com/google/uuid"
)

// ID is the identifier type used by every persisted entity.
type ID = uuid.UUID

// New generates a new UUIDv7.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts string to ID, panics on error. Tests only.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns zero-value UUID.
func Nil() ID {
	return uuid.Nil
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// Compare orders two ids the way the database does (-1, 0, +1).
func Compare(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}
