// Package uuid wraps google/uuid for report format identifiers. New ids are
// version 7 so that they sort by creation time; ids coming from the feed are
// whatever version the feed published and are accepted as-is.
package uuid

import (
	"github.com/google/uuid"
)

// UUID represents a UUID
type UUID = uuid.UUID

// New returns a new random (version 7) UUID
func New() UUID {
	uuidv7, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return uuidv7
}

// NewString returns a new version 7 UUID in canonical text form.
func NewString() string {
	return New().String()
}

// Parse parses a UUID string
func Parse(s string) (UUID, error) {
	return uuid.Parse(s)
}

// IsValid reports whether s is a UUID in canonical text form.
func IsValid(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// Nil is the zero UUID
var Nil = uuid.Nil
