// Package idgen provides pluggable ID generation for documents and the
// images extracted from them.
//
// Constructors that mint identifiers (convert.Converter, docpipe.Pipeline)
// accept a Generator, so tests can swap in deterministic IDs.
package idgen

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// Time-sortable, used for document ids.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Random returns a Generator that produces random (v4) UUID strings.
// Used for image file names, where ordering carries no meaning.
func Random() Generator {
	return uuid.NewString
}

// Sequence returns a Generator that yields prefix1, prefix2, ... Safe for
// concurrent use; meant for tests.
func Sequence(prefix string) Generator {
	var n atomic.Int64
	return func() string {
		return prefix + strconv.FormatInt(n.Add(1), 10)
	}
}

// Default is the generator used for document ids.
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string and returns its canonical form.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID: %w", err)
	}
	return u.String(), nil
}
