// Package guard holds the input checks mdconv applies at its edges:
// token secrets, media file names and document ids coming from clients.
package guard

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// MinSecretLen is the minimum length of an HS256 token secret.
const MinSecretLen = 32

// maxIDLen bounds ids accepted from clients.
const maxIDLen = 128

var (
	// ErrSecretTooShort is returned when a secret does not meet MinSecretLen.
	ErrSecretTooShort = fmt.Errorf("guard: secret must be at least %d bytes", MinSecretLen)

	// ErrPathTraversal is returned when a client supplied name escapes its directory.
	ErrPathTraversal = errors.New("guard: path traversal detected")
)

// ValidateSecret checks that secret is at least MinSecretLen bytes.
func ValidateSecret(secret []byte) error {
	if len(secret) < MinSecretLen {
		return ErrSecretTooShort
	}
	return nil
}

// FileIn resolves name as a plain file directly inside dir. Names with
// separators, dot segments or a leading dot are rejected.
func FileIn(dir, name string) (string, error) {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", ErrPathTraversal
	}
	return filepath.Join(dir, name), nil
}

// ValidateID rejects document ids that could not have been issued by the
// service. Allows alphanumeric, underscore and hyphen.
func ValidateID(s string) error {
	if s == "" {
		return errors.New("guard: id must not be empty")
	}
	if len(s) > maxIDLen {
		return fmt.Errorf("guard: id too long (max %d)", maxIDLen)
	}
	for _, r := range s {
		if !isIDChar(r) {
			return fmt.Errorf("guard: invalid character %q in id", r)
		}
	}
	return nil
}

func isIDChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-'
}
