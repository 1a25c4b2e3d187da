package collection

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHash is matched by *InvalidHashError.
	ErrInvalidHash = errors.New("invalid portable data hash")

	// ErrHashMismatch is matched by *HashMismatchError.
	ErrHashMismatch = errors.New("portable_data_hash does not match hash of manifest_text")

	// ErrInvalidReference is returned by NormalizeUUID.
	ErrInvalidReference = errors.New("invalid collection reference")
)

// InvalidHashError means a supplied portable data hash is not a locator.
type InvalidHashError struct { // A
	Hash string
	Err  error
}

func (e *InvalidHashError) Error() string { // A
	return fmt.Sprintf("portable_data_hash %q: %v", e.Hash, e.Err)
}

func (e *InvalidHashError) Is(target error) bool { // A
	return target == ErrInvalidHash
}

func (e *InvalidHashError) Unwrap() error { // A
	return e.Err
}

// HashMismatchError means the manifest does not hash to the stored
// portable data hash.
type HashMismatchError struct { // A
	Computed string
	Provided string
}

func (e *HashMismatchError) Error() string { // A
	return fmt.Sprintf("%v: computed %s, provided %s", ErrHashMismatch, e.Computed, e.Provided)
}

func (e *HashMismatchError) Is(target error) bool { // A
	return target == ErrHashMismatch
}
