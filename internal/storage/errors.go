package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for storage operations. Backends normalize their native
// failures onto these so callers can errors.Is without knowing which
// backend is in play.
var (
	ErrNotFound     = errors.New("object not found")
	ErrKeyExists    = errors.New("object already exists at this key")
	ErrInvalidKey   = errors.New("invalid storage key")
	ErrTooLarge     = errors.New("object exceeds maximum size")
	ErrAccessDenied = errors.New("access denied")
)

// StorageError carries the operation and key alongside the underlying
// failure. It unwraps to the sentinel for errors.Is checks.
type StorageError struct {
	Op  string // "Put", "Get", "Delete", "URL", "Exists"
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
