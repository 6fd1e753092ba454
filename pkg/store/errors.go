// Package store defines the tenant-scoped event store contract (spec.md
// §4.2) and two implementations: an in-memory store used by unit tests and
// single-node deployments, and a Postgres-backed store used in production.
package store

import (
	"errors"
	"fmt"
)

// Cause is the StorageError cause tag taxonomy from spec.md §4.2.
type Cause string

const (
	CauseConflict   Cause = "conflict"
	CauseConstraint Cause = "constraint"
	CauseBackend    Cause = "backend"
)

// StorageError is returned by every write failure; it always carries a
// Cause so callers (the ingest pipeline, the batch writer) can decide
// whether to retry.
type StorageError struct {
	Cause Cause
	Op    string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s (%s): %v", e.Op, e.Cause, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func newStorageError(op string, cause Cause, err error) error {
	return &StorageError{Op: op, Cause: cause, Err: err}
}

// ErrNotFound is returned by single-resource reads that find nothing.
var ErrNotFound = errors.New("not found")

// IsConflict reports whether err is a StorageError with CauseConflict —
// the ingest pipeline retries on this (spec.md §5).
func IsConflict(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Cause == CauseConflict
}
