package neoogm

import (
	"errors"
	"fmt"
)

// ErrNotFound is a sentinel error returned by Find operations when no record
// matching the criteria is found in the database.
var ErrNotFound = errors.New("record not found")

// ErrOptimisticLocking is returned when a versioned entity was changed or
// deleted by someone else since it was read.
var ErrOptimisticLocking = errors.New("optimistic locking failure")

// OptimisticLockingError describes a versioned write that matched no node.
type OptimisticLockingError struct {
	Entity  string
	ID      any
	Version any
}

func (e *OptimisticLockingError) Error() string {
	return fmt.Sprintf("%s with id %v and version %v: %v", e.Entity, e.ID, e.Version, ErrOptimisticLocking)
}

func (e *OptimisticLockingError) Unwrap() error { return ErrOptimisticLocking }
