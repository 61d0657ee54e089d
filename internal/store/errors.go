package store

import "errors"

var (
	// ErrNotFound is returned when a query finds no row
	ErrNotFound = errors.New("not found")

	// ErrPersistence wraps a failed flush. The batch stays in the backlog
	ErrPersistence = errors.New("persistence failure")

	// ErrDataInconsistency marks rows that break the session invariants
	ErrDataInconsistency = errors.New("data inconsistency")
)
