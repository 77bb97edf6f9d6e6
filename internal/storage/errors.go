package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrConflict is returned when an optimistic state guard fails, e.g. a
// proposal that is no longer pending at review time. The caller sees the
// conflict; nothing was mutated.
var ErrConflict = errors.New("storage: state conflict")
