package store

import "errors"

// ErrConflict signals a write that violated a unique constraint the
// caller should treat as "already exists" rather than a hard failure.
var ErrConflict = errors.New("store: conflict")

// ErrNotFound signals a lookup by id/key that matched no row.
var ErrNotFound = errors.New("store: not found")
