package repository

import "errors"

// Validation errors are surfaced synchronously, before any state mutation.
// Remote failures never appear here: the offline-first contract swallows
// them after logging, leaving an unset syncedAt as the only trace.
var (
	ErrNameRequired = errors.New("name is required")
	// ErrLocationInUse rejects deleting a storage location that still has
	// non-deleted items filed under it.
	ErrLocationInUse = errors.New("storage location still has items assigned to it")
)
