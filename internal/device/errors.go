package device

import "errors"

// Errors returned by the entry repository. Check with errors.Is.
var (
	// ErrEntryNotFound is returned when no entry matches the lookup key.
	ErrEntryNotFound = errors.New("device: entry not found")

	// ErrEntryExists is returned when a rabbit host is already registered
	// under another entry id.
	ErrEntryExists = errors.New("device: entry already exists")

	// ErrInvalidEntry is returned when an entry fails validation.
	ErrInvalidEntry = errors.New("device: invalid entry")
)
