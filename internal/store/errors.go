package store

import "errors"

// Failure taxonomy for the Store layer (spec §4.1). Callers in internal/identity,
// internal/mail, internal/reservations map these onto the mcperr taxonomy
// exposed to MCP callers; they are deliberately a separate, narrower set
// focused on storage-layer failure modes.
var (
	ErrUnavailable        = errors.New("store: unavailable")
	ErrConstraintViolation = errors.New("store: constraint violation")
	ErrMigrationFailed    = errors.New("store: migration failed")
	ErrTimeout            = errors.New("store: timeout")
	ErrNotFound           = errors.New("store: not found")
)
