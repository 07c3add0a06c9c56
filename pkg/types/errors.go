package types

import "errors"

// Sentinel errors shared across the engine. Callers match with errors.Is;
// packages add context with fmt.Errorf("...: %w", err).
var (
	// ErrNotFound indicates a namespace or chunk that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a create on a name that already exists.
	ErrConflict = errors.New("already exists")

	// ErrUnavailable indicates a degraded collaborator (search channel,
	// cache backend, embedder). Callers are expected to degrade, not fail.
	ErrUnavailable = errors.New("unavailable")

	// ErrInvalidArgument indicates a request that fails validation.
	ErrInvalidArgument = errors.New("invalid argument")
)
