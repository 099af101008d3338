package chain

import "errors"

var (
	// ErrBlockNotFound is returned when a block or sequence is unknown,
	// including history that was pruned.
	ErrBlockNotFound = errors.New("block not found")

	// ErrSourceUnavailable marks a lookup that failed for a transient reason.
	// Callers retry on their next tick.
	ErrSourceUnavailable = errors.New("chain source unavailable")

	// ErrCursorLost is returned when no ancestor of a cursor can be located
	// on the canonical chain.
	ErrCursorLost = errors.New("cursor lost")
)
