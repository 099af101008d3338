package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodnatureofminers/chainfollow/internal/follow/chain"
	"github.com/goodnatureofminers/chainfollow/internal/follow/encoder"
)

// ErrSinkClosed marks a subscriber that can no longer receive elements.
var ErrSinkClosed = errors.New("subscriber sink closed")

// Status is the terminal state of a session.
type Status string

const (
	StatusCancelled          Status = "cancelled"
	StatusCursorLost         Status = "cursor_lost"
	StatusMalformedBlockData Status = "malformed_block_data"
	StatusSubscriberGone     Status = "subscriber_gone"
	StatusInternal           Status = "internal"
)

// TerminalError ends a session with a status the transport reports to the
// subscriber.
type TerminalError struct {
	Status Status
	Err    error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("stream terminated (%s): %v", e.Status, e.Err)
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

// Classify maps an error to the status that ends a session.
func Classify(err error) Status {
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	case errors.Is(err, chain.ErrCursorLost):
		return StatusCursorLost
	case errors.Is(err, encoder.ErrMalformedBlockData):
		return StatusMalformedBlockData
	case errors.Is(err, ErrSinkClosed):
		return StatusSubscriberGone
	default:
		return StatusInternal
	}
}
