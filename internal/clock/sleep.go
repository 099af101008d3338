// Package clock provides the waits used by poll loops.
package clock

import (
	"context"
	"time"
)

// SleepWithContext waits for the duration or returns early if the context is canceled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	return SleepOrSignal(ctx, d, nil)
}

// SleepOrSignal waits for d, a value on wake, or cancellation of ctx. Only
// cancellation is reported as an error. A nil wake channel never fires.
func SleepOrSignal(ctx context.Context, d time.Duration, wake <-chan struct{}) error {
	timeout, stop := NewTimer(d)
	defer stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wake:
		return nil
	case <-timeout:
		return nil
	}
}

// NewTimer starts a timer and returns its channel and stop function, the
// shape loops inject to control their cadence in tests.
func NewTimer(d time.Duration) (<-chan time.Time, func() bool) {
	t := time.NewTimer(d)
	return t.C, t.Stop
}
