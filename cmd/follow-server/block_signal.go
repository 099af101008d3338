//go:build !zmq

package main

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// startBlockSignal without zmq support only accepts an empty address; the
// source then relies on polling alone.
func startBlockSignal(_ context.Context, addr string, _ *zap.Logger) (<-chan struct{}, error) {
	if addr != "" {
		return nil, errors.New("zmq block signal requested but binary built without the zmq tag")
	}
	return nil, nil
}
