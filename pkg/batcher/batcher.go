// Package batcher provides a generic buffered batch processor with rate limiting.
package batcher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// Config controls batch size, flush cadence and buffering.
type Config struct {
	// Size flushes the buffer once it holds this many items.
	Size int
	// Interval flushes whatever is buffered at least this often.
	Interval time.Duration
	// Capacity bounds the queue between Offer and the flush loop.
	Capacity int
	// RPS caps flushes per second.
	RPS int
}

// Batcher buffers items offered by producers and hands them to a flush
// callback in batches. Producers never block: items offered while the queue
// is full are rejected.
type Batcher[T any] struct {
	flushCallback func(context.Context, []T) error
	items         chan T
	size          int
	interval      time.Duration
	rl            ratelimit.Limiter
	logger        *zap.Logger
	done          chan struct{}
}

// New constructs a Batcher.
func New[T any](cfg Config, flushCallback func(context.Context, []T) error, logger *zap.Logger) (*Batcher[T], error) {
	if flushCallback == nil {
		return nil, errors.New("flush callback is required")
	}
	if cfg.Size <= 0 {
		return nil, errors.New("batch size must be positive")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("flush interval must be positive")
	}
	if cfg.Capacity < cfg.Size {
		cfg.Capacity = cfg.Size * 2
	}
	rl := ratelimit.NewUnlimited()
	if cfg.RPS > 0 {
		rl = ratelimit.New(cfg.RPS)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Batcher[T]{
		flushCallback: flushCallback,
		items:         make(chan T, cfg.Capacity),
		size:          cfg.Size,
		interval:      cfg.Interval,
		rl:            rl,
		logger:        logger,
		done:          make(chan struct{}),
	}, nil
}

// Offer queues an item without blocking. It reports false when the queue is
// full or the flush loop has exited.
func (b *Batcher[T]) Offer(item T) bool {
	select {
	case <-b.done:
		return false
	default:
	}

	select {
	case b.items <- item:
		return true
	default:
		return false
	}
}

// Run flushes batches until ctx is done. Items still queued at that point
// are flushed with a context detached from ctx's cancellation.
func (b *Batcher[T]) Run(ctx context.Context) error {
	defer close(b.done)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	buf := make([]T, 0, b.size)
	for {
		select {
		case <-ctx.Done():
			buf = b.drain(buf)
			b.flushAll(context.WithoutCancel(ctx), buf)
			return ctx.Err()

		case item := <-b.items:
			buf = append(buf, item)
			if len(buf) >= b.size {
				buf = b.flush(ctx, buf)
			}

		case <-ticker.C:
			buf = b.flush(ctx, buf)
		}
	}
}

func (b *Batcher[T]) drain(buf []T) []T {
	for {
		select {
		case item := <-b.items:
			buf = append(buf, item)
		default:
			return buf
		}
	}
}

func (b *Batcher[T]) flushAll(ctx context.Context, buf []T) {
	for len(buf) > 0 {
		n := min(len(buf), b.size)
		b.flush(ctx, buf[:n])
		buf = buf[n:]
	}
}

func (b *Batcher[T]) flush(ctx context.Context, buf []T) []T {
	if len(buf) == 0 {
		return buf
	}

	b.rl.Take()
	if err := b.flushCallback(ctx, buf); err != nil {
		b.logger.Error("batch not flushed", zap.Int("size", len(buf)), zap.Error(err))
	} else {
		b.logger.Debug("batch flushed", zap.Int("size", len(buf)))
	}
	return buf[:0]
}
