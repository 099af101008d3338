// Package journal records every delivered transition into a store without
// slowing down the sessions that produce them.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/goodnatureofminers/chainfollow/internal/follow/encoder"
	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
	"github.com/goodnatureofminers/chainfollow/pkg/batcher"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize     = 500
	DefaultFlushInterval = 2 * time.Second
	DefaultFlushRPS      = 10
)

// Config tunes how entries are grouped before they reach the store.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	Capacity      int
	FlushRPS      int
}

// Recorder queues journal entries and writes them in batches.
type Recorder struct {
	store   Store
	metrics Metrics
	batcher *batcher.Batcher[model.JournalEntry]
	logger  *zap.Logger
	now     func() time.Time
}

// NewRecorder validates dependencies and builds a Recorder. Run must be
// started for entries to reach the store.
func NewRecorder(store Store, metrics Metrics, cfg Config, logger *zap.Logger) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("journal store is required")
	}
	if metrics == nil {
		return nil, errors.New("journal metrics is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.FlushRPS <= 0 {
		cfg.FlushRPS = DefaultFlushRPS
	}

	r := &Recorder{
		store:   store,
		metrics: metrics,
		logger:  logger.Named("journal"),
		now:     time.Now,
	}
	b, err := batcher.New(batcher.Config{
		Size:     cfg.BatchSize,
		Interval: cfg.FlushInterval,
		Capacity: cfg.Capacity,
		RPS:      cfg.FlushRPS,
	}, r.flush, r.logger)
	if err != nil {
		return nil, err
	}
	r.batcher = b
	return r, nil
}

// Record queues an entry for element. When the queue is full the entry is
// dropped and counted.
func (r *Recorder) Record(_ context.Context, sessionID, subscriber string, element encoder.Element) {
	entry := model.JournalEntry{
		SessionID:   sessionID,
		Subscriber:  subscriber,
		Type:        element.Type,
		Hash:        element.Block.Hash,
		Sequence:    element.Block.Sequence,
		TipSequence: element.Head.Sequence,
		EmittedAt:   r.now().UTC(),
	}
	if !r.batcher.Offer(entry) {
		r.metrics.ObserveDropped()
		r.logger.Debug("journal entry dropped",
			zap.String("session", sessionID),
			zap.String("hash", entry.Hash))
	}
}

// Run writes batches until ctx is done, then flushes what is still queued.
func (r *Recorder) Run(ctx context.Context) error {
	err := r.batcher.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Recorder) flush(ctx context.Context, entries []model.JournalEntry) error {
	started := time.Now()
	err := r.store.InsertTransitions(ctx, entries)
	r.metrics.ObserveFlush(err, len(entries), started)
	return err
}
