package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
)

const insertTransitionsQuery = `
INSERT INTO follow_transitions (
	session_id,
	subscriber,
	type,
	hash,
	sequence,
	tip_sequence,
	emitted_at
) VALUES`

// InsertTransitions stores journal entries in ClickHouse.
func (r *Repository) InsertTransitions(ctx context.Context, entries []model.JournalEntry) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("insert_transitions", err, start)
	}()

	if len(entries) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, insertTransitionsQuery)
	if err != nil {
		return fmt.Errorf("prepare transitions batch: %w", err)
	}

	for _, entry := range entries {
		if err = batch.Append(
			entry.SessionID,
			entry.Subscriber,
			string(entry.Type),
			entry.Hash,
			entry.Sequence,
			entry.TipSequence,
			entry.EmittedAt,
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append transition: %w", err)
		}
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("insert transitions: %w", err)
	}
	return nil
}
