package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
)

const sessionTransitionsQuery = `
SELECT
	subscriber,
	type,
	hash,
	sequence,
	tip_sequence,
	emitted_at
FROM follow_transitions
WHERE session_id = ?
ORDER BY emitted_at ASC
LIMIT ?`

// SessionTransitions returns up to limit journal entries of a session in
// emission order.
func (r *Repository) SessionTransitions(ctx context.Context, sessionID string, limit uint64) ([]model.JournalEntry, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("session_transitions", err, start)
	}()

	if sessionID == "" {
		err = errors.New("session id is required")
		return nil, err
	}
	if limit == 0 {
		return nil, nil
	}

	rows, err := r.conn.Query(ctx, sessionTransitionsQuery, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query session transitions: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", cerr)
		}
	}()

	var entries []model.JournalEntry
	for rows.Next() {
		entry := model.JournalEntry{SessionID: sessionID}
		var typ string
		if err = rows.Scan(
			&entry.Subscriber,
			&typ,
			&entry.Hash,
			&entry.Sequence,
			&entry.TipSequence,
			&entry.EmittedAt,
		); err != nil {
			return nil, fmt.Errorf("scan session transition: %w", err)
		}
		entry.Type = model.TransitionType(typ)
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session transitions: %w", err)
	}

	return entries, nil
}
