package model

import "time"

// JournalEntry is the audit record of one transition delivered to a
// subscriber.
type JournalEntry struct {
	SessionID   string
	Subscriber  string
	Type        TransitionType
	Hash        string
	Sequence    uint64
	TipSequence uint64
	EmittedAt   time.Time
}
