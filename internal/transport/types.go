package transport

import (
	"context"

	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// ChainHealth reports whether the chain source can currently serve reads.
	ChainHealth interface {
		Healthy() bool
	}

	TransitionStore interface {
		SessionTransitions(ctx context.Context, sessionID string, limit uint64) ([]model.JournalEntry, error)
	}
)
