package journal

import (
	"context"
	"time"

	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	Store interface {
		InsertTransitions(ctx context.Context, entries []model.JournalEntry) error
	}

	Metrics interface {
		ObserveFlush(err error, entries int, started time.Time)
		ObserveDropped()
	}
)
