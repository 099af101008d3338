package stream

import (
	"context"
	"time"

	"github.com/goodnatureofminers/chainfollow/internal/follow/chain"
	"github.com/goodnatureofminers/chainfollow/internal/follow/encoder"
	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	Source interface {
		Tip(ctx context.Context) (model.ChainHead, error)
		Header(ctx context.Context, hash model.Hash) (model.BlockHeader, error)
		HashAtSequence(ctx context.Context, sequence uint64) (model.Hash, error)
		Block(ctx context.Context, hash model.Hash) (model.Block, error)
		SubscribeConnected() (*chain.HeaderSubscription, error)
		SubscribeDisconnected() (*chain.HeaderSubscription, error)
		SubscribeForks() (*chain.BlockSubscription, error)
	}

	Encoder interface {
		Encode(ctx context.Context, block model.Block, typ model.TransitionType, serialized bool) (encoder.BlockSummary, encoder.Diagnostics, error)
	}

	// Sink delivers elements to one subscriber.
	Sink interface {
		Send(ctx context.Context, element encoder.Element) error
	}

	// Journal keeps an audit trail of emitted elements. It must not block.
	Journal interface {
		Record(ctx context.Context, sessionID, subscriber string, element encoder.Element)
	}

	Metrics interface {
		SessionStarted()
		SessionFinished(status Status, started time.Time)
		ObserveUpdate(err error, transitions int, started time.Time)
		ObserveTransition(typ model.TransitionType)
		ObserveNoteCheck(diagnostics encoder.Diagnostics)
	}
)
