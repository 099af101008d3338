package processor

import (
	"context"

	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// Source is the part of the chain the processor reads.
	Source interface {
		Tip(ctx context.Context) (model.ChainHead, error)
		Header(ctx context.Context, hash model.Hash) (model.BlockHeader, error)
		HashAtSequence(ctx context.Context, sequence uint64) (model.Hash, error)
		Block(ctx context.Context, hash model.Hash) (model.Block, error)
	}
)

// EmitFunc receives transitions in order. An error stops the update and
// leaves the cursor before the rejected transition.
type EmitFunc func(ctx context.Context, transition model.Transition) error
