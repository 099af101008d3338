// Package chain defines the read-only view of the canonical chain the
// follow pipeline consumes.
package chain

import (
	"context"

	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
)

type (
	// Reader answers lookups against the canonical chain. Two calls are
	// never atomic with respect to each other.
	Reader interface {
		// Tip returns the current canonical tip.
		Tip(ctx context.Context) (model.ChainHead, error)
		// Header returns any known header, canonical or not.
		Header(ctx context.Context, hash model.Hash) (model.BlockHeader, error)
		// HashAtSequence returns the canonical hash at sequence.
		HashAtSequence(ctx context.Context, sequence uint64) (model.Hash, error)
		// Block returns any known block, canonical or not.
		Block(ctx context.Context, hash model.Hash) (model.Block, error)
	}

	// Notifier registers observers for chain mutations.
	Notifier interface {
		SubscribeConnected() (*HeaderSubscription, error)
		SubscribeDisconnected() (*HeaderSubscription, error)
		SubscribeForks() (*BlockSubscription, error)
	}

	// Source is the full chain collaborator.
	Source interface {
		Reader
		Notifier
	}
)

// HeaderSubscription delivers headers in the order the chain produced them
// until Cancel is called. Updates is closed after Cancel returns.
type HeaderSubscription struct {
	Updates <-chan model.BlockHeader
	Cancel  func()
}

// BlockSubscription delivers side branch blocks until Cancel is called.
type BlockSubscription struct {
	Updates <-chan model.Block
	Cancel  func()
}
