// Package chaintest builds deterministic block trees for tests.
package chaintest

import (
	"math/big"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var genesisTime = time.Date(2023, time.April, 20, 0, 0, 0, 0, time.UTC)

// Genesis returns a block at sequence 0 with unit work.
func Genesis() model.Block {
	return model.Block{
		Header: model.BlockHeader{
			Hash:      HashOf("genesis"),
			Sequence:  0,
			Timestamp: genesisTime,
			Graffiti:  []byte("genesis"),
			Target:    big.NewInt(1 << 40),
			Work:      big.NewInt(1),
			NoteSize:  fn.Some(uint64(0)),
		},
		Size: 80,
	}
}

// Child builds a block on top of parent. Blocks with different names never
// collide, weight is added to the parent's cumulative work.
func Child(parent model.Block, name string, weight int64) model.Block {
	header := parent.Header
	noteSize := header.NoteSize.UnwrapOr(0) + 1
	return model.Block{
		Header: model.BlockHeader{
			Hash:         HashOf(name),
			Sequence:     header.Sequence + 1,
			PreviousHash: header.Hash,
			Timestamp:    header.Timestamp.Add(time.Minute),
			Graffiti:     []byte(name),
			Target:       big.NewInt(1 << 40),
			Work:         new(big.Int).Add(header.Work, big.NewInt(weight)),
			NoteSize:     fn.Some(noteSize),
		},
		Size: 80,
		Transactions: []model.Transaction{{
			Hash:       HashOf(name + "/coinbase"),
			Fee:        -20,
			Serialized: []byte(name),
		}},
	}
}

// HashOf derives a stable hash from a name.
func HashOf(name string) model.Hash {
	return model.Hash(chainhash.DoubleHashH([]byte(name)))
}

// Chain builds a linear chain on top of parent, one block per name, each
// adding one unit of work.
func Chain(parent model.Block, names ...string) []model.Block {
	blocks := make([]model.Block, 0, len(names))
	for _, name := range names {
		parent = Child(parent, name, 1)
		blocks = append(blocks, parent)
	}
	return blocks
}
