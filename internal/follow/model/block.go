package model

import (
	"math"
	"math/big"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// MaxAmount is the largest fee or asset value a transaction can carry.
const MaxAmount = math.MaxInt64

// Coin names the chain family a source serves.
type Coin string

// Network names the network of a chain source.
type Network string

const (
	BTC Coin = "btc"

	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Regtest Network = "regtest"
)

// ChainHead points at a block in chain history.
type ChainHead struct {
	Hash     Hash
	Sequence uint64
}

// BlockHeader describes a block without its transactions.
type BlockHeader struct {
	Hash         Hash
	Sequence     uint64
	PreviousHash Hash
	Timestamp    time.Time
	Graffiti     []byte
	// Target is the proof of work target the block hash had to meet.
	Target *big.Int
	// Work is the cumulative chain work up to and including this block.
	Work     *big.Int
	NoteSize fn.Option[uint64]
}

// Head returns the chain head pointing at h.
func (h BlockHeader) Head() ChainHead {
	return ChainHead{Hash: h.Hash, Sequence: h.Sequence}
}

// Block is an immutable header plus its ordered transactions.
type Block struct {
	Header       BlockHeader
	Size         uint64
	Transactions []Transaction
}

// Note is an output created by a transaction, kept in its serialized form.
type Note struct {
	Serialized []byte
}

// Spend consumes an earlier note.
type Spend struct {
	Nullifier  Hash
	Commitment Hash
	// Size is the note tree size the spend proof was built against.
	Size uint32
}

// Mint creates Value units of the asset serialized in Asset.
type Mint struct {
	Asset               []byte
	Value               uint64
	TransferOwnershipTo []byte
}

// Burn destroys Value units of an asset.
type Burn struct {
	AssetID Hash
	Value   uint64
}

// Transaction is a block transaction with its effects.
type Transaction struct {
	Hash Hash
	// Fee is negative for the miner reward transaction.
	Fee        int64
	Expiration uint32
	Notes      []Note
	Spends     []Spend
	Mints      []Mint
	Burns      []Burn
	Serialized []byte
}

// BlockWork returns the expected number of hashes needed to find a block
// meeting target, 2^256 / (target + 1).
func BlockWork(target *big.Int) *big.Int {
	if target == nil || target.Sign() <= 0 {
		return new(big.Int)
	}
	denominator := new(big.Int).Add(target, big.NewInt(1))
	return new(big.Int).Div(oneLsh256, denominator)
}

var oneLsh256 = new(big.Int).Lsh(big.NewInt(1), 256)
