// Package bitcoin follows a Bitcoin node and exposes its canonical chain as a
// follow source.
package bitcoin

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
	"github.com/goodnatureofminers/chainfollow/pkg/safe"
	"github.com/goodnatureofminers/chainfollow/pkg/workerpool"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// BtcToSatoshis converts a BTC amount to satoshis.
func BtcToSatoshis(value float64) (int64, error) {
	amt, err := btcutil.NewAmount(value)
	if err != nil {
		return 0, err
	}
	if amt < 0 {
		return 0, fmt.Errorf("negative amount: %d", amt)
	}
	return int64(amt), nil
}

// ParseBits parses a bits string into a 32-bit value.
func ParseBits(value string) (uint32, error) {
	parsed, err := strconv.ParseUint(value, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(parsed), nil
}

// fromChainHash converts a node hash into display order.
func fromChainHash(h chainhash.Hash) model.Hash {
	var out model.Hash
	for i := range h {
		out[len(h)-1-i] = h[i]
	}
	return out
}

func toChainHash(h model.Hash) *chainhash.Hash {
	var out chainhash.Hash
	for i := range h {
		out[len(h)-1-i] = h[i]
	}
	return &out
}

// Converter maps verbose node blocks into model blocks.
type Converter struct {
	rpc         RPCClient
	resolveFees bool
	workers     int
}

// NewConverter creates a Converter. With resolveFees set, fees of non-coinbase
// transactions are computed from their previous outputs, which costs one
// getrawtransaction per foreign parent; otherwise they are zero.
func NewConverter(rpc RPCClient, resolveFees bool, workers int) *Converter {
	return &Converter{rpc: rpc, resolveFees: resolveFees, workers: workers}
}

// Block converts src. Header.Work is left nil for the chain index to
// accumulate from the parent.
func (c *Converter) Block(ctx context.Context, src *btcjson.GetBlockVerboseTxResult) (model.Block, error) {
	hash, err := model.ParseHash(src.Hash)
	if err != nil {
		return model.Block{}, fmt.Errorf("block %d hash: %w", src.Height, err)
	}
	sequence, err := safe.Uint64(src.Height)
	if err != nil {
		return model.Block{}, fmt.Errorf("block %s height: %w", src.Hash, err)
	}
	var previous model.Hash
	if src.PreviousHash != "" {
		if previous, err = model.ParseHash(src.PreviousHash); err != nil {
			return model.Block{}, fmt.Errorf("block %s previous hash: %w", src.Hash, err)
		}
	}
	bits, err := ParseBits(src.Bits)
	if err != nil {
		return model.Block{}, fmt.Errorf("block %s bits parse: %w", src.Hash, err)
	}
	size, err := safe.Uint64(src.Size)
	if err != nil {
		return model.Block{}, fmt.Errorf("block %s size: %w", src.Hash, err)
	}

	prevouts, err := c.prevouts(ctx, src.Tx)
	if err != nil {
		return model.Block{}, fmt.Errorf("block %s: %w", src.Hash, err)
	}

	header := model.BlockHeader{
		Hash:         hash,
		Sequence:     sequence,
		PreviousHash: previous,
		Timestamp:    time.Unix(src.Time, 0).UTC(),
		Target:       blockchain.CompactToBig(bits),
		NoteSize:     fn.None[uint64](),
	}
	txs := make([]model.Transaction, 0, len(src.Tx))
	for _, raw := range src.Tx {
		tx, err := c.transaction(raw, prevouts)
		if err != nil {
			return model.Block{}, fmt.Errorf("block %s: %w", src.Hash, err)
		}
		if isCoinbase(raw) && len(raw.Vin) > 0 {
			graffiti, err := hex.DecodeString(raw.Vin[0].Coinbase)
			if err != nil {
				return model.Block{}, fmt.Errorf("block %s coinbase script: %w", src.Hash, err)
			}
			header.Graffiti = graffiti
		}
		txs = append(txs, tx)
	}

	return model.Block{Header: header, Size: size, Transactions: txs}, nil
}

func (c *Converter) transaction(raw btcjson.TxRawResult, prevouts map[string][]int64) (model.Transaction, error) {
	hash, err := model.ParseHash(raw.Txid)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("tx hash: %w", err)
	}
	serialized, err := hex.DecodeString(raw.Hex)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("tx %s hex: %w", raw.Txid, err)
	}

	notes := make([]model.Note, 0, len(raw.Vout))
	var out int64
	for idx, vout := range raw.Vout {
		value, err := BtcToSatoshis(vout.Value)
		if err != nil {
			return model.Transaction{}, fmt.Errorf("tx %s output %d value: %w", raw.Txid, idx, err)
		}
		script, err := hex.DecodeString(vout.ScriptPubKey.Hex)
		if err != nil {
			return model.Transaction{}, fmt.Errorf("tx %s output %d script: %w", raw.Txid, idx, err)
		}
		note, err := SerializeNote(value, script)
		if err != nil {
			return model.Transaction{}, fmt.Errorf("tx %s output %d: %w", raw.Txid, idx, err)
		}
		notes = append(notes, model.Note{Serialized: note})
		out += value
	}

	tx := model.Transaction{
		Hash:       hash,
		Expiration: raw.LockTime,
		Notes:      notes,
		Serialized: serialized,
	}
	if isCoinbase(raw) {
		tx.Fee = -out
		return tx, nil
	}

	var in int64
	for idx, vin := range raw.Vin {
		prevHash, err := chainhash.NewHashFromStr(vin.Txid)
		if err != nil {
			return model.Transaction{}, fmt.Errorf("tx %s input %d: %w", raw.Txid, idx, err)
		}
		tx.Spends = append(tx.Spends, model.Spend{
			Nullifier:  Nullifier(wire.OutPoint{Hash: *prevHash, Index: vin.Vout}),
			Commitment: fromChainHash(*prevHash),
			Size:       vin.Vout,
		})

		if c.resolveFees {
			values, ok := prevouts[vin.Txid]
			if !ok || int(vin.Vout) >= len(values) {
				return model.Transaction{}, fmt.Errorf("tx %s input %d references missing output %s:%d", raw.Txid, idx, vin.Txid, vin.Vout)
			}
			in += values[vin.Vout]
		}
	}
	if c.resolveFees {
		tx.Fee = in - out
	}
	return tx, nil
}

// prevouts returns output values of every transaction spent in the block,
// taking in-block parents from txs and fetching the rest in parallel.
func (c *Converter) prevouts(ctx context.Context, txs []btcjson.TxRawResult) (map[string][]int64, error) {
	if !c.resolveFees {
		return nil, nil
	}

	result := make(map[string][]int64, len(txs))
	for _, tx := range txs {
		values, err := outputValues(tx)
		if err != nil {
			return nil, err
		}
		result[tx.Txid] = values
	}

	seen := make(map[string]struct{})
	var missing []string
	for _, tx := range txs {
		if isCoinbase(tx) {
			continue
		}
		for _, vin := range tx.Vin {
			if _, ok := result[vin.Txid]; ok {
				continue
			}
			if _, ok := seen[vin.Txid]; ok {
				continue
			}
			seen[vin.Txid] = struct{}{}
			missing = append(missing, vin.Txid)
		}
	}

	fetched, err := workerpool.Map(ctx, c.workers, missing, func(_ context.Context, txid string) ([]int64, error) {
		hash, err := chainhash.NewHashFromStr(txid)
		if err != nil {
			return nil, fmt.Errorf("prev tx %s: %w", txid, err)
		}
		raw, err := c.rpc.GetRawTransactionVerbose(hash)
		if err != nil {
			return nil, fmt.Errorf("get raw transaction %s: %w", txid, err)
		}
		return outputValues(*raw)
	})
	if err != nil {
		return nil, err
	}
	for i, txid := range missing {
		result[txid] = fetched[i]
	}
	return result, nil
}

func outputValues(tx btcjson.TxRawResult) ([]int64, error) {
	values := make([]int64, len(tx.Vout))
	for _, vout := range tx.Vout {
		if int(vout.N) >= len(values) {
			return nil, fmt.Errorf("tx %s output index %d out of range", tx.Txid, vout.N)
		}
		value, err := BtcToSatoshis(vout.Value)
		if err != nil {
			return nil, fmt.Errorf("tx %s output %d value: %w", tx.Txid, vout.N, err)
		}
		values[vout.N] = value
	}
	return values, nil
}

func isCoinbase(tx btcjson.TxRawResult) bool {
	return len(tx.Vin) == 1 && tx.Vin[0].IsCoinBase()
}
