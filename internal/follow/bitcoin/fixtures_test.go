package bitcoin

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// Regtest proof-of-work limit.
	testBits = "207fffff"
	p2pkhHex = "76a914" + "89abcdefabbaabbaabbaabbaabbaabbaabbaabba" + "88ac"
)

// blockHashStr names block height on a branch.
func blockHashStr(branch byte, height int64) string {
	return fmt.Sprintf("%02x%062x", branch, height)
}

func txidStr(label string) string {
	return chainhash.DoubleHashH([]byte(label)).String()
}

func mustChainHash(s string) *chainhash.Hash {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		panic(err)
	}
	return h
}

func coinbaseTx(label string, values ...float64) btcjson.TxRawResult {
	tx := btcjson.TxRawResult{
		Hex:  "01000000" + hex.EncodeToString([]byte(label)),
		Txid: txidStr(label),
		Vin: []btcjson.Vin{{
			Coinbase: hex.EncodeToString([]byte("/" + label + "/")),
			Sequence: 0xffffffff,
		}},
	}
	for i, v := range values {
		tx.Vout = append(tx.Vout, btcjson.Vout{
			Value:        v,
			N:            uint32(i),
			ScriptPubKey: btcjson.ScriptPubKeyResult{Hex: p2pkhHex, Type: "pubkeyhash"},
		})
	}
	return tx
}

type outpoint struct {
	txid string
	vout uint32
}

func spendTx(label string, inputs []outpoint, values ...float64) btcjson.TxRawResult {
	tx := coinbaseTx(label, values...)
	tx.Vin = nil
	for _, in := range inputs {
		tx.Vin = append(tx.Vin, btcjson.Vin{Txid: in.txid, Vout: in.vout, Sequence: 0xffffffff})
	}
	return tx
}

func verboseBlock(branch byte, height int64, prev string, txs ...btcjson.TxRawResult) *btcjson.GetBlockVerboseTxResult {
	if len(txs) == 0 {
		txs = []btcjson.TxRawResult{coinbaseTx(fmt.Sprintf("cb-%02x-%d", branch, height), 50)}
	}
	return &btcjson.GetBlockVerboseTxResult{
		Hash:         blockHashStr(branch, height),
		Height:       height,
		Size:         int32(285 + 100*len(txs)),
		Time:         1_700_000_000 + height*600,
		Bits:         testBits,
		PreviousHash: prev,
		Tx:           txs,
	}
}

// linearBlocks builds heights from..to on a branch whose first block sits
// on parent.
func linearBlocks(branch byte, from, to int64, parent string) []*btcjson.GetBlockVerboseTxResult {
	var blocks []*btcjson.GetBlockVerboseTxResult
	for h := from; h <= to; h++ {
		b := verboseBlock(branch, h, parent)
		blocks = append(blocks, b)
		parent = b.Hash
	}
	return blocks
}
