package bitcoin

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/goodnatureofminers/chainfollow/internal/follow/encoder"
	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
)

var _ encoder.NoteCodec = (*NoteCodec)(nil)

// NoteCodec reads notes serialized as wire transaction outputs.
type NoteCodec struct {
	params *chaincfg.Params
}

// NewNoteCodec builds a codec for the given network.
func NewNoteCodec(network model.Network) (*NoteCodec, error) {
	params, err := chainParamsForNetwork(network)
	if err != nil {
		return nil, err
	}
	return &NoteCodec{params: params}, nil
}

// Commitment is the double SHA-256 of the serialized output.
func (c *NoteCodec) Commitment(serialized []byte) (model.Hash, error) {
	if _, err := ParseNote(serialized); err != nil {
		return model.Hash{}, err
	}
	return fromChainHash(chainhash.DoubleHashH(serialized)), nil
}

// Check reports whether the output script is standard and, unless it is a
// data carrier, pays to at least one address of the network.
func (c *NoteCodec) Check(serialized []byte) bool {
	out, err := ParseNote(serialized)
	if err != nil {
		return false
	}
	class, addrs, _, err := txscript.ExtractPkScriptAddrs(out.PkScript, c.params)
	if err != nil || class == txscript.NonStandardTy {
		return false
	}
	return class == txscript.NullDataTy || len(addrs) > 0
}

// SerializeNote encodes an output the way it appears on the wire.
func SerializeNote(value int64, pkScript []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteTxOut(&buf, 0, wire.TxVersion, wire.NewTxOut(value, pkScript)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseNote decodes an output written by SerializeNote. Trailing bytes are
// rejected.
func ParseNote(serialized []byte) (*wire.TxOut, error) {
	if len(serialized) < 9 {
		return nil, fmt.Errorf("note of %d bytes: %w", len(serialized), encoder.ErrMalformedBlockData)
	}
	value := int64(binary.LittleEndian.Uint64(serialized[:8]))
	r := bytes.NewReader(serialized[8:])
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, fmt.Errorf("note script length: %w: %w", encoder.ErrMalformedBlockData, err)
	}
	if n != uint64(r.Len()) {
		return nil, fmt.Errorf("note script of %d bytes, %d left: %w", n, r.Len(), encoder.ErrMalformedBlockData)
	}
	script := make([]byte, n)
	copy(script, serialized[len(serialized)-int(n):])
	return wire.NewTxOut(value, script), nil
}

// Nullifier identifies the output spent by an input: the double SHA-256 of
// the serialized outpoint.
func Nullifier(op wire.OutPoint) model.Hash {
	var buf [chainhash.HashSize + 4]byte
	copy(buf[:], op.Hash[:])
	binary.LittleEndian.PutUint32(buf[chainhash.HashSize:], op.Index)
	return fromChainHash(chainhash.DoubleHashH(buf[:]))
}

func chainParamsForNetwork(network model.Network) (*chaincfg.Params, error) {
	switch strings.ToLower(string(network)) {
	case "main", "mainnet", "bitcoin":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unsupported network %q", network)
	}
}
