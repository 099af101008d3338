// Package encoder projects blocks into the transport format of the follow
// stream.
package encoder

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
	"github.com/goodnatureofminers/chainfollow/pkg/workerpool"
	"go.uber.org/zap"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

// ErrMalformedBlockData is returned when a block cannot be projected.
var ErrMalformedBlockData = errors.New("malformed block data")

// NoteCodec understands the serialized notes of one chain.
type NoteCodec interface {
	Commitment(serialized []byte) (model.Hash, error)
	// Check is a diagnostic hook; its result never changes the summary.
	Check(serialized []byte) bool
}

const defaultWorkers = 4

// Encoder builds block summaries. It holds no per-call state and is safe for
// concurrent use.
type Encoder struct {
	codec      NoteCodec
	checkNotes bool
	workers    int
	logger     *zap.Logger
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithNoteCheck enables the diagnostic note check.
func WithNoteCheck(enabled bool) Option {
	return func(e *Encoder) {
		e.checkNotes = enabled
	}
}

// WithWorkers sets how many transactions are encoded in parallel.
func WithWorkers(n int) Option {
	return func(e *Encoder) {
		e.workers = n
	}
}

// New creates an Encoder for notes understood by codec.
func New(codec NoteCodec, logger *zap.Logger, opts ...Option) *Encoder {
	e := &Encoder{
		codec:   codec,
		workers: defaultWorkers,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode projects block for a transition of type typ. With serialized set
// every transaction also carries its raw bytes as hex. A malformed
// transaction fails the whole block.
func (e *Encoder) Encode(ctx context.Context, block model.Block, typ model.TransitionType, serialized bool) (BlockSummary, Diagnostics, error) {
	header := block.Header

	type encoded struct {
		summary     TransactionSummary
		diagnostics Diagnostics
	}
	txs, err := workerpool.Map(ctx, e.workers, block.Transactions, func(_ context.Context, tx model.Transaction) (encoded, error) {
		summary, diagnostics, err := e.encodeTransaction(tx, serialized)
		return encoded{summary: summary, diagnostics: diagnostics}, err
	})
	if err != nil {
		if errors.Is(err, ErrMalformedBlockData) {
			e.logger.Error("malformed block data",
				zap.Stringer("hash", header.Hash),
				zap.Uint64("sequence", header.Sequence),
				zap.Error(err),
			)
			return BlockSummary{}, Diagnostics{}, fmt.Errorf("block %s: %w", header.Hash, err)
		}
		return BlockSummary{}, Diagnostics{}, err
	}

	var diagnostics Diagnostics
	summaries := make([]TransactionSummary, 0, len(txs))
	for _, tx := range txs {
		summaries = append(summaries, tx.summary)
		diagnostics.Add(tx.diagnostics)
	}

	var noteSize *uint64
	header.NoteSize.WhenSome(func(size uint64) {
		noteSize = &size
	})

	return BlockSummary{
		Hash:         header.Hash.String(),
		Sequence:     header.Sequence,
		Previous:     header.PreviousHash.String(),
		Graffiti:     decodeText(header.Graffiti),
		Difficulty:   model.BlockWork(header.Target).String(),
		Size:         block.Size,
		Timestamp:    header.Timestamp.UnixMilli(),
		Work:         bigString(header.Work),
		Main:         typ == model.Connected,
		NoteSize:     noteSize,
		Transactions: summaries,
	}, diagnostics, nil
}

func (e *Encoder) encodeTransaction(tx model.Transaction, serialized bool) (TransactionSummary, Diagnostics, error) {
	var diagnostics Diagnostics

	notes := make([]NoteSummary, 0, len(tx.Notes))
	for i, note := range tx.Notes {
		commitment, err := e.codec.Commitment(note.Serialized)
		if err != nil {
			return TransactionSummary{}, diagnostics, fmt.Errorf("tx %s note %d: %w", tx.Hash, i, malformed(err))
		}
		notes = append(notes, NoteSummary{Commitment: commitment.String()})

		if e.checkNotes {
			diagnostics.NotesChecked++
			if !e.codec.Check(note.Serialized) {
				diagnostics.NotesInvalid++
			}
		}
	}

	spends := make([]SpendSummary, 0, len(tx.Spends))
	for _, spend := range tx.Spends {
		spends = append(spends, SpendSummary{
			Nullifier:  spend.Nullifier.String(),
			Commitment: spend.Commitment.String(),
			Size:       spend.Size,
		})
	}

	mints := make([]MintSummary, 0, len(tx.Mints))
	for i, mint := range tx.Mints {
		asset, err := ParseAsset(mint.Asset)
		if err != nil {
			return TransactionSummary{}, diagnostics, fmt.Errorf("tx %s mint %d: %w", tx.Hash, i, err)
		}
		summary := MintSummary{
			ID:       asset.ID.String(),
			Metadata: decodeText(asset.Metadata),
			Name:     decodeText(asset.Name),
			Creator:  hex.EncodeToString(asset.Creator),
			Value:    strconv.FormatUint(mint.Value, 10),
		}
		if mint.TransferOwnershipTo != nil {
			if len(mint.TransferOwnershipTo) != OwnerSize {
				return TransactionSummary{}, diagnostics, fmt.Errorf("tx %s mint %d owner: want %d bytes, got %d: %w",
					tx.Hash, i, OwnerSize, len(mint.TransferOwnershipTo), ErrMalformedBlockData)
			}
			owner := hex.EncodeToString(mint.TransferOwnershipTo)
			summary.TransferOwnershipTo = &owner
		}
		mints = append(mints, summary)
	}

	burns := make([]BurnSummary, 0, len(tx.Burns))
	for _, burn := range tx.Burns {
		burns = append(burns, BurnSummary{
			ID:    burn.AssetID.String(),
			Value: strconv.FormatUint(burn.Value, 10),
		})
	}

	summary := TransactionSummary{
		Hash:       tx.Hash.String(),
		Size:       len(tx.Serialized),
		Fee:        strconv.FormatInt(tx.Fee, 10),
		Expiration: tx.Expiration,
		Notes:      notes,
		Spends:     spends,
		Mints:      mints,
		Burns:      burns,
	}
	if serialized {
		summary.Serialized = hex.EncodeToString(tx.Serialized)
	}
	return summary, diagnostics, nil
}

func malformed(err error) error {
	if errors.Is(err, ErrMalformedBlockData) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrMalformedBlockData, err)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
