// Package processor reconciles a cursor into chain history with the live
// canonical tip.
package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodnatureofminers/chainfollow/internal/follow/chain"
	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
	"github.com/lightningnetwork/lnd/fn/v2"
	"go.uber.org/zap"
)

// Processor owns a cursor and turns chain changes into ordered transitions.
// It is not safe for concurrent use; at most one Update runs at a time.
type Processor struct {
	source Source
	head   fn.Option[model.ChainHead]
	logger *zap.Logger

	// resolved is false while the cursor sequence came from the caller and
	// has not been confirmed by the source.
	resolved bool
}

// New creates a processor. Without a head the first Update only records the
// live tip. Only the hash of a given head is trusted until an Update confirms
// its sequence with the source.
func New(source Source, head fn.Option[model.ChainHead], logger *zap.Logger) *Processor {
	return &Processor{
		source: source,
		head:   head,
		logger: logger,
	}
}

// Head returns the cursor.
func (p *Processor) Head() fn.Option[model.ChainHead] {
	return p.head
}

// Update brings the cursor to the canonical tip, emitting disconnected
// transitions newest first and then connected transitions oldest first. The
// cursor moves after every emitted transition, so a cancelled update resumes
// where it stopped. Blocks that arrive during the walk are left for the next
// call.
func (p *Processor) Update(ctx context.Context, emit EmitFunc) error {
	tip, err := p.source.Tip(ctx)
	if err != nil {
		return fmt.Errorf("read tip: %w", err)
	}

	if p.head.IsNone() {
		p.setHead(tip)
		p.logger.Debug("cursor initialized at tip", zap.Stringer("hash", tip.Hash), zap.Uint64("sequence", tip.Sequence))
		return nil
	}
	head := p.head.UnwrapOr(model.ChainHead{})
	if head.Hash == tip.Hash {
		p.setHead(tip)
		return nil
	}

	orphaned, ancestor, err := p.findFork(ctx, head, tip)
	if err != nil {
		return err
	}
	if len(orphaned) > 0 {
		p.logger.Info("cursor left the canonical chain",
			zap.Stringer("cursor", head.Hash),
			zap.Stringer("ancestor", ancestor.Hash),
			zap.Int("orphaned", len(orphaned)),
		)
	}

	for _, block := range orphaned {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(ctx, model.Transition{Type: model.Disconnected, Block: block, Tip: tip}); err != nil {
			return err
		}
		p.setHead(model.ChainHead{
			Hash:     block.Header.PreviousHash,
			Sequence: block.Header.Sequence - 1,
		})
	}

	return p.connect(ctx, ancestor, tip, emit)
}

// findFork walks back from the cursor until it meets the canonical chain. The
// whole orphaned path is loaded before anything is emitted, so a lost cursor
// never produces partial output. Only missing headers or blocks mean the
// cursor is lost; a sequence missing from the canonical chain means it got
// shorter after the tip was read.
func (p *Processor) findFork(ctx context.Context, head, tip model.ChainHead) ([]model.Block, model.ChainHead, error) {
	header, err := p.source.Header(ctx, head.Hash)
	if err != nil {
		return nil, model.ChainHead{}, lookupErr(fmt.Sprintf("cursor %s", head.Hash), err)
	}
	p.setHead(header.Head())

	var orphaned []model.Block
	for {
		if err := ctx.Err(); err != nil {
			return nil, model.ChainHead{}, err
		}

		if header.Sequence <= tip.Sequence {
			hash, err := p.source.HashAtSequence(ctx, header.Sequence)
			switch {
			case errors.Is(err, chain.ErrBlockNotFound):
				p.logger.Debug("canonical chain shrank during walk", zap.Uint64("sequence", header.Sequence))
			case err != nil:
				return nil, model.ChainHead{}, fmt.Errorf("canonical hash at %d: %w", header.Sequence, err)
			case hash == header.Hash:
				return orphaned, header.Head(), nil
			}
		}

		block, err := p.source.Block(ctx, header.Hash)
		if err != nil {
			return nil, model.ChainHead{}, lookupErr(fmt.Sprintf("orphaned block %s", header.Hash), err)
		}
		orphaned = append(orphaned, block)

		if header.Sequence == 0 {
			return nil, model.ChainHead{}, fmt.Errorf("cursor %s shares no genesis with the canonical chain: %w", head.Hash, chain.ErrCursorLost)
		}
		header, err = p.source.Header(ctx, header.PreviousHash)
		if err != nil {
			return nil, model.ChainHead{}, lookupErr(fmt.Sprintf("ancestor of cursor %s", head.Hash), err)
		}
	}
}

func (p *Processor) connect(ctx context.Context, from, tip model.ChainHead, emit EmitFunc) error {
	cursor := from
	for sequence := from.Sequence + 1; sequence <= tip.Sequence; sequence++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		hash, err := p.source.HashAtSequence(ctx, sequence)
		if errors.Is(err, chain.ErrBlockNotFound) {
			p.logger.Debug("canonical chain moved during walk", zap.Uint64("sequence", sequence))
			return nil
		}
		if err != nil {
			return fmt.Errorf("canonical hash at %d: %w", sequence, err)
		}
		block, err := p.source.Block(ctx, hash)
		if err != nil {
			return fmt.Errorf("block %s: %w", hash, err)
		}
		if block.Header.PreviousHash != cursor.Hash {
			// A reorg landed between lookups; the next update starts from the cursor.
			p.logger.Debug("canonical chain moved during walk",
				zap.Uint64("sequence", sequence),
				zap.Stringer("cursor", cursor.Hash),
			)
			return nil
		}

		if err := emit(ctx, model.Transition{Type: model.Connected, Block: block, Tip: tip}); err != nil {
			return err
		}
		cursor = block.Header.Head()
		p.setHead(cursor)
	}
	return nil
}

// ForkTransition turns a side branch block into a fork transition. Blocks
// that are the cursor, unknown to the source or already canonical are
// dropped; canonical blocks reach the subscriber through Update.
func (p *Processor) ForkTransition(ctx context.Context, block model.Block) (model.Transition, bool) {
	head := p.head.UnwrapOr(model.ChainHead{})
	if p.head.IsSome() && head.Hash == block.Header.Hash {
		return model.Transition{}, false
	}

	logger := p.logger.With(zap.Stringer("fork", block.Header.Hash))
	if _, err := p.source.Header(ctx, block.Header.Hash); err != nil {
		logger.Debug("fork block not confirmed by source", zap.Error(err))
		return model.Transition{}, false
	}
	hash, err := p.source.HashAtSequence(ctx, block.Header.Sequence)
	switch {
	case err == nil && hash == block.Header.Hash:
		logger.Debug("fork block is canonical")
		return model.Transition{}, false
	case err != nil && !errors.Is(err, chain.ErrBlockNotFound):
		logger.Debug("canonical hash unavailable for fork block", zap.Error(err))
		return model.Transition{}, false
	}

	tip, err := p.source.Tip(ctx)
	if err != nil {
		if !p.resolved {
			logger.Debug("tip unavailable and cursor unresolved", zap.Error(err))
			return model.Transition{}, false
		}
		logger.Debug("tip unavailable for fork transition", zap.Error(err))
		tip = head
	}
	return model.Transition{Type: model.Fork, Block: block, Tip: tip}, true
}

func (p *Processor) setHead(head model.ChainHead) {
	p.head = fn.Some(head)
	p.resolved = true
}

func lookupErr(what string, err error) error {
	if errors.Is(err, chain.ErrBlockNotFound) {
		return fmt.Errorf("%s: %w: %w", what, chain.ErrCursorLost, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}
