// Package memchain keeps an in-memory block tree and serves its heaviest
// branch as the canonical chain.
package memchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/goodnatureofminers/chainfollow/internal/follow/chain"
	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
	"go.uber.org/zap"
)

var (
	// ErrUnknownParent is returned when a block's parent is not indexed.
	ErrUnknownParent = errors.New("unknown parent block")
	// ErrInvalidSequence is returned when a block does not sit one above its parent.
	ErrInvalidSequence = errors.New("invalid block sequence")
)

// AddResult describes how adding a block changed the canonical chain.
type AddResult struct {
	// Disconnected lists headers removed from the canonical chain, newest first.
	Disconnected []model.BlockHeader
	// Connected lists headers added to the canonical chain, oldest first.
	Connected []model.BlockHeader
	// Fork is set when the block landed on a side branch.
	Fork      bool
	Duplicate bool
}

// Chain is a block tree rooted at a single block. It is safe for concurrent use.
type Chain struct {
	logger   *zap.Logger
	notifier *notifier

	mu        sync.RWMutex
	blocks    map[model.Hash]model.Block
	canonical []model.Hash
	root      uint64
}

var _ chain.Source = (*Chain)(nil)

// New builds a chain rooted at root. The root does not need to be a genesis
// block; history below it is treated as pruned.
func New(root model.Block, logger *zap.Logger) *Chain {
	if root.Header.Work == nil {
		root.Header.Work = model.BlockWork(root.Header.Target)
	}
	return &Chain{
		logger:    logger,
		notifier:  newNotifier(),
		blocks:    map[model.Hash]model.Block{root.Header.Hash: root},
		canonical: []model.Hash{root.Header.Hash},
		root:      root.Header.Sequence,
	}
}

// AddBlock indexes block and moves the canonical tip to the heaviest branch.
// Ties keep the current tip.
func (c *Chain) AddBlock(block model.Block) (AddResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := block.Header.Hash
	if _, ok := c.blocks[hash]; ok {
		return AddResult{Duplicate: true}, nil
	}
	parent, ok := c.blocks[block.Header.PreviousHash]
	if !ok {
		return AddResult{}, fmt.Errorf("block %s parent %s: %w", hash, block.Header.PreviousHash, ErrUnknownParent)
	}
	if block.Header.Sequence != parent.Header.Sequence+1 {
		return AddResult{}, fmt.Errorf("block %s sequence %d on parent %d: %w",
			hash, block.Header.Sequence, parent.Header.Sequence, ErrInvalidSequence)
	}
	if block.Header.Work == nil {
		block.Header.Work = new(big.Int).Add(parent.Header.Work, model.BlockWork(block.Header.Target))
	}

	tip := c.blocks[c.tipHash()]
	var result AddResult
	switch {
	case parent.Header.Hash == tip.Header.Hash:
		c.blocks[hash] = block
		c.canonical = append(c.canonical, hash)
		result.Connected = []model.BlockHeader{block.Header}
	case block.Header.Work.Cmp(tip.Header.Work) > 0:
		branch, ancestor, err := c.branchTo(parent)
		if err != nil {
			return AddResult{}, fmt.Errorf("block %s: %w", hash, err)
		}
		c.blocks[hash] = block
		result = c.reorganize(ancestor, append(branch, block.Header))
	default:
		c.blocks[hash] = block
		result.Fork = true
	}

	c.notifier.publish(result, block)
	if len(result.Disconnected) > 0 {
		c.logger.Info("chain reorganized",
			zap.Stringer("tip", hash),
			zap.Uint64("sequence", block.Header.Sequence),
			zap.Int("disconnected", len(result.Disconnected)),
			zap.Int("connected", len(result.Connected)),
		)
	}
	return result, nil
}

// branchTo walks from a non-canonical block down to the canonical chain and
// returns the side branch oldest first together with the common ancestor.
func (c *Chain) branchTo(from model.Block) ([]model.BlockHeader, model.BlockHeader, error) {
	var branch []model.BlockHeader
	cur := from
	for !c.isCanonical(cur.Header) {
		branch = append(branch, cur.Header)
		prev, ok := c.blocks[cur.Header.PreviousHash]
		if !ok {
			return nil, model.BlockHeader{}, fmt.Errorf("branch at %s leaves retained history: %w", cur.Header.Hash, ErrUnknownParent)
		}
		cur = prev
	}
	for i, j := 0, len(branch)-1; i < j; i, j = i+1, j-1 {
		branch[i], branch[j] = branch[j], branch[i]
	}
	return branch, cur.Header, nil
}

func (c *Chain) reorganize(ancestor model.BlockHeader, branch []model.BlockHeader) AddResult {
	keep := int(ancestor.Sequence - c.root + 1)

	disconnected := make([]model.BlockHeader, 0, len(c.canonical)-keep)
	for i := len(c.canonical) - 1; i >= keep; i-- {
		disconnected = append(disconnected, c.blocks[c.canonical[i]].Header)
	}

	c.canonical = c.canonical[:keep]
	for _, header := range branch {
		c.canonical = append(c.canonical, header.Hash)
	}

	return AddResult{Disconnected: disconnected, Connected: branch}
}

func (c *Chain) isCanonical(header model.BlockHeader) bool {
	if header.Sequence < c.root {
		return false
	}
	idx := header.Sequence - c.root
	return idx < uint64(len(c.canonical)) && c.canonical[idx] == header.Hash
}

func (c *Chain) tipHash() model.Hash {
	return c.canonical[len(c.canonical)-1]
}

// Prune drops history more than keep blocks below the tip, including side
// branches, and returns the number of blocks removed.
func (c *Chain) Prune(keep uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	tipSeq := c.root + uint64(len(c.canonical)) - 1
	if tipSeq < keep || tipSeq-keep <= c.root {
		return 0
	}
	newRoot := tipSeq - keep

	removed := 0
	for hash, block := range c.blocks {
		if block.Header.Sequence < newRoot {
			delete(c.blocks, hash)
			removed++
		}
	}
	c.canonical = append([]model.Hash(nil), c.canonical[newRoot-c.root:]...)
	c.root = newRoot

	c.logger.Debug("pruned chain history", zap.Uint64("root", newRoot), zap.Int("removed", removed))
	return removed
}

// Root returns the oldest retained canonical block.
func (c *Chain) Root() model.ChainHead {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[c.canonical[0]].Header.Head()
}

// Contains reports whether hash is indexed, canonical or not.
func (c *Chain) Contains(hash model.Hash) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.blocks[hash]
	return ok
}

// Tip implements chain.Reader.
func (c *Chain) Tip(_ context.Context) (model.ChainHead, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[c.tipHash()].Header.Head(), nil
}

// Header implements chain.Reader.
func (c *Chain) Header(_ context.Context, hash model.Hash) (model.BlockHeader, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	block, ok := c.blocks[hash]
	if !ok {
		return model.BlockHeader{}, fmt.Errorf("header %s: %w", hash, chain.ErrBlockNotFound)
	}
	return block.Header, nil
}

// HashAtSequence implements chain.Reader.
func (c *Chain) HashAtSequence(_ context.Context, sequence uint64) (model.Hash, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if sequence < c.root || sequence-c.root >= uint64(len(c.canonical)) {
		return model.Hash{}, fmt.Errorf("sequence %d: %w", sequence, chain.ErrBlockNotFound)
	}
	return c.canonical[sequence-c.root], nil
}

// Block implements chain.Reader.
func (c *Chain) Block(_ context.Context, hash model.Hash) (model.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	block, ok := c.blocks[hash]
	if !ok {
		return model.Block{}, fmt.Errorf("block %s: %w", hash, chain.ErrBlockNotFound)
	}
	return block, nil
}

// SubscribeConnected implements chain.Notifier.
func (c *Chain) SubscribeConnected() (*chain.HeaderSubscription, error) {
	updates, cancel := subscribe(c.notifier, c.notifier.connected)
	return &chain.HeaderSubscription{Updates: updates, Cancel: cancel}, nil
}

// SubscribeDisconnected implements chain.Notifier.
func (c *Chain) SubscribeDisconnected() (*chain.HeaderSubscription, error) {
	updates, cancel := subscribe(c.notifier, c.notifier.disconnected)
	return &chain.HeaderSubscription{Updates: updates, Cancel: cancel}, nil
}

// SubscribeForks implements chain.Notifier.
func (c *Chain) SubscribeForks() (*chain.BlockSubscription, error) {
	updates, cancel := subscribe(c.notifier, c.notifier.forks)
	return &chain.BlockSubscription{Updates: updates, Cancel: cancel}, nil
}
