package bitcoin

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/goodnatureofminers/chainfollow/internal/clock"
	"github.com/goodnatureofminers/chainfollow/internal/follow/chain"
	"github.com/goodnatureofminers/chainfollow/internal/follow/memchain"
	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
	"github.com/goodnatureofminers/chainfollow/pkg/safe"
	"github.com/goodnatureofminers/chainfollow/pkg/workerpool"
	"go.uber.org/zap"
)

const (
	defaultInterval  = 5 * time.Second
	defaultRetention = 288
	defaultWorkers   = 4
)

// Config tunes a Source.
type Config struct {
	Interval time.Duration
	// Retention is how many blocks below the tip stay addressable.
	Retention uint64
	// Depth is how many blocks below the node tip are loaded at startup.
	Depth   uint64
	Workers int
}

// Source keeps an index of the node's recent chain and serves it as a follow
// source. Run must be running for the index to advance.
type Source struct {
	index       *memchain.Chain
	rpc         RPCClient
	converter   *Converter
	metrics     SyncMetrics
	cfg         Config
	logger      *zap.Logger
	sleep       func(context.Context, time.Duration) error
	blockSignal <-chan struct{}
	healthy     atomic.Bool
}

// NewSource loads the most recent cfg.Depth blocks from the node. blockSignal
// is optional and wakes the sync loop early.
func NewSource(
	ctx context.Context,
	rpc RPCClient,
	converter *Converter,
	metrics SyncMetrics,
	cfg Config,
	blockSignal <-chan struct{},
	logger *zap.Logger,
) (*Source, error) {
	switch {
	case rpc == nil:
		return nil, errors.New("rpc client is required")
	case converter == nil:
		return nil, errors.New("block converter is required")
	case metrics == nil:
		return nil, errors.New("sync metrics is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Retention == 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}

	s := &Source{
		rpc:         rpc,
		converter:   converter,
		metrics:     metrics,
		cfg:         cfg,
		logger:      logger,
		sleep:       clock.SleepWithContext,
		blockSignal: blockSignal,
	}
	if err := s.bootstrap(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) bootstrap(ctx context.Context) error {
	started := time.Now()
	count, err := s.rpc.GetBlockCount()
	if err != nil {
		return unavailable("get block count", err)
	}
	tip, err := safe.Uint64(count)
	if err != nil {
		return fmt.Errorf("block count: %w", err)
	}
	from := uint64(0)
	if tip > s.cfg.Depth {
		from = tip - s.cfg.Depth
	}

	heights := make([]uint64, 0, tip-from+1)
	for h := from; h <= tip; h++ {
		heights = append(heights, h)
	}
	blocks, err := workerpool.Map(ctx, s.cfg.Workers, heights, s.fetchHeight)
	s.metrics.ObserveSync(err, len(heights), started)
	if err != nil {
		return fmt.Errorf("backfill %d..%d: %w", from, tip, err)
	}

	root := blocks[0]
	root.Header.Work = blockchain.CalcWork(blockchain.BigToCompact(root.Header.Target))
	s.index = memchain.New(root, s.logger.Named("index"))
	for _, block := range blocks[1:] {
		if _, err := s.index.AddBlock(block); err != nil {
			// The node reorganized during the backfill; Sync catches up.
			s.logger.Warn("backfill stopped early", zap.Uint64("height", block.Header.Sequence), zap.Error(err))
			break
		}
	}
	s.healthy.Store(true)

	head, _ := s.index.Tip(ctx)
	s.metrics.ObserveTip(head.Sequence)
	s.logger.Info("chain index loaded",
		zap.Uint64("root", from),
		zap.Uint64("tip", head.Sequence),
		zap.Stringer("hash", head.Hash),
	)
	return nil
}

func (s *Source) fetchHeight(ctx context.Context, height uint64) (model.Block, error) {
	h, err := safe.Int64(height)
	if err != nil {
		return model.Block{}, fmt.Errorf("block height %d exceeds rpc limit", height)
	}
	hash, err := s.rpc.GetBlockHash(h)
	if err != nil {
		return model.Block{}, unavailable(fmt.Sprintf("get block hash at height %d", height), err)
	}
	src, err := s.rpc.GetBlockVerboseTx(hash)
	if err != nil {
		return model.Block{}, unavailable(fmt.Sprintf("get block %s", hash), err)
	}
	return s.converter.Block(ctx, src)
}

// Run syncs the index with the node until ctx is cancelled.
func (s *Source) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		started := time.Now()
		added, err := s.Sync(ctx)
		s.metrics.ObserveSync(err, added, started)
		switch {
		case err == nil:
			if !s.healthy.Swap(true) {
				s.logger.Info("node reachable again")
			}
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			s.healthy.Store(false)
			s.logger.Warn("sync with node failed", zap.Error(err), zap.Duration("sleep", s.cfg.Interval))
		}

		if err := s.wait(ctx, s.cfg.Interval); err != nil {
			return err
		}
	}
}

// Sync walks back from the node's best block to a block already indexed and
// adds the missing blocks oldest first.
func (s *Source) Sync(ctx context.Context) (int, error) {
	best, err := s.rpc.GetBestBlockHash()
	if err != nil {
		return 0, unavailable("get best block hash", err)
	}
	if s.index.Contains(fromChainHash(*best)) {
		return 0, nil
	}

	var pending []model.Block
	hash := best
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		src, err := s.rpc.GetBlockVerboseTx(hash)
		if err != nil {
			return 0, unavailable(fmt.Sprintf("get block %s", hash), err)
		}
		block, err := s.converter.Block(ctx, src)
		if err != nil {
			return 0, fmt.Errorf("convert block %s: %w", hash, err)
		}
		pending = append(pending, block)

		if s.index.Contains(block.Header.PreviousHash) {
			break
		}
		if uint64(len(pending)) > s.cfg.Retention {
			return 0, fmt.Errorf("no indexed ancestor within %d blocks of %s", s.cfg.Retention, best)
		}
		hash = toChainHash(block.Header.PreviousHash)
	}

	added := 0
	for i := len(pending) - 1; i >= 0; i-- {
		if _, err := s.index.AddBlock(pending[i]); err != nil {
			return added, fmt.Errorf("index block %s: %w", pending[i].Header.Hash, err)
		}
		added++
	}
	if removed := s.index.Prune(s.cfg.Retention); removed > 0 {
		s.logger.Debug("pruned index", zap.Int("removed", removed))
	}

	tip, _ := s.index.Tip(ctx)
	s.metrics.ObserveTip(tip.Sequence)
	s.logger.Debug("synced with node", zap.Int("added", added), zap.Uint64("tip", tip.Sequence))
	return added, nil
}

func (s *Source) wait(ctx context.Context, d time.Duration) error {
	if s.blockSignal == nil {
		return s.sleep(ctx, d)
	}
	return clock.SleepOrSignal(ctx, d, s.blockSignal)
}

// Healthy reports whether the last sync reached the node.
func (s *Source) Healthy() bool {
	return s.healthy.Load()
}

// Tip returns the indexed tip, or chain.ErrSourceUnavailable while the node
// cannot be reached.
func (s *Source) Tip(ctx context.Context) (model.ChainHead, error) {
	if !s.healthy.Load() {
		return model.ChainHead{}, fmt.Errorf("node unreachable: %w", chain.ErrSourceUnavailable)
	}
	return s.index.Tip(ctx)
}

func (s *Source) Header(ctx context.Context, hash model.Hash) (model.BlockHeader, error) {
	return s.index.Header(ctx, hash)
}

func (s *Source) HashAtSequence(ctx context.Context, sequence uint64) (model.Hash, error) {
	return s.index.HashAtSequence(ctx, sequence)
}

func (s *Source) Block(ctx context.Context, hash model.Hash) (model.Block, error) {
	return s.index.Block(ctx, hash)
}

func (s *Source) SubscribeConnected() (*chain.HeaderSubscription, error) {
	return s.index.SubscribeConnected()
}

func (s *Source) SubscribeDisconnected() (*chain.HeaderSubscription, error) {
	return s.index.SubscribeDisconnected()
}

func (s *Source) SubscribeForks() (*chain.BlockSubscription, error) {
	return s.index.SubscribeForks()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, chain.ErrSourceUnavailable, err)
}
