// Package stream drives follow sessions: one processor per subscriber, a
// fixed polling cadence and a single writer to the subscriber's sink.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodnatureofminers/chainfollow/internal/clock"
	"github.com/goodnatureofminers/chainfollow/internal/follow/chain"
	"github.com/goodnatureofminers/chainfollow/internal/follow/encoder"
	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
	"github.com/goodnatureofminers/chainfollow/internal/follow/processor"
	"github.com/lightningnetwork/lnd/fn/v2"
	"go.uber.org/zap"
)

// DefaultCadence is the pause between two updates.
const DefaultCadence = time.Second

// Config describes one subscription.
type Config struct {
	// Head is the starting cursor. None starts at the live tip without backlog.
	Head fn.Option[model.ChainHead]
	// Serialized adds raw transaction bytes to every summary.
	Serialized bool
	Subscriber string
	Cadence    time.Duration
	// WakeOnMutation ends the wait early when the canonical chain changes.
	WakeOnMutation bool
}

// Session streams transitions of the canonical chain to one subscriber.
type Session struct {
	id         string
	cfg        Config
	source     Source
	processor  *processor.Processor
	encoder    Encoder
	sink       Sink
	journal    Journal
	metrics    Metrics
	logger     *zap.Logger
	newTimer   func(time.Duration) (<-chan time.Time, func() bool)
	teardown   bool
	subscribed []func()
}

// NewSession builds a session. journal may be nil.
func NewSession(
	id string,
	cfg Config,
	source Source,
	enc Encoder,
	sink Sink,
	journal Journal,
	metrics Metrics,
	logger *zap.Logger,
) (*Session, error) {
	switch {
	case source == nil:
		return nil, errors.New("chain source is required")
	case enc == nil:
		return nil, errors.New("encoder is required")
	case sink == nil:
		return nil, errors.New("sink is required")
	case metrics == nil:
		return nil, errors.New("session metrics is required")
	}
	if cfg.Cadence <= 0 {
		cfg.Cadence = DefaultCadence
	}

	logger = logger.With(zap.String("session", id), zap.String("subscriber", cfg.Subscriber))
	return &Session{
		id:        id,
		cfg:       cfg,
		source:    source,
		processor: processor.New(source, cfg.Head, logger.Named("processor")),
		encoder:   enc,
		sink:      sink,
		journal:   journal,
		metrics:   metrics,
		logger:    logger,
		newTimer:  clock.NewTimer,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Run streams until ctx is cancelled or an unrecoverable error occurs.
// Cancellation returns nil; anything else is a *TerminalError.
func (s *Session) Run(ctx context.Context) (err error) {
	started := time.Now()
	s.metrics.SessionStarted()
	defer func() {
		s.metrics.SessionFinished(Classify(err), started)
	}()

	forks, err := s.source.SubscribeForks()
	if err != nil {
		return s.terminate(fmt.Errorf("subscribe forks: %w", err))
	}
	s.subscribed = append(s.subscribed, forks.Cancel)

	var connected, disconnected <-chan model.BlockHeader
	if s.cfg.WakeOnMutation {
		sub, err := s.source.SubscribeConnected()
		if err != nil {
			s.unsubscribe()
			return s.terminate(fmt.Errorf("subscribe connected: %w", err))
		}
		s.subscribed = append(s.subscribed, sub.Cancel)
		connected = sub.Updates

		sub, err = s.source.SubscribeDisconnected()
		if err != nil {
			s.unsubscribe()
			return s.terminate(fmt.Errorf("subscribe disconnected: %w", err))
		}
		s.subscribed = append(s.subscribed, sub.Cancel)
		disconnected = sub.Updates
	}
	defer s.unsubscribe()

	s.logger.Info("follow session started", zap.Duration("cadence", s.cfg.Cadence))
	for {
		if ctx.Err() != nil {
			return s.stop()
		}

		if err := s.update(ctx); err != nil {
			switch {
			case ctx.Err() != nil:
				return s.stop()
			case errors.Is(err, chain.ErrSourceUnavailable):
				s.logger.Warn("chain source unavailable, retrying next tick", zap.Error(err))
			default:
				return s.terminate(err)
			}
		}

		if err := s.wait(ctx, forks.Updates, connected, disconnected); err != nil {
			if ctx.Err() != nil {
				return s.stop()
			}
			return s.terminate(err)
		}
	}
}

func (s *Session) update(ctx context.Context) error {
	started := time.Now()
	transitions := 0
	err := s.processor.Update(ctx, func(ctx context.Context, t model.Transition) error {
		if err := s.emit(ctx, t); err != nil {
			return err
		}
		transitions++
		return nil
	})
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = nil
	}
	s.metrics.ObserveUpdate(err, transitions, started)
	return err
}

// wait pauses for one cadence. Fork blocks reported meanwhile are emitted
// here so the sink keeps a single writer.
func (s *Session) wait(ctx context.Context, forks <-chan model.Block, connected, disconnected <-chan model.BlockHeader) error {
	timeout, stop := s.newTimer(s.cfg.Cadence)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return nil
		case block, ok := <-forks:
			if !ok {
				forks = nil
				continue
			}
			t, ok := s.processor.ForkTransition(ctx, block)
			if !ok {
				continue
			}
			if err := s.emit(ctx, t); err != nil {
				return err
			}
		case _, ok := <-connected:
			if !ok {
				connected = nil
				continue
			}
			drain(connected)
			return nil
		case _, ok := <-disconnected:
			if !ok {
				disconnected = nil
				continue
			}
			drain(disconnected)
			return nil
		}
	}
}

func (s *Session) emit(ctx context.Context, t model.Transition) error {
	if s.teardown {
		return errors.New("session is shutting down")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	summary, diagnostics, err := s.encoder.Encode(ctx, t.Block, t.Type, s.cfg.Serialized)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", t.Type, t.Block.Header.Hash, err)
	}
	s.metrics.ObserveNoteCheck(diagnostics)

	element := encoder.Element{
		Type:  t.Type,
		Head:  encoder.HeadSummary{Sequence: s.tipSequence(ctx, t.Tip)},
		Block: summary,
	}
	if err := s.sink.Send(ctx, element); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrSinkClosed) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrSinkClosed, err)
	}
	s.metrics.ObserveTransition(t.Type)

	if s.journal != nil {
		s.journal.Record(ctx, s.id, s.cfg.Subscriber, element)
	}
	return nil
}

// tipSequence reads the tip at emission time; the tip the transition was
// computed against is the fallback.
func (s *Session) tipSequence(ctx context.Context, computed model.ChainHead) uint64 {
	tip, err := s.source.Tip(ctx)
	if err != nil {
		return computed.Sequence
	}
	return tip.Sequence
}

func (s *Session) stop() error {
	s.teardown = true
	s.logger.Info("follow session cancelled", s.cursorField())
	return nil
}

func (s *Session) terminate(err error) error {
	s.teardown = true
	status := Classify(err)
	switch status {
	case StatusMalformedBlockData, StatusInternal:
		s.logger.Error("follow session failed", zap.String("status", string(status)), s.cursorField(), zap.Error(err))
	default:
		s.logger.Warn("follow session ended", zap.String("status", string(status)), s.cursorField(), zap.Error(err))
	}
	return &TerminalError{Status: status, Err: err}
}

func (s *Session) unsubscribe() {
	for _, cancel := range s.subscribed {
		cancel()
	}
	s.subscribed = nil
}

func (s *Session) cursorField() zap.Field {
	head := s.processor.Head()
	if head.IsNone() {
		return zap.Skip()
	}
	cursor := head.UnwrapOr(model.ChainHead{})
	return zap.Stringer("cursor", cursor.Hash)
}

func drain(updates <-chan model.BlockHeader) {
	for {
		select {
		case _, ok := <-updates:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
