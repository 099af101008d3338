// Package main runs the chain follow server: a bitcoin node index served to
// subscribers over NDJSON and WebSocket streams.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/goodnatureofminers/chainfollow/internal/follow/bitcoin"
	"github.com/goodnatureofminers/chainfollow/internal/follow/encoder"
	"github.com/goodnatureofminers/chainfollow/internal/follow/journal"
	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
	"github.com/goodnatureofminers/chainfollow/internal/follow/repository/clickhouse"
	"github.com/goodnatureofminers/chainfollow/internal/follow/stream"
	"github.com/goodnatureofminers/chainfollow/internal/metrics"
	"github.com/goodnatureofminers/chainfollow/internal/transport"
	grpcMiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpcZap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpcRecovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpcCtxTags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	grpcPrometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 5 * time.Second

type config struct {
	Coin        model.Coin    `long:"coin" env:"CHAINFOLLOW_COIN" description:"coin name" default:"btc"`
	Network     model.Network `long:"network" env:"CHAINFOLLOW_NETWORK" description:"network name" required:"true"`
	RPCURL      string        `long:"rpc-url" env:"CHAINFOLLOW_RPC_URL" description:"Bitcoin RPC URL" default:"http://127.0.0.1:8332"`
	RPCUser     string        `long:"rpc-user" env:"CHAINFOLLOW_RPC_USER" description:"Bitcoin RPC username"`
	RPCPassword string        `long:"rpc-password" env:"CHAINFOLLOW_RPC_PASSWORD" description:"Bitcoin RPC password"`
	ZMQAddr     string        `long:"zmq-addr" env:"CHAINFOLLOW_ZMQ_ADDR" description:"zmq hashblock endpoint, requires the zmq build tag"`

	SyncInterval time.Duration `long:"sync-interval" env:"CHAINFOLLOW_SYNC_INTERVAL" description:"node poll interval" default:"5s"`
	Retention    uint64        `long:"retention" env:"CHAINFOLLOW_RETENTION" description:"blocks kept addressable below the tip" default:"288"`
	Depth        uint64        `long:"depth" env:"CHAINFOLLOW_DEPTH" description:"blocks loaded below the node tip at startup" default:"144"`
	Workers      int           `long:"workers" env:"CHAINFOLLOW_WORKERS" description:"parallel block fetches and transaction encodes" default:"4"`
	ResolveFees  bool          `long:"resolve-fees" env:"CHAINFOLLOW_RESOLVE_FEES" description:"look up previous outputs to report transaction fees"`

	Codec     string `long:"codec" env:"CHAINFOLLOW_CODEC" description:"note codec" choice:"bitcoin" choice:"shielded" default:"bitcoin"`
	NoteCheck bool   `long:"note-check" env:"CHAINFOLLOW_NOTE_CHECK" description:"validate every output note while encoding"`

	Cadence        time.Duration `long:"cadence" env:"CHAINFOLLOW_CADENCE" description:"session poll interval" default:"1s"`
	WakeOnMutation bool          `long:"wake-on-mutation" env:"CHAINFOLLOW_WAKE_ON_MUTATION" description:"wake sessions on chain notifications"`
	WriteTimeout   time.Duration `long:"write-timeout" env:"CHAINFOLLOW_WRITE_TIMEOUT" description:"deadline for a single element write" default:"10s"`

	ClickhouseDSN   string        `long:"clickhouse-dsn" env:"CHAINFOLLOW_CLICKHOUSE_DSN" description:"ClickHouse DSN, enables the transition journal"`
	JournalBatch    int           `long:"journal-batch" env:"CHAINFOLLOW_JOURNAL_BATCH" description:"journal rows per insert" default:"500"`
	JournalInterval time.Duration `long:"journal-interval" env:"CHAINFOLLOW_JOURNAL_INTERVAL" description:"journal flush interval" default:"2s"`

	GRPCAddr    string `long:"grpc-addr" env:"CHAINFOLLOW_GRPC_ADDR" description:"gRPC health addr" default:":8000"`
	HTTPAddr    string `long:"http-addr" env:"CHAINFOLLOW_HTTP_ADDR" description:"follow http addr" default:":8001"`
	MetricsAddr string `long:"metrics-addr" env:"CHAINFOLLOW_METRICS_ADDR" description:"address for metrics server" default:":2112"`
}

func main() {
	cfg := config{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()
	grpcZap.ReplaceGrpcLoggerV2(logger)

	if _, err := flags.ParseArgs(&cfg, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("follow server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	startMetricsServer(ctx, cfg.MetricsAddr, logger)

	rpcClient, err := newRPCClient(cfg.RPCURL, cfg.RPCUser, cfg.RPCPassword)
	if err != nil {
		return fmt.Errorf("init rpc client: %w", err)
	}
	defer func() {
		rpcClient.Shutdown()
		rpcClient.WaitForShutdown()
	}()
	rpc := bitcoin.NewRPCClient(rpcClient, metrics.NewRPCClient(cfg.Coin, cfg.Network))

	blockSignal, err := startBlockSignal(ctx, cfg.ZMQAddr, logger)
	if err != nil {
		return err
	}
	source, err := bitcoin.NewSource(
		ctx,
		rpc,
		bitcoin.NewConverter(rpc, cfg.ResolveFees, cfg.Workers),
		metrics.NewChainSync(cfg.Coin, cfg.Network),
		bitcoin.Config{
			Interval:  cfg.SyncInterval,
			Retention: cfg.Retention,
			Depth:     cfg.Depth,
			Workers:   cfg.Workers,
		},
		blockSignal,
		logger.Named("bitcoin"),
	)
	if err != nil {
		return fmt.Errorf("init chain source: %w", err)
	}

	codec, err := newNoteCodec(cfg.Codec, cfg.Network)
	if err != nil {
		return err
	}
	enc := encoder.New(codec, logger, encoder.WithNoteCheck(cfg.NoteCheck), encoder.WithWorkers(cfg.Workers))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return source.Run(gctx)
	})

	var (
		sessionJournal stream.Journal
		journalHandler *transport.JournalHandler
	)
	if cfg.ClickhouseDSN != "" {
		repo, err := clickhouse.NewRepository(cfg.ClickhouseDSN, metrics.NewClickhouseRepository())
		if err != nil {
			return fmt.Errorf("init repository: %w", err)
		}
		defer func() {
			if err := repo.Close(); err != nil {
				logger.Warn("clickhouse close failed", zap.Error(err))
			}
		}()
		recorder, err := journal.NewRecorder(repo, metrics.NewJournal(), journal.Config{
			BatchSize:     cfg.JournalBatch,
			FlushInterval: cfg.JournalInterval,
		}, logger)
		if err != nil {
			return fmt.Errorf("init journal: %w", err)
		}
		g.Go(func() error {
			return recorder.Run(gctx)
		})
		sessionJournal = recorder
		if journalHandler, err = transport.NewJournalHandler(repo, logger); err != nil {
			return err
		}
	}

	follow, err := transport.NewFollowHandler(
		source,
		enc,
		sessionJournal,
		metrics.NewFollowSession(cfg.Coin, cfg.Network),
		transport.FollowConfig{
			Cadence:        cfg.Cadence,
			WakeOnMutation: cfg.WakeOnMutation,
			WriteTimeout:   cfg.WriteTimeout,
		},
		logger,
	)
	if err != nil {
		return err
	}

	healthServer := health.NewServer()
	reporter, err := transport.NewHealthReporter(healthServer, source, transport.DefaultHealthInterval, logger)
	if err != nil {
		return err
	}
	g.Go(func() error {
		return reporter.Run(gctx)
	})

	grpcServer := newGRPCServer(healthServer, logger)
	socket, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}
	g.Go(func() error {
		logger.Info("Starting gRPC server", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(socket)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gRPC server")
		stopGRPC(grpcServer)
		return nil
	})

	conn, err := grpc.NewClient("passthrough:///"+socket.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return fmt.Errorf("dial health: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	gw, err := transport.NewGateway(follow, journalHandler, healthpb.NewHealthClient(conn))
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/", gw)

	// Streams are long lived: no ReadTimeout or WriteTimeout, the follow
	// handler sets per write deadlines instead.
	s := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           cors.Default().Handler(mux),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
		BaseContext: func(net.Listener) context.Context {
			return gctx
		},
	}
	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", cfg.HTTPAddr))
		if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down the http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shutdown http server", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newGRPCServer(healthServer *health.Server, logger *zap.Logger) *grpc.Server {
	unary := []grpc.UnaryServerInterceptor{
		grpcRecovery.UnaryServerInterceptor(),
		grpcCtxTags.UnaryServerInterceptor(),
		grpcPrometheus.UnaryServerInterceptor,
		grpcZap.UnaryServerInterceptor(logger),
	}
	streaming := []grpc.StreamServerInterceptor{
		grpcRecovery.StreamServerInterceptor(),
		grpcCtxTags.StreamServerInterceptor(),
		grpcPrometheus.StreamServerInterceptor,
		grpcZap.StreamServerInterceptor(logger),
	}
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(grpcMiddleware.ChainUnaryServer(unary...)),
		grpc.StreamInterceptor(grpcMiddleware.ChainStreamServer(streaming...)),
	)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	grpcPrometheus.EnableHandlingTimeHistogram()
	grpcPrometheus.Register(grpcServer)
	return grpcServer
}

// stopGRPC drains in-flight calls. Health watchers never finish on their
// own, so they are cut after shutdownTimeout.
func stopGRPC(s *grpc.Server) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		s.Stop()
	}
}

func newNoteCodec(name string, network model.Network) (encoder.NoteCodec, error) {
	switch name {
	case "shielded":
		return encoder.ShieldedNoteCodec{}, nil
	case "bitcoin":
		codec, err := bitcoin.NewNoteCodec(network)
		if err != nil {
			return nil, fmt.Errorf("init note codec: %w", err)
		}
		return codec, nil
	default:
		return nil, fmt.Errorf("unknown note codec %q", name)
	}
}

func startMetricsServer(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("starting metrics server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}()
}

func newRPCClient(rawURL, user, password string) (*rpcclient.Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse rpc url: %w", err)
	}
	if parsed.Scheme != "http" {
		return nil, fmt.Errorf("rpc url scheme %q not supported, use http", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("rpc url missing host")
	}

	return rpcclient.New(&rpcclient.ConnConfig{
		Host:         parsed.Host,
		User:         user,
		Pass:         password,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
}
