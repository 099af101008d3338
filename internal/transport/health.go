package transport

import (
	"context"
	"errors"
	"time"

	"github.com/goodnatureofminers/chainfollow/internal/clock"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// FollowService is the health service name reported next to the overall
// server status.
const FollowService = "chainfollow.Follow"

const DefaultHealthInterval = 5 * time.Second

// HealthReporter mirrors chain source reachability into a gRPC health server.
type HealthReporter struct {
	server   *health.Server
	chain    ChainHealth
	interval time.Duration
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	last     healthpb.HealthCheckResponse_ServingStatus
}

func NewHealthReporter(server *health.Server, chain ChainHealth, interval time.Duration, logger *zap.Logger) (*HealthReporter, error) {
	if server == nil {
		return nil, errors.New("health server is required")
	}
	if chain == nil {
		return nil, errors.New("chain health is required")
	}
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthReporter{
		server:   server,
		chain:    chain,
		interval: interval,
		logger:   logger.Named("health"),
		sleep:    clock.SleepWithContext,
		last:     healthpb.HealthCheckResponse_UNKNOWN,
	}, nil
}

// Run reports until ctx is done, then marks every service as not serving.
func (h *HealthReporter) Run(ctx context.Context) error {
	for {
		h.report()
		if err := h.sleep(ctx, h.interval); err != nil {
			h.server.Shutdown()
			return err
		}
	}
}

func (h *HealthReporter) report() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.chain.Healthy() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	if status == h.last {
		return
	}
	h.last = status
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(FollowService, status)
	h.logger.Info("serving status changed", zap.Stringer("status", status))
}
