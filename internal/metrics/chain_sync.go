package metrics

import (
	"time"

	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chainSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainfollow",
		Subsystem: "chain_sync",
		Name:      "syncs_total",
		Help:      "Count of chain source sync passes.",
	}, []string{"coin", "network", "status"})

	chainSyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chainfollow",
		Subsystem: "chain_sync",
		Name:      "sync_duration_seconds",
		Help:      "Duration of chain source sync passes.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"coin", "network", "status"})

	chainSyncBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainfollow",
		Subsystem: "chain_sync",
		Name:      "blocks_total",
		Help:      "Count of blocks fetched into the chain index.",
	}, []string{"coin", "network"})

	chainSyncTip = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chainfollow",
		Subsystem: "chain_sync",
		Name:      "tip_sequence",
		Help:      "Sequence of the indexed canonical tip.",
	}, []string{"coin", "network"})
)

// ChainSync tracks metrics for a chain source keeping its index current.
type ChainSync struct {
	coin    model.Coin
	network model.Network
}

// NewChainSync constructs a ChainSync with defaults.
func NewChainSync(coin model.Coin, network model.Network) *ChainSync {
	if coin == "" {
		coin = "unknown"
	}
	if network == "" {
		network = "unknown"
	}
	return &ChainSync{coin: coin, network: network}
}

// ObserveSync records a sync pass outcome, duration and fetched blocks.
func (m ChainSync) ObserveSync(err error, blocks int, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	chainSyncTotal.WithLabelValues(string(m.coin), string(m.network), status).Inc()
	chainSyncDuration.WithLabelValues(string(m.coin), string(m.network), status).
		Observe(time.Since(started).Seconds())
	if blocks > 0 {
		chainSyncBlocks.WithLabelValues(string(m.coin), string(m.network)).Add(float64(blocks))
	}
}

func (m ChainSync) ObserveTip(sequence uint64) {
	chainSyncTip.WithLabelValues(string(m.coin), string(m.network)).Set(float64(sequence))
}
