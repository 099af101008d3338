// Package metrics exposes application metrics collectors.
package metrics

import (
	"time"

	"github.com/goodnatureofminers/chainfollow/internal/follow/encoder"
	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
	"github.com/goodnatureofminers/chainfollow/internal/follow/stream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	followSessionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chainfollow",
		Subsystem: "follow_session",
		Name:      "active",
		Help:      "Number of follow sessions currently streaming.",
	}, []string{"coin", "network"})

	followSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainfollow",
		Subsystem: "follow_session",
		Name:      "finished_total",
		Help:      "Count of finished follow sessions by terminal status.",
	}, []string{"coin", "network", "status"})

	followSessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chainfollow",
		Subsystem: "follow_session",
		Name:      "duration_seconds",
		Help:      "Lifetime of follow sessions.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"coin", "network", "status"})

	followUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainfollow",
		Subsystem: "follow_session",
		Name:      "updates_total",
		Help:      "Count of update passes over the chain.",
	}, []string{"coin", "network", "status"})

	followUpdateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chainfollow",
		Subsystem: "follow_session",
		Name:      "update_duration_seconds",
		Help:      "Duration of update passes.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"coin", "network", "status"})

	followUpdateTransitions = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chainfollow",
		Subsystem: "follow_session",
		Name:      "update_transitions",
		Help:      "Number of transitions emitted per update pass.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"coin", "network"})

	followTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainfollow",
		Subsystem: "follow_session",
		Name:      "transitions_total",
		Help:      "Count of transitions delivered to subscribers.",
	}, []string{"coin", "network", "type"})

	followNotesCheckedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainfollow",
		Subsystem: "follow_session",
		Name:      "notes_checked_total",
		Help:      "Count of notes passed through the diagnostic check.",
	}, []string{"coin", "network"})

	followNotesInvalidTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainfollow",
		Subsystem: "follow_session",
		Name:      "notes_invalid_total",
		Help:      "Count of notes that failed the diagnostic check.",
	}, []string{"coin", "network"})
)

var _ stream.Metrics = FollowSession{}

// FollowSession tracks metrics for follow sessions.
type FollowSession struct {
	coin    model.Coin
	network model.Network
}

// NewFollowSession constructs a FollowSession with defaults.
func NewFollowSession(coin model.Coin, network model.Network) *FollowSession {
	if coin == "" {
		coin = "unknown"
	}
	if network == "" {
		network = "unknown"
	}
	return &FollowSession{coin: coin, network: network}
}

func (m FollowSession) SessionStarted() {
	followSessionsActive.WithLabelValues(string(m.coin), string(m.network)).Inc()
}

// SessionFinished records how and after how long a session ended.
func (m FollowSession) SessionFinished(status stream.Status, started time.Time) {
	followSessionsActive.WithLabelValues(string(m.coin), string(m.network)).Dec()
	followSessionsTotal.WithLabelValues(string(m.coin), string(m.network), string(status)).Inc()
	followSessionDuration.WithLabelValues(string(m.coin), string(m.network), string(status)).
		Observe(time.Since(started).Seconds())
}

// ObserveUpdate records one update pass outcome, duration and output.
func (m FollowSession) ObserveUpdate(err error, transitions int, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	followUpdatesTotal.WithLabelValues(string(m.coin), string(m.network), status).Inc()
	followUpdateDuration.WithLabelValues(string(m.coin), string(m.network), status).
		Observe(time.Since(started).Seconds())
	if transitions > 0 {
		followUpdateTransitions.WithLabelValues(string(m.coin), string(m.network)).
			Observe(float64(transitions))
	}
}

func (m FollowSession) ObserveTransition(typ model.TransitionType) {
	followTransitionsTotal.WithLabelValues(string(m.coin), string(m.network), string(typ)).Inc()
}

func (m FollowSession) ObserveNoteCheck(diagnostics encoder.Diagnostics) {
	if diagnostics.NotesChecked > 0 {
		followNotesCheckedTotal.WithLabelValues(string(m.coin), string(m.network)).
			Add(float64(diagnostics.NotesChecked))
	}
	if diagnostics.NotesInvalid > 0 {
		followNotesInvalidTotal.WithLabelValues(string(m.coin), string(m.network)).
			Add(float64(diagnostics.NotesInvalid))
	}
}
