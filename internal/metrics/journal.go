package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	journalFlushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainfollow",
		Subsystem: "journal",
		Name:      "flush_total",
		Help:      "Count of journal batch flushes.",
	}, []string{"status"})

	journalFlushDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chainfollow",
		Subsystem: "journal",
		Name:      "flush_duration_seconds",
		Help:      "Duration of journal batch flushes.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	journalEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainfollow",
		Subsystem: "journal",
		Name:      "entries_total",
		Help:      "Count of journal entries by outcome.",
	}, []string{"status"})
)

// Journal tracks metrics for the transition journal.
type Journal struct{}

func NewJournal() *Journal {
	return &Journal{}
}

// ObserveFlush records a batch write outcome and duration.
func (m Journal) ObserveFlush(err error, entries int, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}
	journalFlushTotal.WithLabelValues(status).Inc()
	journalFlushDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	journalEntriesTotal.WithLabelValues(status).Add(float64(entries))
}

// ObserveDropped counts an entry rejected because the queue was full.
func (m Journal) ObserveDropped() {
	journalEntriesTotal.WithLabelValues("dropped").Inc()
}
