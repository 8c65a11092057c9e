// Package metrics holds the Prometheus collectors for turns, dispatches,
// approvals, moderation and ingestion.
//
// All methods are safe on a nil *Metrics, so components may run without
// instrumentation in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chative"

type Metrics struct {
	TurnsTotal                *prometheus.CounterVec
	DispatchTotal             *prometheus.CounterVec
	ApprovalsTotal            *prometheus.CounterVec
	ModerationRejectionsTotal *prometheus.CounterVec
	TurnDuration              prometheus.Histogram
	IngestChunksTotal         prometheus.Counter
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// in production and prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Turns processed, by outcome",
			},
			[]string{"outcome"},
		),
		DispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Router dispatches, by specialist",
			},
			[]string{"specialist"},
		),
		ApprovalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approvals_total",
				Help:      "Human approval decisions, by decision",
			},
			[]string{"decision"}, // "requested", "approved", "rejected", "expired"
		),
		ModerationRejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "moderation_rejections_total",
				Help:      "Safety gate rejections, by direction",
			},
			[]string{"direction"}, // "inbound" or "outbound"
		),
		TurnDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_duration_seconds",
				Help:      "Wall time of one turn",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		IngestChunksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_chunks_total",
				Help:      "Chunks upserted into the vector collection",
			},
		),
	}
}

func (m *Metrics) ObserveTurn(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) Dispatched(specialist string) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(specialist).Inc()
}

func (m *Metrics) Approval(decision string) {
	if m == nil {
		return
	}
	m.ApprovalsTotal.WithLabelValues(decision).Inc()
}

func (m *Metrics) ModerationRejected(direction string) {
	if m == nil {
		return
	}
	m.ModerationRejectionsTotal.WithLabelValues(direction).Inc()
}

func (m *Metrics) IngestedChunks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.IngestChunksTotal.Add(float64(n))
}
