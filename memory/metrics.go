package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsRegisterer is the subset of prometheus.Registerer the client needs.
// Declared locally so Config does not force the prometheus import on callers
// that never read metrics.
type metricsRegisterer = prometheus.Registerer

// clientMetrics holds the Prometheus metrics owned by a Client instance.
// Metrics register against the registry passed in Config.Metrics so tests
// and multi-client processes stay hermetic.
type clientMetrics struct {
	// messagesTotal counts successfully persisted messages.
	messagesTotal prometheus.Counter

	// indexFailuresTotal counts background indexing failures, partitioned by
	// the stage that failed: "embed", "store", or "upsert". A non-zero value
	// means some persisted messages are invisible to semantic search.
	indexFailuresTotal *prometheus.CounterVec

	// indexDurationSeconds records the duration of each successful background
	// embed+upsert unit, from spawn to vector index acknowledgement.
	indexDurationSeconds prometheus.Histogram

	// contextRequestsTotal counts GetContext calls, partitioned by outcome.
	contextRequestsTotal *prometheus.CounterVec
}

// newClientMetrics registers the client metrics against reg. A nil reg gets
// a private throwaway registry so callers without a metrics pipeline pay
// nothing and instrumentation sites stay unconditional.
func newClientMetrics(reg prometheus.Registerer) *clientMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &clientMetrics{
		messagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "sapien",
			Subsystem: "memory",
			Name:      "messages_total",
			Help:      "Total number of messages persisted to the document store.",
		}),

		indexFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sapien",
			Subsystem: "memory",
			Name:      "index_failures_total",
			Help:      "Background indexing failures, partitioned by stage. Affected messages are persisted but not searchable.",
		}, []string{"stage"}),

		indexDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sapien",
			Subsystem: "memory",
			Name:      "index_duration_seconds",
			Help:      "Duration of successful background embed+upsert units.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		contextRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sapien",
			Subsystem: "memory",
			Name:      "context_requests_total",
			Help:      "Total number of GetContext calls, partitioned by outcome.",
		}, []string{"outcome"}),
	}
}
