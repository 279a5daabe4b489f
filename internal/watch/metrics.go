package watch

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricStatsComputations        = "watch_stats_computations_total"
	MetricStatsComputationFailures = "watch_stats_computation_failures_total"
	MetricStatsComputationDuration = "watch_stats_computation_duration_seconds"
	MetricStatsEventsProcessed     = "watch_stats_events_processed"
)

// Failure reason label values.
const (
	failureReasonValidation = "validation"
	failureReasonMalformed  = "malformed_history"
)

// Metrics contains Prometheus metrics for stats computations.
// All operations are thread-safe.
type Metrics struct {
	computations        prometheus.Counter
	computationFailures *prometheus.CounterVec
	computationDuration prometheus.Histogram
	eventsProcessed     prometheus.Histogram
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		computations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricStatsComputations,
			Help: "Total number of watch stats computations",
		}),
		computationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricStatsComputationFailures,
				Help: "Total number of failed watch stats computations by reason",
			},
			[]string{"reason"},
		),
		computationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricStatsComputationDuration,
			Help:    "Histogram of watch stats computation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),
		eventsProcessed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricStatsEventsProcessed,
			Help:    "Histogram of playback events processed per stats computation",
			Buckets: prometheus.ExponentialBuckets(10, 4, 7), // 10 to ~40k events
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors owned by this Metrics instance.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.computations,
		m.computationFailures,
		m.computationDuration,
		m.eventsProcessed,
	}
}

// ObserveComputation records the outcome of one stats computation.
func (m *Metrics) ObserveComputation(err error, duration time.Duration, eventCount int) {
	m.computations.Inc()
	m.computationDuration.Observe(duration.Seconds())
	m.eventsProcessed.Observe(float64(eventCount))

	if err == nil {
		return
	}
	reason := failureReasonValidation
	if errors.Is(err, ErrMalformedHistory) {
		reason = failureReasonMalformed
	}
	m.computationFailures.WithLabelValues(reason).Inc()
}
