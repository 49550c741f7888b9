package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/statekit/pkg/state"
)

// MetricsConfig configures the Prometheus observer.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "statekit").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for Set duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus observer.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "statekit",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics is a state.Observer that records Prometheus metrics. It also
// carries the session metrics of the HTTP bridge.
//
// Metrics collected:
//   - statekit_sets_total: Set calls by outcome
//   - statekit_set_duration_seconds: Set latency, validators included
//   - statekit_invalid_params_total: rejected values by key
//   - statekit_active_sessions: open websocket sessions
//   - statekit_websocket_errors_total: websocket errors by type
type Metrics struct {
	setsTotal      *prometheus.CounterVec
	setDuration    prometheus.Histogram
	invalidParams  *prometheus.CounterVec
	activeSessions prometheus.Gauge
	wsErrors       *prometheus.CounterVec
}

// NewMetrics registers the metrics with the configured registry. Calling it
// twice with the same registry panics, as promauto does.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		setsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sets_total",
			Help:        "Total number of state Set calls by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"outcome"}),

		setDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "set_duration_seconds",
			Help:        "State Set duration in seconds, including validation",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		invalidParams: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "invalid_params_total",
			Help:        "Total number of rejected parameter values by key",
			ConstLabels: config.ConstLabels,
		}, []string{"key"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of active WebSocket sessions",
			ConstLabels: config.ConstLabels,
		}),

		wsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "websocket_errors_total",
			Help:        "Total WebSocket errors by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),
	}
}

// SetStarted implements state.Observer.
func (m *Metrics) SetStarted(ctx context.Context, _ state.Values) context.Context {
	return ctx
}

// SetFinished implements state.Observer.
func (m *Metrics) SetFinished(_ context.Context, res *state.Result, _ error, elapsed time.Duration) {
	m.setDuration.Observe(elapsed.Seconds())

	outcome := "error"
	if res != nil {
		outcome = res.Outcome.String()
		for key := range res.InvalidParams {
			m.invalidParams.WithLabelValues(key).Inc()
		}
	}
	m.setsTotal.WithLabelValues(outcome).Inc()
}

// SessionOpened records a new websocket session.
func (m *Metrics) SessionOpened() {
	m.activeSessions.Inc()
}

// SessionClosed records the end of a websocket session.
func (m *Metrics) SessionClosed() {
	m.activeSessions.Dec()
}

// WebSocketError records a websocket error of the given type.
func (m *Metrics) WebSocketError(errorType string) {
	m.wsErrors.WithLabelValues(errorType).Inc()
}
