package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"

	"github.com/relaycache/relay-go/pkg/pool"
	"github.com/relaycache/relay-go/pkg/retry"
)

// MetricsConfig configures the metrics provider
type MetricsConfig struct {
	// Prometheus configuration
	Namespace        string    // Prometheus namespace (default: relay)
	Subsystem        string    // Prometheus subsystem
	HistogramBuckets []float64 // Custom histogram buckets for latency

	// Labels to add to all metrics
	ConstLabels prometheus.Labels

	// Registerer defaults to prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
	// Gatherer serves the metrics endpoint; prometheus.DefaultGatherer if nil
	Gatherer prometheus.Gatherer

	// Optional HTTP endpoint
	MetricsPath string // HTTP path for metrics endpoint (default: /metrics)
	MetricsAddr string // Listen address; Start is a no-op when empty
}

// MetricsProvider records client call metrics. It observes retries and
// channel lifecycle events through the retry and pool observer interfaces.
type MetricsProvider interface {
	retry.Observer
	pool.Observer

	RecordCall(method, code string, duration time.Duration)
	RecordInflight(method string, delta int)

	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// PrometheusMetricsProvider implements MetricsProvider using Prometheus
type PrometheusMetricsProvider struct {
	config MetricsConfig
	server *http.Server

	// Call metrics
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	inflight        *prometheus.GaugeVec

	// Retry metrics
	retryTotal *prometheus.CounterVec
	retryDelay *prometheus.HistogramVec

	// Channel metrics
	channelState    *prometheus.GaugeVec
	channelRecycles *prometheus.CounterVec
}

var (
	_ retry.Observer = (*PrometheusMetricsProvider)(nil)
	_ pool.Observer  = (*PrometheusMetricsProvider)(nil)
)

// NewMetricsProvider creates a new Prometheus metrics provider
func NewMetricsProvider(config MetricsConfig) (*PrometheusMetricsProvider, error) {
	// Set defaults
	if config.Namespace == "" {
		config.Namespace = "relay"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.HistogramBuckets == nil {
		// Default buckets for milliseconds
		config.HistogramBuckets = []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 5000}
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}

	provider := &PrometheusMetricsProvider{config: config}
	provider.initializeMetrics()

	if err := provider.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return provider, nil
}

// initializeMetrics creates all metric collectors
func (p *PrometheusMetricsProvider) initializeMetrics() {
	p.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "request_duration_milliseconds",
			Help:        "Duration of logical calls in milliseconds, retries included",
			Buckets:     p.config.HistogramBuckets,
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"method", "code"},
	)

	p.requestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "request_total",
			Help:        "Total number of logical calls by final status code",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"method", "code"},
	)

	p.inflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "requests_in_flight",
			Help:        "Number of logical calls in progress",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"method"},
	)

	p.retryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "retry_total",
			Help:        "Total number of retried attempts by the status that caused them",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"method", "code"},
	)

	p.retryDelay = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "retry_delay_milliseconds",
			Help:        "Delay before retried attempts in milliseconds",
			Buckets:     p.config.HistogramBuckets,
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"method"},
	)

	p.channelState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "channel_state",
			Help:        "Current connectivity state of each pooled channel (1 for the current state)",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"channel", "state"},
	)

	p.channelRecycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   p.config.Namespace,
			Subsystem:   p.config.Subsystem,
			Name:        "channel_recycles_total",
			Help:        "Total number of idle channels torn down and recreated",
			ConstLabels: p.config.ConstLabels,
		},
		[]string{"channel"},
	)
}

// registerMetrics registers all metrics. Collectors already registered by
// an earlier provider with the same options are reused.
func (p *PrometheusMetricsProvider) registerMetrics() error {
	var err error
	if p.requestDuration, err = register(p.config.Registerer, p.requestDuration); err != nil {
		return err
	}
	if p.requestTotal, err = register(p.config.Registerer, p.requestTotal); err != nil {
		return err
	}
	if p.inflight, err = register(p.config.Registerer, p.inflight); err != nil {
		return err
	}
	if p.retryTotal, err = register(p.config.Registerer, p.retryTotal); err != nil {
		return err
	}
	if p.retryDelay, err = register(p.config.Registerer, p.retryDelay); err != nil {
		return err
	}
	if p.channelState, err = register(p.config.Registerer, p.channelState); err != nil {
		return err
	}
	if p.channelRecycles, err = register(p.config.Registerer, p.channelRecycles); err != nil {
		return err
	}
	return nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordCall records a finished logical call
func (p *PrometheusMetricsProvider) RecordCall(method, code string, duration time.Duration) {
	ms := float64(duration) / float64(time.Millisecond)
	p.requestDuration.WithLabelValues(method, code).Observe(ms)
	p.requestTotal.WithLabelValues(method, code).Inc()
}

// RecordInflight adjusts the number of calls in progress
func (p *PrometheusMetricsProvider) RecordInflight(method string, delta int) {
	p.inflight.WithLabelValues(method).Add(float64(delta))
}

// OnRetry implements retry.Observer
func (p *PrometheusMetricsProvider) OnRetry(method string, _ int, code codes.Code, delay time.Duration) {
	p.retryTotal.WithLabelValues(method, code.String()).Inc()
	p.retryDelay.WithLabelValues(method).Observe(float64(delay) / float64(time.Millisecond))
}

var channelStates = []connectivity.State{
	connectivity.Idle,
	connectivity.Connecting,
	connectivity.Ready,
	connectivity.TransientFailure,
	connectivity.Shutdown,
}

// OnChannelState implements pool.Observer
func (p *PrometheusMetricsProvider) OnChannelState(index int, state connectivity.State) {
	channel := strconv.Itoa(index)
	for _, s := range channelStates {
		value := 0.0
		if s == state {
			value = 1
		}
		p.channelState.WithLabelValues(channel, s.String()).Set(value)
	}
}

// OnChannelRecycled implements pool.Observer
func (p *PrometheusMetricsProvider) OnChannelRecycled(index int) {
	p.channelRecycles.WithLabelValues(strconv.Itoa(index)).Inc()
}

// Start serves the metrics endpoint when MetricsAddr is set
func (p *PrometheusMetricsProvider) Start(ctx context.Context) error {
	if p.config.MetricsAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(p.config.MetricsPath, promhttp.HandlerFor(p.config.Gatherer, promhttp.HandlerOpts{}))

	p.server = &http.Server{
		Addr:              p.config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		_ = p.server.ListenAndServe()
	}()

	return nil
}

// Shutdown gracefully shuts down the metrics server
func (p *PrometheusMetricsProvider) Shutdown(ctx context.Context) error {
	if p.server != nil {
		return p.server.Shutdown(ctx)
	}
	return nil
}
