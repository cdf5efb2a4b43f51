package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"

	"github.com/relaycache/relay-go/pkg/auth"
	"github.com/relaycache/relay-go/pkg/cache"
	"github.com/relaycache/relay-go/pkg/config"
	relayerrors "github.com/relaycache/relay-go/pkg/errors"
	"github.com/relaycache/relay-go/pkg/logging"
	"github.com/relaycache/relay-go/pkg/middleware"
	"github.com/relaycache/relay-go/pkg/observability"
	"github.com/relaycache/relay-go/pkg/pool"
	"github.com/relaycache/relay-go/pkg/retry"
	"github.com/relaycache/relay-go/pkg/topics"
	"github.com/relaycache/relay-go/pkg/transport"
)

// Version represents the current version of the SDK
const Version = transport.Version

// These exports provide direct access to the core SDK components
var (
	// DefaultConfig returns the default client configuration
	DefaultConfig = config.DefaultConfig

	// LoadConfig reads a YAML configuration file
	LoadConfig = config.Load

	// StaticCredentials builds credentials from a token and endpoint
	StaticCredentials = auth.StaticCredentials

	// CredentialsFromEnvironment reads credentials from environment variables
	CredentialsFromEnvironment = auth.FromEnvironment
)

// Call options
var (
	WithSignal   = transport.WithSignal
	WithTimeout  = transport.WithTimeout
	WithMetadata = transport.WithMetadata
)

// Option customizes New
type Option func(*options)

type options struct {
	logger       logging.Logger
	middlewares  []middleware.Middleware
	dialOptions  []grpc.DialOption
	factory      pool.Factory
	tokenSource  auth.TokenSource
	registerer   prometheus.Registerer
	gatherer     prometheus.Gatherer
	metricsAddr  string
	spanExporter sdktrace.SpanExporter
	defaultTTL   time.Duration
	eagerConnect time.Duration
	retryPolicy  retry.Policy
	grpcLogging  bool
	grpcVerbose  int
}

// WithLogger replaces the logger built from the logging section
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMiddleware registers middlewares after the built-in ones
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) {
		o.middlewares = append(o.middlewares, mws...)
	}
}

// WithDialOptions appends gRPC dial options to every channel
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) {
		o.dialOptions = append(o.dialOptions, opts...)
	}
}

// WithChannelFactory replaces the channel factory; the endpoint, TLS and
// dial options are then ignored
func WithChannelFactory(factory pool.Factory) Option {
	return func(o *options) {
		o.factory = factory
	}
}

// WithTokenSource fetches the authorization token per call instead of
// sending the static one
func WithTokenSource(source auth.TokenSource) Option {
	return func(o *options) {
		o.tokenSource = source
	}
}

// WithMetricsRegistry registers the metrics with reg and serves them from
// gatherer
func WithMetricsRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) Option {
	return func(o *options) {
		o.registerer = reg
		o.gatherer = gatherer
	}
}

// WithMetricsEndpoint serves the metrics over HTTP on addr
func WithMetricsEndpoint(addr string) Option {
	return func(o *options) {
		o.metricsAddr = addr
	}
}

// WithSpanExporter overrides the exporter named in the tracing section
func WithSpanExporter(exporter sdktrace.SpanExporter) Option {
	return func(o *options) {
		o.spanExporter = exporter
	}
}

// WithDefaultTTL sets the TTL of cache writes that pass zero
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.defaultTTL = ttl
	}
}

// WithEagerConnect connects every channel during New, waiting at most
// timeout. It also sets the wait for channels.prewarm, which otherwise uses
// the request timeout. A channel that is not ready in time is logged, not
// fatal.
func WithEagerConnect(timeout time.Duration) Option {
	return func(o *options) {
		o.eagerConnect = timeout
	}
}

// WithRetryPolicy replaces the policy built from the retry section
func WithRetryPolicy(policy retry.Policy) Option {
	return func(o *options) {
		o.retryPolicy = policy
	}
}

// WithGRPCLogging routes gRPC's internal logs through the client logger.
// The gRPC logger is process wide, so the last client built with this
// option wins.
func WithGRPCLogging(verbosity int) Option {
	return func(o *options) {
		o.grpcLogging = true
		o.grpcVerbose = verbosity
	}
}

// Client bundles the cache and topics clients over one channel pool
type Client struct {
	Cache  *cache.Client
	Topics *topics.Client

	invoker *transport.Invoker
	obs     *observability.Observability
	logger  logging.Logger
}

// New builds a client from cfg. The endpoint in cfg wins over the one in
// creds when both are set.
func New(ctx context.Context, cfg config.Config, creds *auth.Credentials, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if creds == nil {
		return nil, errors.New("credentials are required")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.NewWithOptions(logging.Options{
			Level:   cfg.Logging.Level,
			Format:  cfg.Logging.Format,
			Backend: cfg.Logging.Backend,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	if o.grpcLogging {
		logging.InstallGRPCLogger(logger, o.grpcVerbose)
	}

	mode, err := relayerrors.ParseMode(cfg.ErrorMode)
	if err != nil {
		return nil, err
	}
	delivery := relayerrors.DeliveryFor(mode)

	policy := o.retryPolicy
	if policy == nil {
		policy, err = retry.FromConfig(cfg.Retry)
		if err != nil {
			return nil, err
		}
	}

	obs, err := newObservability(cfg.Observability, o)
	if err != nil {
		return nil, err
	}
	built := false
	defer func() {
		if !built {
			_ = obs.Shutdown(ctx)
		}
	}()

	factory := o.factory
	if factory == nil {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = creds.Endpoint
		}
		if endpoint == "" {
			return nil, errors.New("no endpoint configured")
		}
		factory, err = transport.NewChannelFactory(endpoint, cfg.TLS, cfg.Channels, o.dialOptions...)
		if err != nil {
			return nil, err
		}
	}

	poolCfg := pool.Config{
		Size:    cfg.Channels.Count,
		MaxIdle: cfg.Channels.MaxIdle,
		Factory: factory,
		Logger:  logger,
	}
	var retryObserver retry.Observer
	if m := obs.Metrics(); m != nil {
		poolCfg.Observer = m
		retryObserver = m
	}
	channels, err := pool.New(poolCfg)
	if err != nil {
		return nil, err
	}

	if cfg.Channels.Prewarm || o.eagerConnect > 0 {
		wait := o.eagerConnect
		if wait <= 0 {
			wait = cfg.RequestTimeout
		}
		if err := channels.Prewarm(ctx, time.Now().Add(wait)); err != nil {
			logger.Warn("Eager connection failed", logging.ErrorField(err))
		}
	}

	// Observability first so its span and timer cover everything after it;
	// the call logger last to see the rawest response.
	pipeline := middleware.NewPipeline(obs.Middlewares()...)
	if o.tokenSource != nil {
		pipeline.Append(auth.NewTokenMiddleware(o.tokenSource))
	}
	pipeline.Append(o.middlewares...)
	pipeline.Append(logging.Middleware(logger))

	inv, err := transport.New(transport.Options{
		Pool:           channels,
		Pipeline:       pipeline,
		Policy:         policy,
		RetryObserver:  retryObserver,
		RequestTimeout: cfg.RequestTimeout,
		AuthToken:      creds.AuthToken,
		Logger:         logger,
	})
	if err != nil {
		_ = channels.Close()
		return nil, err
	}

	cacheClient, err := cache.New(cache.Options{Invoker: inv, Delivery: delivery, DefaultTTL: o.defaultTTL})
	if err != nil {
		_ = inv.Close()
		return nil, err
	}
	topicsClient, err := topics.New(topics.Options{Invoker: inv, Delivery: delivery})
	if err != nil {
		_ = inv.Close()
		return nil, err
	}

	if err := obs.Start(ctx); err != nil {
		_ = inv.Close()
		return nil, fmt.Errorf("failed to start metrics endpoint: %w", err)
	}

	built = true
	logger.Debug("Client created",
		logging.Int("channels", channels.Size()),
		logging.String("error_mode", mode.String()),
		logging.String("retry_strategy", cfg.Retry.Strategy),
	)

	return &Client{
		Cache:   cacheClient,
		Topics:  topicsClient,
		invoker: inv,
		obs:     obs,
		logger:  logger,
	}, nil
}

func newObservability(cfg config.ObservabilityConfig, o *options) (*observability.Observability, error) {
	tracing := observability.TracingConfigFrom(cfg.Tracing)
	tracing.Exporter = o.spanExporter

	return observability.New(observability.ObservabilityConfig{
		EnableTracing: cfg.EnableTracing,
		TracingConfig: tracing,
		EnableMetrics: cfg.EnableMetrics,
		MetricsConfig: observability.MetricsConfig{
			Namespace:   cfg.MetricsNamespace,
			Registerer:  o.registerer,
			Gatherer:    o.gatherer,
			MetricsAddr: o.metricsAddr,
		},
	})
}

// Invoker returns the transport core, for calling methods the typed
// clients do not cover
func (c *Client) Invoker() *transport.Invoker {
	return c.invoker
}

// Close closes every channel and flushes telemetry. Subscriptions still
// open fail with a cancellation.
func (c *Client) Close(ctx context.Context) error {
	err := errors.Join(c.invoker.Close(), c.obs.Shutdown(ctx))
	if err != nil {
		c.logger.Warn("Client close failed", logging.ErrorField(err))
	}
	return err
}
