package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/relaycache/relay-go/pkg/middleware"
)

// ObservabilityConfig configures metrics and tracing together
type ObservabilityConfig struct {
	// Tracing configuration
	EnableTracing bool
	TracingConfig TracingConfig

	// Metrics configuration
	EnableMetrics bool
	MetricsConfig MetricsConfig

	// CapturePayloadSizes adds request and response sizes to spans
	CapturePayloadSizes bool
}

// Observability owns the providers created from an ObservabilityConfig
type Observability struct {
	config  ObservabilityConfig
	tracer  *TracingProvider
	metrics *PrometheusMetricsProvider
}

// New creates the enabled providers
func New(config ObservabilityConfig) (*Observability, error) {
	o := &Observability{config: config}

	if config.EnableTracing {
		t, err := NewTracingProvider(config.TracingConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create tracing provider: %w", err)
		}
		o.tracer = t
	}

	if config.EnableMetrics {
		m, err := NewMetricsProvider(config.MetricsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics provider: %w", err)
		}
		o.metrics = m
	}

	return o, nil
}

// Tracer returns the tracing provider, nil when tracing is disabled
func (o *Observability) Tracer() *TracingProvider { return o.tracer }

// Metrics returns the metrics provider, nil when metrics are disabled
func (o *Observability) Metrics() *PrometheusMetricsProvider { return o.metrics }

// Middlewares returns the call middlewares for the enabled providers.
// Tracing comes first so its span covers the metrics handler.
func (o *Observability) Middlewares() []middleware.Middleware {
	var mws []middleware.Middleware
	if o.tracer != nil {
		mws = append(mws, NewTracingMiddleware(o.tracer, o.config.CapturePayloadSizes))
	}
	if o.metrics != nil {
		mws = append(mws, NewMetricsMiddleware(o.metrics))
	}
	return mws
}

// Start starts the metrics endpoint if one is configured
func (o *Observability) Start(ctx context.Context) error {
	if o.metrics != nil {
		return o.metrics.Start(ctx)
	}
	return nil
}

// Shutdown stops the metrics endpoint and flushes pending spans
func (o *Observability) Shutdown(ctx context.Context) error {
	var errs []error
	if o.metrics != nil {
		errs = append(errs, o.metrics.Shutdown(ctx))
	}
	if o.tracer != nil {
		errs = append(errs, o.tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// MetricsMiddleware records duration and outcome of every logical call
type MetricsMiddleware struct {
	metrics MetricsProvider
	now     func() time.Time
}

// NewMetricsMiddleware creates a metrics middleware
func NewMetricsMiddleware(metrics MetricsProvider) *MetricsMiddleware {
	return &MetricsMiddleware{metrics: metrics, now: time.Now}
}

var _ middleware.Middleware = (*MetricsMiddleware)(nil)

// OnNewCall implements middleware.Middleware
func (m *MetricsMiddleware) OnNewCall(info middleware.CallInfo) middleware.Handler {
	start := info.Start
	if start.IsZero() {
		start = m.now()
	}
	m.metrics.RecordInflight(info.Method, 1)

	return &middleware.Funcs{
		CallComplete: func(st *status.Status) {
			m.metrics.RecordInflight(info.Method, -1)
			m.metrics.RecordCall(info.Method, codeOf(st).String(), m.now().Sub(start))
		},
	}
}

// TracingMiddleware wraps every logical call in a client span and
// propagates its context in the request metadata
type TracingMiddleware struct {
	tracer       *TracingProvider
	capturesSize bool
}

// NewTracingMiddleware creates a tracing middleware
func NewTracingMiddleware(tracer *TracingProvider, capturePayloadSizes bool) *TracingMiddleware {
	return &TracingMiddleware{tracer: tracer, capturesSize: capturePayloadSizes}
}

var _ middleware.Middleware = (*TracingMiddleware)(nil)

// OnNewCall implements middleware.Middleware
func (m *TracingMiddleware) OnNewCall(info middleware.CallInfo) middleware.Handler {
	ctx, span := m.tracer.StartCallSpan(info.Context, info.Method, info.Resource, info.RequestID, info.Streaming)
	return &tracingHandler{tracer: m.tracer, ctx: ctx, span: span, capturesSize: m.capturesSize}
}

type tracingHandler struct {
	middleware.BaseHandler
	tracer       *TracingProvider
	ctx          context.Context
	span         trace.Span
	capturesSize bool

	responseBytes int
	messages      int
}

func (h *tracingHandler) OnRequestMetadata(md metadata.MD) (metadata.MD, error) {
	if md == nil {
		md = metadata.MD{}
	}
	h.tracer.Inject(h.ctx, metadataCarrier(md))
	return md, nil
}

func (h *tracingHandler) OnRequestBody(body []byte) ([]byte, error) {
	if h.capturesSize {
		h.span.SetAttributes(attribute.Int("relay.request_bytes", len(body)))
	}
	return body, nil
}

func (h *tracingHandler) OnResponseMetadata(md metadata.MD) (metadata.MD, error) {
	h.span.AddEvent("response.metadata", trace.WithAttributes(attribute.Int("keys", md.Len())))
	return md, nil
}

func (h *tracingHandler) OnResponseBody(body []byte) ([]byte, error) {
	h.messages++
	h.responseBytes += len(body)
	return body, nil
}

func (h *tracingHandler) OnCallComplete(st *status.Status) {
	code := codeOf(st)
	h.span.SetAttributes(attribute.Int(attrCode, int(code)))
	if h.capturesSize {
		h.span.SetAttributes(
			attribute.Int("relay.response_bytes", h.responseBytes),
			attribute.Int("relay.messages", h.messages),
		)
	}
	if code != codes.OK {
		h.span.SetStatus(otelcodes.Error, st.Message())
		h.span.RecordError(st.Err())
	}
	h.span.End()
}

func codeOf(st *status.Status) codes.Code {
	if st == nil {
		return codes.OK
	}
	return st.Code()
}

// metadataCarrier adapts gRPC metadata to a propagation.TextMapCarrier
type metadataCarrier metadata.MD

func (c metadataCarrier) Get(key string) string {
	values := metadata.MD(c).Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (c metadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
