package observability

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/relaycache/relay-go/pkg/config"
	"github.com/relaycache/relay-go/pkg/middleware"
	"github.com/relaycache/relay-go/pkg/retry"
	"github.com/relaycache/relay-go/pkg/transport"
	"github.com/relaycache/relay-go/pkg/transport/transporttest"
	"github.com/relaycache/relay-go/pkg/wire"
)

func newTestMetrics(t *testing.T) *PrometheusMetricsProvider {
	t.Helper()
	p, err := NewMetricsProvider(MetricsConfig{Namespace: "test", Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	return p
}

func newTestTracer(t *testing.T) (*TracingProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewTracingProvider(TracingConfig{Exporter: exporter, SyncExport: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exporter
}

func TestMetricsProviderRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetricsProvider(MetricsConfig{Namespace: "test", Registerer: reg})
	require.NoError(t, err)

	// a second provider on the same registry shares the collectors
	second, err := NewMetricsProvider(MetricsConfig{Namespace: "test", Registerer: reg})
	require.NoError(t, err)

	first.RecordCall("/m", "OK", time.Millisecond)
	second.RecordCall("/m", "OK", time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(first.requestTotal.WithLabelValues("/m", "OK")))
}

func TestMetricsObservers(t *testing.T) {
	p := newTestMetrics(t)

	p.OnRetry("/m", 1, codes.Unavailable, 20*time.Millisecond)
	p.OnRetry("/m", 2, codes.Unavailable, 40*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(p.retryTotal.WithLabelValues("/m", "Unavailable")))

	p.OnChannelState(0, connectivity.Connecting)
	p.OnChannelState(0, connectivity.Ready)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.channelState.WithLabelValues("0", "READY")))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.channelState.WithLabelValues("0", "CONNECTING")))

	p.OnChannelRecycled(3)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.channelRecycles.WithLabelValues("3")))
}

func TestMetricsMiddleware(t *testing.T) {
	p := newTestMetrics(t)
	pipeline := middleware.NewPipeline(NewMetricsMiddleware(p))

	call := pipeline.OnNewCall(middleware.CallInfo{Method: "/m", Start: time.Now()})
	assert.Equal(t, 1.0, testutil.ToFloat64(p.inflight.WithLabelValues("/m")))

	call.Complete(status.New(codes.NotFound, "missing"))
	call.Complete(status.New(codes.OK, ""))

	assert.Equal(t, 0.0, testutil.ToFloat64(p.inflight.WithLabelValues("/m")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.requestTotal.WithLabelValues("/m", "NotFound")))
	assert.Equal(t, 1, testutil.CollectAndCount(p.requestDuration))
}

func TestTracingMiddlewareSpan(t *testing.T) {
	tp, exporter := newTestTracer(t)
	pipeline := middleware.NewPipeline(NewTracingMiddleware(tp, true))

	call := pipeline.OnNewCall(middleware.CallInfo{
		Method:    "/cache_client.Scs/Get",
		Resource:  "users",
		RequestID: "req-1",
		Context:   context.Background(),
	})

	md, err := call.RequestMetadata(metadata.Pairs("cache", "users"))
	require.NoError(t, err)
	require.Len(t, md.Get("traceparent"), 1)

	_, err = call.RequestBody([]byte("abc"))
	require.NoError(t, err)
	_, err = call.ResponseBody([]byte("hello"))
	require.NoError(t, err)
	call.Complete(status.New(codes.Unavailable, "down"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "/cache_client.Scs/Get", span.Name)
	assert.Equal(t, trace.SpanKindClient, span.SpanKind)
	assert.Equal(t, otelcodes.Error, span.Status.Code)
	assert.Equal(t, "down", span.Status.Description)

	attrs := map[string]interface{}{}
	for _, kv := range span.Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "users", attrs[attrResource])
	assert.Equal(t, "req-1", attrs[attrRequestID])
	assert.Equal(t, int64(codes.Unavailable), attrs[attrCode])
	assert.Equal(t, int64(3), attrs["relay.request_bytes"])
	assert.Equal(t, int64(5), attrs["relay.response_bytes"])

	// the injected traceparent carries the span's own trace id
	extracted := trace.SpanContextFromContext(tp.Extract(context.Background(), metadataCarrier(md)))
	assert.Equal(t, span.SpanContext.TraceID(), extracted.TraceID())
}

func TestTracingParentFromCallContext(t *testing.T) {
	tp, exporter := newTestTracer(t)
	ctx, parent := tp.StartCallSpan(context.Background(), "parent", "", "", false)

	call := middleware.NewPipeline(NewTracingMiddleware(tp, false)).
		OnNewCall(middleware.CallInfo{Method: "/m", Context: ctx})
	call.Complete(nil)
	parent.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
	assert.Equal(t, otelcodes.Unset, spans[0].Status.Code)
}

func TestMethodSampler(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewTracingProvider(TracingConfig{
		Exporter:    exporter,
		SyncExport:  true,
		NeverSample: []string{"/noisy"},
	})
	require.NoError(t, err)
	defer tp.Shutdown(context.Background())

	_, span := tp.StartCallSpan(context.Background(), "/noisy", "", "", false)
	span.End()
	_, span = tp.StartCallSpan(context.Background(), "/useful", "", "", false)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "/useful", spans[0].Name)
}

func TestUnsupportedExporter(t *testing.T) {
	_, err := NewTracingProvider(TracingConfig{ExporterType: "zipkin"})
	assert.Error(t, err)
}

func TestTracingConfigFrom(t *testing.T) {
	cfg := TracingConfigFrom(config.DefaultConfig().Observability.Tracing)
	assert.Equal(t, ExporterTypeNoop, cfg.ExporterType)
	assert.Equal(t, "relay-client", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestObservabilityThroughInvoker(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	obs, err := New(ObservabilityConfig{
		EnableTracing: true,
		TracingConfig: TracingConfig{Exporter: exporter, SyncExport: true},
		EnableMetrics: true,
		MetricsConfig: MetricsConfig{Namespace: "e2e", Registerer: prometheus.NewRegistry()},
	})
	require.NoError(t, err)
	require.Len(t, obs.Middlewares(), 2)
	defer obs.Shutdown(context.Background())

	srv := transporttest.NewServer(t)
	var mu sync.Mutex
	served := 0
	srv.HandleUnary(wire.MethodGet, func(context.Context, []byte) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		served++
		if served < 3 {
			return nil, status.Error(codes.Unavailable, "warming up")
		}
		return (&wire.GetResponse{Result: wire.ResultMiss}).Marshal(), nil
	})

	inv := srv.NewInvoker(t, transport.Options{
		Pipeline:      middleware.NewPipeline(obs.Middlewares()...),
		Policy:        retry.FixedCount{MaxAttempts: 3},
		RetryObserver: obs.Metrics(),
	})

	req := &wire.GetRequest{Key: []byte("k")}
	_, sdkErr := inv.Invoke(context.Background(), wire.MethodGet, "users", req.Marshal())
	require.Nil(t, sdkErr)

	m := obs.Metrics()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.retryTotal.WithLabelValues(wire.MethodGet, "Unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestTotal.WithLabelValues(wire.MethodGet, "OK")))

	// one span for the logical call, its context on every attempt
	require.Len(t, exporter.GetSpans(), 1)
	calls := srv.Calls()
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.Len(t, c.Metadata.Get("traceparent"), 1)
	}
}
