// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, structured logging helpers, and HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all CostLens metrics.
const meterName = "github.com/costlens/costlens"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ToolDispatchDuration tracks tool server dispatch latency, upstream
	// calls included.
	ToolDispatchDuration metric.Float64Histogram

	// LLMDuration tracks model completion latency.
	LLMDuration metric.Float64Histogram

	// UpstreamDuration tracks individual Cost Explorer request latency.
	UpstreamDuration metric.Float64Histogram

	// --- Counters ---

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// UpstreamRequests counts billing API requests. Use with attributes:
	//   attribute.String("operation", ...), attribute.String("status", ...)
	UpstreamRequests metric.Int64Counter

	// UpstreamErrors counts classified billing API failures. Use with:
	//   attribute.String("kind", ...)
	UpstreamErrors metric.Int64Counter

	// RetryAttempts counts upstream retries beyond the first attempt.
	RetryAttempts metric.Int64Counter

	// CacheHits and CacheMisses count result cache lookups by tool.
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// LLMRequests counts model completions. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	LLMRequests metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live assistant sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Upstream
// billing queries routinely take a second or two; model turns longer.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ToolDispatchDuration, err = m.Float64Histogram("costlens.tool.dispatch.duration",
		metric.WithDescription("Latency of tool server dispatch including upstream calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("costlens.llm.duration",
		metric.WithDescription("Latency of model completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UpstreamDuration, err = m.Float64Histogram("costlens.upstream.duration",
		metric.WithDescription("Latency of individual billing API requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ToolCalls, err = m.Int64Counter("costlens.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.UpstreamRequests, err = m.Int64Counter("costlens.upstream.requests",
		metric.WithDescription("Total billing API requests by operation and status."),
	); err != nil {
		return nil, err
	}
	if met.UpstreamErrors, err = m.Int64Counter("costlens.upstream.errors",
		metric.WithDescription("Total classified billing API failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.RetryAttempts, err = m.Int64Counter("costlens.upstream.retries",
		metric.WithDescription("Total upstream retries beyond the first attempt."),
	); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("costlens.cache.hits",
		metric.WithDescription("Result cache hits by tool."),
	); err != nil {
		return nil, err
	}
	if met.CacheMisses, err = m.Int64Counter("costlens.cache.misses",
		metric.WithDescription("Result cache misses by tool."),
	); err != nil {
		return nil, err
	}
	if met.LLMRequests, err = m.Int64Counter("costlens.llm.requests",
		metric.WithDescription("Total model completions by provider and status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("costlens.active_sessions",
		metric.WithDescription("Number of live assistant sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("costlens.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall records a tool call counter increment with the standard
// attribute set. Nil-safe so callers can run without metrics wired.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	if m == nil {
		return
	}
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordToolDispatch records dispatch latency for one tool call. Nil-safe.
func (m *Metrics) RecordToolDispatch(ctx context.Context, tool string, seconds float64) {
	if m == nil {
		return
	}
	m.ToolDispatchDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("tool", tool)),
	)
}

// RecordUpstreamRequest records one billing API request. Nil-safe.
func (m *Metrics) RecordUpstreamRequest(ctx context.Context, operation, status string) {
	if m == nil {
		return
	}
	m.UpstreamRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}

// RecordUpstreamDuration records latency of one billing API request. Nil-safe.
func (m *Metrics) RecordUpstreamDuration(ctx context.Context, operation string, seconds float64) {
	if m == nil {
		return
	}
	m.UpstreamDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("operation", operation)),
	)
}

// RecordUpstreamError records one classified billing failure. Nil-safe.
func (m *Metrics) RecordUpstreamError(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.UpstreamErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordRetries records n upstream retries for an operation. Nil-safe and a
// no-op when n is zero.
func (m *Metrics) RecordRetries(ctx context.Context, operation string, n int64) {
	if m == nil || n == 0 {
		return
	}
	m.RetryAttempts.Add(ctx, n,
		metric.WithAttributes(attribute.String("operation", operation)),
	)
}

// RecordCacheLookup records a result cache hit or miss for a tool. Nil-safe.
func (m *Metrics) RecordCacheLookup(ctx context.Context, tool string, hit bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	if hit {
		m.CacheHits.Add(ctx, 1, attrs)
	} else {
		m.CacheMisses.Add(ctx, 1, attrs)
	}
}

// RecordLLMDuration records the wall time of one model completion in
// seconds. Nil-safe.
func (m *Metrics) RecordLLMDuration(ctx context.Context, provider string, seconds float64) {
	if m == nil {
		return
	}
	m.LLMDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// SessionStarted increments the live session gauge. Nil-safe.
func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

// SessionEnded decrements the live session gauge. Nil-safe.
func (m *Metrics) SessionEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}

// RecordLLMRequest records one model completion. Nil-safe.
func (m *Metrics) RecordLLMRequest(ctx context.Context, provider, status string) {
	if m == nil {
		return
	}
	m.LLMRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}
