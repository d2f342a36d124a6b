// Package toolserver executes catalog tools against the upstream billing
// API.
//
// A [Server] owns the full request path for one tool call: argument
// validation and canonicalization via the catalog, upstream queries guarded
// by a retry policy and a circuit breaker, and normalization of the raw
// records into model-facing report payloads. Tools that need several
// upstream queries (comparisons, cost drivers) fan the queries out
// concurrently and join the results.
//
// Upstream calls are billed per request, so the server never retries
// silently beyond the configured budget and trips the breaker open when the
// upstream degrades.
package toolserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/costlens/costlens/internal/catalog"
	"github.com/costlens/costlens/internal/observe"
	"github.com/costlens/costlens/internal/resilience"
	"github.com/costlens/costlens/pkg/billing"
	"github.com/costlens/costlens/pkg/types"
)

// forecastMetric is the upstream metric name used by the forecast tool. The
// forecast API spells metrics in SCREAMING_SNAKE_CASE unlike cost queries.
const forecastMetric = "UNBLENDED_COST"

// Server dispatches tool calls. Create with [New]; the zero value is not
// usable. Safe for concurrent use.
type Server struct {
	catalog  *catalog.Catalog
	upstream billing.API
	retry    resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
	now      func() time.Time
	log      *slog.Logger
	metrics  *observe.Metrics
}

// Option configures a [Server].
type Option func(*Server)

// WithClock overrides the time source, used by tests and by tools that
// resolve relative date ranges.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics sets the metrics sink. Nil metrics disable recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRetry overrides the upstream retry policy. The Retryable field is
// always forced to [billing.Retryable] so only rate limits and transient
// network failures are retried.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(s *Server) { s.retry = cfg }
}

// New creates a tool server over the given upstream.
func New(upstream billing.API, opts ...Option) *Server {
	s := &Server{
		upstream: upstream,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry.Retryable = billing.Retryable
	s.catalog = catalog.New(s.now)
	s.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		// Only failures the retry policy would also chase count against the
		// breaker. Denied or malformed responses are final, not a sign of
		// upstream degradation.
		CountFailure: billing.Retryable,
	})
	return s
}

// Definitions returns the model-facing tool definitions of the catalog.
func (s *Server) Definitions() []types.ToolDefinition {
	return s.catalog.Definitions()
}

// CacheKey validates and canonicalizes args and returns the canonical cache
// key for the call plus whether the tool's results may be cached at all.
func (s *Server) CacheKey(name string, args map[string]any) (key string, cacheable bool, err error) {
	tool, err := s.catalog.Lookup(name)
	if err != nil {
		return "", false, err
	}
	canonical, err := s.catalog.Canonicalize(name, args)
	if err != nil {
		return "", false, err
	}
	return catalog.CanonicalKey(canonical), tool.Cacheable, nil
}

// Dispatch validates, canonicalizes, and executes one tool call. Validation
// failures return a [*catalog.ValidationError] (or [*catalog.NotFoundError]
// for unknown tools) without touching the upstream. Upstream failures return
// a classified [*billing.Error]; context cancellation is passed through
// unwrapped.
func (s *Server) Dispatch(ctx context.Context, name string, args map[string]any) (*Result, error) {
	start := time.Now()

	if err := s.catalog.Validate(name, args); err != nil {
		s.metrics.RecordToolCall(ctx, name, "invalid")
		s.log.LogAttrs(ctx, slog.LevelWarn, "tool call rejected",
			slog.String("tool", name),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	canonical, err := s.catalog.Canonicalize(name, args)
	if err != nil {
		s.metrics.RecordToolCall(ctx, name, "invalid")
		return nil, err
	}

	res, err := s.execute(ctx, name, canonical)

	elapsed := time.Since(start)
	s.metrics.RecordToolDispatch(ctx, name, elapsed.Seconds())
	if err != nil {
		s.metrics.RecordToolCall(ctx, name, "error")
		s.log.LogAttrs(ctx, slog.LevelError, "tool call failed",
			slog.String("tool", name),
			slog.Duration("duration", elapsed),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.metrics.RecordToolCall(ctx, name, "ok")
	s.log.LogAttrs(ctx, slog.LevelInfo, "tool call completed",
		slog.String("tool", name),
		slog.Duration("duration", elapsed),
	)
	return res, nil
}

// execute switches over the closed tool set. Args are canonical: every
// parameter present with its normalized type.
func (s *Server) execute(ctx context.Context, name string, args map[string]any) (*Result, error) {
	switch name {
	case catalog.ToolTodayDate:
		return s.todayDate()
	case catalog.ToolCurrentMonthCost:
		return s.currentMonthCost(ctx)
	case catalog.ToolServiceCosts:
		return s.groupedMonthlyCosts(ctx, name, argInt(args, "months_back"), "SERVICE")
	case catalog.ToolRegionalCosts:
		return s.groupedMonthlyCosts(ctx, name, argInt(args, "months_back"), "REGION")
	case catalog.ToolCostForecast:
		return s.costForecast(ctx, argInt(args, "months_ahead"))
	case catalog.ToolCostAndUsage:
		return s.costAndUsage(ctx, args)
	case catalog.ToolUsageReport:
		return s.usageReport(ctx, args)
	case catalog.ToolCostComparison:
		return s.costComparison(ctx, args)
	case catalog.ToolCostDrivers:
		return s.costDrivers(ctx, args)
	case catalog.ToolDimensionValues:
		return s.dimensionValues(ctx, args)
	case catalog.ToolListCostCategories:
		return s.costCategories(ctx)
	default:
		// Validate already rejected unknown names.
		return nil, &catalog.NotFoundError{Tool: name}
	}
}

// call runs one upstream operation through the retry policy and the circuit
// breaker, recording request metrics.
func (s *Server) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	start := time.Now()
	attempts := 0
	err := resilience.Retry(ctx, s.retry, func(ctx context.Context) error {
		attempts++
		return s.breaker.Execute(func() error { return fn(ctx) })
	})
	s.metrics.RecordRetries(ctx, operation, int64(attempts-1))

	status := "ok"
	if err != nil {
		status = "error"
		s.metrics.RecordUpstreamError(ctx, string(billing.KindOf(err)))
	}
	s.metrics.RecordUpstreamRequest(ctx, operation, status)
	s.metrics.RecordUpstreamDuration(ctx, operation, time.Since(start).Seconds())
	return err
}

func (s *Server) queryCosts(ctx context.Context, q billing.CostQuery) ([]billing.CostRecord, error) {
	var records []billing.CostRecord
	err := s.call(ctx, "CostAndUsage", func(ctx context.Context) error {
		var err error
		records, err = s.upstream.CostAndUsage(ctx, q)
		return err
	})
	return records, err
}

// ──────────────────────────── Tool implementations ───────────────────────────

func (s *Server) todayDate() (*Result, error) {
	now := s.now()
	data := &DateRanges{
		Today:         now.UTC().Format(billing.DateLayout),
		CurrentMonth:  billing.CurrentMonth(now),
		PreviousMonth: billing.LastMonths(now, 1),
		Last90Days:    billing.LastDays(now, 90),
	}
	return &Result{
		Tool:    catalog.ToolTodayDate,
		Summary: fmt.Sprintf("Today is %s.", data.Today),
		Data:    data,
	}, nil
}

func (s *Server) currentMonthCost(ctx context.Context) (*Result, error) {
	period := billing.CurrentMonth(s.now())
	records, err := s.queryCosts(ctx, billing.CostQuery{
		Period:      period,
		Granularity: billing.GranularityMonthly,
		Metric:      "UnblendedCost",
	})
	if err != nil {
		return nil, err
	}
	report := newCostReport(period, billing.GranularityMonthly, "UnblendedCost", "", records)
	return &Result{
		Tool:    catalog.ToolCurrentMonthCost,
		Summary: fmt.Sprintf("Month-to-date cost for %s: %s %s.", period, report.Total, report.Unit),
		Data:    report,
	}, nil
}

func (s *Server) groupedMonthlyCosts(ctx context.Context, tool string, monthsBack int, groupBy string) (*Result, error) {
	period := billing.LastMonths(s.now(), monthsBack)
	records, err := s.queryCosts(ctx, billing.CostQuery{
		Period:      period,
		Granularity: billing.GranularityMonthly,
		Metric:      "UnblendedCost",
		GroupBy:     groupBy,
	})
	if err != nil {
		return nil, err
	}
	report := newCostReport(period, billing.GranularityMonthly, "UnblendedCost", groupBy, records)
	return &Result{
		Tool: tool,
		Summary: fmt.Sprintf("Costs for %s grouped by %s: %d records totalling %s %s.",
			period, groupBy, len(records), report.Total, report.Unit),
		Data: report,
	}, nil
}

func (s *Server) costForecast(ctx context.Context, monthsAhead int) (*Result, error) {
	period := billing.NextMonths(s.now(), monthsAhead)
	var records []billing.ForecastRecord
	err := s.call(ctx, "Forecast", func(ctx context.Context) error {
		var err error
		records, err = s.upstream.Forecast(ctx, billing.ForecastQuery{
			Period:      period,
			Granularity: billing.GranularityMonthly,
			Metric:      forecastMetric,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	report := newForecastReport(period, forecastMetric, records)
	return &Result{
		Tool: catalog.ToolCostForecast,
		Summary: fmt.Sprintf("Forecast for %s: %s %s total across %d months.",
			period, report.Total, report.Unit, len(records)),
		Data: report,
	}, nil
}

func (s *Server) costAndUsage(ctx context.Context, args map[string]any) (*Result, error) {
	period := argPeriod(args, "start_date", "end_date")
	granularity := billing.Granularity(argString(args, "granularity"))
	metric := argString(args, "metric")
	groupBy := argString(args, "group_by")

	records, err := s.queryCosts(ctx, billing.CostQuery{
		Period:      period,
		Granularity: granularity,
		Metric:      metric,
		GroupBy:     groupBy,
	})
	if err != nil {
		return nil, err
	}
	report := newCostReport(period, granularity, metric, groupBy, records)
	return &Result{
		Tool: catalog.ToolCostAndUsage,
		Summary: fmt.Sprintf("%s for %s grouped by %s: %d records totalling %s %s.",
			metric, period, groupBy, len(records), report.Total, report.Unit),
		Data: report,
	}, nil
}

func (s *Server) usageReport(ctx context.Context, args map[string]any) (*Result, error) {
	period := argPeriod(args, "start_date", "end_date")
	service := argString(args, "service")

	q := billing.CostQuery{
		Period:      period,
		Granularity: billing.GranularityMonthly,
		Metric:      "UsageQuantity",
		GroupBy:     "USAGE_TYPE",
	}
	if service != "" {
		q.FilterDimension = "SERVICE"
		q.FilterValues = []string{service}
	}

	records, err := s.queryCosts(ctx, q)
	if err != nil {
		return nil, err
	}
	report := &UsageReport{
		Period:  period,
		Service: service,
		Records: records,
	}
	scope := "all services"
	if service != "" {
		scope = service
	}
	return &Result{
		Tool:    catalog.ToolUsageReport,
		Summary: fmt.Sprintf("Usage for %s over %s: %d usage types.", scope, period, len(records)),
		Data:    report,
	}, nil
}

func (s *Server) costComparison(ctx context.Context, args map[string]any) (*Result, error) {
	baseline := argPeriod(args, "baseline_start", "baseline_end")
	comparison := argPeriod(args, "comparison_start", "comparison_end")
	groupBy := argString(args, "group_by")

	baseRecs, compRecs, err := s.comparePeriods(ctx, baseline, comparison, groupBy)
	if err != nil {
		return nil, err
	}
	report := newComparisonReport(baseline, comparison, groupBy, baseRecs, compRecs)
	return &Result{
		Tool: catalog.ToolCostComparison,
		Summary: fmt.Sprintf("Comparing %s against %s by %s: total change %s %s.",
			comparison, baseline, groupBy, report.TotalChange, report.Unit),
		Data: report,
	}, nil
}

func (s *Server) costDrivers(ctx context.Context, args map[string]any) (*Result, error) {
	baseline := argPeriod(args, "baseline_start", "baseline_end")
	comparison := argPeriod(args, "comparison_start", "comparison_end")
	groupBy := argString(args, "group_by")

	// Three upstream queries: both periods grouped by the dimension, plus a
	// daily ungrouped profile of the comparison period to locate the change
	// in time.
	g, gctx := errgroup.WithContext(ctx)
	var baseRecs, compRecs, daily []billing.CostRecord
	g.Go(func() error {
		var err error
		baseRecs, compRecs, err = s.comparePeriods(gctx, baseline, comparison, groupBy)
		return err
	})
	g.Go(func() error {
		var err error
		daily, err = s.queryCosts(gctx, billing.CostQuery{
			Period:      comparison,
			Granularity: billing.GranularityDaily,
			Metric:      "UnblendedCost",
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &DriversReport{
		ComparisonReport: *newComparisonReport(baseline, comparison, groupBy, baseRecs, compRecs),
		DailyProfile:     daily,
	}
	top := "no change"
	if len(report.Deltas) > 0 {
		d := report.Deltas[0]
		top = fmt.Sprintf("largest driver %s (%s %s)", d.Group, d.Change, report.Unit)
	}
	return &Result{
		Tool: catalog.ToolCostDrivers,
		Summary: fmt.Sprintf("Cost drivers for %s vs %s by %s: total change %s %s, %s.",
			comparison, baseline, groupBy, report.TotalChange, report.Unit, top),
		Data: report,
	}, nil
}

// comparePeriods fetches both comparison legs concurrently.
func (s *Server) comparePeriods(ctx context.Context, baseline, comparison billing.Period, groupBy string) (baseRecs, compRecs []billing.CostRecord, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		baseRecs, err = s.queryCosts(gctx, billing.CostQuery{
			Period:      baseline,
			Granularity: billing.GranularityMonthly,
			Metric:      "UnblendedCost",
			GroupBy:     groupBy,
		})
		return err
	})
	g.Go(func() error {
		var err error
		compRecs, err = s.queryCosts(gctx, billing.CostQuery{
			Period:      comparison,
			Granularity: billing.GranularityMonthly,
			Metric:      "UnblendedCost",
			GroupBy:     groupBy,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return baseRecs, compRecs, nil
}

func (s *Server) dimensionValues(ctx context.Context, args map[string]any) (*Result, error) {
	dimension := argString(args, "dimension")
	period := argPeriod(args, "start_date", "end_date")

	var values []billing.DimensionValue
	err := s.call(ctx, "DimensionValues", func(ctx context.Context) error {
		var err error
		values, err = s.upstream.DimensionValues(ctx, billing.DimensionQuery{
			Dimension: dimension,
			Period:    period,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Tool:    catalog.ToolDimensionValues,
		Summary: fmt.Sprintf("%d %s values found in %s.", len(values), dimension, period),
		Data: &DimensionReport{
			Dimension: dimension,
			Period:    period,
			Values:    values,
		},
	}, nil
}

func (s *Server) costCategories(ctx context.Context) (*Result, error) {
	var categories []billing.CostCategory
	err := s.call(ctx, "CostCategories", func(ctx context.Context) error {
		var err error
		categories, err = s.upstream.CostCategories(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		Tool:    catalog.ToolListCostCategories,
		Summary: fmt.Sprintf("%d cost categories defined.", len(categories)),
		Data:    &CategoriesReport{Categories: categories},
	}, nil
}

// ──────────────────────────── Canonical arg readers ───────────────────────────

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argInt(args map[string]any, key string) int {
	n, _ := args[key].(int)
	return n
}

// argPeriod reads a date pair that canonicalization already validated.
func argPeriod(args map[string]any, startKey, endKey string) billing.Period {
	p, _ := billing.ParsePeriod(argString(args, startKey), argString(args, endKey))
	return p
}
