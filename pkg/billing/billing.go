// Package billing defines the normalized cost-data model and the interface
// to the upstream billing API.
//
// An [API] implementation wraps a remote cost-and-usage service (the AWS
// Cost Explorer in production, a scripted fake in tests) and exposes a
// uniform, strongly-typed query surface so that the tool server never
// couples to a specific SDK. Every call against a real upstream is
// individually billed and rate limited; callers must treat errors of kind
// [KindRateLimited] and [KindTransientNetwork] as retryable and everything
// else as final.
//
// All monetary amounts are [decimal.Decimal] values. Upstream APIs return
// string decimals and comparison/delta math must not accumulate float error.
//
// Implementations must be safe for concurrent use.
package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

// Granularity is the time-bucket size of a cost query.
type Granularity string

const (
	GranularityDaily   Granularity = "DAILY"
	GranularityMonthly Granularity = "MONTHLY"
)

// IsValid reports whether g is a recognised granularity.
func (g Granularity) IsValid() bool {
	return g == GranularityDaily || g == GranularityMonthly
}

// CostQuery describes a single cost-and-usage request.
type CostQuery struct {
	// Period is the half-open time range [Start, End) to query.
	Period Period

	// Granularity selects the bucket size. Must be valid.
	Granularity Granularity

	// Metric is the upstream metric name, e.g. "UnblendedCost",
	// "BlendedCost", or "UsageQuantity".
	Metric string

	// GroupBy is the dimension key to group records by (e.g. "SERVICE",
	// "REGION", "USAGE_TYPE"). Empty means per-bucket totals only.
	GroupBy string

	// FilterDimension and FilterValues optionally restrict the query to
	// records whose dimension matches one of the values. Both must be set
	// together or not at all.
	FilterDimension string
	FilterValues    []string
}

// ForecastQuery describes a cost-forecast request.
type ForecastQuery struct {
	// Period is the future range to forecast. Start must not be in the past.
	Period Period

	// Granularity selects the bucket size of the forecast results.
	Granularity Granularity

	// Metric is the upstream forecast metric, e.g. "UNBLENDED_COST".
	Metric string
}

// DimensionQuery describes a dimension-values listing request.
type DimensionQuery struct {
	// Dimension is the dimension key to enumerate, e.g. "SERVICE".
	Dimension string

	// Period is the range within which values must have appeared.
	Period Period
}

// CostRecord is one normalized time-bucketed cost (or usage) value.
type CostRecord struct {
	// Period is the bucket this record covers.
	Period Period `json:"period"`

	// Group is the dimension member this record belongs to (e.g. an AWS
	// service name). Empty for per-bucket totals.
	Group string `json:"group,omitempty"`

	// Amount is the metric value for the bucket.
	Amount decimal.Decimal `json:"amount"`

	// Unit is the upstream unit, e.g. "USD" or "Hrs".
	Unit string `json:"unit"`
}

// ForecastRecord is one predicted cost bucket.
type ForecastRecord struct {
	Period Period          `json:"period"`
	Mean   decimal.Decimal `json:"mean"`
	Unit   string          `json:"unit"`
}

// DimensionValue is one member of a billing dimension.
type DimensionValue struct {
	Value      string            `json:"value"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// CostCategory describes one cost-category definition.
type CostCategory struct {
	Name           string   `json:"name"`
	Arn            string   `json:"arn"`
	EffectiveStart string   `json:"effective_start,omitempty"`
	Values         []string `json:"values,omitempty"`
}

// Delta is the per-group change between a baseline and a comparison period,
// produced by the comparison and cost-driver tools.
type Delta struct {
	Group      string          `json:"group"`
	Baseline   decimal.Decimal `json:"baseline"`
	Comparison decimal.Decimal `json:"comparison"`
	Change     decimal.Decimal `json:"change"`

	// ChangePct is the relative change in percent. When the baseline is
	// zero and the comparison is not, it is reported as 100.
	ChangePct float64 `json:"change_pct"`
}

// API is the abstraction over the upstream billing service. All operations
// are read-only queries keyed by an explicit time range.
//
// Implementations must be safe for concurrent use and must classify every
// failure into an [*Error] so callers can apply the retry policy.
type API interface {
	// CostAndUsage returns normalized cost records for the query. When the
	// query groups by a dimension, one record per (bucket, group) pair is
	// returned; otherwise one total record per bucket with an empty Group.
	// Records within a bucket are sorted by Amount descending.
	CostAndUsage(ctx context.Context, q CostQuery) ([]CostRecord, error)

	// Forecast returns predicted cost buckets for a future period.
	Forecast(ctx context.Context, q ForecastQuery) ([]ForecastRecord, error)

	// DimensionValues enumerates the members of a dimension that appeared
	// within the query period.
	DimensionValues(ctx context.Context, q DimensionQuery) ([]DimensionValue, error)

	// CostCategories lists the account's cost-category definitions.
	CostCategories(ctx context.Context) ([]CostCategory, error)
}
