package toolserver

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/costlens/costlens/pkg/billing"
)

// Result is the outcome of one successful tool dispatch. Data holds the
// tool-specific report payload; Summary is a one-line human-readable digest
// that transports may surface alongside the structured data.
type Result struct {
	Tool    string `json:"tool"`
	Summary string `json:"summary"`
	Data    any    `json:"data"`
}

// JSON renders the result for the model: the structured payload as compact
// JSON. Summary and tool name travel separately in the transport envelope.
func (r *Result) JSON() (string, error) {
	b, err := json.Marshal(r.Data)
	if err != nil {
		return "", fmt.Errorf("toolserver: encode %s result: %w", r.Tool, err)
	}
	return string(b), nil
}

// DateRanges is the payload of the date tool: today plus the relative ranges
// the other tools accept.
type DateRanges struct {
	Today         string         `json:"today"`
	CurrentMonth  billing.Period `json:"current_month"`
	PreviousMonth billing.Period `json:"previous_month"`
	Last90Days    billing.Period `json:"last_90_days"`
}

// CostReport is the payload of every plain cost query.
type CostReport struct {
	Period      billing.Period       `json:"period"`
	Granularity billing.Granularity  `json:"granularity"`
	Metric      string               `json:"metric"`
	GroupBy     string               `json:"group_by,omitempty"`
	Records     []billing.CostRecord `json:"records"`
	Total       decimal.Decimal      `json:"total"`
	Unit        string               `json:"unit"`
}

func newCostReport(period billing.Period, g billing.Granularity, metric, groupBy string, records []billing.CostRecord) *CostReport {
	return &CostReport{
		Period:      period,
		Granularity: g,
		Metric:      metric,
		GroupBy:     groupBy,
		Records:     records,
		Total:       billing.SumAmounts(records),
		Unit:        unitOf(records),
	}
}

// UsageReport is the payload of the usage tool. Amounts are usage quantities
// in per-record units, so no aggregate total is reported.
type UsageReport struct {
	Period  billing.Period       `json:"period"`
	Service string               `json:"service,omitempty"`
	Records []billing.CostRecord `json:"records"`
}

// ForecastReport is the payload of the forecast tool.
type ForecastReport struct {
	Period  billing.Period           `json:"period"`
	Metric  string                   `json:"metric"`
	Records []billing.ForecastRecord `json:"records"`
	Total   decimal.Decimal          `json:"total"`
	Unit    string                   `json:"unit"`
}

func newForecastReport(period billing.Period, metric string, records []billing.ForecastRecord) *ForecastReport {
	total := decimal.Zero
	unit := "USD"
	for i, r := range records {
		total = total.Add(r.Mean)
		if i == 0 && r.Unit != "" {
			unit = r.Unit
		}
	}
	return &ForecastReport{
		Period:  period,
		Metric:  metric,
		Records: records,
		Total:   total,
		Unit:    unit,
	}
}

// ComparisonReport is the payload of the comparison tool: per-group deltas
// between two periods, ranked by absolute change.
type ComparisonReport struct {
	Baseline        billing.Period  `json:"baseline"`
	Comparison      billing.Period  `json:"comparison"`
	GroupBy         string          `json:"group_by"`
	Deltas          []billing.Delta `json:"deltas"`
	BaselineTotal   decimal.Decimal `json:"baseline_total"`
	ComparisonTotal decimal.Decimal `json:"comparison_total"`
	TotalChange     decimal.Decimal `json:"total_change"`
	Unit            string          `json:"unit"`
}

func newComparisonReport(baseline, comparison billing.Period, groupBy string, baseRecs, compRecs []billing.CostRecord) *ComparisonReport {
	baseTotal := billing.SumAmounts(baseRecs)
	compTotal := billing.SumAmounts(compRecs)
	unit := unitOf(baseRecs)
	if unit == "USD" && len(compRecs) > 0 && compRecs[0].Unit != "" {
		unit = compRecs[0].Unit
	}
	return &ComparisonReport{
		Baseline:        baseline,
		Comparison:      comparison,
		GroupBy:         groupBy,
		Deltas:          billing.ComputeDeltas(baseRecs, compRecs),
		BaselineTotal:   baseTotal,
		ComparisonTotal: compTotal,
		TotalChange:     compTotal.Sub(baseTotal),
		Unit:            unit,
	}
}

// DriversReport extends the comparison with a daily cost profile of the
// comparison period.
type DriversReport struct {
	ComparisonReport
	DailyProfile []billing.CostRecord `json:"daily_profile"`
}

// DimensionReport is the payload of the dimension-values tool.
type DimensionReport struct {
	Dimension string                   `json:"dimension"`
	Period    billing.Period           `json:"period"`
	Values    []billing.DimensionValue `json:"values"`
}

// CategoriesReport is the payload of the cost-categories tool.
type CategoriesReport struct {
	Categories []billing.CostCategory `json:"categories"`
}

func unitOf(records []billing.CostRecord) string {
	if len(records) > 0 && records[0].Unit != "" {
		return records[0].Unit
	}
	return "USD"
}
