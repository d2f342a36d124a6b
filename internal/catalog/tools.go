package catalog

import (
	"fmt"
	"time"

	"github.com/costlens/costlens/pkg/billing"
)

// Tool names. The catalog is closed: dispatch switches exhaustively over
// these and nothing else.
const (
	ToolTodayDate          = "get_today_date"
	ToolCurrentMonthCost   = "get_current_month_cost"
	ToolServiceCosts       = "get_service_costs"
	ToolRegionalCosts      = "get_regional_costs"
	ToolCostForecast       = "get_cost_forecast"
	ToolCostAndUsage       = "get_cost_and_usage"
	ToolUsageReport        = "get_usage_report"
	ToolCostComparison     = "get_cost_comparison"
	ToolCostDrivers        = "get_cost_drivers"
	ToolDimensionValues    = "get_dimension_values"
	ToolListCostCategories = "list_cost_categories"
)

// dimensionEnum lists the dimension keys the upstream accepts for grouping
// and value enumeration.
var dimensionEnum = []string{
	"SERVICE", "REGION", "INSTANCE_TYPE", "LINKED_ACCOUNT", "USAGE_TYPE", "PURCHASE_TYPE",
}

// metricEnum lists the cost metrics a caller may request.
var metricEnum = []string{
	"UnblendedCost", "BlendedCost", "AmortizedCost", "NetUnblendedCost", "UsageQuantity",
}

func dateParam(name, desc string, required bool, defaultFn func(time.Time) any) Parameter {
	return Parameter{
		Name:        name,
		Type:        TypeDate,
		Description: desc,
		Required:    required,
		DefaultFn:   defaultFn,
	}
}

// definitions builds the fixed tool set. Called once from New.
func definitions() []*Tool {
	return []*Tool{
		{
			Name: ToolTodayDate,
			Description: "Get today's date plus ready-made date ranges (current month, " +
				"previous month, last 90 days). Call this first when the user speaks in " +
				"relative terms like 'this month' or 'last quarter'.",
			Cacheable: false,
		},
		{
			Name: ToolCurrentMonthCost,
			Description: "Get the total AWS cost for the current month to date, " +
				"as a single amount in USD.",
			Cacheable: true,
		},
		{
			Name: ToolServiceCosts,
			Description: "Get AWS costs for recent full months broken down by service, " +
				"largest spenders first.",
			Cacheable: true,
			Params: []Parameter{{
				Name:        "months_back",
				Type:        TypeInt,
				Description: "How many full months to look back.",
				Default:     3,
				Min:         1,
				Max:         12,
			}},
		},
		{
			Name: ToolRegionalCosts,
			Description: "Get AWS costs for recent full months broken down by region, " +
				"largest spenders first.",
			Cacheable: true,
			Params: []Parameter{{
				Name:        "months_back",
				Type:        TypeInt,
				Description: "How many full months to look back.",
				Default:     1,
				Min:         1,
				Max:         12,
			}},
		},
		{
			Name: ToolCostForecast,
			Description: "Forecast AWS costs for upcoming months based on historical " +
				"usage, one mean estimate per month.",
			Cacheable: true,
			Params: []Parameter{{
				Name:        "months_ahead",
				Type:        TypeInt,
				Description: "How many months ahead to forecast.",
				Default:     3,
				Min:         1,
				Max:         12,
			}},
		},
		{
			Name: ToolCostAndUsage,
			Description: "Query AWS cost and usage for an explicit date range with a " +
				"chosen granularity, grouping dimension, and metric. The general-purpose " +
				"cost query; prefer the specialized tools when they fit.",
			Cacheable: true,
			Params: []Parameter{
				dateParam("start_date", "Range start (YYYY-MM-DD, inclusive).", false,
					func(now time.Time) any { return billing.LastMonths(now, 2).StartDate() }),
				dateParam("end_date", "Range end (YYYY-MM-DD, exclusive).", false,
					func(now time.Time) any { return billing.LastMonths(now, 2).EndDate() }),
				{
					Name:        "granularity",
					Type:        TypeString,
					Description: "Time bucket size.",
					Default:     "MONTHLY",
					Enum:        []string{"DAILY", "MONTHLY"},
				},
				{
					Name:        "group_by",
					Type:        TypeString,
					Description: "Dimension to group results by.",
					Default:     "SERVICE",
					Enum:        dimensionEnum,
				},
				{
					Name:        "metric",
					Type:        TypeString,
					Description: "Cost metric to report.",
					Default:     "UnblendedCost",
					Enum:        metricEnum,
				},
			},
			Check: checkPeriod("start_date", "end_date"),
		},
		{
			Name: ToolUsageReport,
			Description: "Get usage quantities (not dollar costs) broken down by usage " +
				"type, optionally filtered to one service. Shows what is actually being " +
				"consumed.",
			Cacheable: true,
			Params: []Parameter{
				dateParam("start_date", "Range start (YYYY-MM-DD, inclusive).", false,
					func(now time.Time) any { return billing.LastMonths(now, 1).StartDate() }),
				dateParam("end_date", "Range end (YYYY-MM-DD, exclusive).", false,
					func(now time.Time) any { return billing.LastMonths(now, 1).EndDate() }),
				{
					Name:        "service",
					Type:        TypeString,
					Description: "Exact service name to filter on, e.g. 'Amazon Simple Storage Service'. Omit for all services.",
				},
			},
			Check: checkPeriod("start_date", "end_date"),
		},
		{
			Name: ToolCostComparison,
			Description: "Compare AWS costs between two non-overlapping periods, broken " +
				"down by a dimension and ranked by the size of the change.",
			Cacheable: true,
			Params: []Parameter{
				dateParam("baseline_start", "Baseline period start (YYYY-MM-DD, inclusive).", true, nil),
				dateParam("baseline_end", "Baseline period end (YYYY-MM-DD, exclusive).", true, nil),
				dateParam("comparison_start", "Comparison period start (YYYY-MM-DD, inclusive).", true, nil),
				dateParam("comparison_end", "Comparison period end (YYYY-MM-DD, exclusive).", true, nil),
				{
					Name:        "group_by",
					Type:        TypeString,
					Description: "Dimension to group the comparison by.",
					Default:     "SERVICE",
					Enum:        dimensionEnum,
				},
			},
			Check: checkComparisonPeriods,
		},
		{
			Name: ToolCostDrivers,
			Description: "Explain what drove the cost change between two non-overlapping " +
				"periods: ranked per-dimension deltas plus a daily profile of the " +
				"comparison period to show when the change happened.",
			Cacheable: true,
			Params: []Parameter{
				dateParam("baseline_start", "Baseline period start (YYYY-MM-DD, inclusive).", true, nil),
				dateParam("baseline_end", "Baseline period end (YYYY-MM-DD, exclusive).", true, nil),
				dateParam("comparison_start", "Comparison period start (YYYY-MM-DD, inclusive).", true, nil),
				dateParam("comparison_end", "Comparison period end (YYYY-MM-DD, exclusive).", true, nil),
				{
					Name:        "group_by",
					Type:        TypeString,
					Description: "Dimension to attribute the change to.",
					Default:     "SERVICE",
					Enum:        dimensionEnum,
				},
			},
			Check: checkComparisonPeriods,
		},
		{
			Name: ToolDimensionValues,
			Description: "List the values present in the account for a dimension, e.g. " +
				"every service or region that has incurred cost. Useful for finding the " +
				"exact spelling of a service name.",
			Cacheable: true,
			Params: []Parameter{
				{
					Name:        "dimension",
					Type:        TypeString,
					Description: "Dimension to enumerate.",
					Default:     "SERVICE",
					Enum:        dimensionEnum,
				},
				dateParam("start_date", "Range start (YYYY-MM-DD, inclusive).", false,
					func(now time.Time) any { return billing.LastDays(now, 90).StartDate() }),
				dateParam("end_date", "Range end (YYYY-MM-DD, exclusive).", false,
					func(now time.Time) any { return billing.LastDays(now, 90).EndDate() }),
			},
			Check: checkPeriod("start_date", "end_date"),
		},
		{
			Name: ToolListCostCategories,
			Description: "List the cost category definitions configured in the account " +
				"(name, ARN, and values).",
			Cacheable: true,
		},
	}
}

// checkPeriod enforces start < end on a defaulted argument pair.
func checkPeriod(startKey, endKey string) func(map[string]any) *ValidationError {
	return func(args map[string]any) *ValidationError {
		if _, err := periodFrom(args, startKey, endKey); err != nil {
			return err
		}
		return nil
	}
}

// checkComparisonPeriods enforces two well-formed, non-overlapping periods.
func checkComparisonPeriods(args map[string]any) *ValidationError {
	baseline, verr := periodFrom(args, "baseline_start", "baseline_end")
	if verr != nil {
		return verr
	}
	comparison, verr := periodFrom(args, "comparison_start", "comparison_end")
	if verr != nil {
		return verr
	}
	if baseline.Overlaps(comparison) {
		return &ValidationError{
			Kind:    DisallowedValue,
			Param:   "comparison_start",
			Message: fmt.Sprintf("comparison period %s overlaps baseline period %s", comparison, baseline),
		}
	}
	return nil
}

// periodFrom reads a validated date pair out of canonical args.
func periodFrom(args map[string]any, startKey, endKey string) (billing.Period, *ValidationError) {
	start, _ := args[startKey].(string)
	end, _ := args[endKey].(string)
	p, err := billing.ParsePeriod(start, end)
	if err != nil {
		return billing.Period{}, &ValidationError{
			Kind:    DisallowedValue,
			Param:   startKey,
			Message: fmt.Sprintf("%s..%s is not a valid period: start must be before end", start, end),
		}
	}
	return p, nil
}
