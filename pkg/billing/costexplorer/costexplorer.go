// Package costexplorer implements the [billing.API] interface on top of the
// AWS Cost Explorer service using aws-sdk-go-v2.
//
// Every operation is translated into exactly one Cost Explorer request and
// the heterogeneous response shapes are normalized into the billing types.
// Failures are classified into [*billing.Error] values so the tool server
// can apply its retry policy; the SDK's own retryer is disabled because each
// Cost Explorer request is individually billed and retries must stay under
// the caller's explicit budget.
package costexplorer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	ce "github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/shopspring/decimal"

	"github.com/costlens/costlens/pkg/billing"
)

// Config holds the explicit settings for a Cost Explorer client. Values are
// passed in at construction, never read from ambient process state, so the
// client stays testable.
type Config struct {
	// Region is the AWS region for the Cost Explorer endpoint. The service
	// is global but the SDK requires a region; "us-east-1" is the usual
	// choice.
	Region string

	// Profile optionally selects a shared-credentials profile. Empty uses
	// the default credential chain.
	Profile string
}

// Client implements [billing.API] against the AWS Cost Explorer.
type Client struct {
	api ceAPI
}

// ceAPI is the subset of the generated Cost Explorer client used here,
// extracted so tests can substitute a fake without network access.
type ceAPI interface {
	GetCostAndUsage(ctx context.Context, in *ce.GetCostAndUsageInput, opts ...func(*ce.Options)) (*ce.GetCostAndUsageOutput, error)
	GetCostForecast(ctx context.Context, in *ce.GetCostForecastInput, opts ...func(*ce.Options)) (*ce.GetCostForecastOutput, error)
	GetDimensionValues(ctx context.Context, in *ce.GetDimensionValuesInput, opts ...func(*ce.Options)) (*ce.GetDimensionValuesOutput, error)
	ListCostCategoryDefinitions(ctx context.Context, in *ce.ListCostCategoryDefinitionsInput, opts ...func(*ce.Options)) (*ce.ListCostCategoryDefinitionsOutput, error)
}

// Compile-time check: Client must implement billing.API.
var _ billing.API = (*Client)(nil)

// New constructs a Client by resolving the AWS credential chain for cfg.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		// Retries are handled by the caller with an explicit budget.
		awsconfig.WithRetryMaxAttempts(1),
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("costexplorer: load aws config: %w", err)
	}

	return &Client{api: ce.NewFromConfig(awsCfg)}, nil
}

// newWithAPI is used by tests to inject a fake Cost Explorer API.
func newWithAPI(api ceAPI) *Client {
	return &Client{api: api}
}

// CostAndUsage implements [billing.API].
func (c *Client) CostAndUsage(ctx context.Context, q billing.CostQuery) ([]billing.CostRecord, error) {
	if err := q.Period.Validate(); err != nil {
		return nil, billing.NewError(billing.KindUpstreamMalformed, "", err.Error(), err)
	}

	in := &ce.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(q.Period.StartDate()),
			End:   aws.String(q.Period.EndDate()),
		},
		Granularity: cetypes.Granularity(q.Granularity),
		Metrics:     []string{q.Metric},
	}
	if q.GroupBy != "" {
		in.GroupBy = []cetypes.GroupDefinition{{
			Type: cetypes.GroupDefinitionTypeDimension,
			Key:  aws.String(strings.ToUpper(q.GroupBy)),
		}}
	}
	if q.FilterDimension != "" && len(q.FilterValues) > 0 {
		in.Filter = &cetypes.Expression{
			Dimensions: &cetypes.DimensionValues{
				Key:    cetypes.Dimension(strings.ToUpper(q.FilterDimension)),
				Values: q.FilterValues,
			},
		}
	}

	out, err := c.api.GetCostAndUsage(ctx, in)
	if err != nil {
		return nil, classify(err)
	}

	var records []billing.CostRecord
	for _, bucket := range out.ResultsByTime {
		period, err := bucketPeriod(bucket.TimePeriod)
		if err != nil {
			return nil, err
		}

		if len(bucket.Groups) == 0 {
			mv, ok := bucket.Total[q.Metric]
			if !ok {
				return nil, malformed(fmt.Sprintf("bucket %s missing metric %q", period, q.Metric))
			}
			rec, err := makeRecord(period, "", mv)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
			continue
		}

		start := len(records)
		for _, g := range bucket.Groups {
			if len(g.Keys) == 0 {
				return nil, malformed(fmt.Sprintf("bucket %s contains a group without keys", period))
			}
			mv, ok := g.Metrics[q.Metric]
			if !ok {
				return nil, malformed(fmt.Sprintf("group %q missing metric %q", g.Keys[0], q.Metric))
			}
			rec, err := makeRecord(period, g.Keys[0], mv)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
		// Largest spenders first within each bucket.
		sort.SliceStable(records[start:], func(i, j int) bool {
			return records[start+i].Amount.GreaterThan(records[start+j].Amount)
		})
	}

	return records, nil
}

// Forecast implements [billing.API].
func (c *Client) Forecast(ctx context.Context, q billing.ForecastQuery) ([]billing.ForecastRecord, error) {
	if err := q.Period.Validate(); err != nil {
		return nil, billing.NewError(billing.KindUpstreamMalformed, "", err.Error(), err)
	}

	out, err := c.api.GetCostForecast(ctx, &ce.GetCostForecastInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(q.Period.StartDate()),
			End:   aws.String(q.Period.EndDate()),
		},
		Granularity: cetypes.Granularity(q.Granularity),
		Metric:      cetypes.Metric(strings.ToUpper(q.Metric)),
	})
	if err != nil {
		return nil, classify(err)
	}

	unit := "USD"
	if out.Total != nil && out.Total.Unit != nil {
		unit = *out.Total.Unit
	}

	var records []billing.ForecastRecord
	for _, fr := range out.ForecastResultsByTime {
		period, err := bucketPeriod(fr.TimePeriod)
		if err != nil {
			return nil, err
		}
		if fr.MeanValue == nil {
			return nil, malformed(fmt.Sprintf("forecast bucket %s missing mean value", period))
		}
		mean, err := decimal.NewFromString(*fr.MeanValue)
		if err != nil {
			return nil, malformed(fmt.Sprintf("forecast bucket %s has non-decimal mean %q", period, *fr.MeanValue))
		}
		records = append(records, billing.ForecastRecord{Period: period, Mean: mean, Unit: unit})
	}

	return records, nil
}

// DimensionValues implements [billing.API].
func (c *Client) DimensionValues(ctx context.Context, q billing.DimensionQuery) ([]billing.DimensionValue, error) {
	if err := q.Period.Validate(); err != nil {
		return nil, billing.NewError(billing.KindUpstreamMalformed, "", err.Error(), err)
	}

	out, err := c.api.GetDimensionValues(ctx, &ce.GetDimensionValuesInput{
		TimePeriod: &cetypes.DateInterval{
			Start: aws.String(q.Period.StartDate()),
			End:   aws.String(q.Period.EndDate()),
		},
		Dimension: cetypes.Dimension(strings.ToUpper(q.Dimension)),
	})
	if err != nil {
		return nil, classify(err)
	}

	values := make([]billing.DimensionValue, 0, len(out.DimensionValues))
	for _, dv := range out.DimensionValues {
		if dv.Value == nil {
			continue
		}
		values = append(values, billing.DimensionValue{
			Value:      *dv.Value,
			Attributes: dv.Attributes,
		})
	}
	return values, nil
}

// CostCategories implements [billing.API].
func (c *Client) CostCategories(ctx context.Context) ([]billing.CostCategory, error) {
	out, err := c.api.ListCostCategoryDefinitions(ctx, &ce.ListCostCategoryDefinitionsInput{})
	if err != nil {
		return nil, classify(err)
	}

	cats := make([]billing.CostCategory, 0, len(out.CostCategoryReferences))
	for _, ref := range out.CostCategoryReferences {
		cat := billing.CostCategory{Values: ref.Values}
		if ref.Name != nil {
			cat.Name = *ref.Name
		}
		if ref.CostCategoryArn != nil {
			cat.Arn = *ref.CostCategoryArn
		}
		if ref.EffectiveStart != nil {
			cat.EffectiveStart = *ref.EffectiveStart
		}
		cats = append(cats, cat)
	}
	return cats, nil
}

// bucketPeriod converts an upstream DateInterval into a billing.Period.
func bucketPeriod(di *cetypes.DateInterval) (billing.Period, error) {
	if di == nil || di.Start == nil || di.End == nil {
		return billing.Period{}, malformed("result bucket missing time period")
	}
	p, err := billing.ParsePeriod(*di.Start, *di.End)
	if err != nil {
		return billing.Period{}, malformed(fmt.Sprintf("result bucket has invalid period %q..%q", *di.Start, *di.End))
	}
	return p, nil
}

// makeRecord converts one upstream metric value into a billing.CostRecord.
func makeRecord(period billing.Period, group string, mv cetypes.MetricValue) (billing.CostRecord, error) {
	if mv.Amount == nil {
		return billing.CostRecord{}, malformed(fmt.Sprintf("metric value for %q missing amount", group))
	}
	amount, err := decimal.NewFromString(*mv.Amount)
	if err != nil {
		return billing.CostRecord{}, malformed(fmt.Sprintf("metric value for %q is not a decimal: %q", group, *mv.Amount))
	}
	rec := billing.CostRecord{Period: period, Group: group, Amount: amount}
	if mv.Unit != nil {
		rec.Unit = *mv.Unit
	}
	return rec, nil
}

// malformed builds an upstream_malformed billing error.
func malformed(msg string) *billing.Error {
	return billing.NewError(billing.KindUpstreamMalformed, "", msg, nil)
}
