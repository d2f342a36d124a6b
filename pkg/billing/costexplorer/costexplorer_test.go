package costexplorer

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ce "github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/smithy-go"

	"github.com/costlens/costlens/pkg/billing"
)

// fakeCE scripts the generated client's responses and records inputs.
type fakeCE struct {
	costAndUsageOut *ce.GetCostAndUsageOutput
	forecastOut     *ce.GetCostForecastOutput
	dimensionsOut   *ce.GetDimensionValuesOutput
	categoriesOut   *ce.ListCostCategoryDefinitionsOutput
	err             error

	lastCostAndUsage *ce.GetCostAndUsageInput
	calls            int
}

func (f *fakeCE) GetCostAndUsage(ctx context.Context, in *ce.GetCostAndUsageInput, _ ...func(*ce.Options)) (*ce.GetCostAndUsageOutput, error) {
	f.calls++
	f.lastCostAndUsage = in
	return f.costAndUsageOut, f.err
}

func (f *fakeCE) GetCostForecast(ctx context.Context, in *ce.GetCostForecastInput, _ ...func(*ce.Options)) (*ce.GetCostForecastOutput, error) {
	f.calls++
	return f.forecastOut, f.err
}

func (f *fakeCE) GetDimensionValues(ctx context.Context, in *ce.GetDimensionValuesInput, _ ...func(*ce.Options)) (*ce.GetDimensionValuesOutput, error) {
	f.calls++
	return f.dimensionsOut, f.err
}

func (f *fakeCE) ListCostCategoryDefinitions(ctx context.Context, in *ce.ListCostCategoryDefinitionsInput, _ ...func(*ce.Options)) (*ce.ListCostCategoryDefinitionsOutput, error) {
	f.calls++
	return f.categoriesOut, f.err
}

func mustPeriod(t *testing.T, start, end string) billing.Period {
	t.Helper()
	p, err := billing.ParsePeriod(start, end)
	if err != nil {
		t.Fatalf("ParsePeriod(%s, %s): %v", start, end, err)
	}
	return p
}

func TestCostAndUsageGroupedNormalization(t *testing.T) {
	fake := &fakeCE{
		costAndUsageOut: &ce.GetCostAndUsageOutput{
			ResultsByTime: []cetypes.ResultByTime{{
				TimePeriod: &cetypes.DateInterval{
					Start: aws.String("2025-06-01"),
					End:   aws.String("2025-07-01"),
				},
				Groups: []cetypes.Group{
					{
						Keys:    []string{"Amazon S3"},
						Metrics: map[string]cetypes.MetricValue{"UnblendedCost": {Amount: aws.String("12.50"), Unit: aws.String("USD")}},
					},
					{
						Keys:    []string{"Amazon EC2"},
						Metrics: map[string]cetypes.MetricValue{"UnblendedCost": {Amount: aws.String("98.01"), Unit: aws.String("USD")}},
					},
				},
			}},
		},
	}
	client := newWithAPI(fake)

	records, err := client.CostAndUsage(context.Background(), billing.CostQuery{
		Period:      mustPeriod(t, "2025-06-01", "2025-07-01"),
		Granularity: billing.GranularityMonthly,
		Metric:      "UnblendedCost",
		GroupBy:     "SERVICE",
	})
	if err != nil {
		t.Fatalf("CostAndUsage: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Group != "Amazon EC2" {
		t.Errorf("records not sorted by amount: first group is %q", records[0].Group)
	}
	if got := records[0].Amount.String(); got != "98.01" {
		t.Errorf("amount = %s, want 98.01", got)
	}
	if records[0].Unit != "USD" {
		t.Errorf("unit = %q, want USD", records[0].Unit)
	}

	in := fake.lastCostAndUsage
	if in.GroupBy[0].Type != cetypes.GroupDefinitionTypeDimension || *in.GroupBy[0].Key != "SERVICE" {
		t.Errorf("unexpected group-by translation: %+v", in.GroupBy)
	}
}

func TestCostAndUsageUngroupedUsesTotal(t *testing.T) {
	fake := &fakeCE{
		costAndUsageOut: &ce.GetCostAndUsageOutput{
			ResultsByTime: []cetypes.ResultByTime{{
				TimePeriod: &cetypes.DateInterval{
					Start: aws.String("2025-06-01"),
					End:   aws.String("2025-07-01"),
				},
				Total: map[string]cetypes.MetricValue{
					"UnblendedCost": {Amount: aws.String("110.51"), Unit: aws.String("USD")},
				},
			}},
		},
	}
	client := newWithAPI(fake)

	records, err := client.CostAndUsage(context.Background(), billing.CostQuery{
		Period:      mustPeriod(t, "2025-06-01", "2025-07-01"),
		Granularity: billing.GranularityMonthly,
		Metric:      "UnblendedCost",
	})
	if err != nil {
		t.Fatalf("CostAndUsage: %v", err)
	}
	if len(records) != 1 || records[0].Group != "" {
		t.Fatalf("got %+v, want a single ungrouped record", records)
	}
	if got := records[0].Amount.String(); got != "110.51" {
		t.Errorf("amount = %s, want 110.51", got)
	}
}

func TestCostAndUsageMalformedAmount(t *testing.T) {
	fake := &fakeCE{
		costAndUsageOut: &ce.GetCostAndUsageOutput{
			ResultsByTime: []cetypes.ResultByTime{{
				TimePeriod: &cetypes.DateInterval{
					Start: aws.String("2025-06-01"),
					End:   aws.String("2025-07-01"),
				},
				Total: map[string]cetypes.MetricValue{
					"UnblendedCost": {Amount: aws.String("not-a-number")},
				},
			}},
		},
	}
	client := newWithAPI(fake)

	_, err := client.CostAndUsage(context.Background(), billing.CostQuery{
		Period:      mustPeriod(t, "2025-06-01", "2025-07-01"),
		Granularity: billing.GranularityMonthly,
		Metric:      "UnblendedCost",
	})
	if billing.KindOf(err) != billing.KindUpstreamMalformed {
		t.Fatalf("kind = %v, want upstream_malformed (err: %v)", billing.KindOf(err), err)
	}
}

func TestForecastNormalization(t *testing.T) {
	fake := &fakeCE{
		forecastOut: &ce.GetCostForecastOutput{
			Total: &cetypes.MetricValue{Amount: aws.String("300"), Unit: aws.String("USD")},
			ForecastResultsByTime: []cetypes.ForecastResult{{
				TimePeriod: &cetypes.DateInterval{
					Start: aws.String("2025-07-01"),
					End:   aws.String("2025-08-01"),
				},
				MeanValue: aws.String("101.5"),
			}},
		},
	}
	client := newWithAPI(fake)

	records, err := client.Forecast(context.Background(), billing.ForecastQuery{
		Period:      mustPeriod(t, "2025-07-01", "2025-08-01"),
		Granularity: billing.GranularityMonthly,
		Metric:      "UNBLENDED_COST",
	})
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if got := records[0].Mean.String(); got != "101.5" {
		t.Errorf("mean = %s, want 101.5", got)
	}
	if records[0].Unit != "USD" {
		t.Errorf("unit = %q, want USD", records[0].Unit)
	}
}

func TestClassifyKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want billing.ErrorKind
	}{
		{"throttling", &smithy.GenericAPIError{Code: "ThrottlingException"}, billing.KindRateLimited},
		{"too many requests", &smithy.GenericAPIError{Code: "TooManyRequestsException"}, billing.KindRateLimited},
		{"limit exceeded", &smithy.GenericAPIError{Code: "LimitExceededException"}, billing.KindRateLimited},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDeniedException"}, billing.KindUpstreamDenied},
		{"expired token", &smithy.GenericAPIError{Code: "ExpiredTokenException"}, billing.KindUpstreamDenied},
		{"unrecognized client", &smithy.GenericAPIError{Code: "UnrecognizedClientException"}, billing.KindUpstreamDenied},
		{"service unavailable", &smithy.GenericAPIError{Code: "ServiceUnavailable"}, billing.KindTransientNetwork},
		{"unknown code", &smithy.GenericAPIError{Code: "DataUnavailableException"}, billing.KindUpstreamMalformed},
		{"plain error", errors.New("boom"), billing.KindUpstreamMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := billing.KindOf(classify(tc.err)); got != tc.want {
				t.Errorf("classify(%v) kind = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestClassifyPreservesCancellation(t *testing.T) {
	err := classify(context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("classify(context.Canceled) = %v, want context.Canceled", err)
	}
	var bErr *billing.Error
	if errors.As(err, &bErr) {
		t.Fatalf("cancellation was wrapped into a billing error: %v", err)
	}
}
