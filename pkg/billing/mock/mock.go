// Package mock provides an in-memory test double for the [billing.API]
// interface.
//
// [API] records every method call for assertion in tests and exposes exported
// fields that control what the mock returns. It is safe for concurrent use via
// an internal [sync.Mutex].
//
// Typical usage:
//
//	b := &mock.API{}
//	b.CostAndUsageResult = []billing.CostRecord{{Group: "Amazon S3"}}
//
//	// inject b into the system under test …
//
//	if got := b.CallCount("CostAndUsage"); got != 1 {
//	    t.Errorf("expected 1 CostAndUsage call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/costlens/costlens/pkg/billing"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// API is a configurable test double for [billing.API].
// All exported *Err fields default to nil (success); all exported *Result
// fields default to nil, which methods return as empty non-nil slices.
type API struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// ──── CostAndUsage ─────────────────────────────────────────────────────

	// CostAndUsageResult is returned by [API.CostAndUsage] when
	// CostAndUsageErr is nil.
	CostAndUsageResult []billing.CostRecord

	// CostAndUsageResults, when non-nil, is consumed one element per call
	// and takes precedence over CostAndUsageResult. It lets a test script
	// different responses for successive calls, e.g. the baseline and
	// comparison halves of a composite query.
	CostAndUsageResults [][]billing.CostRecord

	// CostAndUsageErr is returned by [API.CostAndUsage] when non-nil.
	CostAndUsageErr error

	// CostAndUsageErrs, when non-nil, is consumed one element per call and
	// takes precedence over CostAndUsageErr. Nil elements mean success.
	CostAndUsageErrs []error

	// ──── Forecast ─────────────────────────────────────────────────────────

	// ForecastResult is returned by [API.Forecast] when ForecastErr is nil.
	ForecastResult []billing.ForecastRecord

	// ForecastErr is returned by [API.Forecast] when non-nil.
	ForecastErr error

	// ──── DimensionValues ──────────────────────────────────────────────────

	// DimensionValuesResult is returned by [API.DimensionValues] when
	// DimensionValuesErr is nil.
	DimensionValuesResult []billing.DimensionValue

	// DimensionValuesErr is returned by [API.DimensionValues] when non-nil.
	DimensionValuesErr error

	// ──── CostCategories ───────────────────────────────────────────────────

	// CostCategoriesResult is returned by [API.CostCategories] when
	// CostCategoriesErr is nil.
	CostCategoriesResult []billing.CostCategory

	// CostCategoriesErr is returned by [API.CostCategories] when non-nil.
	CostCategoriesErr error
}

// Compile-time check that the mock satisfies the real interface.
var _ billing.API = (*API)(nil)

// Calls returns a copy of all recorded method invocations.
func (a *API) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Call, len(a.calls))
	copy(out, a.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (a *API) CallCount(method string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering response configuration.
func (a *API) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = nil
}

// CostAndUsage implements [billing.API].
func (a *API) CostAndUsage(_ context.Context, q billing.CostQuery) ([]billing.CostRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, Call{Method: "CostAndUsage", Args: []any{q}})

	// Zero-based index of this call among CostAndUsage calls, for the
	// scripted per-call response slices.
	idx := -1
	for _, c := range a.calls {
		if c.Method == "CostAndUsage" {
			idx++
		}
	}

	if a.CostAndUsageErrs != nil {
		if idx < len(a.CostAndUsageErrs) && a.CostAndUsageErrs[idx] != nil {
			return nil, a.CostAndUsageErrs[idx]
		}
	} else if a.CostAndUsageErr != nil {
		return nil, a.CostAndUsageErr
	}

	src := a.CostAndUsageResult
	if a.CostAndUsageResults != nil {
		if idx < len(a.CostAndUsageResults) {
			src = a.CostAndUsageResults[idx]
		} else {
			src = nil
		}
	}
	out := make([]billing.CostRecord, len(src))
	copy(out, src)
	return out, nil
}

// Forecast implements [billing.API].
func (a *API) Forecast(_ context.Context, q billing.ForecastQuery) ([]billing.ForecastRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, Call{Method: "Forecast", Args: []any{q}})
	if a.ForecastErr != nil {
		return nil, a.ForecastErr
	}
	out := make([]billing.ForecastRecord, len(a.ForecastResult))
	copy(out, a.ForecastResult)
	return out, nil
}

// DimensionValues implements [billing.API].
func (a *API) DimensionValues(_ context.Context, q billing.DimensionQuery) ([]billing.DimensionValue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, Call{Method: "DimensionValues", Args: []any{q}})
	if a.DimensionValuesErr != nil {
		return nil, a.DimensionValuesErr
	}
	out := make([]billing.DimensionValue, len(a.DimensionValuesResult))
	copy(out, a.DimensionValuesResult)
	return out, nil
}

// CostCategories implements [billing.API].
func (a *API) CostCategories(_ context.Context) ([]billing.CostCategory, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, Call{Method: "CostCategories", Args: nil})
	if a.CostCategoriesErr != nil {
		return nil, a.CostCategoriesErr
	}
	out := make([]billing.CostCategory, len(a.CostCategoriesResult))
	copy(out, a.CostCategoriesResult)
	return out, nil
}
