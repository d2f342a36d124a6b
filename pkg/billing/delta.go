package billing

import (
	"sort"

	"github.com/shopspring/decimal"
)

// ComputeDeltas compares two grouped record sets and returns one [Delta] per
// group present in either set, ranked by the absolute size of the change,
// largest first. Records with the same group across multiple buckets are
// summed before comparing, so callers may pass multi-bucket results directly.
func ComputeDeltas(baseline, comparison []CostRecord) []Delta {
	base := sumByGroup(baseline)
	comp := sumByGroup(comparison)

	groups := make(map[string]struct{}, len(base)+len(comp))
	for g := range base {
		groups[g] = struct{}{}
	}
	for g := range comp {
		groups[g] = struct{}{}
	}

	deltas := make([]Delta, 0, len(groups))
	for g := range groups {
		b := base[g]
		c := comp[g]
		change := c.Sub(b)

		var pct float64
		switch {
		case !b.IsZero():
			pct, _ = change.Div(b).Mul(decimal.NewFromInt(100)).Round(2).Float64()
		case !c.IsZero():
			pct = 100
		}

		deltas = append(deltas, Delta{
			Group:      g,
			Baseline:   b,
			Comparison: c,
			Change:     change,
			ChangePct:  pct,
		})
	}

	sort.SliceStable(deltas, func(i, j int) bool {
		a, b := deltas[i].Change.Abs(), deltas[j].Change.Abs()
		if !a.Equal(b) {
			return a.GreaterThan(b)
		}
		return deltas[i].Group < deltas[j].Group
	})
	return deltas
}

// SumAmounts totals the Amount of every record.
func SumAmounts(records []CostRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}

func sumByGroup(records []CostRecord) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(records))
	for _, r := range records {
		out[r.Group] = out[r.Group].Add(r.Amount)
	}
	return out
}
