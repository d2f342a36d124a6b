package billing

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire format for all date parameters and period bounds.
const DateLayout = "2006-01-02"

// Period is a half-open time range [Start, End) with day resolution.
// The zero value is invalid.
type Period struct {
	Start time.Time
	End   time.Time
}

// ParsePeriod builds a [Period] from two YYYY-MM-DD strings.
// Returns an error if either date is malformed or start is not before end.
func ParsePeriod(start, end string) (Period, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return Period{}, fmt.Errorf("billing: invalid start date %q: expected YYYY-MM-DD", start)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return Period{}, fmt.Errorf("billing: invalid end date %q: expected YYYY-MM-DD", end)
	}
	p := Period{Start: s, End: e}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Validate checks that the period is non-empty and correctly ordered.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("billing: period bounds must both be set")
	}
	if !p.Start.Before(p.End) {
		return fmt.Errorf("billing: period start %s must be before end %s",
			p.Start.Format(DateLayout), p.End.Format(DateLayout))
	}
	return nil
}

// Overlaps reports whether p and q share at least one day. Adjacent periods
// (p.End == q.Start) do not overlap because ranges are half-open.
func (p Period) Overlaps(q Period) bool {
	return p.Start.Before(q.End) && q.Start.Before(p.End)
}

// StartDate returns the start bound formatted as YYYY-MM-DD.
func (p Period) StartDate() string { return p.Start.Format(DateLayout) }

// EndDate returns the end bound formatted as YYYY-MM-DD.
func (p Period) EndDate() string { return p.End.Format(DateLayout) }

// String returns "start..end" for logs and summaries.
func (p Period) String() string {
	return p.StartDate() + ".." + p.EndDate()
}

// MarshalJSON encodes the bounds as YYYY-MM-DD strings.
func (p Period) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}{p.StartDate(), p.EndDate()})
}

// UnmarshalJSON parses the YYYY-MM-DD wire form produced by [Period.MarshalJSON].
func (p *Period) UnmarshalJSON(data []byte) error {
	var raw struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParsePeriod(raw.Start, raw.End)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// CurrentMonth returns the period from the first day of now's month up to
// the first day of the next month.
func CurrentMonth(now time.Time) Period {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

// LastMonths returns the period covering the n full calendar months before
// now's month. The current (partial) month is excluded.
func LastMonths(now time.Time, n int) Period {
	end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: end.AddDate(0, -n, 0), End: end}
}

// NextMonths returns the period from today (day resolution) covering the
// next n calendar months, used for forecasts.
func NextMonths(now time.Time, n int) Period {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, n, 0)}
}

// LastDays returns the period covering the n days up to and including today.
func LastDays(now time.Time, n int) Period {
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return Period{Start: end.AddDate(0, 0, -n), End: end}
}
