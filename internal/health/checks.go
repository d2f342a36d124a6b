package health

import (
	"context"
	"errors"
	"time"

	"github.com/costlens/costlens/pkg/billing"
	"github.com/costlens/costlens/pkg/provider/llm"
)

// BillingChecker probes the billing upstream with the cheapest read the API
// offers: enumerating services seen in the last week. A failure here almost
// always means missing or rejected credentials.
func BillingChecker(api billing.API) Checker {
	return Checker{
		Name: "billing",
		Check: func(ctx context.Context) error {
			_, err := api.DimensionValues(ctx, billing.DimensionQuery{
				Dimension: "SERVICE",
				Period:    billing.LastDays(time.Now().UTC(), 7),
			})
			return err
		},
	}
}

// ModelChecker verifies the configured model backend can serve the assistant
// loop. It is a local capability check, not a paid completion; an endpoint
// outage surfaces on the first real question instead.
func ModelChecker(p llm.Provider) Checker {
	return Checker{
		Name: "model",
		Check: func(ctx context.Context) error {
			if p == nil {
				return errors.New("no model provider configured")
			}
			if !p.Capabilities().SupportsToolCalling {
				return errors.New("model backend does not support tool calling")
			}
			return nil
		},
	}
}
