package costexplorer

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/costlens/costlens/pkg/billing"
)

// classify maps an SDK error into a [*billing.Error] with a stable kind.
// Context cancellation passes through untouched so callers can distinguish
// their own deadline from upstream trouble.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return billing.NewError(kindForCode(code), code, apiErr.ErrorMessage(), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return billing.NewError(billing.KindTransientNetwork, "", netErr.Error(), err)
	}

	return billing.NewError(billing.KindUpstreamMalformed, "", err.Error(), err)
}

// kindForCode buckets an upstream error code. Unknown codes count as
// malformed so they surface instead of being retried forever.
func kindForCode(code string) billing.ErrorKind {
	switch {
	case strings.HasPrefix(code, "Throttling"),
		strings.HasPrefix(code, "TooManyRequests"),
		code == "LimitExceededException",
		code == "RequestLimitExceeded":
		return billing.KindRateLimited
	case strings.HasPrefix(code, "AccessDenied"),
		strings.HasPrefix(code, "ExpiredToken"),
		code == "UnrecognizedClientException",
		code == "InvalidClientTokenId",
		code == "UnauthorizedOperation":
		return billing.KindUpstreamDenied
	case code == "RequestTimeout",
		code == "ServiceUnavailable",
		code == "InternalServerError",
		code == "InternalFailure":
		return billing.KindTransientNetwork
	default:
		return billing.KindUpstreamMalformed
	}
}
