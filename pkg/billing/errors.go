package billing

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an upstream failure for the retry policy.
type ErrorKind string

const (
	// KindRateLimited marks upstream throttling (429-class). Retryable
	// with bounded backoff.
	KindRateLimited ErrorKind = "rate_limited"

	// KindTransientNetwork marks connection resets, timeouts, and other
	// transport failures. Retried identically to KindRateLimited.
	KindTransientNetwork ErrorKind = "transient_network"

	// KindUpstreamDenied marks credential or permission failures. Fatal to
	// the session; never retried.
	KindUpstreamDenied ErrorKind = "upstream_denied"

	// KindUpstreamMalformed marks an unexpected response shape or a request
	// the upstream rejected as invalid. Surfaced as an error result; never
	// retried.
	KindUpstreamMalformed ErrorKind = "upstream_malformed"
)

// Error is a classified upstream billing failure.
type Error struct {
	// Kind drives the retry policy.
	Kind ErrorKind

	// Code is the upstream error code when one was returned, e.g.
	// "ThrottlingException".
	Code string

	// Message is the human-readable description.
	Message string

	// Err is the wrapped cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("billing: %s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("billing: %s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified [*Error] wrapping cause.
func NewError(kind ErrorKind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: cause}
}

// KindOf extracts the [ErrorKind] from err. Unclassified errors report
// [KindUpstreamMalformed] so that nothing is retried by accident.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUpstreamMalformed
}

// Retryable reports whether err may be retried under the bounded backoff
// policy. Only rate limiting and transient network failures qualify;
// every other upstream call is billed and must not be repeated silently.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == KindRateLimited || k == KindTransientNetwork
}
