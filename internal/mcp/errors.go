package mcp

import (
	"encoding/json"
	"strings"
)

// Error kinds carried in a [ToolResult] when IsError is true. Validation
// kinds come from the catalog; the upstream kinds mirror the billing error
// taxonomy so the assistant can apply the same session policy on both sides
// of the wire.
const (
	ErrValidation        = "validation_error"
	ErrRateLimited       = "rate_limited"
	ErrTransientNetwork  = "transient_network"
	ErrUpstreamDenied    = "upstream_denied"
	ErrUpstreamMalformed = "upstream_malformed"
	ErrInternal          = "internal_error"
)

// ErrorPayload is the structured error body embedded in
// [ToolResult.Content] when a tool call fails at the application level. It
// is JSON both so the model can read it and so the assistant can classify
// the failure without string matching.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Tool    string `json:"tool,omitempty"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// ErrorContent renders an error payload for [ToolResult.Content].
func ErrorContent(kind, tool, param, message string) string {
	b, err := json.Marshal(ErrorPayload{
		Kind:    kind,
		Tool:    tool,
		Param:   param,
		Message: message,
	})
	if err != nil {
		return `{"kind":"` + ErrInternal + `","message":"failed to encode error"}`
	}
	return `{"error":` + string(b) + `}`
}

// ParseError decodes an error payload previously produced by
// [ErrorContent]. The second return is false when content is not an error
// envelope.
func ParseError(content string) (*ErrorPayload, bool) {
	if !strings.HasPrefix(strings.TrimSpace(content), `{"error":`) {
		return nil, false
	}
	var wrapper struct {
		Error *ErrorPayload `json:"error"`
	}
	if err := json.Unmarshal([]byte(content), &wrapper); err != nil || wrapper.Error == nil || wrapper.Error.Kind == "" {
		return nil, false
	}
	return wrapper.Error, true
}
