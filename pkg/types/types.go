// Package types contains the shared data structures exchanged between the
// assistant loop, the tool server, and the model providers.
//
// These types are deliberately SDK-free: providers translate them into
// whatever their backend expects, and the rest of the system never imports a
// vendor SDK to talk about a conversation.
package types

// Message represents a single message in a model conversation history.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string

	// Content is the text content of the message.
	Content string

	// ToolCalls contains any tool invocations requested by the assistant.
	// Only set when Role is "assistant".
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which tool call
	// this message responds to.
	ToolCallID string
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider-assigned identifier for this call. Tool messages
	// echo it back so the model can match results to requests.
	ID string

	// Name is the tool name as listed in the catalog.
	Name string

	// Arguments is the JSON-encoded arguments object, exactly as the model
	// produced it. Validation happens downstream against the catalog.
	Arguments string
}

// ToolDefinition describes one catalog tool as offered to the model and
// listed over the wire protocol.
type ToolDefinition struct {
	// Name is the tool's unique identifier, e.g. "get_cost_forecast".
	Name string

	// Description explains what the tool does and when to call it. It is
	// included verbatim in model prompts, so it is written for the model.
	Description string

	// Parameters is the JSON Schema object describing the tool's input.
	Parameters map[string]any

	// Cacheable reports whether results may be served from the result
	// cache. Tools whose output depends on the wall clock at sub-day
	// resolution set this false.
	Cacheable bool
}

// ModelCapabilities describes what a model backend supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input plus output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one
	// completion.
	MaxOutputTokens int

	// SupportsToolCalling indicates native function/tool calling support.
	// The assistant refuses to start against a backend without it.
	SupportsToolCalling bool
}
