package assistant

import (
	"strings"

	"github.com/costlens/costlens/pkg/types"
)

// systemPrompt renders the standing instructions for the model. The tool
// list is included by name and description so the model knows the catalog
// is fixed; full parameter schemas travel separately in the completion
// request.
func systemPrompt(tools []types.ToolDefinition) string {
	var b strings.Builder
	b.WriteString(`You are CostLens, an AWS cloud spend analyst. You answer questions about
the user's AWS costs and usage using the tools below, and nothing else.

Rules:
- Every number in your answer must come from a tool result. Never estimate
  or invent costs.
- If you don't know what period the user means, call get_today_date first
  and derive explicit dates from it.
- Dates are YYYY-MM-DD. Period ends are exclusive.
- When a tool returns an error, read the message, fix your arguments, and
  try again. Do not repeat an identical failing call.
- Answer in plain language, state amounts with their currency unit, and
  round to two decimal places.

Available tools:
`)
	for _, t := range tools {
		b.WriteString("- ")
		b.WriteString(t.Name)
		b.WriteString(": ")
		b.WriteString(t.Description)
		b.WriteString("\n")
	}
	return b.String()
}
