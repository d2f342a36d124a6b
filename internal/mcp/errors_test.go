package mcp

import "testing"

func TestErrorContentRoundTrip(t *testing.T) {
	content := ErrorContent(ErrValidation, "get_cost_comparison", "comparison_start",
		"comparison period 2025-06-15..2025-07-15 overlaps baseline period 2025-06-01..2025-07-01")

	payload, ok := ParseError(content)
	if !ok {
		t.Fatalf("ParseError rejected %q", content)
	}
	if payload.Kind != ErrValidation {
		t.Errorf("kind = %q, want %q", payload.Kind, ErrValidation)
	}
	if payload.Tool != "get_cost_comparison" || payload.Param != "comparison_start" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestParseError_NonErrorContent(t *testing.T) {
	for _, content := range []string{
		"",
		"plain text result",
		`{"records":[],"total":"0"}`,
		`{"error":"just a string"}`,
	} {
		if _, ok := ParseError(content); ok {
			t.Errorf("ParseError accepted %q", content)
		}
	}
}
