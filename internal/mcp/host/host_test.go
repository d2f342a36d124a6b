package host

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/costlens/costlens/internal/mcp"
	"github.com/costlens/costlens/internal/mcp/server"
	"github.com/costlens/costlens/internal/toolserver"
	"github.com/costlens/costlens/pkg/billing"
	billingmock "github.com/costlens/costlens/pkg/billing/mock"
	"github.com/costlens/costlens/pkg/types"
	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2025, time.August, 15, 10, 0, 0, 0, time.UTC)

// newConnectedHost wires a real tool server behind an in-memory MCP session,
// exercising the full envelope path without a subprocess.
func newConnectedHost(t *testing.T, upstream billing.API) *Host {
	t.Helper()

	ts := toolserver.New(upstream, toolserver.WithClock(func() time.Time { return fixedNow }))
	srv, err := server.New(ts, "test")
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}

	h := New()
	t.Cleanup(func() { _ = h.Close() })
	if err := h.RegisterInMemory(context.Background(), "costlens", srv); err != nil {
		t.Fatalf("RegisterInMemory: %v", err)
	}
	return h
}

func toolNamed(tools []types.ToolDefinition, name string) *types.ToolDefinition {
	for i := range tools {
		if tools[i].Name == name {
			return &tools[i]
		}
	}
	return nil
}

func TestRegisterInMemory_ImportsCatalog(t *testing.T) {
	h := newConnectedHost(t, &billingmock.API{})

	tools := h.Tools()
	if len(tools) != 11 {
		t.Fatalf("imported %d tools, want 11", len(tools))
	}

	def := toolNamed(tools, "get_service_costs")
	if def == nil {
		t.Fatal("get_service_costs not imported")
	}
	props, ok := def.Parameters["properties"].(map[string]any)
	if !ok {
		t.Fatalf("parameters schema did not survive the round-trip: %+v", def.Parameters)
	}
	if _, ok := props["months_back"]; !ok {
		t.Errorf("months_back missing from schema properties: %+v", props)
	}
}

func TestCallTool_ReturnsPayloadAndSummary(t *testing.T) {
	amount, _ := decimal.NewFromString("42.00")
	h := newConnectedHost(t, &billingmock.API{
		CostAndUsageResult: []billing.CostRecord{{Amount: amount, Unit: "USD"}},
	})

	res, err := h.CallTool(context.Background(), "get_current_month_cost", "{}")
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", res.Content)
	}
	if !strings.Contains(res.Content, "Month-to-date") {
		t.Errorf("content missing summary line: %s", res.Content)
	}
	if !strings.Contains(res.Content, `"2025-08-01"`) {
		t.Errorf("content missing period payload: %s", res.Content)
	}
}

func TestCallTool_ValidationErrorTravelsInBand(t *testing.T) {
	upstream := &billingmock.API{}
	h := newConnectedHost(t, upstream)

	res, err := h.CallTool(context.Background(), "get_service_costs", `{"months_back":99}`)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result")
	}

	payload, ok := mcp.ParseError(res.Content)
	if !ok {
		t.Fatalf("content is not a structured error: %s", res.Content)
	}
	if payload.Kind != mcp.ErrValidation {
		t.Errorf("kind = %q, want %q", payload.Kind, mcp.ErrValidation)
	}
	if payload.Param != "months_back" {
		t.Errorf("param = %q, want months_back", payload.Param)
	}
	if got := len(upstream.Calls()); got != 0 {
		t.Errorf("upstream received %d calls, want 0", got)
	}
}

func TestCallTool_UpstreamDeniedKindSurvivesTheWire(t *testing.T) {
	h := newConnectedHost(t, &billingmock.API{
		CostAndUsageErr: billing.NewError(billing.KindUpstreamDenied,
			"AccessDeniedException", "missing ce:GetCostAndUsage", nil),
	})

	res, err := h.CallTool(context.Background(), "get_current_month_cost", "{}")
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected an error result")
	}
	payload, ok := mcp.ParseError(res.Content)
	if !ok {
		t.Fatalf("content is not a structured error: %s", res.Content)
	}
	if payload.Kind != mcp.ErrUpstreamDenied {
		t.Errorf("kind = %q, want %q", payload.Kind, mcp.ErrUpstreamDenied)
	}
}

func TestCallTool_UnknownTool(t *testing.T) {
	h := newConnectedHost(t, &billingmock.API{})

	if _, err := h.CallTool(context.Background(), "no_such_tool", "{}"); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestRegisterServer_RejectsBadConfig(t *testing.T) {
	h := New()
	defer h.Close()
	ctx := context.Background()

	cases := []struct {
		name string
		cfg  mcp.ServerConfig
	}{
		{"empty name", mcp.ServerConfig{Transport: mcp.TransportStdio, Command: "/bin/true"}},
		{"bad transport", mcp.ServerConfig{Name: "x", Transport: "carrier-pigeon"}},
		{"stdio without command", mcp.ServerConfig{Name: "x", Transport: mcp.TransportStdio}},
		{"http without url", mcp.ServerConfig{Name: "x", Transport: mcp.TransportStreamableHTTP}},
		{"in-memory via config", mcp.ServerConfig{Name: "x", Transport: mcp.TransportInMemory}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := h.RegisterServer(ctx, tc.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestClose_ClearsRegistry(t *testing.T) {
	h := newConnectedHost(t, &billingmock.API{})

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := len(h.Tools()); got != 0 {
		t.Errorf("tools after close = %d, want 0", got)
	}
}
