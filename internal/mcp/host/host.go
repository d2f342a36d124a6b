// Package host provides a concrete implementation of the [mcp.Host]
// interface.
//
// It connects to MCP servers via stdio or streamable-HTTP transports using
// the official MCP Go SDK (github.com/modelcontextprotocol/go-sdk) and keeps
// a concurrent-safe registry of the tools each server exposes. In-process
// servers attach through [Host.RegisterInMemory] without any wire
// round-trip, which is how the built-in cost tool server is wired by
// default.
//
// Typical usage:
//
//	h := host.New()
//
//	// Attach the built-in tool server in-process.
//	err := h.RegisterInMemory(ctx, "costlens", srv)
//
//	// Or register an external MCP server.
//	err = h.RegisterServer(ctx, mcp.ServerConfig{
//	    Name:      "billing-extras",
//	    Transport: mcp.TransportStdio,
//	    Command:   "/usr/local/bin/billing-extras-server",
//	})
//
//	tools := h.Tools()
//	result, err := h.CallTool(ctx, "get_service_costs", `{"months_back":3}`)
//
//	h.Close()
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/costlens/costlens/internal/mcp"
	"github.com/costlens/costlens/pkg/types"
)

// toolEntry holds the metadata for a single registered tool.
type toolEntry struct {
	def        types.ToolDefinition
	serverName string
}

// serverConn holds a live connection to an MCP server.
type serverConn struct {
	session *mcpsdk.ClientSession
}

// Host is a concrete implementation of [mcp.Host].
//
// The zero value is NOT usable; create instances with [New].
type Host struct {
	mu      sync.RWMutex
	tools   map[string]toolEntry  // key: tool name
	servers map[string]serverConn // key: server name

	// client is reused across all server connections. The official SDK
	// allows a single Client to manage multiple sessions concurrently.
	client *mcpsdk.Client
}

// Compile-time check: Host must implement mcp.Host.
var _ mcp.Host = (*Host)(nil)

// New creates and returns a ready-to-use Host.
func New() *Host {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "costlens-host", Version: "1.0.0"},
		nil,
	)
	return &Host{
		tools:   make(map[string]toolEntry),
		servers: make(map[string]serverConn),
		client:  client,
	}
}

// RegisterServer connects to the MCP server described by cfg and imports its
// tool catalogue into the host. If a server with the same Name is already
// registered, the old connection is closed and replaced.
//
// For [mcp.TransportStdio]: cfg.Command is split on spaces into executable +
// args; cfg.Env is passed as additional environment variables. For
// [mcp.TransportStreamableHTTP]: cfg.URL is the endpoint address. In-memory
// servers attach via [Host.RegisterInMemory] instead.
func (h *Host) RegisterServer(ctx context.Context, cfg mcp.ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcp host: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("mcp host: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport

	switch cfg.Transport {
	case mcp.TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("mcp host: stdio server %q requires a non-empty Command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case mcp.TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("mcp host: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}

	case mcp.TransportInMemory:
		return fmt.Errorf("mcp host: in-memory server %q must attach via RegisterInMemory", cfg.Name)
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp host: failed to connect to server %q: %w", cfg.Name, err)
	}
	return h.importSession(ctx, cfg.Name, session)
}

// RegisterInMemory attaches an in-process SDK server under the given name.
// Calls to its tools go through the full MCP session machinery but never
// leave the process.
func (h *Host) RegisterInMemory(ctx context.Context, name string, srv *mcpsdk.Server) error {
	if name == "" {
		return fmt.Errorf("mcp host: in-memory server must have a non-empty name")
	}
	if srv == nil {
		return fmt.Errorf("mcp host: in-memory server %q is nil", name)
	}

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()
	if _, err := srv.Connect(ctx, serverTransport, nil); err != nil {
		return fmt.Errorf("mcp host: failed to start in-memory server %q: %w", name, err)
	}
	session, err := h.client.Connect(ctx, clientTransport, nil)
	if err != nil {
		return fmt.Errorf("mcp host: failed to connect to in-memory server %q: %w", name, err)
	}
	return h.importSession(ctx, name, session)
}

// importSession lists the session's tools and installs them in the registry,
// replacing any previous registration under the same server name.
func (h *Host) importSession(ctx context.Context, name string, session *mcpsdk.ClientSession) error {
	var discovered []mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("mcp host: failed to list tools for server %q: %w", name, err)
		}
		discovered = append(discovered, *tool)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.servers[name]; ok {
		_ = old.session.Close()
		for toolName, t := range h.tools {
			if t.serverName == name {
				delete(h.tools, toolName)
			}
		}
	}

	h.servers[name] = serverConn{session: session}
	for _, t := range discovered {
		h.tools[t.Name] = toolEntry{
			def: types.ToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaToMap(t.InputSchema),
			},
			serverName: name,
		}
	}
	return nil
}

// Tools returns all imported tool definitions, sorted by name.
func (h *Host) Tools() []types.ToolDefinition {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]types.ToolDefinition, 0, len(h.tools))
	for _, e := range h.tools {
		out = append(out, e.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CallTool calls the named tool with JSON-encoded args and returns the
// result. A non-nil *ToolResult with IsError set carries an
// application-level failure; a Go error is returned only on transport or
// protocol failure.
func (h *Host) CallTool(ctx context.Context, name string, args string) (*mcp.ToolResult, error) {
	h.mu.RLock()
	entry, ok := h.tools[name]
	var conn serverConn
	var connOK bool
	if ok {
		conn, connOK = h.servers[entry.serverName]
	}
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("mcp host: tool %q not found", name)
	}
	if !connOK {
		return nil, fmt.Errorf("mcp host: server %q not found for tool %q", entry.serverName, name)
	}

	var argsMap map[string]any
	if args != "" && args != "{}" {
		if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
			return nil, fmt.Errorf("mcp host: invalid args JSON for tool %q: %w", name, err)
		}
	}

	start := time.Now()
	callResult, err := conn.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: argsMap,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp host: call to tool %q failed: %w", name, err)
	}

	// Join all text content blocks: the built-in server sends a summary
	// line followed by the JSON payload.
	var parts []string
	for _, c := range callResult.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok && tc.Text != "" {
			parts = append(parts, tc.Text)
		}
	}

	return &mcp.ToolResult{
		Content:    strings.Join(parts, "\n"),
		IsError:    callResult.IsError,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// Close shuts down all server connections and releases associated
// resources. After Close returns the Host must not be used again.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for name, conn := range h.servers {
		if err := conn.session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcp host: error closing server %q: %w", name, err)
		}
		delete(h.servers, name)
	}
	h.tools = make(map[string]toolEntry)
	return firstErr
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" → ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
