// Package server exposes the tool server over the Model Context Protocol.
//
// It wraps a [toolserver.Server] in an official MCP SDK server so the tool
// catalog can be consumed by any MCP client: the in-process assistant via an
// in-memory transport, or external clients over stdio / streamable HTTP.
//
// Application-level failures (validation rejections, upstream errors) travel
// in-band as error results with a structured JSON payload, see
// [mcp.ErrorContent]. The protocol error return is reserved for transport
// failures and cancellation.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/costlens/costlens/internal/catalog"
	"github.com/costlens/costlens/internal/mcp"
	"github.com/costlens/costlens/internal/toolserver"
	"github.com/costlens/costlens/pkg/billing"
)

// serverName identifies this server in the MCP handshake.
const serverName = "costlens-tools"

// New builds an MCP server exposing every tool of ts. The returned server is
// not yet connected; run it over a transport with [Serve] or hand it to the
// host's in-memory registration.
func New(ts *toolserver.Server, version string) (*mcpsdk.Server, error) {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: version}, nil)

	for _, def := range ts.Definitions() {
		schema, err := schemaFor(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("mcp server: schema for tool %q: %w", def.Name, err)
		}
		srv.AddTool(&mcpsdk.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: schema,
		}, handler(ts, def.Name))
	}
	return srv, nil
}

// Serve runs srv over stdio until ctx is cancelled or the client disconnects.
func Serve(ctx context.Context, srv *mcpsdk.Server) error {
	return srv.Run(ctx, &mcpsdk.StdioTransport{})
}

// handler adapts one catalog tool to the SDK handler contract.
func handler(ts *toolserver.Server, name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args, err := decodeArgs(req.Params.Arguments)
		if err != nil {
			return errorResult(mcp.ErrorContent(mcp.ErrValidation, name, "",
				fmt.Sprintf("arguments are not a JSON object: %v", err))), nil
		}

		res, err := ts.Dispatch(ctx, name, args)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return errorResult(errorContentFor(name, err)), nil
		}

		payload, err := res.JSON()
		if err != nil {
			return errorResult(mcp.ErrorContent(mcp.ErrInternal, name, "", err.Error())), nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{
				&mcpsdk.TextContent{Text: res.Summary},
				&mcpsdk.TextContent{Text: payload},
			},
		}, nil
	}
}

// errorContentFor classifies a dispatch failure into the wire error taxonomy.
func errorContentFor(tool string, err error) string {
	var verr *catalog.ValidationError
	if errors.As(err, &verr) {
		return mcp.ErrorContent(mcp.ErrValidation, verr.Tool, verr.Param, verr.Message)
	}
	var nferr *catalog.NotFoundError
	if errors.As(err, &nferr) {
		return mcp.ErrorContent(mcp.ErrValidation, nferr.Tool, "", "unknown tool")
	}
	var berr *billing.Error
	if errors.As(err, &berr) {
		return mcp.ErrorContent(string(berr.Kind), tool, "", berr.Message)
	}
	return mcp.ErrorContent(mcp.ErrInternal, tool, "", err.Error())
}

func errorResult(content string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: content}},
		IsError: true,
	}
}

// decodeArgs normalises whatever representation the SDK hands us into a
// plain argument map.
func decodeArgs(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	case json.RawMessage:
		return unmarshalArgs([]byte(v))
	case []byte:
		return unmarshalArgs(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return unmarshalArgs(b)
	}
}

func unmarshalArgs(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// schemaFor converts a catalog parameter schema (a plain JSON-schema map)
// into the SDK's typed schema via a JSON round-trip.
func schemaFor(params map[string]any) (*jsonschema.Schema, error) {
	if params == nil {
		params = map[string]any{"type": "object"}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
