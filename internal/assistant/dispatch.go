package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/costlens/costlens/internal/catalog"
	"github.com/costlens/costlens/internal/mcp"
	"github.com/costlens/costlens/pkg/types"
)

// dispatch executes every proposed tool call, fanning out concurrently and
// joining before returning. The returned tool messages follow the original
// call order regardless of completion order, so the model's next reasoning
// step sees a stable conversation.
//
// A non-nil error means ctx was cancelled while calls were in flight; every
// other failure travels in-band as an error payload in the tool message.
func (s *Session) dispatch(ctx context.Context, calls []types.ToolCall) ([]types.Message, error) {
	contents := make([]string, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			content, err := s.runTool(gctx, call)
			if err != nil {
				return err
			}
			contents[i] = content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	msgs := make([]types.Message, len(calls))
	for i, call := range calls {
		msgs[i] = types.Message{
			Role:       "tool",
			Content:    contents[i],
			ToolCallID: call.ID,
		}
	}
	return msgs, nil
}

// runTool validates, canonicalizes, and executes one model-proposed call.
//
// Validation failures never reach the host: the catalog rejects them
// locally and the error payload is fed back so the model can correct itself
// within the same turn budget. Cacheable calls are keyed by their canonical
// argument set, which makes argument order and omitted defaults irrelevant.
func (s *Session) runTool(ctx context.Context, call types.ToolCall) (string, error) {
	args, err := parseArguments(call.Arguments)
	if err != nil {
		s.log.Warn("model produced malformed tool arguments",
			slog.String("tool", call.Name))
		return mcp.ErrorContent(mcp.ErrValidation, call.Name, "",
			"arguments must be a JSON object: "+err.Error()), nil
	}

	tool, err := s.catalog.Lookup(call.Name)
	if err != nil {
		s.log.Warn("model proposed unknown tool", slog.String("tool", call.Name))
		return mcp.ErrorContent(mcp.ErrValidation, call.Name, "", err.Error()), nil
	}

	canonical, err := s.catalog.Canonicalize(call.Name, args)
	if err != nil {
		var verr *catalog.ValidationError
		param := ""
		if errors.As(err, &verr) {
			param = verr.Param
		}
		s.log.Warn("rejected tool call",
			slog.String("tool", call.Name),
			slog.String("error", err.Error()))
		return mcp.ErrorContent(mcp.ErrValidation, call.Name, param, err.Error()), nil
	}

	// The canonical key doubles as the dispatched argument payload, so the
	// wire always carries defaults explicitly.
	key := catalog.CanonicalKey(canonical)

	if tool.Cacheable {
		if res, ok := s.cfg.Cache.Get(call.Name, key); ok {
			s.cfg.Metrics.RecordCacheLookup(ctx, call.Name, true)
			return res.Content, nil
		}
		s.cfg.Metrics.RecordCacheLookup(ctx, call.Name, false)
	}

	res, err := s.cfg.Host.CallTool(ctx, call.Name, key)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.log.Error("tool transport failure",
			slog.String("tool", call.Name),
			slog.String("error", err.Error()))
		return mcp.ErrorContent(mcp.ErrInternal, call.Name, "", err.Error()), nil
	}

	if tool.Cacheable && !res.IsError {
		s.cfg.Cache.Put(call.Name, key, *res)
	}
	return res.Content, nil
}

// parseArguments decodes the model's argument JSON. An empty string means no
// arguments, which the catalog treats as all defaults.
func parseArguments(raw string) (map[string]any, error) {
	if raw == "" || raw == "{}" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
