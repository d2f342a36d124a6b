// Package assistant implements the conversational loop that turns a user's
// cost question into tool calls and a final natural-language answer.
//
// A [Session] runs a state machine per question: the model is asked what
// should happen next, any tool calls it proposes are dispatched through the
// MCP host (fanning out concurrently and joining before the next model
// turn), results are appended to the conversation, and the loop repeats
// until the model produces a final answer or the iteration cap forces a
// partial one. Sessions are serialised internally, so a Session is safe to
// share between goroutines even though only one question is in flight at a
// time.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/costlens/costlens/internal/cache"
	"github.com/costlens/costlens/internal/catalog"
	"github.com/costlens/costlens/internal/mcp"
	"github.com/costlens/costlens/internal/observe"
	"github.com/costlens/costlens/pkg/provider/llm"
	"github.com/costlens/costlens/pkg/types"
)

// ErrSessionClosed is returned by [Session.Ask] once a session has reached a
// terminal state, either because the upstream denied access, the previous
// question was cancelled, or [Session.Close] was called.
var ErrSessionClosed = errors.New("assistant: session closed")

// State is the lifecycle phase of a [Session].
type State int32

const (
	// StateAwaitingInput means no question is in flight.
	StateAwaitingInput State = iota

	// StateReasoning means the session is waiting on a model completion.
	StateReasoning

	// StateToolDispatch means proposed tool calls are executing.
	StateToolDispatch

	// StateResponding means a final answer is being assembled.
	StateResponding

	// StateCancelled is terminal: the in-flight question was cancelled.
	StateCancelled

	// StateClosed is terminal: the session accepts no further questions.
	StateClosed
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateReasoning:
		return "reasoning"
	case StateToolDispatch:
		return "tool_dispatch"
	case StateResponding:
		return "responding"
	case StateCancelled:
		return "cancelled"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config holds all dependencies needed to create a [Session].
//
// Required fields are Provider and Host. Cache is optional; a nil cache
// means every tool call reaches the host. Errors from [NewSession] are
// prefixed with "assistant: ".
type Config struct {
	// Provider is the language model backend. Must not be nil and must
	// support tool calling.
	Provider llm.Provider

	// ProviderName labels model metrics, e.g. "openai". Optional.
	ProviderName string

	// Host dispatches tool calls over the wire protocol. Must not be nil.
	Host mcp.Host

	// Cache memoizes tool results within the current day. Optional.
	Cache *cache.Cache[mcp.ToolResult]

	// MaxIterations bounds how many model turns one question may take
	// before a partial answer is forced. Default: 5.
	MaxIterations int

	// HistoryLimit bounds the retained conversation length in messages.
	// Trimming always drops whole question/answer exchanges so the model
	// never sees a tool result without its originating call. Default: 40.
	HistoryLimit int

	// Temperature is passed through to every completion. Default: 0.2.
	Temperature float64

	// Logger receives structured session logs. Nil means slog.Default.
	Logger *slog.Logger

	// Metrics receives session instrumentation. Optional.
	Metrics *observe.Metrics

	// Now supplies the clock used for date defaulting in tool arguments.
	// Nil means time.Now.
	Now func() time.Time
}

// Session is one user's conversation. Create it with [NewSession], feed it
// questions with [Session.Ask], and release it with [Session.Close].
type Session struct {
	id      string
	cfg     Config
	catalog *catalog.Catalog
	log     *slog.Logger
	state   atomic.Int32

	mu      sync.Mutex
	history []types.Message
}

// NewSession validates cfg, applies defaults, and returns a ready session
// in [StateAwaitingInput].
func NewSession(cfg Config) (*Session, error) {
	if cfg.Provider == nil {
		return nil, errors.New("assistant: Provider must not be nil")
	}
	if cfg.Host == nil {
		return nil, errors.New("assistant: Host must not be nil")
	}
	if !cfg.Provider.Capabilities().SupportsToolCalling {
		return nil, errors.New("assistant: model backend does not support tool calling")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 5
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 40
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		catalog: catalog.New(cfg.Now),
	}
	s.log = cfg.Logger.With(slog.String("session_id", s.id))
	cfg.Metrics.SessionStarted(context.Background())
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// State returns the session's current lifecycle phase.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// History returns a copy of the conversation so far.
func (s *Session) History() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Close releases the session. Subsequent [Session.Ask] calls return
// [ErrSessionClosed]. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.State() {
	case StateClosed, StateCancelled:
		// Terminal states already released the gauge.
		return nil
	}
	s.setState(StateClosed)
	s.cfg.Metrics.SessionEnded(context.Background())
	return nil
}

// Ask answers one user question. It blocks until the model produces a final
// answer, the iteration cap forces a partial one, or ctx is cancelled.
//
// Ask never returns an error for tool or upstream failures; those are fed
// back to the model and reflected in the answer text. The error return is
// reserved for terminal conditions: ctx cancellation and calling into a
// closed session.
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateClosed, StateCancelled:
		return "", ErrSessionClosed
	}

	s.history = append(s.history, types.Message{Role: "user", Content: question})
	s.trimHistory()

	tools := s.cfg.Host.Tools()
	system := systemPrompt(tools)

	for iteration := 0; iteration < s.cfg.MaxIterations; iteration++ {
		s.setState(StateReasoning)

		resp, err := s.complete(ctx, system, tools)
		if err != nil {
			if ctx.Err() != nil {
				s.cancel(ctx)
				return "", ctx.Err()
			}
			if errors.Is(err, llm.ErrModelUnavailable) {
				return s.respond(modelUnavailableNotice), nil
			}
			s.setState(StateAwaitingInput)
			return "", fmt.Errorf("assistant: completion: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			s.history = append(s.history, types.Message{Role: "assistant", Content: resp.Content})
			s.setState(StateResponding)
			s.setState(StateAwaitingInput)
			return resp.Content, nil
		}

		s.history = append(s.history, types.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		s.setState(StateToolDispatch)
		s.log.Debug("dispatching tool calls",
			slog.Int("iteration", iteration+1),
			slog.Int("calls", len(resp.ToolCalls)))

		results, err := s.dispatch(ctx, resp.ToolCalls)
		if err != nil {
			s.cancel(ctx)
			return "", err
		}
		s.history = append(s.history, results...)

		if msg, denied := deniedMessage(results); denied {
			s.setState(StateClosed)
			s.cfg.Metrics.SessionEnded(context.Background())
			s.log.Warn("upstream denied access, closing session")
			return msg, nil
		}
	}

	s.log.Warn("iteration cap reached, returning partial answer",
		slog.Int("max_iterations", s.cfg.MaxIterations))
	return s.respond(iterationCapNotice), nil
}

// complete runs one model turn with instrumentation.
func (s *Session) complete(ctx context.Context, system string, tools []types.ToolDefinition) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := s.cfg.Provider.Complete(ctx, llm.CompletionRequest{
		Messages:     s.history,
		Tools:        tools,
		Temperature:  s.cfg.Temperature,
		SystemPrompt: system,
	})
	seconds := time.Since(start).Seconds()
	s.cfg.Metrics.RecordLLMDuration(ctx, s.cfg.ProviderName, seconds)
	if err != nil {
		s.cfg.Metrics.RecordLLMRequest(ctx, s.cfg.ProviderName, "error")
		return nil, err
	}
	if resp == nil {
		s.cfg.Metrics.RecordLLMRequest(ctx, s.cfg.ProviderName, "error")
		return nil, errors.New("assistant: provider returned nil response")
	}
	s.cfg.Metrics.RecordLLMRequest(ctx, s.cfg.ProviderName, "ok")
	return resp, nil
}

// respond appends text as the assistant's answer and returns the session to
// [StateAwaitingInput].
func (s *Session) respond(text string) string {
	s.history = append(s.history, types.Message{Role: "assistant", Content: text})
	s.setState(StateResponding)
	s.setState(StateAwaitingInput)
	return text
}

// cancel marks the session terminally cancelled and drops the gauge.
func (s *Session) cancel(ctx context.Context) {
	s.setState(StateCancelled)
	s.cfg.Metrics.SessionEnded(context.Background())
	s.log.Info("session cancelled", slog.Any("cause", context.Cause(ctx)))
}

// trimHistory enforces HistoryLimit. It drops from the front and always cuts
// at a user message boundary, so assistant tool calls and their tool results
// are removed together.
func (s *Session) trimHistory() {
	limit := s.cfg.HistoryLimit
	if len(s.history) <= limit {
		return
	}
	cut := len(s.history) - limit
	for cut < len(s.history) && s.history[cut].Role != "user" {
		cut++
	}
	s.history = s.history[cut:]
}

// deniedMessage scans joined tool results for an upstream permission
// failure. The first one found ends the session; its message is surfaced
// verbatim because a credential problem is not something the model can
// reason its way around.
func deniedMessage(results []types.Message) (string, bool) {
	for _, msg := range results {
		payload, ok := mcp.ParseError(msg.Content)
		if ok && payload.Kind == mcp.ErrUpstreamDenied {
			return "AWS denied access to billing data: " + payload.Message +
				" This session is closed; fix the credentials and start a new one.", true
		}
	}
	return "", false
}

const modelUnavailableNotice = "I'm sorry, the language model is currently " +
	"unavailable, so I can't answer right now. Your session is still open; " +
	"please try again in a moment."

const iterationCapNotice = "I wasn't able to finish analyzing this within " +
	"the allowed number of tool calls, so this answer may be incomplete. " +
	"Try narrowing the question, for example to a single time period or " +
	"service."
