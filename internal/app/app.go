// Package app wires all CostLens subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the health and metrics endpoints until the context
// is cancelled, and Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithUpstream, WithHost, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/costlens/costlens/internal/assistant"
	"github.com/costlens/costlens/internal/cache"
	"github.com/costlens/costlens/internal/config"
	"github.com/costlens/costlens/internal/health"
	"github.com/costlens/costlens/internal/mcp"
	mcphost "github.com/costlens/costlens/internal/mcp/host"
	mcpserver "github.com/costlens/costlens/internal/mcp/server"
	"github.com/costlens/costlens/internal/observe"
	"github.com/costlens/costlens/internal/resilience"
	"github.com/costlens/costlens/internal/toolserver"
	"github.com/costlens/costlens/pkg/billing"
	"github.com/costlens/costlens/pkg/billing/costexplorer"
	"github.com/costlens/costlens/pkg/provider/llm"
)

// builtinServerName is the registration name of the in-process cost tool
// server on the MCP host.
const builtinServerName = "costlens-tools"

// App owns all subsystem lifetimes for one CostLens process.
type App struct {
	cfg      *config.Config
	provider llm.Provider
	version  string

	upstream   billing.API
	metrics    *observe.Metrics
	toolServer *toolserver.Server
	host       mcp.Host
	cache      *cache.Cache[mcp.ToolResult]
	sessions   *SessionManager
	httpSrv    *http.Server
	addr       atomic.Value // string, set once the listener is bound

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithUpstream injects a billing API instead of building a Cost Explorer
// client from the AWS config.
func WithUpstream(api billing.API) Option {
	return func(a *App) { a.upstream = api }
}

// WithHost injects an MCP host instead of creating one with the built-in
// tool server connected.
func WithHost(h mcp.Host) Option {
	return func(a *App) { a.host = h }
}

// WithMetrics injects a metrics sink instead of the process-wide default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithVersion sets the version string reported over MCP and in telemetry.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// New creates an App by wiring all subsystems together: the Cost Explorer
// client, the tool server, the in-process MCP connection, any additional
// configured MCP servers, the result cache, and the session manager.
func New(ctx context.Context, cfg *config.Config, provider llm.Provider, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: cfg must not be nil")
	}
	if provider == nil {
		return nil, errors.New("app: provider must not be nil")
	}

	a := &App{cfg: cfg, provider: provider, version: "dev"}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initUpstream(ctx); err != nil {
		return nil, fmt.Errorf("app: init upstream: %w", err)
	}
	a.initToolServer()
	if err := a.initHost(ctx); err != nil {
		return nil, fmt.Errorf("app: init mcp host: %w", err)
	}
	if err := a.initCache(); err != nil {
		return nil, fmt.Errorf("app: init cache: %w", err)
	}
	a.initSessions()

	return a, nil
}

// initUpstream builds the Cost Explorer client unless one was injected.
func (a *App) initUpstream(ctx context.Context) error {
	if a.upstream != nil {
		return nil
	}
	client, err := costexplorer.New(ctx, costexplorer.Config{
		Region:  a.cfg.AWS.Region,
		Profile: a.cfg.AWS.Profile,
	})
	if err != nil {
		return err
	}
	a.upstream = client
	return nil
}

// initToolServer builds the tool server with the configured retry budget.
func (a *App) initToolServer() {
	opts := []toolserver.Option{toolserver.WithMetrics(a.metrics)}
	if r := a.cfg.Retry; r != (config.RetryConfig{}) {
		opts = append(opts, toolserver.WithRetry(resilience.RetryConfig{
			MaxAttempts:  r.MaxAttempts,
			InitialDelay: r.InitialDelay,
			MaxDelay:     r.MaxDelay,
			Multiplier:   r.Multiplier,
		}))
	}
	a.toolServer = toolserver.New(a.upstream, opts...)
}

// initHost connects the built-in tool server in-process and registers any
// additional MCP servers from the config.
func (a *App) initHost(ctx context.Context) error {
	if a.host == nil {
		h := mcphost.New()
		a.host = h
		a.closers = append(a.closers, h.Close)

		srv, err := mcpserver.New(a.toolServer, a.version)
		if err != nil {
			return fmt.Errorf("build tool server: %w", err)
		}
		if err := h.RegisterInMemory(ctx, builtinServerName, srv); err != nil {
			return fmt.Errorf("connect built-in tools: %w", err)
		}
	}

	for _, srv := range a.cfg.MCP.Servers {
		serverCfg := mcp.ServerConfig{
			Name:      srv.Name,
			Transport: srv.Transport,
			Command:   srv.Command,
			URL:       srv.URL,
			Env:       srv.Env,
		}
		if err := a.host.RegisterServer(ctx, serverCfg); err != nil {
			return fmt.Errorf("register mcp server %q: %w", srv.Name, err)
		}
		slog.Info("registered MCP server", "name", srv.Name)
	}
	return nil
}

// initCache builds the tool result cache unless the config disables it.
func (a *App) initCache() error {
	if a.cfg.Cache.Disabled {
		slog.Info("result cache disabled; every tool call will reach Cost Explorer")
		return nil
	}
	c, err := cache.New[mcp.ToolResult](cache.Config{MaxEntries: a.cfg.Cache.MaxEntries})
	if err != nil {
		return err
	}
	a.cache = c
	a.closers = append(a.closers, func() error {
		c.Close()
		return nil
	})
	return nil
}

// initSessions builds the session manager from the assistant config.
func (a *App) initSessions() {
	a.sessions = NewSessionManager(assistant.Config{
		Provider:      a.provider,
		ProviderName:  a.cfg.Model.Provider,
		Host:          a.host,
		Cache:         a.cache,
		MaxIterations: a.cfg.Assistant.MaxIterations,
		HistoryLimit:  a.cfg.Assistant.HistoryLimit,
		Temperature:   a.cfg.Assistant.Temperature,
		Metrics:       a.metrics,
	})
	a.closers = append(a.closers, func() error {
		a.sessions.CloseAll()
		return nil
	})
}

// Addr returns the bound listen address once [App.Run] has started serving,
// or the empty string before then.
func (a *App) Addr() string {
	if v, ok := a.addr.Load().(string); ok {
		return v
	}
	return ""
}

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Host returns the MCP host with the built-in cost tools connected.
func (a *App) Host() mcp.Host { return a.host }

// Run serves the health and metrics endpoints and blocks until ctx is
// cancelled. When no listen address is configured, Run just waits.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.Server.ListenAddr == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	mux := http.NewServeMux()
	checks := health.New(
		health.BillingChecker(a.upstream),
		health.ModelChecker(a.provider),
	)
	checks.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.httpSrv = &http.Server{
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen on %s: %w", a.cfg.Server.ListenAddr, err)
	}
	a.addr.Store(ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpSrv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpSrv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("app running", "listen_addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.httpSrv != nil {
			if err := a.httpSrv.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
