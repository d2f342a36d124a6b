// Command costlens is the main entry point for the CostLens AWS cost
// analysis assistant.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/costlens/costlens/internal/app"
	"github.com/costlens/costlens/internal/assistant"
	"github.com/costlens/costlens/internal/config"
	mcpserver "github.com/costlens/costlens/internal/mcp/server"
	"github.com/costlens/costlens/internal/observe"
	"github.com/costlens/costlens/internal/toolserver"
	"github.com/costlens/costlens/pkg/billing/costexplorer"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	ask := flag.String("ask", "", "ask a single question and exit")
	serve := flag.Bool("serve", false, "run headless without the interactive prompt")
	serveMCP := flag.Bool("serve-mcp", false, "expose the cost tools as an MCP server over stdio and exit on EOF")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("costlens", version)
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "costlens: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "costlens: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("costlens starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── MCP server mode ───────────────────────────────────────────────────────
	// No language model needed here: the process only exposes the cost tools
	// over stdio for an external MCP host to drive.
	if *serveMCP {
		return runMCPServer(ctx, cfg)
	}

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "costlens",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Model provider ────────────────────────────────────────────────────────
	if cfg.Model.Provider == "" {
		fmt.Fprintln(os.Stderr, "costlens: model.provider is required — set it in the config file")
		return 1
	}
	provider, err := config.DefaultRegistry().Create(cfg.Model)
	if err != nil {
		slog.Error("failed to create model provider", "provider", cfg.Model.Provider, "err", err)
		return 1
	}
	slog.Info("model provider created", "provider", cfg.Model.Provider, "model", cfg.Model.Name)

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if diff.LogLevelChanged {
			level.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		if diff.AssistantChanged || diff.ServersChanged {
			slog.Info("config changed; restart to apply assistant or MCP server changes")
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Application ───────────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, provider, app.WithVersion(version))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	code := 0
	switch {
	case *ask != "":
		code = runOneShot(ctx, application, *ask)
	case *serve:
		slog.Info("server ready — press Ctrl+C to shut down")
		if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("run error", "err", err)
			code = 1
		}
	default:
		if cfg.Server.ListenAddr != "" {
			go func() {
				if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					slog.Error("run error", "err", err)
				}
			}()
		}
		if err := chatLoop(ctx, application); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("chat error", "err", err)
			code = 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// runMCPServer exposes the built-in cost tools over stdio until the client
// disconnects or the context is cancelled.
func runMCPServer(ctx context.Context, cfg *config.Config) int {
	upstream, err := costexplorer.New(ctx, costexplorer.Config{
		Region:  cfg.AWS.Region,
		Profile: cfg.AWS.Profile,
	})
	if err != nil {
		slog.Error("failed to create Cost Explorer client", "err", err)
		return 1
	}

	srv, err := mcpserver.New(toolserver.New(upstream), version)
	if err != nil {
		slog.Error("failed to build MCP server", "err", err)
		return 1
	}

	slog.Info("serving cost tools over stdio")
	if err := mcpserver.Serve(ctx, srv); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("mcp serve error", "err", err)
		return 1
	}
	return 0
}

// runOneShot asks a single question and prints the answer to stdout.
func runOneShot(ctx context.Context, application *app.App, question string) int {
	session, err := application.Sessions().Open()
	if err != nil {
		slog.Error("failed to open session", "err", err)
		return 1
	}

	answer, err := session.Ask(ctx, question)
	if err != nil {
		slog.Error("ask failed", "err", err)
		return 1
	}
	fmt.Println(answer)
	return 0
}

// chatLoop runs the interactive prompt until the user quits or stdin closes.
func chatLoop(ctx context.Context, application *app.App) error {
	session, err := application.Sessions().Open()
	if err != nil {
		return err
	}

	fmt.Println(`Ask about your AWS costs. Type "exit" to quit or "/new" for a fresh session.`)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "exit", "quit":
			return nil
		case "/new":
			if err := session.Close(); err != nil {
				slog.Warn("session close error", "err", err)
			}
			if session, err = application.Sessions().Open(); err != nil {
				return err
			}
			fmt.Println("started a new session")
			continue
		}

		answer, err := session.Ask(ctx, line)
		if errors.Is(err, assistant.ErrSessionClosed) {
			// The previous session hit a terminal state, typically an
			// upstream access denial. Start fresh and retry once.
			if session, err = application.Sessions().Open(); err != nil {
				return err
			}
			fmt.Println("(previous session ended; started a new one)")
			answer, err = session.Ask(ctx, line)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		fmt.Println(answer)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         CostLens — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	model := cfg.Model.Provider
	if cfg.Model.Name != "" {
		model += " / " + cfg.Model.Name
	}
	printRow("Model", model)
	printRow("AWS region", cfg.AWS.Region)
	printRow("AWS profile", cfg.AWS.Profile)
	if cfg.Cache.Disabled {
		printRow("Result cache", "disabled")
	} else {
		printRow("Result cache", "enabled")
	}
	printRow("MCP servers", fmt.Sprintf("%d", len(cfg.MCP.Servers)))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
