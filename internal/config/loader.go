package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/costlens/costlens/internal/mcp"
)

// ValidModelProviders lists the model provider names the default registry
// knows how to construct. [Validate] warns about anything else.
var ValidModelProviders = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek",
	"mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Model
	if cfg.Model.Provider != "" && !slices.Contains(ValidModelProviders, cfg.Model.Provider) {
		slog.Warn("unknown model provider — may be a typo or third-party provider",
			"provider", cfg.Model.Provider,
			"known", ValidModelProviders,
		)
	}
	if cfg.Model.Provider != "" && cfg.Model.Name == "" {
		errs = append(errs, fmt.Errorf("model.name is required when model.provider is set"))
	}

	// AWS
	if cfg.AWS.Region == "" {
		slog.Warn("aws.region is empty; using the SDK's default region resolution")
	}

	// Assistant
	if n := cfg.Assistant.MaxIterations; n != 0 && (n < 1 || n > 10) {
		errs = append(errs, fmt.Errorf("assistant.max_iterations %d is out of range [1, 10]", n))
	}
	if cfg.Assistant.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("assistant.history_limit must not be negative"))
	}
	if t := cfg.Assistant.Temperature; t < 0 || t > 2 {
		errs = append(errs, fmt.Errorf("assistant.temperature %.2f is out of range [0.0, 2.0]", t))
	}

	// Cache
	if cfg.Cache.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("cache.max_entries must not be negative"))
	}

	// Retry
	if n := cfg.Retry.MaxAttempts; n != 0 && (n < 1 || n > 10) {
		errs = append(errs, fmt.Errorf("retry.max_attempts %d is out of range [1, 10]", n))
	}
	if m := cfg.Retry.Multiplier; m != 0 && m < 1 {
		errs = append(errs, fmt.Errorf("retry.multiplier %.2f must be >= 1", m))
	}
	if cfg.Retry.InitialDelay < 0 || cfg.Retry.MaxDelay < 0 {
		errs = append(errs, fmt.Errorf("retry delays must not be negative"))
	}

	// MCP servers
	namesSeen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
			}
			namesSeen[srv.Name] = i
		}
		switch srv.Transport {
		case "", mcp.TransportStdio, mcp.TransportStreamableHTTP:
		default:
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == mcp.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == mcp.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	return errors.Join(errs...)
}
