// Package config provides the configuration schema, loader, file watcher,
// and model provider registry for the CostLens server.
package config

import (
	"time"

	"github.com/costlens/costlens/internal/mcp"
)

// LogLevel controls log verbosity for the CostLens server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for CostLens.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	AWS       AWSConfig       `yaml:"aws"`
	Model     ModelConfig     `yaml:"model"`
	Assistant AssistantConfig `yaml:"assistant"`
	Cache     CacheConfig     `yaml:"cache"`
	Retry     RetryConfig     `yaml:"retry"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// ServerConfig holds network and logging settings for the CostLens server.
type ServerConfig struct {
	// ListenAddr is the TCP address the health and metrics endpoints listen
	// on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// AWSConfig selects the AWS credentials and region used for Cost Explorer
// queries. Unset fields fall back to the SDK's default resolution chain
// (environment, shared config, instance metadata).
type AWSConfig struct {
	// Region is the AWS region for API calls, e.g. "us-east-1". Cost
	// Explorer itself is a global service but the SDK still wants a region.
	Region string `yaml:"region"`

	// Profile selects a named profile from the shared AWS config file.
	Profile string `yaml:"profile"`
}

// ModelConfig selects the language model backend.
type ModelConfig struct {
	// Provider selects the registered model backend (e.g., "openai",
	// "anthropic", "ollama").
	Provider string `yaml:"provider"`

	// Name is the model identifier within the provider (e.g., "gpt-4o").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API. When empty,
	// providers fall back to their conventional environment variable.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// AssistantConfig tunes the conversational loop. Zero values mean defaults.
type AssistantConfig struct {
	// MaxIterations bounds how many model turns one question may take
	// before a partial answer is forced. Range [1, 10], default 5.
	MaxIterations int `yaml:"max_iterations"`

	// HistoryLimit bounds the retained conversation length in messages.
	HistoryLimit int `yaml:"history_limit"`

	// Temperature is the sampling temperature in [0.0, 2.0].
	Temperature float64 `yaml:"temperature"`
}

// CacheConfig sizes the tool result cache.
type CacheConfig struct {
	// Disabled turns the result cache off entirely. Every tool call then
	// reaches the Cost Explorer API.
	Disabled bool `yaml:"disabled"`

	// MaxEntries bounds the number of cached results.
	MaxEntries int64 `yaml:"max_entries"`
}

// RetryConfig tunes retries against the Cost Explorer API.
type RetryConfig struct {
	// MaxAttempts is the total number of tries including the first.
	// Range [1, 10].
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay caps the backoff.
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier grows the delay between attempts. Must be >= 1 when set.
	Multiplier float64 `yaml:"multiplier"`
}

// MCPConfig holds the list of additional MCP tool servers to connect to
// alongside the built-in cost tools.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes how to connect to a single MCP tool server.
type MCPServerConfig struct {
	// Name is a unique human-readable identifier for this server (used in logs).
	Name string `yaml:"name"`

	// Transport specifies the connection mechanism.
	Transport mcp.Transport `yaml:"transport"`

	// Command is the executable (with optional arguments) launched when
	// Transport is "stdio". Ignored for streamable-http transport.
	Command string `yaml:"command"`

	// URL is the MCP endpoint address used when Transport is "streamable-http"
	// (e.g., "https://mcp.example.com/mcp"). Ignored for stdio transport.
	URL string `yaml:"url"`

	// Env holds additional environment variables injected into the subprocess
	// when Transport is "stdio". May be nil.
	Env map[string]string `yaml:"env"`
}
