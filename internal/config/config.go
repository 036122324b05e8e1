// Package config loads the orchestration core's ambient configuration:
// a YAML file, environment variable overrides under the AGENTCORE_
// prefix, and fsnotify-driven hot reload of the parameter subset safe
// to change while sessions are live.
//
// Grounded on the teacher's internal/config/config.go (struct-of-
// sections shape) and loader.go (YAML decode, KnownFields strictness),
// scoped down from the teacher's channel-bot surface (gateway,
// channels, skills, marketplace, ...) to this module's actual domain:
// model transports, retry, approval, storage backend, and the server.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nexuscore/agentcore/pkg/content"
)

// Config is the root configuration structure.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Retry         RetryConfig         `yaml:"retry"`
	Approval      ApprovalConfig      `yaml:"approval"`
	Store         StoreConfig         `yaml:"store"`
	Observability ObservabilityConfig `yaml:"observability"`
	MCP           MCPConfig           `yaml:"mcp"`
}

// ServerConfig configures cmd/agentcore's `serve` duplex session
// server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ProvidersConfig carries per-vendor credentials and defaults for the
// three ContentGenerator transports.
type ProvidersConfig struct {
	Default   string          `yaml:"default"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Bedrock   BedrockConfig   `yaml:"bedrock"`
}

type AnthropicConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

type OpenAIConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

type BedrockConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	DefaultModel    string `yaml:"default_model"`
}

// RetryConfig mirrors internal/retrypolicy.Config's tunables so they
// can be set from the config file rather than hardcoded at wiring
// time; it is part of the hot-reloadable subset.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// ApprovalConfig sets the session template's default approval mode; it
// is part of the hot-reloadable subset (new sessions pick up a change
// immediately, live sessions keep whatever mode they started with).
type ApprovalConfig struct {
	Mode string `yaml:"mode"`
}

// StoreConfig selects and configures the persistent store backend.
type StoreConfig struct {
	// Backend is one of "memory", "sqlite", "postgres".
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`
}

// ObservabilityConfig configures logging, metrics, and tracing.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
	TraceLog    string `yaml:"trace_log"`
}

// MCPConfig lists remote MCP servers to connect to at startup.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

type MCPServerConfig struct {
	Name      string   `yaml:"name"`
	Transport string   `yaml:"transport"` // "stdio" or "http"
	Command   string   `yaml:"command"`
	Args      []string `yaml:"args"`
	URL       string   `yaml:"url"`
}

// Default returns the spec's baseline configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 8787},
		Providers: ProvidersConfig{
			Default: "anthropic",
		},
		Retry: RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 5 * time.Second,
			MaxDelay:     30 * time.Second,
		},
		Approval: ApprovalConfig{Mode: string(content.ApprovalDefault)},
		Store:    StoreConfig{Backend: "memory"},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// ApprovalMode parses Approval.Mode into content.ApprovalMode,
// defaulting to content.ApprovalDefault for an unset or unrecognized
// value rather than failing config load over it.
func (c *Config) ApprovalMode() content.ApprovalMode {
	switch content.ApprovalMode(c.Approval.Mode) {
	case content.ApprovalDefault, content.ApprovalAutoEdit, content.ApprovalYOLO:
		return content.ApprovalMode(c.Approval.Mode)
	default:
		return content.ApprovalDefault
	}
}

// envPrefix is the namespace every override key is read under.
const envPrefix = "AGENTCORE_"

// applyEnvOverrides overlays AGENTCORE_* environment variables onto cfg.
// Only the fields a deployment actually needs to override outside the
// config file are covered; this is deliberately not a generic
// reflection-based mapper so every supported key is visible here.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(envPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", envPrefix, key, err)
		}
		*dst = n
		return nil
	}

	str("ANTHROPIC_API_KEY", &cfg.Providers.Anthropic.APIKey)
	str("OPENAI_API_KEY", &cfg.Providers.OpenAI.APIKey)
	str("BEDROCK_ACCESS_KEY_ID", &cfg.Providers.Bedrock.AccessKeyID)
	str("BEDROCK_SECRET_ACCESS_KEY", &cfg.Providers.Bedrock.SecretAccessKey)
	str("BEDROCK_REGION", &cfg.Providers.Bedrock.Region)
	str("PROVIDER", &cfg.Providers.Default)
	str("APPROVAL_MODE", &cfg.Approval.Mode)
	str("STORE_BACKEND", &cfg.Store.Backend)
	str("STORE_DSN", &cfg.Store.DSN)
	str("LOG_LEVEL", &cfg.Observability.LogLevel)
	str("LOG_FORMAT", &cfg.Observability.LogFormat)

	if err := num("SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if err := num("METRICS_PORT", &cfg.Observability.MetricsPort); err != nil {
		return err
	}
	if err := num("RETRY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts); err != nil {
		return err
	}
	return nil
}

// ApplySafeSubset copies the fields that are safe to change on a live
// process — approval mode and retry parameters — from other into c.
// It deliberately excludes providers, store, and server fields, which
// require reconstructing long-lived clients and connections. It also
// excludes the Compression Engine's trigger fraction: spec.md §6 fixes
// internal/providers/catalog.CompressionThreshold as a constant, so
// unlike the rest of this subset it is not runtime-tunable.
func (c *Config) ApplySafeSubset(other *Config) {
	c.Approval = other.Approval
	c.Retry = other.Retry
}
