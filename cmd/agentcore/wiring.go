// wiring.go builds the shared dependency graph (config, ContentGenerator,
// tool registry, MCP manager, store, session manager) that every
// subcommand needs, so handlers_*.go stay focused on command behavior.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nexuscore/agentcore/internal/config"
	"github.com/nexuscore/agentcore/internal/observability"
	"github.com/nexuscore/agentcore/internal/preamble"
	"github.com/nexuscore/agentcore/internal/providers"
	"github.com/nexuscore/agentcore/internal/providers/bedrock"
	"github.com/nexuscore/agentcore/internal/providers/catalog"
	"github.com/nexuscore/agentcore/internal/providers/mcp"
	"github.com/nexuscore/agentcore/internal/resumetoken"
	"github.com/nexuscore/agentcore/internal/session"
	"github.com/nexuscore/agentcore/internal/store"
	"github.com/nexuscore/agentcore/internal/store/memstore"
	"github.com/nexuscore/agentcore/internal/store/pgstore"
	"github.com/nexuscore/agentcore/internal/store/sqlstore"
	"github.com/nexuscore/agentcore/internal/tools"
	"github.com/nexuscore/agentcore/pkg/content"
)

// loadConfig reads and validates the config file at path, applying
// AGENTCORE_* environment overrides.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newSlogLogger builds the *slog.Logger every internal package
// constructor expects, via observability.NewLogger so every log line
// the core emits — orchestrator, scheduler, session manager, tools —
// gets secret redaction for free.
func newSlogLogger(cfg *config.Config, debug bool) *slog.Logger {
	level := cfg.Observability.LogLevel
	if debug {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Observability.LogFormat,
		Output: os.Stderr,
	})
}

// buildGenerator constructs the configured default ContentGenerator.
// Bedrock discovery is kicked off best-effort so a missing AWS session
// never blocks startup on the Anthropic/OpenAI path.
func buildGenerator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (providers.ContentGenerator, error) {
	switch cfg.Providers.Default {
	case "openai":
		return providers.NewOpenAIGenerator(providers.OpenAIConfig{
			APIKey:       cfg.Providers.OpenAI.APIKey,
			BaseURL:      cfg.Providers.OpenAI.BaseURL,
			DefaultModel: cfg.Providers.OpenAI.DefaultModel,
		})
	case "bedrock":
		gen, err := providers.NewBedrockGenerator(ctx, providers.BedrockConfig{
			Region:          cfg.Providers.Bedrock.Region,
			AccessKeyID:     cfg.Providers.Bedrock.AccessKeyID,
			SecretAccessKey: cfg.Providers.Bedrock.SecretAccessKey,
			SessionToken:    cfg.Providers.Bedrock.SessionToken,
			DefaultModel:    cfg.Providers.Bedrock.DefaultModel,
		})
		if err != nil {
			return nil, err
		}
		discCfg := &bedrock.DiscoveryConfig{Region: cfg.Providers.Bedrock.Region}
		if err := gen.DiscoverAndRegister(ctx, discCfg, catalog.RegisterDiscovered); err != nil {
			logger.Warn("bedrock model discovery failed, falling back to the static catalog", "error", err)
		}
		return gen, nil
	case "anthropic", "":
		return providers.NewAnthropicGenerator(providers.AnthropicConfig{
			APIKey:       cfg.Providers.Anthropic.APIKey,
			BaseURL:      cfg.Providers.Anthropic.BaseURL,
			DefaultModel: cfg.Providers.Anthropic.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("wiring: unknown provider %q", cfg.Providers.Default)
	}
}

// buildRegistry constructs the tool registry and, if any MCP servers
// are configured, connects them and registers their tools/resources/
// prompts per spec.md §4.E. The returned Manager is nil when MCP is
// not configured; callers must still call Stop if it is non-nil.
func buildRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tools.Registry, *mcp.Manager, error) {
	reg := tools.NewRegistry(logger)

	if len(cfg.MCP.Servers) == 0 {
		return reg, nil, nil
	}

	mcpCfg := &mcp.Config{Enabled: true}
	for _, s := range cfg.MCP.Servers {
		mcpCfg.Servers = append(mcpCfg.Servers, &mcp.ServerConfig{
			ID:        s.Name,
			Name:      s.Name,
			Transport: mcp.TransportType(s.Transport),
			Command:   s.Command,
			Args:      s.Args,
			URL:       s.URL,
			AutoStart: true,
			Timeout:   30 * time.Second,
		})
	}

	mgr := mcp.NewManager(mcpCfg, logger)
	if err := mgr.Start(ctx); err != nil {
		return reg, mgr, fmt.Errorf("wiring: start mcp manager: %w", err)
	}
	registered := mcp.RegisterAll(reg, mgr)
	logger.Info("mcp tools registered", "count", len(registered))
	return reg, mgr, nil
}

// buildStore constructs the persistent Store backend named by
// cfg.Store.Backend.
func buildStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "", "memory":
		return memstore.New(), nil
	case "sqlite":
		return sqlstore.Open(cfg.Store.DSN)
	case "postgres":
		return pgstore.Open(cfg.Store.DSN)
	default:
		return nil, fmt.Errorf("wiring: unknown store backend %q", cfg.Store.Backend)
	}
}

// resumeSecret resolves the HMAC key for resume tokens. A deployment
// should set AGENTCORE_RESUME_SECRET explicitly; a process-local
// random fallback still lets a single long-running server round-trip
// its own suspended confirmations, it just won't survive a restart
// (acceptable: the signer only proves token identity, spec.md §5's
// crash-resume gap is recorded in DESIGN.md).
func resumeSecret() string {
	if s := os.Getenv("AGENTCORE_RESUME_SECRET"); s != "" {
		return s
	}
	return fmt.Sprintf("agentcore-ephemeral-%d", time.Now().UnixNano())
}

// defaultSystemInstruction builds the per-turn system instruction from
// an optional AGENTCORE.md memory file in the working directory,
// matching spec.md §4.I's "rebuilt each turn from the user-memory blob
// plus any context files" requirement.
func defaultSystemInstruction(workDir string) func() string {
	return func() string {
		var b strings.Builder
		b.WriteString("You are agentcore, a terminal-based coding and automation assistant. ")
		b.WriteString("Use the available tools to accomplish the user's request; ask before destructive actions.")
		if data, err := os.ReadFile(workDir + "/AGENTCORE.md"); err == nil {
			b.WriteString("\n\n## Project memory\n\n")
			b.Write(data)
		}
		return b.String()
	}
}

// sessionTemplate assembles a session.Template from cfg and the
// already-constructed generator/registry, for either serve or session.
func sessionTemplate(cfg *config.Config, gen providers.ContentGenerator, reg *tools.Registry, model string, approvalMode string) session.Template {
	wd, _ := os.Getwd()

	m := model
	if m == "" {
		m = cfg.Providers.Anthropic.DefaultModel
		if m == "" {
			m = "claude-sonnet-4-5"
		}
	}

	am := cfg.ApprovalMode()
	if approvalMode != "" {
		am = content.ApprovalMode(approvalMode)
	}

	rc := cfg.RetryPolicyConfig()
	rc.AuthType = cfg.Providers.Default

	_ = catalog.TokenLimit(m) // exercised by the compaction engine at turn time; validated eagerly here

	return session.Template{
		Generator:         gen,
		Registry:          reg,
		Model:             m,
		MaxTurns:          100,
		ApprovalMode:      am,
		SystemInstruction: defaultSystemInstruction(wd),
		Preamble:          preamble.Build(wd, time.Now()),
		RetryConfig:       rc,
	}
}

// newSessionManager wires a session.Manager around tmpl, st, and a
// resume-token signer, keyed by this working directory's project hash.
func newSessionManager(tmpl session.Template, st store.Store, logger *slog.Logger) (*session.Manager, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("wiring: getwd: %w", err)
	}
	signer := resumetoken.NewSigner(resumeSecret(), time.Hour)
	projectHash := store.PathHash(wd)
	return session.New(tmpl, st, signer, projectHash, logger), nil
}
