// Package main provides the CLI entry point for agentcore, the agent
// orchestration core.
//
// agentcore drives a multi-turn conversation between a user, an LLM,
// and a registry of tools, streaming intermediate events to a
// front-end over a duplex channel.
//
// # Basic usage
//
// Start the duplex session server:
//
//	agentcore serve --config agentcore.yaml
//
// Run a one-shot interactive session against stdin/stdout:
//
//	agentcore session --model claude-sonnet-4-5
//
// List or test configured MCP servers:
//
//	agentcore mcp list
//	agentcore mcp test my-server
//
// Replay a session's persisted log as a timeline:
//
//	agentcore trace replay <session-id>
//
// # Environment variables
//
//   - AGENTCORE_CONFIG: path to the YAML config file (default: agentcore.yaml)
//   - AGENTCORE_ANTHROPIC_API_KEY, AGENTCORE_OPENAI_API_KEY: provider credentials
//   - AGENTCORE_BEDROCK_ACCESS_KEY_ID, AGENTCORE_BEDROCK_SECRET_ACCESS_KEY, AGENTCORE_BEDROCK_REGION
//   - AGENTCORE_PROVIDER: default provider ("anthropic", "openai", "bedrock")
//   - AGENTCORE_APPROVAL_MODE: "default", "auto_edit", or "yolo"
//   - AGENTCORE_STORE_BACKEND, AGENTCORE_STORE_DSN
//   - AGENTCORE_LOG_LEVEL, AGENTCORE_LOG_FORMAT
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build:
//
//	go build -ldflags "-X main.version=v0.1.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentcore",
		Short: "Agent orchestration core: LLM turn loop, tool scheduler, and event bus",
		Long: `agentcore drives a multi-turn conversation between a user, a large
language model, and a registry of local/remote tools, streaming
intermediate events to a front-end over a duplex channel.`,
		Version:           fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	root.AddCommand(buildServeCmd())
	root.AddCommand(buildSessionCmd())
	root.AddCommand(buildMCPCmd())
	root.AddCommand(buildTraceCmd())

	return root
}

// defaultConfigPath mirrors the teacher's profile.DefaultConfigPath
// convention, scoped to this module's own env var and file name.
func defaultConfigPath() string {
	if p := os.Getenv("AGENTCORE_CONFIG"); p != "" {
		return p
	}
	return "agentcore.yaml"
}

// resolveConfigPath falls back to the default path when the flag was
// left at its zero value.
func resolveConfigPath(p string) string {
	if p == "" {
		return defaultConfigPath()
	}
	return p
}
