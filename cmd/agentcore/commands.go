// commands.go contains cobra command definitions and flag wiring. Each
// command builder wires a thin RunE to a handler in handlers_*.go.
package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Serve command
// =============================================================================

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the duplex session server",
		Long: `Start the agent orchestration core's duplex session server.

The server will:
1. Load configuration from the specified file (or agentcore.yaml).
2. Construct the configured ContentGenerator (Anthropic, OpenAI, or Bedrock).
3. Connect any configured MCP servers and register their tools.
4. Accept WebSocket connections, one duplex channel per session, exchanging
   the client/core message envelopes from spec.md §6.
5. Expose Prometheus metrics on the configured metrics port.

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  agentcore serve --config /etc/agentcore/production.yaml
  agentcore serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	return cmd
}

// =============================================================================
// Session command
// =============================================================================

func buildSessionCmd() *cobra.Command {
	var (
		configPath   string
		model        string
		approvalMode string
		sessionID    string
	)

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Run one interactive session against stdin/stdout",
		Long: `Run a single session's turn loop interactively: each line on stdin
is submitted as a user_input message, and every event emitted on the
session's bus is printed to stdout as a JSON line, matching the
{type, value} envelope from spec.md §6.

Tool confirmations are prompted for interactively unless --approval-mode
is "yolo" or "auto_edit".`,
		Example: `  agentcore session --model claude-sonnet-4-5
  agentcore session --approval-mode yolo`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, resolveConfigPath(configPath), model, approvalMode, sessionID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	cmd.Flags().StringVarP(&model, "model", "m", "", "override the configured default model")
	cmd.Flags().StringVar(&approvalMode, "approval-mode", "", "override the configured approval mode")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "resume an existing session id instead of starting a new one")
	return cmd
}

// =============================================================================
// MCP command
// =============================================================================

func buildMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Inspect configured remote MCP servers",
	}
	cmd.AddCommand(buildMCPListCmd())
	cmd.AddCommand(buildMCPTestCmd())
	return cmd
}

func buildMCPListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Connect to every configured MCP server and list its tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPList(cmd, resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	return cmd
}

func buildMCPTestCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "test <server-name>",
		Short: "Connect to one configured MCP server and report its status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPTest(cmd, resolveConfigPath(configPath), args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	return cmd
}

// =============================================================================
// Trace command
// =============================================================================

func buildTraceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Replay a session's persisted event log",
	}
	cmd.AddCommand(buildTraceReplayCmd())
	return cmd
}

func buildTraceReplayCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "replay <session-id>",
		Short: "Print a session's tmp/<hash>/logs.json records as a timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraceReplay(cmd, resolveConfigPath(configPath), args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	return cmd
}
