// handlers_mcp.go implements the "mcp list" and "mcp test" commands:
// connect to configured remote servers and report their discovered
// tools/resources/prompts, per spec.md §4.E's remote-tool discovery.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func runMCPList(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newSlogLogger(cfg, false)

	if len(cfg.MCP.Servers) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no MCP servers configured")
		return nil
	}

	_, mgr, err := buildRegistry(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer mgr.Stop()

	out := cmd.OutOrStdout()
	for _, st := range mgr.Status() {
		fmt.Fprintf(out, "%s (%s)\n", st.Name, st.ID)
		fmt.Fprintf(out, "  connected: %v\n", st.Connected)
		fmt.Fprintf(out, "  tools: %d  resources: %d  prompts: %d\n", st.Tools, st.Resources, st.Prompts)
	}
	for serverID, tools := range mgr.AllTools() {
		for _, t := range tools {
			fmt.Fprintf(out, "  %s.%s: %s\n", serverID, t.Name, t.Description)
		}
	}
	return nil
}

func runMCPTest(cmd *cobra.Command, configPath string, serverName string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newSlogLogger(cfg, false)

	_, mgr, err := buildRegistry(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	if mgr == nil {
		return fmt.Errorf("mcp: no MCP servers configured")
	}
	defer mgr.Stop()

	if _, ok := mgr.Client(serverName); !ok {
		return fmt.Errorf("mcp: no connected server named %q", serverName)
	}

	tools := mgr.AllTools()[serverName]
	fmt.Fprintf(cmd.OutOrStdout(), "%s: connected, %d tools discovered\n", serverName, len(tools))
	for _, t := range tools {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", t.Name, t.Description)
	}
	return nil
}
