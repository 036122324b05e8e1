// handlers_trace.go implements "trace replay": printing a session's
// persisted tmp/<hash>/logs.json records (spec.md §6) as a readable
// timeline, grounded on the teacher's trace replayer but reading from
// this module's store.Store rather than a standalone JSONL file.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexuscore/agentcore/internal/store"
)

func runTraceReplay(cmd *cobra.Command, configPath string, sessionID string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	st, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("trace: getwd: %w", err)
	}
	projectHash := store.PathHash(wd)

	records, err := st.ReadLogs(cmd.Context(), projectHash, sessionID)
	if err != nil {
		return fmt.Errorf("trace: read logs: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no log records for session %q\n", sessionID)
		return nil
	}

	out := cmd.OutOrStdout()
	for _, rec := range records {
		ts := time.UnixMilli(rec.Timestamp).Format(time.RFC3339)
		fmt.Fprintf(out, "[%s] %-28s %s\n", ts, rec.Type, rec.Message)
	}
	fmt.Fprintf(out, "\n%d records replayed\n", len(records))
	return nil
}
