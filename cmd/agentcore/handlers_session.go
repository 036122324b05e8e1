// handlers_session.go implements the "session" command: a one-shot
// interactive REPL driving a single session.Manager session against
// stdin/stdout, printing every emitted event as a {type, value} JSON
// line (spec.md §6) and prompting interactively for tool confirmations.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nexuscore/agentcore/internal/events"
	"github.com/nexuscore/agentcore/internal/scheduler"
	"github.com/nexuscore/agentcore/internal/session"
	"github.com/nexuscore/agentcore/pkg/content"
)

func runSession(cmd *cobra.Command, configPath, model, approvalMode, sessionID string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newSlogLogger(cfg, false)
	ctx := cmd.Context()

	gen, err := buildGenerator(ctx, cfg, logger)
	if err != nil {
		return err
	}

	reg, mgr, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if mgr != nil {
		defer mgr.Stop()
	}

	st, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	tmpl := sessionTemplate(cfg, gen, reg, model, approvalMode)
	sessMgr, err := newSessionManager(tmpl, st, logger)
	if err != nil {
		return err
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# session %s (provider=%s model=%s approval=%s)\n", sessionID, cfg.Providers.Default, tmpl.Model, tmpl.ApprovalMode)
	fmt.Fprintln(out, "# type a message, or /cancel, /exit")

	watcher := newConfirmationWatcher()
	evCh := sessMgr.Subscribe(sessionID)
	done := make(chan struct{})
	go printEvents(out, evCh, watcher, done)
	defer close(done)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/exit" || line == "/quit":
			return nil
		case line == "/cancel":
			sessMgr.HandleCancel(sessionID)
			continue
		}

		token, err := sessMgr.HandleUserInputToken(ctx, sessionID, line)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			continue
		}
		if err := driveConfirmations(ctx, cmd, sessMgr, sessionID, watcher, token); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		}
	}
}

// driveConfirmations walks the chain of tool-confirmation suspensions a
// turn may produce: every request queued by the confirmationWatcher
// since the last resume token is prompted for interactively, in order,
// echoing the same token per spec.md §4.F step 3 until the scheduler
// actually resumes (HandleToolConfirmationToken returns the next
// token, or "" once the turn is complete/cancelled/suspended no more).
func driveConfirmations(ctx context.Context, cmd *cobra.Command, sessMgr *session.Manager, sessionID string, watcher *confirmationWatcher, token string) error {
	for token != "" {
		reqs := watcher.drain()
		if len(reqs) == 0 {
			return fmt.Errorf("session: turn suspended but no confirmation requests were observed")
		}
		var next string
		var err error
		for _, req := range reqs {
			outcome := promptApproval(cmd, req)
			next, err = sessMgr.HandleToolConfirmationToken(ctx, sessionID, session.ConfirmationInput{
				ResumeToken: token,
				CallID:      req.CallID,
				Outcome:     outcome,
			})
			if err != nil {
				return fmt.Errorf("resume: %w", err)
			}
		}
		token = next
	}
	return nil
}

func promptApproval(cmd *cobra.Command, req content.ToolCallRequest) scheduler.Outcome {
	argsJSON, _ := json.Marshal(req.Args)
	fmt.Fprintf(cmd.OutOrStdout(), "approve %s(%s)? [y/N] ", req.Name, argsJSON)

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return scheduler.OutcomeCancel
	}
	ans := strings.ToLower(strings.TrimSpace(scanner.Text()))
	if ans == "y" || ans == "yes" {
		return scheduler.OutcomeApprove
	}
	return scheduler.OutcomeCancel
}

// confirmationWatcher buffers every toolCallConfirmation event's
// request so the synchronous REPL loop can prompt for each one after
// HandleUserInputToken/HandleToolConfirmationToken returns a
// suspension token.
type confirmationWatcher struct {
	mu       sync.Mutex
	requests []content.ToolCallRequest
}

func newConfirmationWatcher() *confirmationWatcher {
	return &confirmationWatcher{}
}

func (w *confirmationWatcher) push(req content.ToolCallRequest) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.requests = append(w.requests, req)
}

func (w *confirmationWatcher) drain() []content.ToolCallRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	reqs := w.requests
	w.requests = nil
	return reqs
}

// printEvents drains ch until it closes or done fires, printing every
// event as a {type, value} JSON line and feeding toolCallConfirmation
// requests to watcher.
func printEvents(out interface{ Write([]byte) (int, error) }, ch <-chan events.Event, watcher *confirmationWatcher, done <-chan struct{}) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Type == events.TypeToolCallConfirmation {
				if m, ok := ev.Value.(map[string]any); ok {
					if req, ok := m["request"].(content.ToolCallRequest); ok {
						watcher.push(req)
					}
				}
			}
			line, err := json.Marshal(struct {
				Type  events.Type `json:"type"`
				Value any         `json:"value"`
			}{ev.Type, ev.Value})
			if err != nil {
				continue
			}
			out.Write(line)
			out.Write([]byte("\n"))
		case <-done:
			return
		}
	}
}
