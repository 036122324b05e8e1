// Package session implements the Session Manager (spec.md §4.J): one
// *Session per session id, each guarded by its own mutex, owning the
// wiring between the Conversation Orchestrator, Tool Scheduler, Event
// Bus, Cancellation Signal, and persistent Store for that session.
//
// Grounded on the teacher's internal/agent/runtime.go AgenticRuntime
// (sessionLock/refcounting per run id, lazy construction on first use),
// re-targeted at the spec's orchestrator.Outcome suspension/resume
// protocol instead of the teacher's blocking approval channel.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexuscore/agentcore/internal/cancel"
	"github.com/nexuscore/agentcore/internal/events"
	"github.com/nexuscore/agentcore/internal/observability"
	"github.com/nexuscore/agentcore/internal/orchestrator"
	"github.com/nexuscore/agentcore/internal/providers"
	"github.com/nexuscore/agentcore/internal/resumetoken"
	"github.com/nexuscore/agentcore/internal/retrypolicy"
	"github.com/nexuscore/agentcore/internal/scheduler"
	"github.com/nexuscore/agentcore/internal/store"
	"github.com/nexuscore/agentcore/internal/tools"
	"github.com/nexuscore/agentcore/pkg/content"
)

// Template bundles the orchestrator-construction dependencies shared
// across every session; a Manager builds a fresh per-session Bus,
// Cancellation Signal, and Scheduler around this template at session
// creation.
type Template struct {
	Generator         providers.ContentGenerator
	Registry          *tools.Registry
	Model             string
	MaxTurns          int
	ApprovalMode      content.ApprovalMode
	SystemInstruction func() string
	Preamble          []content.Content
	RetryConfig       retrypolicy.Config
}

// entry is the live state for one session: its own mutex so concurrent
// HandleUserInput/HandleToolConfirmation/HandleCancel calls for the
// *same* session serialize, while different sessions proceed
// independently (spec.md §5).
type entry struct {
	mu     sync.Mutex
	orch   *orchestrator.Orchestrator
	state  *orchestrator.ConversationState
	bus    *events.Bus
	cancel *cancel.Signal

	// pending is set while a tool confirmation batch awaits outcomes.
	pending *pendingConfirmation
}

type pendingConfirmation struct {
	turnID    string
	exec      *scheduler.ExecutionState
	awaiting  map[string]bool
	decisions map[string]scheduler.ResumeDecision
}

// Manager owns the set of live sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry

	tmpl        Template
	st          store.Store
	signer      *resumetoken.Signer
	projectHash string
	logger      *slog.Logger
}

// New creates a Manager. projectHash addresses this project's subtree
// in st, per spec.md §6's hashed-by-absolute-path layout.
func New(tmpl Template, st store.Store, signer *resumetoken.Signer, projectHash string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions:    make(map[string]*entry),
		tmpl:        tmpl,
		st:          st,
		signer:      signer,
		projectHash: projectHash,
		logger:      logger,
	}
}

func (m *Manager) getOrCreate(sessionID string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[sessionID]; ok {
		return e
	}
	bus := events.New(sessionID, 64)
	sig := cancel.New()
	sched := scheduler.New(m.tmpl.Registry, bus, m.tmpl.ApprovalMode)
	deps := orchestrator.Deps{
		Generator:         m.tmpl.Generator,
		Summarizer:        providers.AsSummarizer(m.tmpl.Generator),
		Registry:          m.tmpl.Registry,
		Bus:               bus,
		Cancel:            sig,
		Logger:            m.logger,
		RetryConfig:       m.tmpl.RetryConfig,
		SystemInstruction: m.tmpl.SystemInstruction,
		Preamble:          m.tmpl.Preamble,
	}
	e := &entry{
		orch: orchestrator.New(deps, sched),
		state: &orchestrator.ConversationState{
			SessionID:    sessionID,
			Model:        m.tmpl.Model,
			MaxTurns:     m.tmpl.MaxTurns,
			ApprovalMode: m.tmpl.ApprovalMode,
		},
		bus:    bus,
		cancel: sig,
	}
	m.sessions[sessionID] = e
	return e
}

// Subscribe returns a passive event channel for sessionID's bus, per
// spec.md §4.A's fan-out model.
func (m *Manager) Subscribe(sessionID string) <-chan events.Event {
	e := m.getOrCreate(sessionID)
	return e.bus.Subscribe(8)
}

// HandleUserInput implements the `{type:"user_input", value:string}`
// client message (spec.md §6): it runs the turn loop to completion,
// cancellation, or a tool-confirmation suspension.
func (m *Manager) HandleUserInput(ctx context.Context, sessionID string, text string) error {
	e := m.getOrCreate(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending != nil {
		return fmt.Errorf("session: %q has a tool confirmation pending, cannot accept new input", sessionID)
	}

	m.appendLog(ctx, sessionID, "user_input", text)

	e.state.CurrentUserInput = []content.Part{content.TextPart(text)}
	out, err := e.orch.RunTurn(ctx, e.state)
	if err != nil {
		return fmt.Errorf("session: run turn: %w", err)
	}
	_, err = m.settle(ctx, sessionID, e, out)
	return err
}

// HandleUserInputToken behaves like HandleUserInput but additionally
// returns the signed resume token when the turn suspends on a tool
// confirmation, so a stateless front end can echo it back in its
// tool_confirmation_response message (spec.md §5's "not a blocked
// coroutine" requirement).
func (m *Manager) HandleUserInputToken(ctx context.Context, sessionID string, text string) (string, error) {
	e := m.getOrCreate(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending != nil {
		return "", fmt.Errorf("session: %q has a tool confirmation pending, cannot accept new input", sessionID)
	}

	m.appendLog(ctx, sessionID, "user_input", text)

	e.state.CurrentUserInput = []content.Part{content.TextPart(text)}
	out, err := e.orch.RunTurn(ctx, e.state)
	if err != nil {
		return "", fmt.Errorf("session: run turn: %w", err)
	}
	return m.settle(ctx, sessionID, e, out)
}

// HandleCancel implements the `{type:"cancel"}` client message: it sets
// the session's cancellation signal, observed at the orchestrator and
// scheduler's next checkpoint (spec.md §6).
func (m *Manager) HandleCancel(sessionID string) {
	e := m.getOrCreate(sessionID)
	e.cancel.Set()
	m.appendLog(context.Background(), sessionID, "cancel", "")
}

// ConfirmationInput is one call's outcome from a
// `{type:"tool_confirmation_response", ...}` client message.
type ConfirmationInput struct {
	ResumeToken         string
	CallID              string
	Outcome             scheduler.Outcome
	ModifiedArgs        map[string]any
	AlwaysApproveServer string
	AlwaysApproveTool   string
}

// HandleToolConfirmation implements the
// `{type:"tool_confirmation_response", ...}` client message. Decisions
// accumulate per turn until every awaiting callId has one, at which
// point the scheduler resumes and the orchestrator continues the loop.
func (m *Manager) HandleToolConfirmation(ctx context.Context, sessionID string, in ConfirmationInput) error {
	_, err := m.HandleToolConfirmationToken(ctx, sessionID, in)
	return err
}

// HandleToolConfirmationToken behaves like HandleToolConfirmation but
// returns the next resume token when the continued turn suspends again
// (e.g. a later tool call in the same batch also needs approval).
func (m *Manager) HandleToolConfirmationToken(ctx context.Context, sessionID string, in ConfirmationInput) (string, error) {
	e := m.getOrCreate(sessionID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending == nil {
		return "", fmt.Errorf("session: %q has no tool confirmation pending", sessionID)
	}

	gotSessionID, gotTurnID, err := m.signer.Verify(in.ResumeToken)
	if err != nil {
		return "", fmt.Errorf("session: verify resume token: %w", err)
	}
	if gotSessionID != sessionID || gotTurnID != e.pending.turnID {
		return "", fmt.Errorf("session: resume token does not match the pending confirmation")
	}
	if !e.pending.awaiting[in.CallID] {
		return "", fmt.Errorf("session: call %q is not awaiting confirmation", in.CallID)
	}

	e.pending.decisions[in.CallID] = scheduler.ResumeDecision{
		CallID:              in.CallID,
		Outcome:             in.Outcome,
		ModifiedArgs:        in.ModifiedArgs,
		AlwaysApproveServer: in.AlwaysApproveServer,
		AlwaysApproveTool:   in.AlwaysApproveTool,
	}

	for callID := range e.pending.awaiting {
		if _, ok := e.pending.decisions[callID]; !ok {
			// Still waiting on other calls in this batch.
			return "", nil
		}
	}

	m.appendLog(ctx, sessionID, "tool_confirmation_response", string(in.Outcome))

	decisions := make([]scheduler.ResumeDecision, 0, len(e.pending.decisions))
	for _, d := range e.pending.decisions {
		decisions = append(decisions, d)
	}
	exec := e.pending.exec
	e.pending = nil

	out, err := e.orch.ResumeTurn(ctx, e.state, exec, decisions)
	if err != nil {
		return "", fmt.Errorf("session: resume turn: %w", err)
	}
	return m.settle(ctx, sessionID, e, out)
}

// settle persists a checkpoint after every turn step and, on a
// suspension, registers the pending confirmation and issues the resume
// token the front end must echo back.
func (m *Manager) settle(ctx context.Context, sessionID string, e *entry, out orchestrator.Outcome) (string, error) {
	ctx = observability.AddSessionID(ctx, sessionID)
	if m.st != nil {
		cp := store.Checkpoint{SessionID: sessionID, History: e.state.History}
		if err := m.st.WriteCheckpoint(ctx, m.projectHash, cp); err != nil {
			m.logger.WarnContext(ctx, "session: checkpoint write failed", "error", err)
		}
	}

	if out.Kind != orchestrator.OutcomeSuspended {
		return "", nil
	}

	turnID := uuid.NewString()
	awaiting := make(map[string]bool, len(out.Suspension.Awaiting))
	for _, callID := range out.Suspension.Awaiting {
		awaiting[callID] = true
	}
	e.pending = &pendingConfirmation{
		turnID:    turnID,
		exec:      out.Exec,
		awaiting:  awaiting,
		decisions: make(map[string]scheduler.ResumeDecision),
	}

	if m.signer == nil {
		return "", nil
	}
	token, err := m.signer.Issue(sessionID, turnID)
	if err != nil {
		return "", fmt.Errorf("session: issue resume token: %w", err)
	}
	return token, nil
}

// appendLog is a convenience the CLI front end can call to persist a
// raw protocol message alongside the checkpointed history, matching
// the tmp/<hash>/logs.json append-only record shape from spec.md §6.
func (m *Manager) appendLog(ctx context.Context, sessionID, msgType, message string) {
	if m.st == nil {
		return
	}
	ctx = observability.AddSessionID(ctx, sessionID)
	rec := store.LogRecord{
		SessionID: sessionID,
		MessageID: uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Type:      msgType,
		Message:   message,
	}
	if err := m.st.AppendLog(ctx, m.projectHash, rec); err != nil {
		m.logger.WarnContext(ctx, "session: append log failed", "error", err)
	}
}
