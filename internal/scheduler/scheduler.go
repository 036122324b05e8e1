// Package scheduler implements the Tool Scheduler (spec.md §4.F), the
// hardest subsystem in the core: it validates a batch of tool call
// requests, gates each on user approval, suspends the batch for
// confirmation when needed, executes approved calls concurrently, and
// reports a terminal ToolCall per request.
//
// Grounded on the teacher's internal/agent/tool_exec.go (concurrent
// execution, live-output callback) and internal/agent/approval.go
// (confirmation gating), re-targeted at the spec's five-phase state
// machine and per-call awaiting_approval suspension rather than the
// teacher's allow/deny/pending policy checker.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nexuscore/agentcore/internal/cancel"
	"github.com/nexuscore/agentcore/internal/events"
	"github.com/nexuscore/agentcore/internal/tools"
	"github.com/nexuscore/agentcore/pkg/content"
)

// State is a ToolCall's position in the lifecycle state machine
// described in spec.md §4.F.
type State string

const (
	StateValidating      State = "validating"
	StateAwaitingApproval State = "awaiting_approval"
	StateScheduled       State = "scheduled"
	StateExecuting       State = "executing"
	StateSuccess         State = "success"
	StateError           State = "error"
	StateCancelled       State = "cancelled"
)

// Terminal reports whether s is one of the three terminal states.
func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateError, StateCancelled:
		return true
	default:
		return false
	}
}

// ToolCall is the lifecycle record for a single requested invocation,
// spec.md §3.
type ToolCall struct {
	Request      content.ToolCallRequest
	Tool         tools.Tool
	State        State
	StartTime    time.Time
	DurationMs   int64
	Confirmation *content.ConfirmationDetails
	LiveOutput   string
	Response     *content.ToolCallResponse
}

// ExecutionState is the batch's shared state, owned exclusively by the
// Scheduler per spec.md §3 ownership rules. It is what gets persisted
// across a confirmation suspension.
type ExecutionState struct {
	IncomingRequests []content.ToolCallRequest
	ToolCalls        []*ToolCall
}

// AllTerminal reports whether every call in the batch has reached a
// terminal state — re-invoking Schedule/Resume on such a state is a
// documented no-op (spec.md §8).
func (s *ExecutionState) AllTerminal() bool {
	for _, tc := range s.ToolCalls {
		if !tc.State.Terminal() {
			return false
		}
	}
	return true
}

// Outcome is the three-valued user decision on a suspended call,
// spec.md §4.F step 3 / §6.
type Outcome string

const (
	OutcomeApprove          Outcome = "approve"
	OutcomeCancel           Outcome = "cancel"
	OutcomeModifyWithEditor Outcome = "modify_with_editor"
)

// ResumeDecision is one call's outcome supplied by the Session Manager
// on resume, plus optional "always approve" trust-set directives.
type ResumeDecision struct {
	CallID              string
	Outcome             Outcome
	ModifiedArgs        map[string]any
	AlwaysApproveServer string // trust key granularity: server-wide
	AlwaysApproveTool   string // trust key granularity: server+tool
}

// Suspension is returned by Schedule/Resume when one or more calls are
// awaiting_approval; the caller must collect outcomes and call Resume.
type Suspension struct {
	State    *ExecutionState
	Awaiting []string // callIDs currently awaiting_approval
}

type trustKey struct {
	server string
	tool   string
}

// Scheduler runs the batch lifecycle for one turn's tool calls.
type Scheduler struct {
	registry *tools.Registry
	bus      *events.Bus
	mode     content.ApprovalMode

	trustMu sync.Mutex
	trust   map[trustKey]bool
}

// New creates a Scheduler over registry, emitting lifecycle events on
// bus under approval mode.
func New(registry *tools.Registry, bus *events.Bus, mode content.ApprovalMode) *Scheduler {
	return &Scheduler{
		registry: registry,
		bus:      bus,
		mode:     mode,
		trust:    make(map[trustKey]bool),
	}
}

// SetApprovalMode updates the mode used by future Schedule calls (the
// session-level approval mode can change between turns).
func (s *Scheduler) SetApprovalMode(mode content.ApprovalMode) {
	s.mode = mode
}

// Schedule runs phases 1-2 (validate, gate) over reqs and, if nothing
// needs confirmation, phase 4-5 (execute, complete) as well. A non-nil
// Suspension means the caller must call Resume once outcomes for the
// awaiting calls are known.
func (s *Scheduler) Schedule(ctx context.Context, sig *cancel.Signal, reqs []content.ToolCallRequest) (*ExecutionState, *Suspension, error) {
	state := &ExecutionState{IncomingRequests: reqs}
	state.ToolCalls = make([]*ToolCall, len(reqs))

	for i, req := range reqs {
		state.ToolCalls[i] = s.validate(req)
	}

	s.gate(state)

	if susp := s.suspensionFor(state); susp != nil {
		return state, susp, nil
	}

	if err := s.execute(ctx, sig, state); err != nil {
		return state, nil, err
	}
	s.complete(state)
	return state, nil, nil
}

// validate is phase 1: resolve the tool, validate its params. A miss
// or validation failure immediately transitions the call to a terminal
// error state.
func (s *Scheduler) validate(req content.ToolCallRequest) *ToolCall {
	tc := &ToolCall{Request: req, StartTime: time.Now()}

	tool, ok := s.registry.Get(req.Name)
	if !ok {
		s.fail(tc, fmt.Sprintf("Tool '%s' not found", req.Name))
		return tc
	}
	tc.Tool = tool

	if errStr := tool.ValidateParams(req.Args); errStr != "" {
		s.fail(tc, errStr)
		return tc
	}

	tc.State = StateValidating
	return tc
}

func (s *Scheduler) fail(tc *ToolCall, message string) {
	tc.State = StateError
	tc.Response = &content.ToolCallResponse{
		CallID: tc.Request.CallID,
		Error:  message,
		ResponseParts: []content.Part{content.FunctionResponsePartOf(tc.Request.CallID, tc.Request.Name, map[string]any{
			"error": message,
		})},
		DisplayResult: message,
	}
}

// gate is phase 2: yolo skips confirmation for everything still
// validating; otherwise each tool's ShouldConfirm decides, short-
// circuited by the trust set for remote tools the front-end has
// already blanket-approved.
func (s *Scheduler) gate(state *ExecutionState) {
	for _, tc := range state.ToolCalls {
		if tc.State != StateValidating {
			continue
		}
		if s.mode == content.ApprovalYOLO {
			tc.State = StateScheduled
			continue
		}
		if s.isTrusted(tc) {
			tc.State = StateScheduled
			continue
		}
		details := tc.Tool.ShouldConfirm(tc.Request.Args)
		if details == nil {
			tc.State = StateScheduled
			continue
		}
		if s.mode == content.ApprovalAutoEdit && details.Kind == content.ConfirmEdit {
			tc.State = StateScheduled
			continue
		}
		tc.Confirmation = details
		tc.State = StateAwaitingApproval
	}
}

func (s *Scheduler) isTrusted(tc *ToolCall) bool {
	server := serverNameOf(tc.Request.Name)
	if server == "" {
		return false
	}
	s.trustMu.Lock()
	defer s.trustMu.Unlock()
	if s.trust[trustKey{server: server}] {
		return true
	}
	return s.trust[trustKey{server: server, tool: tc.Request.Name}]
}

// serverNameOf extracts the MCP server prefix from a sanitized remote
// tool name (tools.Registry.RegisterRemote's "<server>__<tool>" form),
// or "" for a non-remote tool name.
func serverNameOf(name string) string {
	for i := 0; i+1 < len(name); i++ {
		if name[i] == '_' && name[i+1] == '_' {
			return name[:i]
		}
	}
	return ""
}

// suspensionFor is phase 3: if any call is awaiting_approval, emit one
// toolCallConfirmation event per such call and return a Suspension the
// caller must persist.
func (s *Scheduler) suspensionFor(state *ExecutionState) *Suspension {
	var awaiting []string
	for _, tc := range state.ToolCalls {
		if tc.State != StateAwaitingApproval {
			continue
		}
		awaiting = append(awaiting, tc.Request.CallID)
		if s.bus != nil {
			_ = s.bus.Emit(events.TypeToolCallConfirmation, map[string]any{
				"request": tc.Request,
				"details": tc.Confirmation,
			})
		}
	}
	if len(awaiting) == 0 {
		return nil
	}
	return &Suspension{State: state, Awaiting: awaiting}
}

// Resume applies per-call outcomes to a suspended ExecutionState, then
// runs the execute/complete phases over every now-scheduled call
// (including any that were already scheduled before suspension).
// Calling Resume on a state with no non-terminal calls is a no-op.
func (s *Scheduler) Resume(ctx context.Context, sig *cancel.Signal, state *ExecutionState, decisions []ResumeDecision) (*ExecutionState, error) {
	if state.AllTerminal() {
		return state, nil
	}

	byID := make(map[string]*ToolCall, len(state.ToolCalls))
	for _, tc := range state.ToolCalls {
		byID[tc.Request.CallID] = tc
	}

	for _, d := range decisions {
		tc, ok := byID[d.CallID]
		if !ok || tc.State != StateAwaitingApproval {
			continue
		}
		s.applyTrust(tc, d)
		switch d.Outcome {
		case OutcomeCancel:
			tc.State = StateCancelled
			tc.Response = &content.ToolCallResponse{
				CallID: tc.Request.CallID,
				ResponseParts: []content.Part{content.FunctionResponsePartOf(tc.Request.CallID, tc.Request.Name, map[string]any{
					"error": "User cancelled tool call.",
				})},
				DisplayResult: "User cancelled tool call.",
			}
		case OutcomeModifyWithEditor:
			if d.ModifiedArgs != nil {
				tc.Request.Args = d.ModifiedArgs
			}
			tc.State = StateScheduled
		case OutcomeApprove:
			tc.State = StateScheduled
		default:
			tc.State = StateScheduled
		}
	}

	if err := s.execute(ctx, sig, state); err != nil {
		return state, err
	}
	s.complete(state)
	return state, nil
}

func (s *Scheduler) applyTrust(tc *ToolCall, d ResumeDecision) {
	server := serverNameOf(tc.Request.Name)
	if server == "" {
		return
	}
	s.trustMu.Lock()
	defer s.trustMu.Unlock()
	if d.AlwaysApproveServer != "" {
		s.trust[trustKey{server: server}] = true
	}
	if d.AlwaysApproveTool != "" {
		s.trust[trustKey{server: server, tool: tc.Request.Name}] = true
	}
}

// execute is phase 4: every scheduled call runs concurrently. Execution
// observes sig for cancellation at entry and on return; a call whose
// tool panics is recovered into an error response so one bad tool can
// never crash the orchestrator (spec.md §7 ToolExecution taxonomy).
func (s *Scheduler) execute(ctx context.Context, sig *cancel.Signal, state *ExecutionState) error {
	var wg sync.WaitGroup
	for _, tc := range state.ToolCalls {
		if tc.State != StateScheduled {
			continue
		}
		if sig != nil && sig.IsSet() {
			tc.State = StateCancelled
			tc.Response = cancelledResponse(tc.Request)
			continue
		}
		tc.State = StateExecuting
		wg.Add(1)
		go func(tc *ToolCall) {
			defer wg.Done()
			s.runOne(ctx, sig, tc)
		}(tc)
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) runOne(ctx context.Context, sig *cancel.Signal, tc *ToolCall) {
	defer func() {
		if r := recover(); r != nil {
			tc.State = StateError
			msg := fmt.Sprintf("tool panicked: %v", r)
			tc.Response = &content.ToolCallResponse{
				CallID: tc.Request.CallID,
				Error:  msg,
				ResponseParts: []content.Part{content.FunctionResponsePartOf(tc.Request.CallID, tc.Request.Name, map[string]any{
					"error": msg,
				})},
				DisplayResult: msg,
			}
		}
	}()

	live := func(chunk string) {
		tc.LiveOutput += chunk
		if s.bus != nil {
			_ = s.bus.Emit(events.TypeToolLog, map[string]any{
				"call_id": tc.Request.CallID,
				"chunk":   chunk,
			})
		}
	}

	start := time.Now()
	result, err := tc.Tool.Execute(ctx, tc.Request.Args, sig, live)
	tc.DurationMs = time.Since(start).Milliseconds()

	if sig != nil && sig.IsSet() {
		tc.State = StateCancelled
		tc.Response = cancelledResponse(tc.Request)
		return
	}

	if err != nil {
		tc.State = StateError
		tc.Response = &content.ToolCallResponse{
			CallID: tc.Request.CallID,
			Error:  err.Error(),
			ResponseParts: []content.Part{content.FunctionResponsePartOf(tc.Request.CallID, tc.Request.Name, map[string]any{
				"error": err.Error(),
			})},
			DisplayResult: err.Error(),
		}
		return
	}

	tc.State = StateSuccess
	parts := result.LLMContent
	if len(parts) == 0 {
		parts = []content.Part{content.FunctionResponsePartOf(tc.Request.CallID, tc.Request.Name, map[string]any{
			"output": result.DisplayResult,
		})}
	}
	tc.Response = &content.ToolCallResponse{
		CallID:        tc.Request.CallID,
		ResponseParts: parts,
		DisplayResult: result.DisplayResult,
	}
}

func cancelledResponse(req content.ToolCallRequest) *content.ToolCallResponse {
	return &content.ToolCallResponse{
		CallID: req.CallID,
		ResponseParts: []content.Part{content.FunctionResponsePartOf(req.CallID, req.Name, map[string]any{
			"error": "User cancelled tool call.",
		})},
		DisplayResult: "User cancelled tool call.",
	}
}

// complete is phase 5: emit one toolCallResponse event per terminal
// call, in request order.
func (s *Scheduler) complete(state *ExecutionState) {
	if s.bus == nil {
		return
	}
	for _, tc := range state.ToolCalls {
		if !tc.State.Terminal() || tc.Response == nil {
			continue
		}
		_ = s.bus.Emit(events.TypeToolCallResponse, *tc.Response)
	}
}
