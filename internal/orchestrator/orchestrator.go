// Package orchestrator implements the Conversation Orchestrator
// (spec.md §4.I): the turn loop that alternates model generation, tool
// dispatch, and continuation checks, bounded by a turn limit and
// interruptible at any point.
//
// Grounded on the teacher's internal/agent/loop.go phase-driven for-loop
// (PhaseInit/Stream/ExecuteTools/Continue/Complete), re-targeted at the
// spec's curate->maybe-compress->generate->dispatch-tools->continuation
// cycle and its content.Content history model rather than the teacher's
// flat CompletionMessage list.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nexuscore/agentcore/internal/cancel"
	"github.com/nexuscore/agentcore/internal/compaction"
	"github.com/nexuscore/agentcore/internal/events"
	"github.com/nexuscore/agentcore/internal/history"
	"github.com/nexuscore/agentcore/internal/observability"
	"github.com/nexuscore/agentcore/internal/providers"
	"github.com/nexuscore/agentcore/internal/retrypolicy"
	"github.com/nexuscore/agentcore/internal/scheduler"
	"github.com/nexuscore/agentcore/internal/speaker"
	"github.com/nexuscore/agentcore/internal/tools"
	"github.com/nexuscore/agentcore/pkg/content"
)

// ConversationState is the per-session state the orchestrator owns
// exclusively, per spec.md §3 ownership rules.
type ConversationState struct {
	SessionID        string
	Model            string
	History          []content.Content
	PendingToolCalls []content.ToolCallRequest
	CurrentUserInput []content.Part
	Usage            *content.UsageMetadata
	TurnCount        int
	MaxTurns         int
	ApprovalMode     content.ApprovalMode
}

// OutcomeKind discriminates why RunTurn/ResumeTurn returned.
type OutcomeKind string

const (
	OutcomeComplete   OutcomeKind = "complete"
	OutcomeCancelled  OutcomeKind = "cancelled"
	OutcomeSuspended  OutcomeKind = "suspended"
	OutcomeMaxTurns   OutcomeKind = "max_turns"
)

// Outcome is what a RunTurn/ResumeTurn call produces.
type Outcome struct {
	Kind OutcomeKind

	// Suspension fields, set only when Kind == OutcomeSuspended. The
	// Session Manager must persist Exec and Suspended, collect outcomes
	// for every callId in Suspended.Awaiting, and call ResumeTurn.
	Exec       *scheduler.ExecutionState
	Suspension *scheduler.Suspension
}

// Deps bundles the orchestrator's external collaborators.
type Deps struct {
	Generator   providers.ContentGenerator
	Summarizer  providers.Summarizer
	Registry    *tools.Registry
	Bus         *events.Bus
	Cancel      *cancel.Signal
	Logger      *slog.Logger
	RetryConfig retrypolicy.Config

	// SystemInstruction is rebuilt each turn so mid-session edits to
	// user memory or context files take effect, per spec.md §4.I.
	SystemInstruction func() string
	// Preamble is the once-per-chat environment preamble content pair,
	// prepended ahead of any compression replacement.
	Preamble []content.Content
}

// Orchestrator runs the turn loop for one session at a time (callers
// serialize RunTurn/ResumeTurn per session, matching the teacher's
// per-session mutex convention carried at the Session Manager layer).
type Orchestrator struct {
	deps      Deps
	scheduler *scheduler.Scheduler
	engine    *compaction.Engine
}

// New creates an Orchestrator. sched must be constructed against the
// same Deps.Bus and an approval mode matching the session's.
func New(deps Deps, sched *scheduler.Scheduler) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{
		deps:      deps,
		scheduler: sched,
		engine:    compaction.NewEngine(deps.Generator, deps.Summarizer, deps.Logger),
	}
}

// RunTurn drives state through as many loop iterations as needed to
// either complete, cancel, suspend on a tool confirmation, or exhaust
// MaxTurns.
func (o *Orchestrator) RunTurn(ctx context.Context, state *ConversationState) (Outcome, error) {
	if state.MaxTurns == 0 {
		o.emit(events.TypeTurnComplete, nil)
		return Outcome{Kind: OutcomeComplete}, nil
	}
	return o.loop(ctx, state)
}

// ResumeTurn applies confirmation outcomes to a suspended execution,
// runs the execute/complete phases, appends the resulting function
// turn to history, and continues the turn loop from there.
func (o *Orchestrator) ResumeTurn(ctx context.Context, state *ConversationState, exec *scheduler.ExecutionState, decisions []scheduler.ResumeDecision) (Outcome, error) {
	final, err := o.scheduler.Resume(ctx, o.deps.Cancel, exec, decisions)
	if err != nil {
		return Outcome{}, fmt.Errorf("orchestrator: resume tool scheduler: %w", err)
	}
	o.appendToolResults(state, final)
	state.TurnCount++
	return o.loop(ctx, state)
}

func (o *Orchestrator) loop(ctx context.Context, state *ConversationState) (Outcome, error) {
	ctx = observability.AddSessionID(ctx, state.SessionID)
	for state.TurnCount < state.MaxTurns {
		if o.deps.Cancel != nil && o.deps.Cancel.IsSet() {
			o.emit(events.TypeUserCancelled, nil)
			return Outcome{Kind: OutcomeCancelled}, nil
		}

		if len(state.CurrentUserInput) > 0 {
			state.History = append(state.History, content.Content{Role: content.RoleUser, Parts: state.CurrentUserInput})
			state.CurrentUserInput = nil
		}

		curated := history.Curate(state.History)

		if res, replaced, err := o.engine.Maybe(ctx, state.Model, curated, o.deps.Preamble, false); err != nil {
			o.deps.Logger.WarnContext(ctx, "orchestrator: compression check failed, continuing uncompressed", "error", err)
		} else if res != nil {
			o.emit(events.TypeChatCompressed, map[string]any{
				"originalTokenCount": res.OriginalTokenCount,
				"newTokenCount":      res.NewTokenCount,
			})
			state.History = replaced
			curated = replaced
		}

		modelTurn, toolCalls, usage, skipAppend, err := o.generate(ctx, state, curated)
		if err != nil {
			o.emit(events.TypeError, map[string]any{"error": map[string]any{"message": err.Error()}})
			return Outcome{}, err
		}
		if o.deps.Cancel != nil && o.deps.Cancel.IsSet() {
			o.emit(events.TypeUserCancelled, nil)
			return Outcome{Kind: OutcomeCancelled}, nil
		}

		if !skipAppend {
			state.History = append(state.History, modelTurn)
		}
		if usage != nil {
			state.Usage = usage
			o.emit(events.TypeUsageMetadata, usage)
		}

		if len(toolCalls) == 0 {
			next, err := speaker.Decide(ctx, o.deps.Generator, state.Model, history.Curate(state.History), o.deps.Logger)
			if err != nil {
				o.deps.Logger.WarnContext(ctx, "orchestrator: next-speaker oracle failed, ending turn", "error", err)
				next = speaker.SpeakerUser
			}
			if next == speaker.SpeakerModel {
				state.CurrentUserInput = []content.Part{content.TextPart("Please continue.")}
				state.TurnCount++
				continue
			}
			o.emit(events.TypeTurnComplete, nil)
			return Outcome{Kind: OutcomeComplete}, nil
		}

		state.PendingToolCalls = toolCalls
		exec, susp, err := o.scheduler.Schedule(ctx, o.deps.Cancel, toolCalls)
		if err != nil {
			o.emit(events.TypeError, map[string]any{"error": map[string]any{"message": err.Error()}})
			return Outcome{}, err
		}
		if susp != nil {
			return Outcome{Kind: OutcomeSuspended, Exec: exec, Suspension: susp}, nil
		}

		o.appendToolResults(state, exec)
		state.TurnCount++
	}

	return Outcome{Kind: OutcomeMaxTurns}, nil
}

// appendToolResults clears PendingToolCalls and appends one
// function-role turn carrying every terminal call's response parts, in
// request order (spec.md §4.I step 7).
func (o *Orchestrator) appendToolResults(state *ConversationState, exec *scheduler.ExecutionState) {
	var parts []content.Part
	for _, tc := range exec.ToolCalls {
		if tc.Response == nil {
			continue
		}
		parts = append(parts, tc.Response.ResponseParts...)
	}
	if len(parts) > 0 {
		state.History = append(state.History, content.Content{Role: content.RoleFunction, Parts: parts})
	}
	state.PendingToolCalls = nil
}

// generate issues the model call under the retry policy, fanning out
// thought/text/functionCall parts as they stream and aggregating them
// into the turn appended to history (spec.md §4.I steps 4-5).
func (o *Orchestrator) generate(ctx context.Context, state *ConversationState, curated []content.Content) (content.Content, []content.ToolCallRequest, *content.UsageMetadata, bool, error) {
	req := providers.Request{
		Model:   state.Model,
		History: curated,
	}
	if o.deps.SystemInstruction != nil {
		req.SystemInstruction = o.deps.SystemInstruction()
	}
	if o.deps.Registry != nil {
		req.Tools = providers.ToolDeclarationsFrom(o.deps.Registry)
	}

	result, err := retrypolicy.Do(ctx, o.deps.RetryConfig, state.Model, func(ctx context.Context, model string) (<-chan providers.StreamChunk, error) {
		req.Model = model
		return o.deps.Generator.GenerateContentStream(ctx, req)
	})
	if err != nil {
		return content.Content{}, nil, nil, false, fmt.Errorf("orchestrator: generate content stream: %w", err)
	}
	if result.Fallback && result.FallbackModel != "" {
		state.Model = result.FallbackModel
	}

	var parts []content.Part
	var toolCalls []content.ToolCallRequest
	var usage *content.UsageMetadata

	for chunk := range result.Value {
		if o.deps.Cancel != nil && o.deps.Cancel.IsSet() {
			break
		}
		if chunk.Err != nil {
			return content.Content{}, nil, nil, false, chunk.Err
		}
		for _, p := range chunk.Parts {
			switch p.Kind {
			case content.KindThought:
				o.emit(events.TypeThought, p.Thought)
				parts = append(parts, p)
			case content.KindText:
				if p.Text != nil {
					o.emit(events.TypeContent, *p.Text)
				}
				parts = append(parts, p)
			case content.KindFunctionCall:
				toolCalls = append(toolCalls, content.ToolCallRequest{
					CallID: p.FunctionCall.ID,
					Name:   p.FunctionCall.Name,
					Args:   p.FunctionCall.Args,
				})
				o.emit(events.TypeToolCallRequest, content.ToolCallRequest{
					CallID: p.FunctionCall.ID, Name: p.FunctionCall.Name, Args: p.FunctionCall.Args,
				})
				parts = append(parts, p)
			default:
				parts = append(parts, p)
			}
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}

	// Empty model turn handling (spec.md §4.I step 5): if generation
	// produced nothing and the previous turn was not a function turn,
	// append an empty model turn anyway so curation can drop it
	// cleanly rather than leaving a dangling user turn unanswered. If
	// the previous turn was a function turn, skip appending entirely —
	// an empty model turn there would just be a dangling no-op the
	// model never gets a chance to react to.
	if len(parts) == 0 {
		lastWasFunction := len(state.History) > 0 && state.History[len(state.History)-1].Role == content.RoleFunction
		if lastWasFunction {
			return content.Content{}, toolCalls, usage, true, nil
		}
	}

	return content.Content{Role: content.RoleModel, Parts: parts}, toolCalls, usage, false, nil
}

func (o *Orchestrator) emit(typ events.Type, value any) {
	if o.deps.Bus == nil {
		return
	}
	_ = o.deps.Bus.Emit(typ, value)
}
