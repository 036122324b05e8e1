package orchestrator

import (
	"context"
	"log/slog"
	"testing"

	"github.com/nexuscore/agentcore/internal/cancel"
	"github.com/nexuscore/agentcore/internal/events"
	"github.com/nexuscore/agentcore/internal/providers"
	"github.com/nexuscore/agentcore/internal/retrypolicy"
	"github.com/nexuscore/agentcore/internal/scheduler"
	"github.com/nexuscore/agentcore/internal/tools"
	"github.com/nexuscore/agentcore/pkg/content"
)

// scriptedGenerator replays one stream per call and a fixed classifier
// response for GenerateContent, always reporting a tiny token count so
// the compression engine never triggers in these tests.
type scriptedGenerator struct {
	streams      [][]providers.StreamChunk
	calls        int
	classify     string
	classifySeq  []string
	classifyCall int
}

func (g *scriptedGenerator) GenerateContentStream(ctx context.Context, req providers.Request) (<-chan providers.StreamChunk, error) {
	idx := g.calls
	g.calls++
	ch := make(chan providers.StreamChunk, len(g.streams[idx]))
	for _, c := range g.streams[idx] {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (g *scriptedGenerator) GenerateContent(ctx context.Context, req providers.Request) (providers.Response, error) {
	text := g.classify
	if g.classifyCall < len(g.classifySeq) {
		text = g.classifySeq[g.classifyCall]
	}
	g.classifyCall++
	return providers.Response{Parts: []content.Part{content.TextPart(text)}}, nil
}

func (g *scriptedGenerator) CountTokens(ctx context.Context, model string, history []content.Content) (int, error) {
	return 10, nil
}

func (g *scriptedGenerator) EmbedContent(ctx context.Context, model string, text string) ([]float32, error) {
	return nil, nil
}

func newOrchestrator(gen *scriptedGenerator, sched *scheduler.Scheduler) *Orchestrator {
	deps := Deps{
		Generator:   gen,
		Summarizer:  providers.AsSummarizer(gen),
		Bus:         events.New("s1", 16),
		Cancel:      cancel.New(),
		Logger:      slog.Default(),
		RetryConfig: retrypolicy.DefaultConfig(),
	}
	return New(deps, sched)
}

func TestRunTurn_MaxTurnsZeroCompletesImmediately(t *testing.T) {
	gen := &scriptedGenerator{}
	sched := scheduler.New(tools.NewRegistry(nil), nil, content.ApprovalYOLO)
	o := newOrchestrator(gen, sched)
	state := &ConversationState{Model: "m1", MaxTurns: 0}

	out, err := o.RunTurn(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeComplete {
		t.Fatalf("want complete, got %s", out.Kind)
	}
	if gen.calls != 0 {
		t.Fatalf("expected no model calls, got %d", gen.calls)
	}
}

func TestRunTurn_CompletesWhenNoToolCallsAndOracleSaysUser(t *testing.T) {
	gen := &scriptedGenerator{
		streams: [][]providers.StreamChunk{
			{{Parts: []content.Part{content.TextPart("all done")}}},
		},
		classify: `{"reasoning":"finished","next_speaker":"user"}`,
	}
	sched := scheduler.New(tools.NewRegistry(nil), nil, content.ApprovalYOLO)
	o := newOrchestrator(gen, sched)
	state := &ConversationState{
		Model:             "m1",
		MaxTurns:          10,
		CurrentUserInput:  []content.Part{content.TextPart("hello")},
	}

	out, err := o.RunTurn(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeComplete {
		t.Fatalf("want complete, got %s", out.Kind)
	}
	if len(state.History) != 2 {
		t.Fatalf("want 2 history turns (user+model), got %d", len(state.History))
	}
	if state.History[1].Role != content.RoleModel {
		t.Fatalf("want model turn appended, got %s", state.History[1].Role)
	}
}

func TestRunTurn_OracleModelContinuesWithPleaseContiue(t *testing.T) {
	gen := &scriptedGenerator{
		streams: [][]providers.StreamChunk{
			{{Parts: []content.Part{content.TextPart("let me check that")}}},
			{{Parts: []content.Part{content.TextPart("here is the result")}}},
		},
		classifySeq: []string{
			`{"reasoning":"still working","next_speaker":"model"}`,
			`{"reasoning":"done","next_speaker":"user"}`,
		},
	}
	sched := scheduler.New(tools.NewRegistry(nil), nil, content.ApprovalYOLO)
	o := newOrchestrator(gen, sched)
	state := &ConversationState{
		Model:            "m1",
		MaxTurns:         10,
		CurrentUserInput: []content.Part{content.TextPart("go")},
	}

	out, err := o.RunTurn(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeComplete {
		t.Fatalf("want complete, got %s", out.Kind)
	}
	if gen.calls != 2 {
		t.Fatalf("want 2 model calls, got %d", gen.calls)
	}
}

func TestRunTurn_CancellationBeforeFirstChunkYieldsCancelled(t *testing.T) {
	gen := &scriptedGenerator{
		streams: [][]providers.StreamChunk{
			{{Parts: []content.Part{content.TextPart("unreachable")}}},
		},
	}
	sched := scheduler.New(tools.NewRegistry(nil), nil, content.ApprovalYOLO)
	o := newOrchestrator(gen, sched)
	o.deps.Cancel.Set()
	state := &ConversationState{Model: "m1", MaxTurns: 10}

	out, err := o.RunTurn(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeCancelled {
		t.Fatalf("want cancelled, got %s", out.Kind)
	}
}

func TestRunTurn_ToolCallSuspendsThenResumeCompletes(t *testing.T) {
	ft := &confirmingTool{name: "write_file"}
	registry := tools.NewRegistry(nil)
	registry.Register(ft)
	sched := scheduler.New(registry, nil, content.ApprovalDefault)

	gen := &scriptedGenerator{
		streams: [][]providers.StreamChunk{
			{{Parts: []content.Part{content.FunctionCallPart("c1", "write_file", map[string]any{"path": "x"})}}},
			{{Parts: []content.Part{content.TextPart("wrote it")}}},
		},
		classify: `{"reasoning":"done","next_speaker":"user"}`,
	}
	o := newOrchestrator(gen, sched)
	state := &ConversationState{
		Model:            "m1",
		MaxTurns:         10,
		CurrentUserInput: []content.Part{content.TextPart("write the file")},
	}

	out, err := o.RunTurn(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeSuspended {
		t.Fatalf("want suspended, got %s", out.Kind)
	}

	out, err = o.ResumeTurn(context.Background(), state, out.Exec, []scheduler.ResumeDecision{
		{CallID: "c1", Outcome: scheduler.OutcomeApprove},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeComplete {
		t.Fatalf("want complete after resume, got %s", out.Kind)
	}

	var sawFunctionTurn bool
	for _, c := range state.History {
		if c.Role == content.RoleFunction {
			sawFunctionTurn = true
		}
	}
	if !sawFunctionTurn {
		t.Fatal("expected a function-role turn appended with tool results")
	}
}

// TestRunTurn_EmptyModelTurnAfterFunctionIsSkipped covers the
// append-if-not-after-function rule from spec.md §4.I step 5 / §9's
// Open Question: a model stream that yields no parts right after a
// function-role turn must not leave a dangling empty model turn in
// history.
func TestRunTurn_EmptyModelTurnAfterFunctionIsSkipped(t *testing.T) {
	ft := &confirmingTool{name: "write_file"}
	registry := tools.NewRegistry(nil)
	registry.Register(ft)
	sched := scheduler.New(registry, nil, content.ApprovalYOLO)

	gen := &scriptedGenerator{
		streams: [][]providers.StreamChunk{
			{{Parts: []content.Part{content.FunctionCallPart("c1", "write_file", map[string]any{"path": "x"})}}},
			{{Parts: nil}},
		},
		classify: `{"reasoning":"done","next_speaker":"user"}`,
	}
	o := newOrchestrator(gen, sched)
	state := &ConversationState{
		Model:            "m1",
		MaxTurns:         10,
		CurrentUserInput: []content.Part{content.TextPart("write the file")},
	}

	out, err := o.RunTurn(context.Background(), state)
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != OutcomeComplete {
		t.Fatalf("want complete, got %s", out.Kind)
	}

	for i, c := range state.History {
		if c.Role == content.RoleModel && len(c.Parts) == 0 {
			t.Fatalf("history[%d] is an empty model turn appended right after a function turn, want it skipped", i)
		}
	}
}

type confirmingTool struct {
	name string
}

func (f *confirmingTool) Name() string           { return f.name }
func (f *confirmingTool) Description() string    { return "fake" }
func (f *confirmingTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (f *confirmingTool) ValidateParams(map[string]any) string { return "" }
func (f *confirmingTool) GetDescription(map[string]any) string { return f.name }
func (f *confirmingTool) ShouldConfirm(map[string]any) *content.ConfirmationDetails {
	return &content.ConfirmationDetails{Kind: content.ConfirmEdit, ToolName: f.name}
}
func (f *confirmingTool) Execute(ctx context.Context, args map[string]any, sig *cancel.Signal, live tools.LiveOutputFunc) (*tools.Result, error) {
	return &tools.Result{DisplayResult: "wrote", LLMContent: []content.Part{content.TextPart("wrote")}}, nil
}
