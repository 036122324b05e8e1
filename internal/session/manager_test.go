package session

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/nexuscore/agentcore/internal/cancel"
	"github.com/nexuscore/agentcore/internal/providers"
	"github.com/nexuscore/agentcore/internal/resumetoken"
	"github.com/nexuscore/agentcore/internal/retrypolicy"
	"github.com/nexuscore/agentcore/internal/scheduler"
	"github.com/nexuscore/agentcore/internal/store/memstore"
	"github.com/nexuscore/agentcore/internal/tools"
	"github.com/nexuscore/agentcore/pkg/content"
)

type fakeGenerator struct {
	streams  [][]providers.StreamChunk
	calls    int
	classify string
}

func (g *fakeGenerator) GenerateContentStream(ctx context.Context, req providers.Request) (<-chan providers.StreamChunk, error) {
	idx := g.calls
	g.calls++
	ch := make(chan providers.StreamChunk, len(g.streams[idx]))
	for _, c := range g.streams[idx] {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (g *fakeGenerator) GenerateContent(ctx context.Context, req providers.Request) (providers.Response, error) {
	return providers.Response{Parts: []content.Part{content.TextPart(g.classify)}}, nil
}

func (g *fakeGenerator) CountTokens(ctx context.Context, model string, history []content.Content) (int, error) {
	return 10, nil
}

func (g *fakeGenerator) EmbedContent(ctx context.Context, model string, text string) ([]float32, error) {
	return nil, nil
}

func newTestManager(t *testing.T, gen *fakeGenerator, registry *tools.Registry, mode content.ApprovalMode) *Manager {
	t.Helper()
	tmpl := Template{
		Generator:    gen,
		Registry:     registry,
		Model:        "m1",
		MaxTurns:     10,
		ApprovalMode: mode,
		RetryConfig:  retrypolicy.DefaultConfig(),
	}
	return New(tmpl, memstore.New(), resumetoken.NewSigner("test-secret", time.Hour), "hash123", slog.Default())
}

func TestHandleUserInput_CompletesSimpleTurn(t *testing.T) {
	gen := &fakeGenerator{
		streams:  [][]providers.StreamChunk{{{Parts: []content.Part{content.TextPart("hi there")}}}},
		classify: `{"reasoning":"done","next_speaker":"user"}`,
	}
	m := newTestManager(t, gen, tools.NewRegistry(nil), content.ApprovalYOLO)

	if err := m.HandleUserInput(context.Background(), "s1", "hello"); err != nil {
		t.Fatal(err)
	}

	e := m.getOrCreate("s1")
	if len(e.state.History) != 2 {
		t.Fatalf("want 2 history turns, got %d", len(e.state.History))
	}
	if e.pending != nil {
		t.Fatal("no confirmation should be pending after a tool-free turn")
	}
}

func TestHandleCancel_StopsNextTurn(t *testing.T) {
	gen := &fakeGenerator{
		streams: [][]providers.StreamChunk{{{Parts: []content.Part{content.TextPart("unreachable")}}}},
	}
	m := newTestManager(t, gen, tools.NewRegistry(nil), content.ApprovalYOLO)

	m.HandleCancel("s1")
	if err := m.HandleUserInput(context.Background(), "s1", "hello"); err != nil {
		t.Fatal(err)
	}
	if gen.calls != 0 {
		t.Fatalf("want no model calls after cancellation, got %d", gen.calls)
	}
}

type confirmingTool struct{ name string }

func (f *confirmingTool) Name() string           { return f.name }
func (f *confirmingTool) Description() string    { return "fake" }
func (f *confirmingTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (f *confirmingTool) ValidateParams(map[string]any) string { return "" }
func (f *confirmingTool) GetDescription(map[string]any) string { return f.name }
func (f *confirmingTool) ShouldConfirm(map[string]any) *content.ConfirmationDetails {
	return &content.ConfirmationDetails{Kind: content.ConfirmEdit, ToolName: f.name}
}
func (f *confirmingTool) Execute(ctx context.Context, args map[string]any, sig *cancel.Signal, live tools.LiveOutputFunc) (*tools.Result, error) {
	return &tools.Result{DisplayResult: "done", LLMContent: []content.Part{content.TextPart("done")}}, nil
}

func TestHandleToolConfirmation_ApproveResumesAndCompletes(t *testing.T) {
	registry := tools.NewRegistry(nil)
	registry.Register(&confirmingTool{name: "write_file"})

	gen := &fakeGenerator{
		streams: [][]providers.StreamChunk{
			{{Parts: []content.Part{content.FunctionCallPart("c1", "write_file", map[string]any{"path": "x"})}}},
			{{Parts: []content.Part{content.TextPart("wrote it")}}},
		},
		classify: `{"reasoning":"done","next_speaker":"user"}`,
	}
	m := newTestManager(t, gen, registry, content.ApprovalDefault)

	if err := m.HandleUserInput(context.Background(), "s1", "write the file"); err != nil {
		t.Fatal(err)
	}

	e := m.getOrCreate("s1")
	if e.pending == nil {
		t.Fatal("want a pending confirmation after a confirm-required tool call")
	}

	tok, err := m.signer.Issue("s1", e.pending.turnID)
	if err != nil {
		t.Fatal(err)
	}

	err = m.HandleToolConfirmation(context.Background(), "s1", ConfirmationInput{
		ResumeToken: tok,
		CallID:      "c1",
		Outcome:     scheduler.OutcomeApprove,
	})
	if err != nil {
		t.Fatal(err)
	}

	e2 := m.getOrCreate("s1")
	if e2.pending != nil {
		t.Fatal("pending confirmation should be cleared after resume")
	}

	var sawFunctionTurn bool
	for _, c := range e2.state.History {
		if c.Role == content.RoleFunction {
			sawFunctionTurn = true
		}
	}
	if !sawFunctionTurn {
		t.Fatal("expected a function-role turn after resume")
	}
}

func TestHandleToolConfirmation_WrongTokenRejected(t *testing.T) {
	registry := tools.NewRegistry(nil)
	registry.Register(&confirmingTool{name: "write_file"})
	gen := &fakeGenerator{
		streams: [][]providers.StreamChunk{
			{{Parts: []content.Part{content.FunctionCallPart("c1", "write_file", map[string]any{"path": "x"})}}},
		},
	}
	m := newTestManager(t, gen, registry, content.ApprovalDefault)

	if err := m.HandleUserInput(context.Background(), "s1", "write the file"); err != nil {
		t.Fatal(err)
	}

	otherSigner := resumetoken.NewSigner("different-secret", time.Hour)
	badTok, err := otherSigner.Issue("s1", "whatever")
	if err != nil {
		t.Fatal(err)
	}

	err = m.HandleToolConfirmation(context.Background(), "s1", ConfirmationInput{
		ResumeToken: badTok,
		CallID:      "c1",
		Outcome:     scheduler.OutcomeApprove,
	})
	if err == nil {
		t.Fatal("want error for a resume token signed with a different secret")
	}
}
