package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/nexuscore/agentcore/internal/cancel"
	"github.com/nexuscore/agentcore/internal/events"
	"github.com/nexuscore/agentcore/internal/tools"
	"github.com/nexuscore/agentcore/pkg/content"
)

type fakeTool struct {
	name       string
	confirm    *content.ConfirmationDetails
	validateErr string
	execErr    error
	result     *tools.Result
	execCount  int
}

func (f *fakeTool) Name() string                      { return f.name }
func (f *fakeTool) Description() string               { return "fake" }
func (f *fakeTool) Schema() map[string]any            { return map[string]any{"type": "object"} }
func (f *fakeTool) ValidateParams(map[string]any) string { return f.validateErr }
func (f *fakeTool) GetDescription(map[string]any) string { return f.name }
func (f *fakeTool) ShouldConfirm(map[string]any) *content.ConfirmationDetails {
	return f.confirm
}
func (f *fakeTool) Execute(ctx context.Context, args map[string]any, sig *cancel.Signal, live tools.LiveOutputFunc) (*tools.Result, error) {
	f.execCount++
	if live != nil {
		live("working")
	}
	if f.execErr != nil {
		return nil, f.execErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &tools.Result{DisplayResult: "ok"}, nil
}

func newRegistry(ts ...tools.Tool) *tools.Registry {
	r := tools.NewRegistry(slog.Default())
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

func TestSchedule_MissingTool(t *testing.T) {
	s := New(newRegistry(), nil, content.ApprovalYOLO)
	state, susp, err := s.Schedule(context.Background(), nil, []content.ToolCallRequest{
		{CallID: "c1", Name: "nope"},
	})
	if err != nil || susp != nil {
		t.Fatalf("unexpected suspension/error: %v %v", susp, err)
	}
	if state.ToolCalls[0].State != StateError {
		t.Fatalf("want error state, got %s", state.ToolCalls[0].State)
	}
}

func TestSchedule_ValidationFailure(t *testing.T) {
	tool := &fakeTool{name: "bad", validateErr: "missing field x"}
	s := New(newRegistry(tool), nil, content.ApprovalYOLO)
	state, _, err := s.Schedule(context.Background(), nil, []content.ToolCallRequest{{CallID: "c1", Name: "bad"}})
	if err != nil {
		t.Fatal(err)
	}
	if state.ToolCalls[0].State != StateError {
		t.Fatalf("want error, got %s", state.ToolCalls[0].State)
	}
	if state.ToolCalls[0].Response.Error != "missing field x" {
		t.Fatalf("unexpected response: %+v", state.ToolCalls[0].Response)
	}
}

func TestSchedule_YoloSkipsConfirmation(t *testing.T) {
	tool := &fakeTool{name: "ls", confirm: &content.ConfirmationDetails{Kind: content.ConfirmExec}}
	s := New(newRegistry(tool), nil, content.ApprovalYOLO)
	state, susp, err := s.Schedule(context.Background(), cancel.New(), []content.ToolCallRequest{{CallID: "c1", Name: "ls"}})
	if err != nil || susp != nil {
		t.Fatalf("yolo should never suspend: %v %v", susp, err)
	}
	if state.ToolCalls[0].State != StateSuccess {
		t.Fatalf("want success, got %s", state.ToolCalls[0].State)
	}
	if tool.execCount != 1 {
		t.Fatalf("want 1 execution, got %d", tool.execCount)
	}
}

func TestSchedule_SuspendsAndResumesApprove(t *testing.T) {
	tool := &fakeTool{name: "edit", confirm: &content.ConfirmationDetails{Kind: content.ConfirmEdit}}
	bus := events.New("sess-1", 8)
	s := New(newRegistry(tool), bus, content.ApprovalDefault)

	state, susp, err := s.Schedule(context.Background(), cancel.New(), []content.ToolCallRequest{{CallID: "c1", Name: "edit", Args: map[string]any{}}})
	if err != nil {
		t.Fatal(err)
	}
	if susp == nil {
		t.Fatal("expected suspension")
	}
	if len(susp.Awaiting) != 1 || susp.Awaiting[0] != "c1" {
		t.Fatalf("unexpected awaiting set: %v", susp.Awaiting)
	}
	ev := <-bus.Primary()
	if ev.Type != events.TypeToolCallConfirmation {
		t.Fatalf("want confirmation event, got %s", ev.Type)
	}

	final, err := s.Resume(context.Background(), cancel.New(), state, []ResumeDecision{{CallID: "c1", Outcome: OutcomeApprove}})
	if err != nil {
		t.Fatal(err)
	}
	if final.ToolCalls[0].State != StateSuccess {
		t.Fatalf("want success after approve, got %s", final.ToolCalls[0].State)
	}
	respEv := <-bus.Primary()
	if respEv.Type != events.TypeToolCallResponse {
		t.Fatalf("want response event, got %s", respEv.Type)
	}
}

func TestSchedule_SuspendCancelProducesSyntheticResponse(t *testing.T) {
	tool := &fakeTool{name: "rm", confirm: &content.ConfirmationDetails{Kind: content.ConfirmExec}}
	s := New(newRegistry(tool), nil, content.ApprovalDefault)

	state, susp, _ := s.Schedule(context.Background(), cancel.New(), []content.ToolCallRequest{{CallID: "c1", Name: "rm"}})
	if susp == nil {
		t.Fatal("expected suspension")
	}
	final, err := s.Resume(context.Background(), cancel.New(), state, []ResumeDecision{{CallID: "c1", Outcome: OutcomeCancel}})
	if err != nil {
		t.Fatal(err)
	}
	if final.ToolCalls[0].State != StateCancelled {
		t.Fatalf("want cancelled, got %s", final.ToolCalls[0].State)
	}
	if final.ToolCalls[0].Response.ResponseParts[0].FunctionResponse.Response["error"] != "User cancelled tool call." {
		t.Fatalf("unexpected synthetic response: %+v", final.ToolCalls[0].Response)
	}
	if tool.execCount != 0 {
		t.Fatalf("cancelled call must never execute, got %d executions", tool.execCount)
	}
}

func TestSchedule_ModifyWithEditorReplacesArgsThenApproves(t *testing.T) {
	tool := &fakeTool{name: "edit", confirm: &content.ConfirmationDetails{Kind: content.ConfirmEdit}}
	s := New(newRegistry(tool), nil, content.ApprovalDefault)

	state, susp, _ := s.Schedule(context.Background(), cancel.New(), []content.ToolCallRequest{{CallID: "c1", Name: "edit", Args: map[string]any{"path": "a"}}})
	if susp == nil {
		t.Fatal("expected suspension")
	}
	final, err := s.Resume(context.Background(), cancel.New(), state, []ResumeDecision{
		{CallID: "c1", Outcome: OutcomeModifyWithEditor, ModifiedArgs: map[string]any{"path": "b"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if final.ToolCalls[0].Request.Args["path"] != "b" {
		t.Fatalf("expected modified args to replace original, got %v", final.ToolCalls[0].Request.Args)
	}
	if final.ToolCalls[0].State != StateSuccess {
		t.Fatalf("want success, got %s", final.ToolCalls[0].State)
	}
}

func TestSchedule_ExecutionErrorIsRecoverable(t *testing.T) {
	tool := &fakeTool{name: "flaky", execErr: errors.New("boom")}
	s := New(newRegistry(tool), nil, content.ApprovalYOLO)
	state, _, err := s.Schedule(context.Background(), cancel.New(), []content.ToolCallRequest{{CallID: "c1", Name: "flaky"}})
	if err != nil {
		t.Fatal(err)
	}
	if state.ToolCalls[0].State != StateError {
		t.Fatalf("want error, got %s", state.ToolCalls[0].State)
	}
	if state.ToolCalls[0].Response.Error != "boom" {
		t.Fatalf("unexpected response: %+v", state.ToolCalls[0].Response)
	}
}

func TestResume_NoOpOnAllTerminal(t *testing.T) {
	tool := &fakeTool{name: "ls"}
	s := New(newRegistry(tool), nil, content.ApprovalYOLO)
	state, _, _ := s.Schedule(context.Background(), cancel.New(), []content.ToolCallRequest{{CallID: "c1", Name: "ls"}})
	if !state.AllTerminal() {
		t.Fatal("expected all terminal after yolo schedule")
	}
	before := tool.execCount
	again, err := s.Resume(context.Background(), cancel.New(), state, []ResumeDecision{{CallID: "c1", Outcome: OutcomeApprove}})
	if err != nil {
		t.Fatal(err)
	}
	if tool.execCount != before {
		t.Fatalf("resume on terminal state must not re-execute, before=%d after=%d", before, tool.execCount)
	}
	if again != state {
		t.Fatal("expected the same state to be returned unchanged")
	}
}

func TestTrustSet_AlwaysApproveServerShortCircuitsFutureConfirm(t *testing.T) {
	tool := &fakeTool{name: "srv__tool", confirm: &content.ConfirmationDetails{Kind: content.ConfirmMCP, ServerName: "srv"}}
	s := New(newRegistry(tool), nil, content.ApprovalDefault)

	state, susp, _ := s.Schedule(context.Background(), cancel.New(), []content.ToolCallRequest{{CallID: "c1", Name: "srv__tool"}})
	if susp == nil {
		t.Fatal("expected suspension")
	}
	if _, err := s.Resume(context.Background(), cancel.New(), state, []ResumeDecision{
		{CallID: "c1", Outcome: OutcomeApprove, AlwaysApproveServer: "srv"},
	}); err != nil {
		t.Fatal(err)
	}

	// Second call to the same server's tool should skip confirmation entirely.
	state2, susp2, err := s.Schedule(context.Background(), cancel.New(), []content.ToolCallRequest{{CallID: "c2", Name: "srv__tool"}})
	if err != nil {
		t.Fatal(err)
	}
	if susp2 != nil {
		t.Fatalf("expected trust set to short-circuit confirmation, got suspension %v", susp2)
	}
	if state2.ToolCalls[0].State != StateSuccess {
		t.Fatalf("want success, got %s", state2.ToolCalls[0].State)
	}
}
