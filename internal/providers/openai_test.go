package providers

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nexuscore/agentcore/pkg/content"
)

func TestOpenAIMessagesSystemPlusTurns(t *testing.T) {
	history := []content.Content{
		{Role: content.RoleUser, Parts: []content.Part{content.TextPart("hi")}},
		{Role: content.RoleModel, Parts: []content.Part{content.TextPart("hello")}},
	}
	messages, err := openaiMessages(history, "be nice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected system + 2 turns, got %d", len(messages))
	}
	if messages[0].Role != openai.ChatMessageRoleSystem {
		t.Fatalf("expected first message to be system, got %s", messages[0].Role)
	}
}

func TestOpenAIMessagesFunctionResponseBecomesToolMessage(t *testing.T) {
	history := []content.Content{
		{Role: content.RoleFunction, Parts: []content.Part{content.FunctionResponsePartOf("call_1", "lookup", map[string]any{"ok": true})}},
	}
	messages, err := openaiMessages(history, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 1 || messages[0].Role != openai.ChatMessageRoleTool {
		t.Fatalf("expected one tool message, got %+v", messages)
	}
	if messages[0].ToolCallID != "call_1" {
		t.Fatalf("expected ToolCallID call_1, got %q", messages[0].ToolCallID)
	}
}

func TestOpenAIMessagesFunctionCallBecomesToolCall(t *testing.T) {
	history := []content.Content{
		{Role: content.RoleModel, Parts: []content.Part{content.FunctionCallPart("call_1", "lookup", map[string]any{"q": "x"})}},
	}
	messages, err := openaiMessages(history, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(messages) != 1 || len(messages[0].ToolCalls) != 1 {
		t.Fatalf("expected one assistant message with one tool call, got %+v", messages)
	}
	if messages[0].ToolCalls[0].Function.Name != "lookup" {
		t.Fatalf("expected tool call name lookup, got %q", messages[0].ToolCalls[0].Function.Name)
	}
}

func TestNewOpenAIGeneratorRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIGenerator(OpenAIConfig{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}
