package toolconv

import "testing"

func TestToAnthropicToolsSetsNameAndDescription(t *testing.T) {
	decls := []Declaration{
		{Name: "search", Description: "searches things", Schema: map[string]any{"type": "object", "properties": map[string]any{}}},
	}
	tools, err := ToAnthropicTools(decls)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tools) != 1 || tools[0].OfTool == nil {
		t.Fatalf("expected one tool definition, got %+v", tools)
	}
}

func TestToOpenAIToolsPreservesSchema(t *testing.T) {
	decls := []Declaration{
		{Name: "search", Description: "searches things", Schema: map[string]any{"type": "object"}},
	}
	tools := ToOpenAITools(decls)
	if len(tools) != 1 || tools[0].Function.Name != "search" {
		t.Fatalf("expected one function tool named search, got %+v", tools)
	}
}

func TestToBedrockToolConfigDefaultsEmptySchema(t *testing.T) {
	decls := []Declaration{{Name: "search", Description: "searches things"}}
	cfg := ToBedrockToolConfig(decls)
	if len(cfg.Tools) != 1 {
		t.Fatalf("expected one tool, got %d", len(cfg.Tools))
	}
}
