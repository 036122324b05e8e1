package models

import "testing"

func TestCatalog_Get(t *testing.T) {
	c := NewCatalog()

	model, ok := c.Get("claude-opus-4")
	if !ok {
		t.Fatal("expected to find claude-opus-4")
	}
	if model.ContextWindow != 200000 {
		t.Errorf("ContextWindow = %d, want 200000", model.ContextWindow)
	}

	model, ok = c.Get("sonnet")
	if !ok {
		t.Fatal("expected to find sonnet alias")
	}
	if model.ID != "claude-sonnet-4-5" {
		t.Errorf("ID = %s, want claude-sonnet-4-5", model.ID)
	}

	_, ok = c.Get("unknown-model")
	if ok {
		t.Error("should not find unknown-model")
	}
}

// TestCatalog_DefaultSessionModelResolves guards the wiring between
// cmd/agentcore/wiring.go's fallback default model and this table: a
// typo here silently starves the Compression Engine of a real context
// window and every turn budgets against DefaultTokenLimit instead.
func TestCatalog_DefaultSessionModelResolves(t *testing.T) {
	c := NewCatalog()
	model, ok := c.Get("claude-sonnet-4-5")
	if !ok {
		t.Fatal("expected the default session model to resolve in the built-in table")
	}
	if model.ContextWindow <= 0 {
		t.Errorf("ContextWindow = %d, want a positive window", model.ContextWindow)
	}
}

func TestCatalog_List(t *testing.T) {
	c := NewCatalog()

	all := c.List(nil)
	if len(all) == 0 {
		t.Error("expected some models")
	}

	anthropic := c.ListByProvider(ProviderAnthropic)
	if len(anthropic) == 0 {
		t.Error("expected at least one anthropic model")
	}
	for _, m := range anthropic {
		if m.Provider != ProviderAnthropic {
			t.Errorf("expected anthropic provider, got %s", m.Provider)
		}
	}

	longContext := c.List(&Filter{MinContextWindow: 1_000_000})
	if len(longContext) == 0 {
		t.Error("expected at least one long-context model (gemini)")
	}
	for _, m := range longContext {
		if m.ContextWindow < 1_000_000 {
			t.Errorf("model %s has context window %d below the filter floor", m.ID, m.ContextWindow)
		}
	}
}

func TestCatalog_ListExcludesDeprecatedByDefault(t *testing.T) {
	c := NewCatalog()

	all := c.List(&Filter{Providers: []Provider{ProviderAnthropic}})
	for _, m := range all {
		if m.Deprecated {
			t.Errorf("deprecated model %s should be excluded without IncludeDeprecated", m.ID)
		}
	}

	withDeprecated := c.List(&Filter{Providers: []Provider{ProviderAnthropic}, IncludeDeprecated: true})
	var sawDeprecated bool
	for _, m := range withDeprecated {
		if m.Deprecated {
			sawDeprecated = true
		}
	}
	if !sawDeprecated {
		t.Error("expected claude-3-5-sonnet-latest to appear with IncludeDeprecated set")
	}
}

func TestCatalog_RegisterOverwritesByID(t *testing.T) {
	c := NewCatalog()

	c.Register(&Model{ID: "claude-opus-4", ContextWindow: 999})
	model, ok := c.Get("claude-opus-4")
	if !ok || model.ContextWindow != 999 {
		t.Fatalf("expected Register to overwrite the built-in entry, got %+v", model)
	}
}

// TestCatalog_RegisterDiscoveredModel mirrors how
// internal/providers/catalog.RegisterDiscovered extends the table at
// runtime with a Bedrock-discovered model that has no built-in entry.
func TestCatalog_RegisterDiscoveredModel(t *testing.T) {
	c := NewCatalog()

	c.Register(&Model{ID: "anthropic.claude-sonnet-4-20250514-v1:0", Provider: ProviderBedrock, ContextWindow: 200000})

	model, ok := c.Get("anthropic.claude-sonnet-4-20250514-v1:0")
	if !ok {
		t.Fatal("expected the discovered model to be retrievable")
	}
	if model.ContextWindow != 200000 {
		t.Errorf("ContextWindow = %d, want 200000", model.ContextWindow)
	}
}

func TestFilter_Matches(t *testing.T) {
	m := &Model{ID: "x", Provider: ProviderOpenAI, ContextWindow: 128000}

	if !(&Filter{}).Matches(m) {
		t.Error("empty filter should match everything")
	}
	if (&Filter{Providers: []Provider{ProviderAnthropic}}).Matches(m) {
		t.Error("provider filter should exclude a non-matching provider")
	}
	if (&Filter{MinContextWindow: 200000}).Matches(m) {
		t.Error("context window floor should exclude a smaller window")
	}
	if !(*Filter)(nil).Matches(m) {
		t.Error("a nil filter should match everything")
	}
}
