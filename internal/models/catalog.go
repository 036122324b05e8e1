// Package models is the backing store for the orchestration core's
// token-limit table (spec.md §6): a registry of known models keyed by
// id, carrying each model's context window so internal/providers/
// catalog can resolve a model id to the window the Compression Engine
// budgets against (spec.md §4.H).
//
// Grounded on the teacher's internal/models/catalog.go built-in model
// table, trimmed to the fields the Compression Engine actually reads
// (context window, max output tokens) and re-seeded with the models
// this module's providers and session defaults (cmd/agentcore/
// wiring.go's "claude-sonnet-4-5", bedrock discovery's
// "claude-sonnet-4"/"claude-opus-4" families) actually resolve. The
// teacher's per-model pricing and capability-flag fields (vision,
// audio, fine-tuning, ...) tracked a product catalog no component here
// consults and are dropped rather than carried as dead metadata.
package models

import (
	"sort"
	"strings"
	"sync"
)

// Provider identifies an LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
	ProviderBedrock   Provider = "bedrock"
)

// Model is one entry in the token-limit table: just enough to resolve
// a model id to the context window and output ceiling the Compression
// Engine and provider request builders need.
type Model struct {
	// ID is the model identifier used in API calls.
	ID string `json:"id"`

	// Provider is the LLM provider.
	Provider Provider `json:"provider"`

	// ContextWindow is the maximum context size in tokens, the value
	// internal/providers/catalog.TokenLimit resolves against.
	ContextWindow int `json:"context_window"`

	// MaxOutputTokens is the maximum output size.
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`

	// Aliases are alternative names that resolve to this model.
	Aliases []string `json:"aliases,omitempty"`

	// Deprecated indicates if this model is deprecated.
	Deprecated bool `json:"deprecated,omitempty"`

	// ReplacedBy is the recommended replacement for deprecated models.
	ReplacedBy string `json:"replaced_by,omitempty"`
}

// Catalog manages a collection of models, keyed by id with alias
// resolution.
type Catalog struct {
	mu      sync.RWMutex
	models  map[string]*Model // id -> model
	aliases map[string]string // alias -> id
}

// NewCatalog creates a catalog pre-seeded with the built-in models.
func NewCatalog() *Catalog {
	c := &Catalog{
		models:  make(map[string]*Model),
		aliases: make(map[string]string),
	}
	c.registerBuiltinModels()
	return c
}

// Register adds or overwrites a model in the catalog, used both for
// the built-in table and for runtime-discovered models (e.g.
// providers/catalog.RegisterDiscovered).
func (c *Catalog) Register(model *Model) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.models[model.ID] = model
	for _, alias := range model.Aliases {
		c.aliases[strings.ToLower(alias)] = model.ID
	}
}

// Get retrieves a model by ID or alias.
func (c *Catalog) Get(id string) (*Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if model, ok := c.models[id]; ok {
		return model, true
	}
	if realID, ok := c.aliases[strings.ToLower(id)]; ok {
		return c.models[realID], true
	}
	return nil, false
}

// List returns all models, optionally filtered, sorted by provider
// then id.
func (c *Catalog) List(filter *Filter) []*Model {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []*Model
	for _, model := range c.models {
		if filter == nil || filter.Matches(model) {
			result = append(result, model)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Provider != result[j].Provider {
			return result[i].Provider < result[j].Provider
		}
		return result[i].ID < result[j].ID
	})

	return result
}

// ListByProvider returns all models for a provider.
func (c *Catalog) ListByProvider(provider Provider) []*Model {
	return c.List(&Filter{Providers: []Provider{provider}})
}

// Filter narrows List to a subset of models.
type Filter struct {
	// Providers to include.
	Providers []Provider

	// MinContextWindow is the minimum context window to include.
	MinContextWindow int

	// IncludeDeprecated includes deprecated models when true.
	IncludeDeprecated bool
}

// Matches checks if a model satisfies the filter.
func (f *Filter) Matches(m *Model) bool {
	if f == nil {
		return true
	}

	if len(f.Providers) > 0 {
		found := false
		for _, p := range f.Providers {
			if p == m.Provider {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.MinContextWindow > 0 && m.ContextWindow < f.MinContextWindow {
		return false
	}

	if !f.IncludeDeprecated && m.Deprecated {
		return false
	}

	return true
}

func (c *Catalog) registerBuiltinModels() {
	c.Register(&Model{
		ID:              "claude-opus-4",
		Provider:        ProviderAnthropic,
		ContextWindow:   200000,
		MaxOutputTokens: 32000,
		Aliases:         []string{"claude-opus-4-5-20251101", "opus"},
	})

	c.Register(&Model{
		ID:              "claude-sonnet-4-5",
		Provider:        ProviderAnthropic,
		ContextWindow:   200000,
		MaxOutputTokens: 64000,
		Aliases:         []string{"claude-sonnet-4-20250514", "sonnet"},
	})

	c.Register(&Model{
		ID:              "claude-3-5-sonnet-latest",
		Provider:        ProviderAnthropic,
		ContextWindow:   200000,
		MaxOutputTokens: 8192,
		Aliases:         []string{"claude-3-5-sonnet"},
		Deprecated:      true,
		ReplacedBy:      "claude-sonnet-4-5",
	})

	c.Register(&Model{
		ID:              "claude-3-5-haiku-latest",
		Provider:        ProviderAnthropic,
		ContextWindow:   200000,
		MaxOutputTokens: 8192,
		Aliases:         []string{"claude-3-5-haiku", "haiku"},
	})

	c.Register(&Model{
		ID:              "gpt-4o",
		Provider:        ProviderOpenAI,
		ContextWindow:   128000,
		MaxOutputTokens: 16384,
		Aliases:         []string{"gpt-4o-2024-11-20"},
	})

	c.Register(&Model{
		ID:              "gpt-4o-mini",
		Provider:        ProviderOpenAI,
		ContextWindow:   128000,
		MaxOutputTokens: 16384,
		Aliases:         []string{"gpt-4o-mini-2024-07-18"},
	})

	c.Register(&Model{
		ID:              "o1",
		Provider:        ProviderOpenAI,
		ContextWindow:   200000,
		MaxOutputTokens: 100000,
		Aliases:         []string{"o1-2024-12-17"},
	})

	c.Register(&Model{
		ID:              "o3-mini",
		Provider:        ProviderOpenAI,
		ContextWindow:   200000,
		MaxOutputTokens: 100000,
		Aliases:         []string{"o3-mini-2025-01-31"},
	})

	c.Register(&Model{
		ID:              "gemini-2.0-flash-exp",
		Provider:        ProviderGoogle,
		ContextWindow:   1048576,
		MaxOutputTokens: 8192,
		Aliases:         []string{"gemini-2.0-flash"},
	})

	c.Register(&Model{
		ID:              "gemini-1.5-pro-latest",
		Provider:        ProviderGoogle,
		ContextWindow:   2097152,
		MaxOutputTokens: 8192,
		Aliases:         []string{"gemini-1.5-pro"},
	})
}

// DefaultCatalog is the process-wide model catalog that
// internal/providers/catalog.TokenLimit and RegisterDiscovered read
// and write.
var DefaultCatalog = NewCatalog()

// Get retrieves a model from the default catalog.
func Get(id string) (*Model, bool) {
	return DefaultCatalog.Get(id)
}

// List returns models from the default catalog.
func List(filter *Filter) []*Model {
	return DefaultCatalog.List(filter)
}

// ListByProvider returns models from the default catalog for a provider.
func ListByProvider(provider Provider) []*Model {
	return DefaultCatalog.ListByProvider(provider)
}
