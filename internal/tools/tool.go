// Package tools implements the Tool Registry (spec.md §4.E): the Tool
// capability interface, a thread-safe name->Tool registry with
// idempotent last-write-wins registration, and remote tool name
// sanitization for MCP-discovered tools.
//
// Grounded on the teacher's internal/agent/tool_registry.go (registry
// shape, size limits) and internal/tools/naming's sanitization regex,
// re-targeted at the spec's Tool capability signature.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/nexuscore/agentcore/internal/cancel"
	"github.com/nexuscore/agentcore/pkg/content"
)

// Result is what Execute returns: llmContent feeds back to the model,
// DisplayResult is for front-end presentation.
type Result struct {
	LLMContent    []content.Part
	DisplayResult string
}

// LiveOutputFunc streams intermediate output from a running tool,
// surfaced to the front-end as toolLog events.
type LiveOutputFunc func(chunk string)

// Tool is the external capability every registered tool implements.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	// ValidateParams returns a non-empty error string if args are invalid.
	ValidateParams(args map[string]any) string
	GetDescription(args map[string]any) string
	// ShouldConfirm returns confirmation details if the call requires
	// user approval, or nil if it can run unconfirmed.
	ShouldConfirm(args map[string]any) *content.ConfirmationDetails
	Execute(ctx context.Context, args map[string]any, sig *cancel.Signal, live LiveOutputFunc) (*Result, error)
}

// MaxToolNameLength bounds a sanitized remote tool name, per spec.md §4.E.
const MaxToolNameLength = 63

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeRemoteName reduces a remote (MCP) tool name to the
// [A-Za-z0-9_.-]{<=63} alphabet required by spec.md §4.E.
func SanitizeRemoteName(name string) string {
	clean := unsafeNameChars.ReplaceAllString(name, "_")
	if len(clean) > MaxToolNameLength {
		clean = clean[:MaxToolNameLength]
	}
	return clean
}

// Registry is a thread-safe name->Tool map. Registration is idempotent
// by name: a later Register with the same name overwrites the earlier
// one, and the overwrite is logged.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry. logger may be nil, in which
// case slog.Default() is used for overwrite warnings.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{tools: make(map[string]Tool), logger: logger}
}

// Register adds tool, overwriting and logging any prior tool of the
// same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; exists {
		r.logger.Warn("tool registry: overwriting existing tool registration", "name", tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// RegisterRemote registers a remote-discovered tool under its
// server-disambiguated, sanitized name. On a name collision with an
// already-registered tool, the server name is prefixed to disambiguate,
// per spec.md §4.E.
func (r *Registry) RegisterRemote(serverName string, tool Tool) string {
	name := SanitizeRemoteName(tool.Name())
	r.mu.Lock()
	if _, collide := r.tools[name]; collide {
		name = SanitizeRemoteName(fmt.Sprintf("%s__%s", serverName, tool.Name()))
	}
	r.mu.Unlock()
	r.Register(&renamedTool{Tool: tool, name: name})
	return name
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// All returns a snapshot of every registered tool.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

type renamedTool struct {
	Tool
	name string
}

func (t *renamedTool) Name() string { return t.name }
