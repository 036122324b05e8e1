// Package providers defines the ContentGenerator capability (spec.md §6):
// the external LLM transport boundary the orchestration core depends on.
// Concrete transports (Anthropic, OpenAI, Bedrock) implement this
// interface; the core never imports a vendor SDK directly.
//
// Grounded on the teacher's internal/agent.LLMProvider /
// CompletionRequest / CompletionChunk shape (internal/agent/provider_types.go),
// re-targeted from the teacher's flat CompletionMessage history onto the
// spec's content.Content/Part tagged union so a single request carries
// text, thought, functionCall, functionResponse, and inlineData turns
// without a lossy translation layer in the orchestrator itself.
package providers

import (
	"context"

	"github.com/nexuscore/agentcore/internal/providers/toolconv"
	"github.com/nexuscore/agentcore/internal/tools"
	"github.com/nexuscore/agentcore/pkg/content"
)

// Request is one generateContent/generateContentStream call.
type Request struct {
	Model             string
	SystemInstruction string
	Tools             []ToolDeclaration
	History           []content.Content
}

// ToolDeclaration is the provider-agnostic shape of a tool the model may
// call, derived from a registered tools.Tool's Schema().
type ToolDeclaration struct {
	Name        string
	Description string
	Schema      map[string]any
}

// StreamChunk is one piece of a generateContentStream response. Exactly
// the union described in spec.md §3: a chunk carries zero or more parts
// plus, on the final chunk, usage metadata.
type StreamChunk struct {
	Parts []content.Part
	// Usage is set on the last chunk of a stream.
	Usage *content.UsageMetadata
	Err   error
}

// Response is the non-streaming generateContent result.
type Response struct {
	Parts []content.Part
	Usage content.UsageMetadata
}

// ContentGenerator is the external LLM transport capability (spec.md §6).
// Implementations translate Request/StreamChunk to and from a specific
// provider's wire format; the core depends only on this interface.
type ContentGenerator interface {
	// GenerateContent performs a single non-streaming completion.
	GenerateContent(ctx context.Context, req Request) (Response, error)

	// GenerateContentStream performs a streaming completion. The
	// returned channel is closed when the stream ends; a chunk with a
	// non-nil Err is the final item sent.
	GenerateContentStream(ctx context.Context, req Request) (<-chan StreamChunk, error)

	// CountTokens counts the tokens a history would consume, used by
	// the Compression Engine's budget check.
	CountTokens(ctx context.Context, model string, history []content.Content) (int, error)

	// EmbedContent produces an embedding vector for text, out of scope
	// for the core's turn loop but part of the external capability
	// per spec.md §6.
	EmbedContent(ctx context.Context, model string, text string) ([]float32, error)
}

// Summarizer is the minimal capability the Compression Engine needs from
// a ContentGenerator: a single text-in, text-out call. Narrowing the
// dependency to this interface (rather than passing the whole
// ContentGenerator, or a whole client object) breaks the "cyclic
// references between a client object and the content generator" pattern
// flagged in spec.md §9.
type Summarizer interface {
	Summarize(ctx context.Context, model string, prompt string, history []content.Content) (string, error)
}

// summarizerFunc adapts a ContentGenerator to Summarizer by issuing a
// single-turn generateContent call with the compression prompt appended
// as the final user turn, then concatenating any text parts returned.
type summarizerFunc struct {
	gen ContentGenerator
}

// AsSummarizer narrows a ContentGenerator to the Summarizer capability
// the Compression Engine depends on.
func AsSummarizer(gen ContentGenerator) Summarizer {
	return summarizerFunc{gen: gen}
}

func (s summarizerFunc) Summarize(ctx context.Context, model string, prompt string, history []content.Content) (string, error) {
	req := Request{
		Model:   model,
		History: append(append([]content.Content{}, history...), content.Content{
			Role:  content.RoleUser,
			Parts: []content.Part{content.TextPart(prompt)},
		}),
	}
	resp, err := s.gen.GenerateContent(ctx, req)
	if err != nil {
		return "", err
	}
	var out string
	for _, p := range resp.Parts {
		if p.Kind == content.KindText && p.Text != nil {
			out += *p.Text
		}
	}
	return out, nil
}

// ToolDeclarationsFrom converts every tool in registry into the
// provider-agnostic ToolDeclaration shape sent with each generate
// request, per spec.md §4.I.
func ToolDeclarationsFrom(registry *tools.Registry) []ToolDeclaration {
	if registry == nil {
		return nil
	}
	all := registry.All()
	out := make([]ToolDeclaration, 0, len(all))
	for _, t := range all {
		out = append(out, ToolDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.Schema(),
		})
	}
	return out
}

// toolDeclarations narrows a Request's tool list to toolconv's
// vendor-neutral Declaration shape, the one conversion point every
// concrete ContentGenerator funnels through before calling toolconv.
func toolDeclarations(decls []ToolDeclaration) []toolconv.Declaration {
	out := make([]toolconv.Declaration, 0, len(decls))
	for _, d := range decls {
		out = append(out, toolconv.Declaration{Name: d.Name, Description: d.Description, Schema: d.Schema})
	}
	return out
}
