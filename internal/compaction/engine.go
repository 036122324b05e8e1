// This file adds the spec.md §4.H Compression Engine proper: a
// token-budget check against a live ContentGenerator.CountTokens call
// and a single-shot summary replacement, distinct from the rest of this
// package's character-budget chunked-summarization helpers (which remain
// available for providers.Summarizer implementations that want to
// pre-chunk an oversized history before it ever reaches the engine).
//
// Grounded on internal/agent/context/packer.go's diagnostics-driven
// budget check and internal/agent/compaction.go's state machine,
// re-targeted at the spec's token-count budget and unconditional
// single-shot summary replacement rather than a flush-confirmation
// dialogue.
package compaction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nexuscore/agentcore/internal/providers"
	"github.com/nexuscore/agentcore/internal/providers/catalog"
	"github.com/nexuscore/agentcore/pkg/content"
)

// CompressionPrompt is the fixed user-authored text used to request a
// summary, per spec.md §6.
const CompressionPrompt = `You are about to lose access to the conversation history above this message.
Produce a dense, faithful summary of everything said and done so far —
every user request, decision, fact established, and in-flight task —
sufficient to continue the conversation with no loss of context. Do not
add commentary about this instruction; respond with only the summary.`

// Result reports a completed compression for the chatCompressed event
// (spec.md §4.A, §6).
type Result struct {
	OriginalTokenCount int
	NewTokenCount      int
}

// Engine runs the top-of-turn token-budget check and, when triggered,
// the summarization request and history replacement.
type Engine struct {
	gen        providers.ContentGenerator
	summarizer providers.Summarizer
	logger     *slog.Logger
}

// NewEngine creates an Engine. summarizer, not gen, is what actually
// issues the summarization call — narrowing the dependency to the
// Summarizer capability (spec.md §9's fix for the client/generator
// cyclic reference pattern) while gen is still used for CountTokens.
func NewEngine(gen providers.ContentGenerator, summarizer providers.Summarizer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{gen: gen, summarizer: summarizer, logger: logger}
}

// Maybe runs the budget check for model over curated history and, if
// the token count is at or above catalog.CompressionThreshold of the
// model's limit (or force is true), replaces history with a summary
// turn pair. It returns (nil, nil) when compression was not needed or
// was abandoned (empty summary or a summarization error never corrupts
// history — per spec.md §4.H, the caller keeps the original history
// unchanged on any failure path).
//
// preamble, when non-empty, is prepended to the replacement history as
// the session's environment preamble turns (spec.md §4.H "prepended by
// the session's environment preamble").
func (e *Engine) Maybe(ctx context.Context, model string, curated []content.Content, preamble []content.Content, force bool) (*Result, []content.Content, error) {
	if e.gen == nil {
		return nil, curated, nil
	}

	before, err := e.gen.CountTokens(ctx, model, curated)
	if err != nil {
		return nil, curated, fmt.Errorf("compaction: count tokens: %w", err)
	}

	limit := catalog.TokenLimit(model)
	threshold := int(float64(limit) * catalog.CompressionThreshold)
	if !force && before < threshold {
		return nil, curated, nil
	}

	if e.summarizer == nil {
		e.logger.Warn("compaction: no summarizer configured, skipping compression")
		return nil, curated, nil
	}

	summary, err := e.summarizer.Summarize(ctx, model, CompressionPrompt, curated)
	if err != nil {
		e.logger.Warn("compaction: summarization call failed, history left unchanged", "error", err)
		return nil, curated, nil
	}
	if summary == "" {
		e.logger.Warn("compaction: summarization returned an empty summary, history left unchanged")
		return nil, curated, nil
	}

	replaced := make([]content.Content, 0, len(preamble)+2)
	replaced = append(replaced, preamble...)
	replaced = append(replaced,
		content.Content{Role: content.RoleUser, Parts: []content.Part{content.TextPart(summary)}},
		content.Content{Role: content.RoleModel, Parts: []content.Part{content.TextPart("Acknowledged.")}},
	)

	after, err := e.gen.CountTokens(ctx, model, replaced)
	if err != nil {
		return nil, curated, fmt.Errorf("compaction: count tokens after replacement: %w", err)
	}
	if after >= before {
		// Compression that doesn't shrink history is considered
		// failed per spec.md §8; the caller keeps the original.
		e.logger.Warn("compaction: summary did not reduce token count, history left unchanged", "before", before, "after", after)
		return nil, curated, nil
	}

	return &Result{OriginalTokenCount: before, NewTokenCount: after}, replaced, nil
}
