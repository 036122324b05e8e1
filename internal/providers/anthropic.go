package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nexuscore/agentcore/internal/providers/toolconv"
	"github.com/nexuscore/agentcore/pkg/content"
)

// AnthropicGenerator implements ContentGenerator against Claude's
// Messages API. Unlike the teacher's AnthropicProvider, it carries no
// retry loop of its own: internal/retrypolicy wraps every call made
// through this type at the orchestrator boundary (spec.md §4.C), so a
// provider's only job is translating one request/response pair.
//
// Grounded on the teacher's internal/agent/providers/anthropic.go
// (message/tool/stream conversion against the same SDK), re-targeted
// from agent.CompletionMessage/CompletionChunk onto content.Content/Part.
type AnthropicGenerator struct {
	client       anthropic.Client
	defaultModel string
}

// AnthropicConfig configures an AnthropicGenerator.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// NewAnthropicGenerator builds an AnthropicGenerator from config.
func NewAnthropicGenerator(cfg AnthropicConfig) (*AnthropicGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("providers: anthropic API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &AnthropicGenerator{
		client:       anthropic.NewClient(opts...),
		defaultModel: model,
	}, nil
}

func (g *AnthropicGenerator) model(requested string) string {
	if requested != "" {
		return requested
	}
	return g.defaultModel
}

// GenerateContent issues a single non-streaming call and drains it into
// a Response, reusing GenerateContentStream so there is exactly one
// translation path between content.Content and the SDK's wire types.
func (g *AnthropicGenerator) GenerateContent(ctx context.Context, req Request) (Response, error) {
	ch, err := g.GenerateContentStream(ctx, req)
	if err != nil {
		return Response{}, err
	}
	var resp Response
	for chunk := range ch {
		if chunk.Err != nil {
			return Response{}, chunk.Err
		}
		resp.Parts = append(resp.Parts, chunk.Parts...)
		if chunk.Usage != nil {
			resp.Usage = *chunk.Usage
		}
	}
	return resp, nil
}

// GenerateContentStream builds an anthropic.MessageNewParams from req
// and streams content_block_delta events back as StreamChunks.
func (g *AnthropicGenerator) GenerateContentStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	messages, err := anthropicMessages(req.History)
	if err != nil {
		return nil, fmt.Errorf("providers: anthropic: convert history: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model(req.Model)),
		Messages:  messages,
		MaxTokens: 8192,
	}
	if req.SystemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemInstruction}}
	}
	if len(req.Tools) > 0 {
		tools, err := toolconv.ToAnthropicTools(toolDeclarations(req.Tools))
		if err != nil {
			return nil, fmt.Errorf("providers: anthropic: convert tools: %w", err)
		}
		params.Tools = tools
	}

	stream := g.client.Messages.NewStreaming(ctx, params)

	out := make(chan StreamChunk)
	go func() {
		defer close(out)

		var textBuf strings.Builder
		var thoughtBuf strings.Builder
		var callID, callName string
		var argBuf strings.Builder
		inToolUse := false
		var usage content.UsageMetadata

		flushText := func() {
			if textBuf.Len() > 0 {
				out <- StreamChunk{Parts: []content.Part{content.TextPart(textBuf.String())}}
				textBuf.Reset()
			}
		}
		flushThought := func() {
			if thoughtBuf.Len() > 0 {
				out <- StreamChunk{Parts: []content.Part{content.ThoughtPartOf("", thoughtBuf.String())}}
				thoughtBuf.Reset()
			}
		}

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "message_start":
				ms := event.AsMessageStart()
				usage.PromptTokenCount = int(ms.Message.Usage.InputTokens)

			case "content_block_start":
				cb := event.AsContentBlockStart().ContentBlock
				if cb.Type == "tool_use" {
					tu := cb.AsToolUse()
					callID, callName = tu.ID, tu.Name
					argBuf.Reset()
					inToolUse = true
				}

			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					textBuf.WriteString(delta.Text)
				case "thinking_delta":
					thoughtBuf.WriteString(delta.Thinking)
				case "input_json_delta":
					argBuf.WriteString(delta.PartialJSON)
				}

			case "content_block_stop":
				flushText()
				flushThought()
				if inToolUse {
					var args map[string]any
					if argBuf.Len() > 0 {
						if err := json.Unmarshal([]byte(argBuf.String()), &args); err != nil {
							out <- StreamChunk{Err: fmt.Errorf("providers: anthropic: decode tool args: %w", err)}
							return
						}
					}
					out <- StreamChunk{Parts: []content.Part{content.FunctionCallPart(callID, callName, args)}}
					inToolUse = false
				}

			case "message_delta":
				md := event.AsMessageDelta()
				if md.Usage.OutputTokens > 0 {
					usage.CandidatesTokenCount = int(md.Usage.OutputTokens)
				}
			}
		}
		flushText()
		flushThought()

		if err := stream.Err(); err != nil {
			out <- StreamChunk{Err: fmt.Errorf("providers: anthropic: stream: %w", err)}
			return
		}
		usage.TotalTokenCount = usage.PromptTokenCount + usage.CandidatesTokenCount
		out <- StreamChunk{Usage: &usage}
	}()

	return out, nil
}

// CountTokens calls Anthropic's dedicated token-counting endpoint so
// the Compression Engine budgets against the provider's own tokenizer
// rather than an estimate (spec.md §4.H).
func (g *AnthropicGenerator) CountTokens(ctx context.Context, model string, history []content.Content) (int, error) {
	messages, err := anthropicMessages(history)
	if err != nil {
		return 0, fmt.Errorf("providers: anthropic: convert history: %w", err)
	}
	resp, err := g.client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model:    anthropic.Model(g.model(model)),
		Messages: messages,
	})
	if err != nil {
		return 0, fmt.Errorf("providers: anthropic: count tokens: %w", err)
	}
	return int(resp.InputTokens), nil
}

// EmbedContent is not offered by Anthropic's API; callers needing
// embeddings should route through a provider that supports it.
func (g *AnthropicGenerator) EmbedContent(ctx context.Context, model string, text string) ([]float32, error) {
	return nil, fmt.Errorf("providers: anthropic: embeddings are not supported")
}

// anthropicMessages converts the tagged-union history into Anthropic's
// content-block message list. A function-role turn becomes a user
// message carrying tool_result blocks, matching the teacher's
// convertMessages.
func anthropicMessages(history []content.Content) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(history))
	for _, c := range history {
		var blocks []anthropic.ContentBlockParamUnion
		for _, p := range c.Parts {
			switch p.Kind {
			case content.KindText:
				if p.Text != nil && *p.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(*p.Text))
				}
			case content.KindFunctionCall:
				fc := p.FunctionCall
				blocks = append(blocks, anthropic.NewToolUseBlock(fc.ID, fc.Args, fc.Name))
			case content.KindFunctionResponse:
				fr := p.FunctionResponse
				encoded, err := json.Marshal(fr.Response)
				if err != nil {
					return nil, fmt.Errorf("encode function response: %w", err)
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(fr.ID, string(encoded), false))
			case content.KindInlineData:
				// Inline image/binary data has no Anthropic vision
				// binding yet; dropped rather than guessed at.
			case content.KindThought:
				// Thought parts are display-only and never replayed.
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch c.Role {
		case content.RoleModel:
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		default:
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
	}
	return result, nil
}

