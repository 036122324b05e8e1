package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nexuscore/agentcore/internal/providers/toolconv"
	"github.com/nexuscore/agentcore/pkg/content"
)

// OpenAIGenerator implements ContentGenerator against the Chat
// Completions API. As with AnthropicGenerator, retries are the
// orchestrator's concern (internal/retrypolicy), not this type's.
//
// Grounded on the teacher's internal/agent/providers/openai.go
// (delta-indexed tool call accumulation across stream chunks),
// re-targeted onto content.Content/Part.
type OpenAIGenerator struct {
	client       *openai.Client
	defaultModel string
}

// OpenAIConfig configures an OpenAIGenerator.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// NewOpenAIGenerator builds an OpenAIGenerator from config.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("providers: openai API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIGenerator{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: model,
	}, nil
}

func (g *OpenAIGenerator) model(requested string) string {
	if requested != "" {
		return requested
	}
	return g.defaultModel
}

// GenerateContent drains GenerateContentStream into a single Response.
func (g *OpenAIGenerator) GenerateContent(ctx context.Context, req Request) (Response, error) {
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

// GenerateContentStream issues a streaming chat completion and
// translates delta events into StreamChunks, accumulating tool call
// argument fragments by index the way the Chat Completions API emits
// them.
func (g *OpenAIGenerator) GenerateContentStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	messages, err := openaiMessages(req.History, req.SystemInstruction)
	if err != nil {
		return nil, fmt.Errorf("providers: openai: convert history: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    g.model(req.Model),
		Messages: messages,
		Stream:   true,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toolconv.ToOpenAITools(toolDeclarations(req.Tools))
	}

	stream, err := g.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("providers: openai: create stream: %w", err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()

		type building struct {
			id, name string
			args     string
		}
		calls := make(map[int]*building)
		var usage content.UsageMetadata

		flushCalls := func() {
			for i := 0; i < len(calls); i++ {
				b, ok := calls[i]
				if !ok || b.id == "" || b.name == "" {
					continue
				}
				var args map[string]any
				if b.args != "" {
					if err := json.Unmarshal([]byte(b.args), &args); err != nil {
						out <- StreamChunk{Err: fmt.Errorf("providers: openai: decode tool args: %w", err)}
						return
					}
				}
				out <- StreamChunk{Parts: []content.Part{content.FunctionCallPart(b.id, b.name, args)}}
			}
			calls = make(map[int]*building)
		}

		for {
			resp, err := stream.Recv()
			if err != nil {
				if err == io.EOF {
					flushCalls()
					usage.TotalTokenCount = usage.PromptTokenCount + usage.CandidatesTokenCount
					out <- StreamChunk{Usage: &usage}
					return
				}
				out <- StreamChunk{Err: fmt.Errorf("providers: openai: stream: %w", err)}
				return
			}

			if resp.Usage != nil {
				usage.PromptTokenCount = resp.Usage.PromptTokens
				usage.CandidatesTokenCount = resp.Usage.CompletionTokens
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]
			delta := choice.Delta

			if delta.Content != "" {
				out <- StreamChunk{Parts: []content.Part{content.TextPart(delta.Content)}}
			}
			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				b, ok := calls[idx]
				if !ok {
					b = &building{}
					calls[idx] = b
				}
				if tc.ID != "" {
					b.id = tc.ID
				}
				if tc.Function.Name != "" {
					b.name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					b.args += tc.Function.Arguments
				}
			}
			if choice.FinishReason == openai.FinishReasonToolCalls {
				flushCalls()
			}
		}
	}()

	return out, nil
}

// CountTokens has no dedicated endpoint in the Chat Completions API;
// it approximates using the API's own usage accounting is unavailable
// ahead of a call, so this issues a zero-max-tokens completion purely
// to read back prompt token usage.
func (g *OpenAIGenerator) CountTokens(ctx context.Context, model string, history []content.Content) (int, error) {
	messages, err := openaiMessages(history, "")
	if err != nil {
		return 0, fmt.Errorf("providers: openai: convert history: %w", err)
	}
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     g.model(model),
		Messages:  messages,
		MaxTokens: 1,
	})
	if err != nil {
		return 0, fmt.Errorf("providers: openai: count tokens: %w", err)
	}
	return resp.Usage.PromptTokens, nil
}

// EmbedContent calls the Embeddings API.
func (g *OpenAIGenerator) EmbedContent(ctx context.Context, model string, text string) ([]float32, error) {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	resp, err := g.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("providers: openai: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("providers: openai: embed: empty response")
	}
	return resp.Data[0].Embedding, nil
}

// openaiMessages flattens the tagged-union history into Chat
// Completions messages: a function-role turn becomes one tool message
// per function response, matching the teacher's one-message-per-result
// rule.
func openaiMessages(history []content.Content, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, c := range history {
		if content.AllFunctionResponse(c.Parts) && len(c.Parts) > 0 {
			for _, p := range c.Parts {
				fr := p.FunctionResponse
				encoded, err := json.Marshal(fr.Response)
				if err != nil {
					return nil, fmt.Errorf("encode function response: %w", err)
				}
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    string(encoded),
					ToolCallID: fr.ID,
				})
			}
			continue
		}

		msg := openai.ChatCompletionMessage{}
		switch c.Role {
		case content.RoleModel:
			msg.Role = openai.ChatMessageRoleAssistant
		default:
			msg.Role = openai.ChatMessageRoleUser
		}

		var text string
		for _, p := range c.Parts {
			switch p.Kind {
			case content.KindText:
				if p.Text != nil {
					text += *p.Text
				}
			case content.KindFunctionCall:
				fc := p.FunctionCall
				args, err := json.Marshal(fc.Args)
				if err != nil {
					return nil, fmt.Errorf("encode function call args: %w", err)
				}
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   fc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      fc.Name,
						Arguments: string(args),
					},
				})
			}
		}
		msg.Content = text
		if text == "" && len(msg.ToolCalls) == 0 {
			continue
		}
		result = append(result, msg)
	}
	return result, nil
}

