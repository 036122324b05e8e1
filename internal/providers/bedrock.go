package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/nexuscore/agentcore/internal/providers/bedrock"
	"github.com/nexuscore/agentcore/internal/providers/toolconv"
	"github.com/nexuscore/agentcore/pkg/content"
)

// BedrockGenerator implements ContentGenerator against the Converse /
// ConverseStream API, the transport AWS recommends over per-vendor
// invoke bodies for tool-calling models. No retry loop lives here for
// the same reason as the other generators: internal/retrypolicy owns
// it at the orchestrator boundary.
//
// Grounded on the teacher's internal/agent/providers/bedrock.go
// ConverseStream usage, re-targeted onto content.Content/Part; the
// image-attachment fetch-by-URL machinery is dropped in favor of the
// content model's own InlineData bytes.
type BedrockGenerator struct {
	client       *bedrockruntime.Client
	defaultModel string
}

// BedrockConfig configures a BedrockGenerator.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
}

// NewBedrockGenerator builds a BedrockGenerator, loading AWS credentials
// from the explicit fields in cfg or, if empty, the default provider
// chain (environment, shared config, IAM role).
func NewBedrockGenerator(ctx context.Context, cfg BedrockConfig) (*BedrockGenerator, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	model := cfg.DefaultModel
	if model == "" {
		model = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("providers: bedrock: load aws config: %w", err)
	}

	return &BedrockGenerator{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: model,
	}, nil
}

// DiscoverAndRegister lists the foundation models available to this
// account and registers each into the shared model catalog, so
// internal/providers/catalog can resolve Bedrock model ids to a
// context window without a hardcoded table (spec.md §4.H).
func (g *BedrockGenerator) DiscoverAndRegister(ctx context.Context, cfg *bedrock.DiscoveryConfig, register func(id string, contextWindow int)) error {
	models, err := bedrock.DiscoverModels(ctx, cfg)
	if err != nil {
		return fmt.Errorf("providers: bedrock: discover models: %w", err)
	}
	for _, m := range models {
		register(m.ID, m.ContextWindow)
	}
	return nil
}

func (g *BedrockGenerator) model(requested string) string {
	if requested != "" {
		return requested
	}
	return g.defaultModel
}

// GenerateContent drains GenerateContentStream into a single Response.
func (g *BedrockGenerator) GenerateContent(ctx context.Context, req Request) (Response, error) {
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

// GenerateContentStream issues a ConverseStream call and translates its
// event union into StreamChunks.
func (g *BedrockGenerator) GenerateContentStream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	messages, err := bedrockMessages(req.History)
	if err != nil {
		return nil, fmt.Errorf("providers: bedrock: convert history: %w", err)
	}

	model := g.model(req.Model)
	in := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if req.SystemInstruction != "" {
		in.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.SystemInstruction}}
	}
	if len(req.Tools) > 0 {
		in.ToolConfig = toolconv.ToBedrockToolConfig(toolDeclarations(req.Tools))
	}
	in.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(math.MaxInt32))}

	out, err := g.client.ConverseStream(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("providers: bedrock: converse stream: %w", err)
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		events := out.GetStream()
		defer events.Close()

		var callID, callName string
		var argBuf strings.Builder
		inToolUse := false
		var usage content.UsageMetadata

		for {
			event, ok := <-events.Events()
			if !ok {
				if err := events.Err(); err != nil {
					ch <- StreamChunk{Err: fmt.Errorf("providers: bedrock: stream: %w", err)}
					return
				}
				ch <- StreamChunk{Usage: &usage}
				return
			}

			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if tu, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					callID = aws.ToString(tu.Value.ToolUseId)
					callName = aws.ToString(tu.Value.Name)
					argBuf.Reset()
					inToolUse = true
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						ch <- StreamChunk{Parts: []content.Part{content.TextPart(delta.Value)}}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						argBuf.WriteString(*delta.Value.Input)
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				if inToolUse {
					var args map[string]any
					if argBuf.Len() > 0 {
						if err := json.Unmarshal([]byte(argBuf.String()), &args); err != nil {
							ch <- StreamChunk{Err: fmt.Errorf("providers: bedrock: decode tool args: %w", err)}
							return
						}
					}
					ch <- StreamChunk{Parts: []content.Part{content.FunctionCallPart(callID, callName, args)}}
					inToolUse = false
				}

			case *types.ConverseStreamOutputMemberMetadata:
				if ev.Value.Usage != nil {
					usage.PromptTokenCount = int(aws.ToInt32(ev.Value.Usage.InputTokens))
					usage.CandidatesTokenCount = int(aws.ToInt32(ev.Value.Usage.OutputTokens))
					usage.TotalTokenCount = int(aws.ToInt32(ev.Value.Usage.TotalTokens))
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				ch <- StreamChunk{Usage: &usage}
				return
			}
		}
	}()

	return ch, nil
}

// CountTokens has no dedicated Bedrock endpoint; it is approximated by
// a zero-effort Converse call is wasteful, so this falls back to a
// coarse character-based estimate consistent with the Compression
// Engine's "estimate, don't guess precisely" tolerance (spec.md §4.H).
func (g *BedrockGenerator) CountTokens(ctx context.Context, model string, history []content.Content) (int, error) {
	var chars int
	for _, c := range history {
		for _, p := range c.Parts {
			if p.Kind == content.KindText && p.Text != nil {
				chars += len(*p.Text)
			}
		}
	}
	return chars / 4, nil
}

// EmbedContent is not exposed uniformly across Bedrock foundation
// models through this client; unsupported here.
func (g *BedrockGenerator) EmbedContent(ctx context.Context, model string, text string) ([]float32, error) {
	return nil, fmt.Errorf("providers: bedrock: embeddings are not supported")
}

// bedrockMessages converts the tagged-union history into Converse
// API messages.
func bedrockMessages(history []content.Content) ([]types.Message, error) {
	result := make([]types.Message, 0, len(history))
	for _, c := range history {
		var blocks []types.ContentBlock
		for _, p := range c.Parts {
			switch p.Kind {
			case content.KindText:
				if p.Text != nil && *p.Text != "" {
					blocks = append(blocks, &types.ContentBlockMemberText{Value: *p.Text})
				}
			case content.KindFunctionCall:
				fc := p.FunctionCall
				blocks = append(blocks, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{
						ToolUseId: aws.String(fc.ID),
						Name:      aws.String(fc.Name),
						Input:     document.NewLazyDocument(map[string]any(fc.Args)),
					},
				})
			case content.KindFunctionResponse:
				fr := p.FunctionResponse
				encoded, err := json.Marshal(fr.Response)
				if err != nil {
					return nil, fmt.Errorf("encode function response: %w", err)
				}
				blocks = append(blocks, &types.ContentBlockMemberToolResult{
					Value: types.ToolResultBlock{
						ToolUseId: aws.String(fr.ID),
						Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: string(encoded)}},
					},
				})
			case content.KindInlineData:
				id := p.InlineData
				if format, ok := bedrockImageFormat(id.MimeType); ok {
					blocks = append(blocks, &types.ContentBlockMemberImage{
						Value: types.ImageBlock{Format: format, Source: &types.ImageSourceMemberBytes{Value: id.Bytes}},
					})
				}
			case content.KindThought:
				// Display-only, never replayed.
			}
		}
		if len(blocks) == 0 {
			continue
		}
		role := types.ConversationRoleUser
		if c.Role == content.RoleModel {
			role = types.ConversationRoleAssistant
		}
		result = append(result, types.Message{Role: role, Content: blocks})
	}
	return result, nil
}

func bedrockImageFormat(mimeType string) (types.ImageFormat, bool) {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return types.ImageFormatPng, true
	case "image/jpeg", "image/jpg":
		return types.ImageFormatJpeg, true
	case "image/gif":
		return types.ImageFormatGif, true
	case "image/webp":
		return types.ImageFormatWebp, true
	default:
		return "", false
	}
}

