// Package toolconv carries the per-vendor tool-schema conversion that
// each ContentGenerator transport needs to advertise the Tool
// Registry's declarations in that vendor's wire format (spec.md §4.E,
// §6). It depends on no provider concretely, so it can be shared by
// anthropic.go, openai.go, and bedrock.go without a cyclic import.
//
// Grounded on the teacher's internal/agent/toolconv/{anthropic,bedrock,
// openai}.go, re-targeted from agent.Tool onto the vendor-neutral
// Declaration below so this package doesn't need to import the tool
// registry either.
package toolconv

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	openai "github.com/sashabaranov/go-openai"
)

// Declaration is the provider-agnostic shape of one registered tool,
// mirroring providers.ToolDeclaration without importing that package.
type Declaration struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ToAnthropicTools converts declarations to Anthropic's tool union list.
func ToAnthropicTools(decls []Declaration) ([]anthropic.ToolUnionParam, error) {
	if len(decls) == 0 {
		return nil, nil
	}
	result := make([]anthropic.ToolUnionParam, 0, len(decls))
	for _, d := range decls {
		raw, err := json.Marshal(d.Schema)
		if err != nil {
			return nil, fmt.Errorf("toolconv: marshal schema for %s: %w", d.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("toolconv: invalid tool schema for %s: %w", d.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, d.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("toolconv: invalid tool schema for %s: missing tool definition", d.Name)
		}
		param.OfTool.Description = anthropic.String(d.Description)
		result = append(result, param)
	}
	return result, nil
}

// ToOpenAITools converts declarations to Chat Completions function
// tools.
func ToOpenAITools(decls []Declaration) []openai.Tool {
	result := make([]openai.Tool, 0, len(decls))
	for _, d := range decls {
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Schema,
			},
		})
	}
	return result
}

// ToBedrockToolConfig converts declarations to the Converse API's tool
// configuration.
func ToBedrockToolConfig(decls []Declaration) *types.ToolConfiguration {
	tools := make([]types.Tool, 0, len(decls))
	for _, d := range decls {
		schema := map[string]any(d.Schema)
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, &types.ToolMemberToolSpec{
			Value: types.ToolSpec{
				Name:        aws.String(d.Name),
				Description: aws.String(d.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: tools}
}
