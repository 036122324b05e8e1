// Package mcp implements remote tool discovery and the MCP JSON-RPC
// transport (spec.md §4.E "Discovery", §6 "Remote-tool discovery
// (MCP)"). Bridge wraps a discovered MCP tool/resource/prompt as a
// tools.Tool so the scheduler can drive it through the same lifecycle
// as any local tool.
//
// Grounded on the teacher's internal/mcp/bridge.go, re-targeted from
// the teacher's internal/agent.Tool contract onto this module's
// internal/tools.Tool capability, and from json.RawMessage params onto
// map[string]any args per spec.md §4.E's Tool.validateParams/execute
// signature.
package mcp

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/nexuscore/agentcore/internal/cancel"
	"github.com/nexuscore/agentcore/internal/tools"
	"github.com/nexuscore/agentcore/pkg/content"
)

const maxToolNameLen = 64

// ToolCaller is the MCP tool-execution contract a ToolBridge depends
// on; *Manager satisfies it, and tests substitute a fake.
type ToolCaller interface {
	CallTool(ctx context.Context, serverID, toolName string, arguments map[string]any) (*ToolCallResult, error)
}

// ToolBridge wraps one MCP tool so it satisfies tools.Tool. Arguments
// are passed straight through as map[string]any; MCP tools never need
// user confirmation beyond what the scheduler's ApprovalMode already
// provides, so ShouldConfirm reports an "mcp"-kind confirmation for
// anything but yolo mode, letting the session's approval policy decide.
type ToolBridge struct {
	caller     ToolCaller
	serverID   string
	tool       *MCPTool
	name       string
	alwaysTrue bool // set by RegisterAll when the server/tool pair is pre-trusted
}

// NewToolBridge creates a bridge tool with a precomputed safe name.
func NewToolBridge(caller ToolCaller, serverID string, tool *MCPTool, safeName string) *ToolBridge {
	return &ToolBridge{caller: caller, serverID: serverID, tool: tool, name: safeName}
}

func (b *ToolBridge) Name() string { return b.name }

func (b *ToolBridge) Description() string {
	desc := strings.TrimSpace(b.tool.Description)
	if desc == "" {
		return fmt.Sprintf("MCP tool %s.%s", b.serverID, b.tool.Name)
	}
	return fmt.Sprintf("MCP tool %s.%s: %s", b.serverID, b.tool.Name, desc)
}

func (b *ToolBridge) Schema() map[string]any {
	if len(b.tool.InputSchema) == 0 {
		return map[string]any{"type": "object"}
	}
	var schema map[string]any
	if err := json.Unmarshal(b.tool.InputSchema, &schema); err != nil {
		return map[string]any{"type": "object"}
	}
	sanitizeAnyOfDefaults(schema)
	return schema
}

// ValidateParams performs no local validation beyond what the remote
// server itself enforces on CallTool; MCP tools are schema-described
// but schema-checked server-side, per spec.md §4.E.
func (b *ToolBridge) ValidateParams(args map[string]any) string { return "" }

func (b *ToolBridge) GetDescription(args map[string]any) string {
	payload, _ := json.Marshal(args)
	return fmt.Sprintf("%s(%s)", b.name, string(payload))
}

// ShouldConfirm flags every remote call as needing approval unless the
// bridge was constructed pre-trusted (the session's trust set already
// covers this server/tool, per spec.md §4.F's "always approve").
func (b *ToolBridge) ShouldConfirm(args map[string]any) *content.ConfirmationDetails {
	if b.alwaysTrue {
		return nil
	}
	return &content.ConfirmationDetails{
		Kind:       content.ConfirmMCP,
		ServerName: b.serverID,
		ToolName:   b.tool.Name,
	}
}

func (b *ToolBridge) Execute(ctx context.Context, args map[string]any, sig *cancel.Signal, live tools.LiveOutputFunc) (*tools.Result, error) {
	if sig != nil && sig.IsSet() {
		return nil, context.Canceled
	}
	result, err := b.caller.CallTool(ctx, b.serverID, b.tool.Name, args)
	if err != nil {
		return nil, err
	}
	text, isError := formatToolCallResult(result)
	if isError {
		return nil, fmt.Errorf("mcp: tool %s.%s: %s", b.serverID, b.tool.Name, text)
	}
	return &tools.Result{
		LLMContent:    []content.Part{content.TextPart(text)},
		DisplayResult: text,
	}, nil
}

// ResourceListBridge exposes MCP resources/list as a tool.
type ResourceListBridge struct {
	mgr      *Manager
	serverID string
	name     string
}

func NewResourceListBridge(mgr *Manager, serverID, safeName string) *ResourceListBridge {
	return &ResourceListBridge{mgr: mgr, serverID: serverID, name: safeName}
}

func (b *ResourceListBridge) Name() string        { return b.name }
func (b *ResourceListBridge) Description() string { return fmt.Sprintf("List MCP resources for %s", b.serverID) }
func (b *ResourceListBridge) Schema() map[string]any { return map[string]any{"type": "object"} }
func (b *ResourceListBridge) ValidateParams(map[string]any) string { return "" }
func (b *ResourceListBridge) GetDescription(map[string]any) string { return b.name }
func (b *ResourceListBridge) ShouldConfirm(map[string]any) *content.ConfirmationDetails { return nil }

func (b *ResourceListBridge) Execute(ctx context.Context, args map[string]any, sig *cancel.Signal, live tools.LiveOutputFunc) (*tools.Result, error) {
	resources := b.mgr.AllResources()[b.serverID]
	payload, err := json.Marshal(resources)
	if err != nil {
		return nil, err
	}
	return &tools.Result{LLMContent: []content.Part{content.TextPart(string(payload))}, DisplayResult: string(payload)}, nil
}

// ResourceReadBridge exposes MCP resources/read as a tool.
type ResourceReadBridge struct {
	mgr      *Manager
	serverID string
	name     string
}

func NewResourceReadBridge(mgr *Manager, serverID, safeName string) *ResourceReadBridge {
	return &ResourceReadBridge{mgr: mgr, serverID: serverID, name: safeName}
}

func (b *ResourceReadBridge) Name() string        { return b.name }
func (b *ResourceReadBridge) Description() string { return fmt.Sprintf("Read an MCP resource from %s (provide uri)", b.serverID) }
func (b *ResourceReadBridge) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{"uri": map[string]any{"type": "string"}}, "required": []any{"uri"}}
}
func (b *ResourceReadBridge) ValidateParams(args map[string]any) string {
	if uri, _ := args["uri"].(string); strings.TrimSpace(uri) == "" {
		return "uri is required"
	}
	return ""
}
func (b *ResourceReadBridge) GetDescription(args map[string]any) string {
	uri, _ := args["uri"].(string)
	return fmt.Sprintf("%s(%s)", b.name, uri)
}
func (b *ResourceReadBridge) ShouldConfirm(map[string]any) *content.ConfirmationDetails { return nil }

func (b *ResourceReadBridge) Execute(ctx context.Context, args map[string]any, sig *cancel.Signal, live tools.LiveOutputFunc) (*tools.Result, error) {
	uri, _ := args["uri"].(string)
	contents, err := b.mgr.ReadResource(ctx, b.serverID, uri)
	if err != nil {
		return nil, err
	}
	text, _ := formatResourceContents(contents)
	return &tools.Result{LLMContent: []content.Part{content.TextPart(text)}, DisplayResult: text}, nil
}

// PromptListBridge exposes MCP prompts/list as a tool.
type PromptListBridge struct {
	mgr      *Manager
	serverID string
	name     string
}

func NewPromptListBridge(mgr *Manager, serverID, safeName string) *PromptListBridge {
	return &PromptListBridge{mgr: mgr, serverID: serverID, name: safeName}
}

func (b *PromptListBridge) Name() string          { return b.name }
func (b *PromptListBridge) Description() string   { return fmt.Sprintf("List MCP prompts for %s", b.serverID) }
func (b *PromptListBridge) Schema() map[string]any { return map[string]any{"type": "object"} }
func (b *PromptListBridge) ValidateParams(map[string]any) string { return "" }
func (b *PromptListBridge) GetDescription(map[string]any) string { return b.name }
func (b *PromptListBridge) ShouldConfirm(map[string]any) *content.ConfirmationDetails { return nil }

func (b *PromptListBridge) Execute(ctx context.Context, args map[string]any, sig *cancel.Signal, live tools.LiveOutputFunc) (*tools.Result, error) {
	prompts := b.mgr.AllPrompts()[b.serverID]
	payload, err := json.Marshal(prompts)
	if err != nil {
		return nil, err
	}
	return &tools.Result{LLMContent: []content.Part{content.TextPart(string(payload))}, DisplayResult: string(payload)}, nil
}

// PromptGetBridge exposes MCP prompts/get as a tool.
type PromptGetBridge struct {
	mgr      *Manager
	serverID string
	name     string
}

func NewPromptGetBridge(mgr *Manager, serverID, safeName string) *PromptGetBridge {
	return &PromptGetBridge{mgr: mgr, serverID: serverID, name: safeName}
}

func (b *PromptGetBridge) Name() string        { return b.name }
func (b *PromptGetBridge) Description() string { return fmt.Sprintf("Fetch an MCP prompt from %s (provide name, arguments)", b.serverID) }
func (b *PromptGetBridge) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{"name": map[string]any{"type": "string"}, "arguments": map[string]any{"type": "object"}}, "required": []any{"name"}}
}
func (b *PromptGetBridge) ValidateParams(args map[string]any) string {
	if name, _ := args["name"].(string); strings.TrimSpace(name) == "" {
		return "name is required"
	}
	return ""
}
func (b *PromptGetBridge) GetDescription(args map[string]any) string {
	name, _ := args["name"].(string)
	return fmt.Sprintf("%s(%s)", b.name, name)
}
func (b *PromptGetBridge) ShouldConfirm(map[string]any) *content.ConfirmationDetails { return nil }

func (b *PromptGetBridge) Execute(ctx context.Context, args map[string]any, sig *cancel.Signal, live tools.LiveOutputFunc) (*tools.Result, error) {
	name, _ := args["name"].(string)
	var arguments map[string]string
	if raw, ok := args["arguments"].(map[string]any); ok {
		arguments = make(map[string]string, len(raw))
		for k, v := range raw {
			if s, ok := v.(string); ok {
				arguments[k] = s
			}
		}
	}
	result, err := b.mgr.GetPrompt(ctx, b.serverID, name, arguments)
	if err != nil {
		return nil, err
	}
	text, _ := formatPromptResult(result)
	return &tools.Result{LLMContent: []content.Part{content.TextPart(text)}, DisplayResult: text}, nil
}

// RegisterAll discovers every tool/resource/prompt capability across
// mgr's connected servers and registers it into reg under a sanitized,
// server-disambiguated name, per spec.md §4.E. Returns the registered
// names in a stable order.
func RegisterAll(reg *tools.Registry, mgr *Manager) []string {
	if reg == nil || mgr == nil {
		return nil
	}
	used := make(map[string]struct{})
	var registered []string

	for _, entry := range listToolsSorted(mgr) {
		name := safeToolName(entry.serverID, entry.tool.Name, used)
		reg.Register(NewToolBridge(mgr, entry.serverID, entry.tool, name))
		registered = append(registered, name)
	}

	for _, serverID := range listServerIDs(mgr) {
		resList := safeToolName(serverID, "resources_list", used)
		resRead := safeToolName(serverID, "resource_read", used)
		promptList := safeToolName(serverID, "prompts_list", used)
		promptGet := safeToolName(serverID, "prompt_get", used)

		reg.Register(NewResourceListBridge(mgr, serverID, resList))
		reg.Register(NewResourceReadBridge(mgr, serverID, resRead))
		reg.Register(NewPromptListBridge(mgr, serverID, promptList))
		reg.Register(NewPromptGetBridge(mgr, serverID, promptGet))
		registered = append(registered, resList, resRead, promptList, promptGet)
	}
	return registered
}

type toolEntry struct {
	serverID string
	tool     *MCPTool
}

func listToolsSorted(mgr *Manager) []toolEntry {
	all := mgr.AllTools()
	if len(all) == 0 {
		return nil
	}
	serverIDs := make([]string, 0, len(all))
	for id := range all {
		serverIDs = append(serverIDs, id)
	}
	sort.Strings(serverIDs)

	var entries []toolEntry
	for _, serverID := range serverIDs {
		ts := all[serverID]
		sort.Slice(ts, func(i, j int) bool { return ts[i].Name < ts[j].Name })
		for _, t := range ts {
			entries = append(entries, toolEntry{serverID: serverID, tool: t})
		}
	}
	return entries
}

func listServerIDs(mgr *Manager) []string {
	seen := make(map[string]struct{})
	for id := range mgr.AllTools() {
		seen[id] = struct{}{}
	}
	for id := range mgr.AllResources() {
		seen[id] = struct{}{}
	}
	for id := range mgr.AllPrompts() {
		seen[id] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func safeToolName(serverID, toolName string, used map[string]struct{}) string {
	base := "mcp_" + sanitizeToolPart(serverID) + "_" + sanitizeToolPart(toolName)
	name := base
	if len(name) > maxToolNameLen {
		name = truncateWithHash(base, serverID, toolName)
	}
	if _, exists := used[name]; exists {
		name = dedupeWithHash(name, serverID, toolName)
	}
	used[name] = struct{}{}
	return name
}

func sanitizeToolPart(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	underscore := false
	for _, r := range value {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			underscore = false
		default:
			if !underscore {
				b.WriteByte('_')
				underscore = true
			}
		}
	}
	clean := strings.Trim(b.String(), "_")
	if clean == "" {
		return "tool"
	}
	return clean
}

func toolNameHash(serverID, toolName string) string {
	sum := sha1.Sum([]byte(serverID + ":" + toolName))
	return hex.EncodeToString(sum[:])[:8]
}

func truncateWithHash(base, serverID, toolName string) string {
	suffix := "_" + toolNameHash(serverID, toolName)
	if maxToolNameLen <= len(suffix) {
		return suffix[len(suffix)-maxToolNameLen:]
	}
	trimLen := maxToolNameLen - len(suffix)
	if trimLen > len(base) {
		trimLen = len(base)
	}
	return base[:trimLen] + suffix
}

func dedupeWithHash(base, serverID, toolName string) string {
	suffix := "_" + toolNameHash(serverID, toolName)
	name := base + suffix
	if len(name) <= maxToolNameLen {
		return name
	}
	return truncateWithHash(base, serverID, toolName)
}

func formatToolCallResult(result *ToolCallResult) (string, bool) {
	if result == nil {
		return "", false
	}
	if len(result.Content) == 0 {
		return "", result.IsError
	}
	allText := true
	var combined strings.Builder
	for _, item := range result.Content {
		if item.Type != "text" {
			allText = false
			break
		}
		if item.Text == "" {
			continue
		}
		if combined.Len() > 0 {
			combined.WriteString("\n")
		}
		combined.WriteString(item.Text)
	}
	if allText && combined.Len() > 0 {
		return combined.String(), result.IsError
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return "", result.IsError
	}
	return string(payload), result.IsError
}

func formatResourceContents(contents []*ResourceContent) (string, bool) {
	if len(contents) == 0 {
		return "", false
	}
	if len(contents) == 1 && contents[0].Text != "" {
		return contents[0].Text, false
	}
	payload, err := json.Marshal(contents)
	if err != nil {
		return "", false
	}
	return string(payload), false
}

func formatPromptResult(result *GetPromptResult) (string, bool) {
	if result == nil || len(result.Messages) == 0 {
		return "", false
	}
	if len(result.Messages) == 1 && result.Messages[0].Content.Type == "text" {
		return result.Messages[0].Content.Text, false
	}
	payload, err := json.Marshal(result.Messages)
	if err != nil {
		return "", false
	}
	return string(payload), false
}

// sanitizeAnyOfDefaults strips "default" keys nested under "anyOf",
// which some models reject in tool argument schemas (spec.md §6
// "Remote-tool discovery (MCP)").
func sanitizeAnyOfDefaults(schema map[string]any) {
	if schema == nil {
		return
	}
	if anyOf, ok := schema["anyOf"].([]any); ok {
		for _, branch := range anyOf {
			if m, ok := branch.(map[string]any); ok {
				delete(m, "default")
				sanitizeAnyOfDefaults(m)
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, v := range props {
			if m, ok := v.(map[string]any); ok {
				sanitizeAnyOfDefaults(m)
			}
		}
	}
}
