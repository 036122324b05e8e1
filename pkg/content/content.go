// Package content defines the conversation data model shared by every
// subsystem of the orchestration core: turns, parts, tool call requests
// and responses, confirmation details, and approval modes.
package content

import (
	"errors"
	"fmt"
)

// Role identifies who produced a Content turn.
type Role string

const (
	RoleUser     Role = "user"
	RoleModel    Role = "model"
	RoleFunction Role = "function"
)

// Content is one turn of a conversation.
type Content struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Clone returns a deep copy of c, used whenever history is fanned out
// to multiple readers (event bus subscribers, compaction, curation)
// that must not observe each other's mutations.
func (c Content) Clone() Content {
	parts := make([]Part, len(c.Parts))
	copy(parts, c.Parts)
	return Content{Role: c.Role, Parts: parts}
}

// PartKind discriminates the tagged union in Part.
type PartKind string

const (
	KindText             PartKind = "text"
	KindThought          PartKind = "thought"
	KindFunctionCall     PartKind = "function_call"
	KindFunctionResponse PartKind = "function_response"
	KindInlineData       PartKind = "inline_data"
)

// ThoughtPart is a model-internal reasoning summary surfaced to the
// front-end for display, never sent back to the model as input.
type ThoughtPart struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

// FunctionCall is a model-requested tool invocation.
type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// FunctionResponsePart is the result of a tool invocation, fed back to
// the model as a function-role turn.
type FunctionResponsePart struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// InlineData is an embedded binary blob (image, audio, etc).
type InlineData struct {
	MimeType string `json:"mime_type"`
	Bytes    []byte `json:"bytes"`
}

// Part is a tagged union over the five content variants. Exactly one
// payload field may be populated, matching Kind; Validate enforces
// this so malformed parts are rejected as parse errors rather than
// silently misinterpreted.
type Part struct {
	Kind             PartKind              `json:"kind"`
	Text             *string               `json:"text,omitempty"`
	Thought          *ThoughtPart          `json:"thought,omitempty"`
	FunctionCall     *FunctionCall         `json:"function_call,omitempty"`
	FunctionResponse *FunctionResponsePart `json:"function_response,omitempty"`
	InlineData       *InlineData           `json:"inline_data,omitempty"`
}

// ErrUnknownPartKind is returned by Validate for a Kind outside PartKind's
// known set.
var ErrUnknownPartKind = errors.New("content: unknown part kind")

// ErrPartPayloadMismatch is returned by Validate when the populated
// payload field doesn't match Kind, or more than one is populated.
var ErrPartPayloadMismatch = errors.New("content: part payload does not match kind")

// Validate checks that exactly one payload matching Kind is populated.
func (p Part) Validate() error {
	payloads := 0
	if p.Text != nil {
		payloads++
	}
	if p.Thought != nil {
		payloads++
	}
	if p.FunctionCall != nil {
		payloads++
	}
	if p.FunctionResponse != nil {
		payloads++
	}
	if p.InlineData != nil {
		payloads++
	}
	if payloads != 1 {
		return fmt.Errorf("%w: kind=%s has %d populated payloads", ErrPartPayloadMismatch, p.Kind, payloads)
	}
	switch p.Kind {
	case KindText:
		if p.Text == nil {
			return ErrPartPayloadMismatch
		}
	case KindThought:
		if p.Thought == nil {
			return ErrPartPayloadMismatch
		}
	case KindFunctionCall:
		if p.FunctionCall == nil {
			return ErrPartPayloadMismatch
		}
	case KindFunctionResponse:
		if p.FunctionResponse == nil {
			return ErrPartPayloadMismatch
		}
	case KindInlineData:
		if p.InlineData == nil {
			return ErrPartPayloadMismatch
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownPartKind, p.Kind)
	}
	return nil
}

// TextPart builds a text Part.
func TextPart(text string) Part { return Part{Kind: KindText, Text: &text} }

// ThoughtPartOf builds a thought Part.
func ThoughtPartOf(subject, description string) Part {
	return Part{Kind: KindThought, Thought: &ThoughtPart{Subject: subject, Description: description}}
}

// FunctionCallPart builds a function-call Part.
func FunctionCallPart(id, name string, args map[string]any) Part {
	return Part{Kind: KindFunctionCall, FunctionCall: &FunctionCall{ID: id, Name: name, Args: args}}
}

// FunctionResponsePartOf builds a function-response Part.
func FunctionResponsePartOf(id, name string, response map[string]any) Part {
	return Part{Kind: KindFunctionResponse, FunctionResponse: &FunctionResponsePart{ID: id, Name: name, Response: response}}
}

// IsNonEmptyText reports whether p is a text part with non-empty text.
func (p Part) IsNonEmptyText() bool {
	return p.Kind == KindText && p.Text != nil && *p.Text != ""
}

// ValidModelTurn reports whether a model-role turn's parts satisfy the
// curator's validity rule: at least one non-empty text part, a
// function call, or inline data. A bare thought part does not count.
func ValidModelTurn(parts []Part) bool {
	for _, p := range parts {
		switch p.Kind {
		case KindText:
			if p.IsNonEmptyText() {
				return true
			}
		case KindFunctionCall, KindInlineData:
			return true
		}
	}
	return false
}

// AllFunctionResponse reports whether every part is a function response,
// the shape required of a function-role turn.
func AllFunctionResponse(parts []Part) bool {
	for _, p := range parts {
		if p.Kind != KindFunctionResponse {
			return false
		}
	}
	return true
}

// ToolCallRequest is a single requested tool invocation within a turn.
type ToolCallRequest struct {
	CallID          string         `json:"call_id"`
	Name            string         `json:"name"`
	Args            map[string]any `json:"args"`
	ClientInitiated bool           `json:"client_initiated"`
}

// ToolCallResponse is the outcome of a tool invocation reported to the
// front-end.
type ToolCallResponse struct {
	CallID        string `json:"call_id"`
	ResponseParts []Part `json:"response_parts"`
	DisplayResult string `json:"display_result"`
	Error         string `json:"error,omitempty"`
}

// ConfirmationKind discriminates ConfirmationDetails.
type ConfirmationKind string

const (
	ConfirmEdit ConfirmationKind = "edit"
	ConfirmExec ConfirmationKind = "exec"
	ConfirmMCP  ConfirmationKind = "mcp"
	ConfirmInfo ConfirmationKind = "info"
)

// ConfirmationDetails describes what the front-end should show a user
// before approving a tool call.
type ConfirmationDetails struct {
	Kind       ConfirmationKind `json:"kind"`
	Diff       string           `json:"diff,omitempty"`
	Command    string           `json:"command,omitempty"`
	ServerName string           `json:"server_name,omitempty"`
	ToolName   string           `json:"tool_name,omitempty"`
	Prompt     string           `json:"prompt,omitempty"`
}

// ApprovalMode controls how aggressively the scheduler skips confirmation.
type ApprovalMode string

const (
	ApprovalDefault  ApprovalMode = "default"
	ApprovalAutoEdit ApprovalMode = "auto_edit"
	ApprovalYOLO     ApprovalMode = "yolo"
)

// UsageMetadata carries token accounting reported by a provider.
type UsageMetadata struct {
	PromptTokenCount     int            `json:"prompt_token_count"`
	CandidatesTokenCount int            `json:"candidates_token_count"`
	TotalTokenCount      int            `json:"total_token_count"`
	APITimeMs            *int64         `json:"api_time_ms,omitempty"`
}
