package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidator compiles a tool's JSON Schema once and validates
// argument maps against it cheaply on every call, grounded on the
// spec.md §4.E Tool.validateParams contract (return a non-empty error
// string, never an error type, so scheduler validation stays uniform
// across hand-written and schema-driven tools).
type SchemaValidator struct {
	compiled *jsonschema.Schema
}

// NewSchemaValidator compiles schema (a JSON-Schema-shaped map, as
// returned by Tool.Schema) into a reusable validator.
func NewSchemaValidator(schema map[string]any) (*SchemaValidator, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("tools: marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	const resourceName = "tool-schema.json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("tools: add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("tools: compile schema: %w", err)
	}
	return &SchemaValidator{compiled: compiled}, nil
}

// Validate returns a non-empty error description if args violates the
// schema, or "" if args is valid.
func (v *SchemaValidator) Validate(args map[string]any) string {
	if v == nil || v.compiled == nil {
		return ""
	}
	if err := v.compiled.Validate(toJSONValue(args)); err != nil {
		return err.Error()
	}
	return ""
}

// toJSONValue round-trips args through JSON so numeric types match what
// jsonschema expects from a decoded JSON document.
func toJSONValue(args map[string]any) any {
	raw, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return args
	}
	return v
}
