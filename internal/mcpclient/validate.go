package mcpclient

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidator compiles and caches the real JSON Schema documents MCP
// servers return for discovered tools, so tool-call arguments can be
// validated before dispatch. This is distinct from the tools package's
// own lightweight per-field schema, which has no JSON Schema document to
// validate against.
type SchemaValidator struct {
	cache sync.Map // string(schema json) -> *jsonschema.Schema
}

// NewSchemaValidator constructs an empty SchemaValidator.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{}
}

func (v *SchemaValidator) compile(schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("mcp: encode schema: %w", err)
	}
	key := string(raw)
	if cached, ok := v.cache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	compiled, err := jsonschema.CompileString("schema.json", key)
	if err != nil {
		return nil, fmt.Errorf("mcp: compile schema: %w", err)
	}
	v.cache.Store(key, compiled)
	return compiled, nil
}

// Validate checks arguments against a discovered tool's input schema.
func (v *SchemaValidator) Validate(schema map[string]any, arguments map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	compiled, err := v.compile(schema)
	if err != nil {
		return err
	}
	if err := compiled.Validate(arguments); err != nil {
		return fmt.Errorf("mcp: arguments do not match tool schema: %w", err)
	}
	return nil
}
