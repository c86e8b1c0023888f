// Package tools implements C3: the tool registry, per-field schema
// validation, and the built-in HTTP/Database/Filesystem/MCP tools.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/crewkit/engine/internal/sanitize"
)

// FieldType is one of the schema field types the specification names.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeArray   FieldType = "array"
	TypeInteger FieldType = "integer"
	TypeFloat   FieldType = "float"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
)

// Field describes one input-schema entry.
type Field struct {
	Required  bool
	Type      FieldType
	MaxLength int // 0 means defaultStringMaxLength; only meaningful for TypeString
}

// Schema maps field name to its Field descriptor.
type Schema map[string]Field

// Input is the mapping a caller supplies to Execute.
type Input map[string]any

// Result is the mapping a Tool's execution returns.
type Result map[string]any

// Tool is the capability every built-in and MCP-delegating tool
// implements.
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	Execute(ctx context.Context, input Input) (Result, error)
}

// ErrToolInputInvalid is wrapped with field/reason context by
// ValidationError.
var ErrToolInputInvalid = errors.New("tool input invalid")

// ValidationError names the offending field and the reason.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: field %q: %s", ErrToolInputInvalid, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrToolInputInvalid }

const defaultStringMaxLength = 10_000

// Validate checks input against schema: required fields present, types
// coercible, max_length honored for strings, unknown fields dropped, and
// dangerous text rejected. It returns a new, cleaned Input map.
func Validate(schema Schema, input Input) (Input, error) {
	out := make(Input, len(schema))
	for name, field := range schema {
		raw, present := input[name]
		if !present {
			if field.Required {
				return nil, &ValidationError{Field: name, Reason: "required field missing"}
			}
			continue
		}
		coerced, err := coerce(name, field, raw)
		if err != nil {
			return nil, err
		}
		out[name] = coerced
	}
	return out, nil
}

func coerce(name string, field Field, raw any) (any, error) {
	switch field.Type {
	case TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, &ValidationError{Field: name, Reason: "expected string"}
		}
		maxLen := field.MaxLength
		if maxLen <= 0 {
			maxLen = defaultStringMaxLength
		}
		cleaned := sanitize.Clean(s, maxLen)
		if err := sanitize.Check(cleaned); err != nil {
			return nil, &ValidationError{Field: name, Reason: "dangerous content rejected"}
		}
		return cleaned, nil
	case TypeArray:
		arr, ok := raw.([]any)
		if !ok {
			return nil, &ValidationError{Field: name, Reason: "expected array"}
		}
		return arr, nil
	case TypeInteger:
		switch n := raw.(type) {
		case int:
			return n, nil
		case int64:
			return int(n), nil
		case float64:
			return int(n), nil
		default:
			return nil, &ValidationError{Field: name, Reason: "expected integer"}
		}
	case TypeFloat:
		switch n := raw.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		default:
			return nil, &ValidationError{Field: name, Reason: "expected float"}
		}
	case TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, &ValidationError{Field: name, Reason: "expected boolean"}
		}
		return b, nil
	case TypeObject:
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, &ValidationError{Field: name, Reason: "expected object"}
		}
		return obj, nil
	default:
		return nil, &ValidationError{Field: name, Reason: fmt.Sprintf("unknown schema type %q", field.Type)}
	}
}

// normalizeToolName lowercases and trims a tool identifier for
// case-insensitive registry lookups, following the teacher's
// tool_registry.go convention.
func normalizeToolName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
