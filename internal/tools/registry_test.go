package tools

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes input" }
func (echoTool) Schema() Schema {
	return Schema{"message": {Required: true, Type: TypeString, MaxLength: 100}}
}
func (echoTool) Execute(ctx context.Context, input Input) (Result, error) {
	return Result{"message": input["message"]}, nil
}

func TestRegistry_RegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool{}))

	out, err := r.Execute(context.Background(), "echo", Input{"message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out["message"])
}

func TestRegistry_ExecuteUnknownToolFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "missing", Input{})
	require.Error(t, err)
}

func TestRegistry_ExecuteMissingRequiredFieldFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool{}))
	_, err := r.Execute(context.Background(), "echo", Input{})
	require.ErrorIs(t, err, ErrToolInputInvalid)
}

func TestRegistry_RejectsOverlongToolName(t *testing.T) {
	r := NewRegistry()
	err := r.Register(nameTool(strings.Repeat("a", MaxToolNameLength+1)))
	require.Error(t, err)
}

func TestRegistry_ExecuteRejectsExcessiveFieldCount(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool{}))
	input := Input{"message": "hi"}
	for i := 0; i < MaxInputFieldCount; i++ {
		input[strconv.Itoa(i)] = i
	}
	_, err := r.Execute(context.Background(), "echo", input)
	require.Error(t, err)
}

func TestRegistry_UnregisterRemovesTool(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool{}))
	r.Unregister("echo")
	_, ok := r.Get("echo")
	assert.False(t, ok)
}

type nameTool string

func (n nameTool) Name() string                                            { return string(n) }
func (n nameTool) Description() string                                     { return "" }
func (n nameTool) Schema() Schema                                          { return Schema{} }
func (n nameTool) Execute(ctx context.Context, input Input) (Result, error) { return Result{}, nil }

func TestValidate_DangerousContentRejected(t *testing.T) {
	schema := Schema{"text": {Required: true, Type: TypeString}}
	_, err := Validate(schema, Input{"text": "<script>alert(1)</script>"})
	require.ErrorIs(t, err, ErrToolInputInvalid)
}

func TestValidate_DropsUnknownFields(t *testing.T) {
	schema := Schema{"a": {Required: true, Type: TypeString}}
	out, err := Validate(schema, Input{"a": "x", "b": "y"})
	require.NoError(t, err)
	_, present := out["b"]
	assert.False(t, present)
}

func TestValidate_CoercesObjectType(t *testing.T) {
	schema := Schema{"payload": {Required: true, Type: TypeObject}}
	out, err := Validate(schema, Input{"payload": map[string]any{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": "v"}, out["payload"])
}
