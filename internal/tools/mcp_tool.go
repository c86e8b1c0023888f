package tools

import (
	"context"
	"fmt"

	"github.com/crewkit/engine/internal/mcpclient"
)

// MCPTool is the built-in tool that delegates execution to an external
// MCP server via C10, identified by server id, action, and parameters.
// The action maps onto the server's advertised tools/call capability;
// arguments are validated against the server's discovered input schema
// when one is available.
type MCPTool struct {
	client    *mcpclient.Client
	validator *mcpclient.SchemaValidator
}

// NewMCPTool wires a built-in tool to an existing MCP client.
func NewMCPTool(client *mcpclient.Client) *MCPTool {
	return &MCPTool{client: client, validator: mcpclient.NewSchemaValidator()}
}

func (t *MCPTool) Name() string { return "mcp" }

func (t *MCPTool) Description() string {
	return "Delegates a named action to an external MCP server, passing through structured parameters."
}

func (t *MCPTool) Schema() Schema {
	return Schema{
		"server_id":  {Required: true, Type: TypeString, MaxLength: 256},
		"action":     {Required: true, Type: TypeString, MaxLength: 256},
		"parameters": {Required: false, Type: TypeObject},
	}
}

// Execute calls tools/call on the configured server, passing parameters
// through as the JSON-RPC call's structured arguments.
func (t *MCPTool) Execute(ctx context.Context, input Input) (Result, error) {
	serverID, _ := input["server_id"].(string)
	action, _ := input["action"].(string)
	if serverID == "" {
		return nil, &ValidationError{Field: "server_id", Reason: "required field missing"}
	}
	if action == "" {
		return nil, &ValidationError{Field: "action", Reason: "required field missing"}
	}

	params, _ := input["parameters"].(map[string]any)

	if schema, err := t.discoverSchema(ctx, serverID, action); err == nil && schema != nil {
		if verr := t.validator.Validate(schema, params); verr != nil {
			return nil, &ValidationError{Field: "parameters", Reason: verr.Error()}
		}
	}

	resp, err := t.client.CallTool(ctx, serverID, action, params)
	if err != nil {
		return nil, fmt.Errorf("mcp tool %q on server %q: %w", action, serverID, err)
	}
	return Result{"result": resp.Result}, nil
}

// discoverSchema looks up action's input schema from the server's cached
// tools/list result, if the server has one and advertises it.
func (t *MCPTool) discoverSchema(ctx context.Context, serverID, action string) (map[string]any, error) {
	if !t.client.SupportsCapability(serverID, "tools") {
		return nil, nil
	}
	listed, err := t.client.ListTools(ctx, serverID)
	if err != nil {
		return nil, err
	}
	entries, ok := listed.([]any)
	if !ok {
		return nil, nil
	}
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if name, _ := entry["name"].(string); name == action {
			schema, _ := entry["inputSchema"].(map[string]any)
			return schema, nil
		}
	}
	return nil, nil
}
