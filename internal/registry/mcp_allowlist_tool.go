package registry

import (
	"context"
	"fmt"

	"github.com/crewkit/engine/internal/tools"
)

// allowlistedMCPTool wraps the built-in MCP tool with a per-server
// allowed-action set, rejecting any server_id/action pair the
// deployment's configuration did not name. An empty actions list for a
// configured server means no restriction.
type allowlistedMCPTool struct {
	inner   tools.Tool
	allowed map[string][]string
}

func newAllowlistedMCPTool(inner tools.Tool, allowed map[string][]string) *allowlistedMCPTool {
	return &allowlistedMCPTool{inner: inner, allowed: allowed}
}

func (t *allowlistedMCPTool) Name() string        { return t.inner.Name() }
func (t *allowlistedMCPTool) Description() string { return t.inner.Description() }
func (t *allowlistedMCPTool) Schema() tools.Schema { return t.inner.Schema() }

func (t *allowlistedMCPTool) Execute(ctx context.Context, input tools.Input) (tools.Result, error) {
	serverID, _ := input["server_id"].(string)
	action, _ := input["action"].(string)

	if actions, restricted := t.allowed[serverID]; restricted {
		allowed := false
		for _, a := range actions {
			if a == action {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, fmt.Errorf("mcp tool: action %q not permitted on server %q", action, serverID)
		}
	}

	return t.inner.Execute(ctx, input)
}
