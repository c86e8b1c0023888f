package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewkit/engine/internal/config"
	"github.com/crewkit/engine/internal/queue"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.DSN = filepath.Join(t.TempDir(), "registry.db")
	cfg.Providers.Drivers = map[string]config.ProviderEntry{
		"anthropic": {APIKey: "test-key", DefaultModel: "claude-3"},
	}
	return &cfg
}

func TestNew_WiresProvidersToolsAndMemory(t *testing.T) {
	cfg := testConfig(t)
	r, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Providers.Resolve("anthropic")
	require.NoError(t, err)

	for _, name := range []string{"http", "filesystem", "database"} {
		_, ok := r.Tools.Get(name)
		assert.True(t, ok, "expected built-in tool %q to be registered", name)
	}
	assert.NotNil(t, r.Memory)
	assert.NotNil(t, r.Usage)
	assert.Nil(t, r.Queue, "queue should be nil when disabled")
}

func TestNew_WiresQueueStoreWhenEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Queue.Enabled = true
	r, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer r.Close()
	assert.NotNil(t, r.Queue)
}

func TestNew_SkipsUnknownProviderDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Providers.Drivers["mystery"] = config.ProviderEntry{APIKey: "x"}
	r, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Providers.Resolve("mystery")
	assert.Error(t, err)
}

func TestNew_WiresCronSchedulerWhenEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cron.Enabled = true
	cfg.Cron.Flows = []config.ScheduledFlowConfig{
		{Name: "nightly-report", Cron: "@daily", Flow: queue.FlowDescriptor{}},
	}
	r, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer r.Close()

	require.NotNil(t, r.Cron)
	require.NotNil(t, r.Queue, "cron requires a queue store to enqueue into")
}

func TestNew_RejectsInvalidCronExpression(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cron.Enabled = true
	cfg.Cron.Flows = []config.ScheduledFlowConfig{
		{Name: "broken", Cron: "not-a-cron-expression", Flow: queue.FlowDescriptor{}},
	}
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestBuildTools_WrapsMCPToolWithAllowlist(t *testing.T) {
	cfg := testConfig(t)
	cfg.MCP.Enabled = true
	cfg.MCP.Servers = []config.MCPServerEntry{
		{Actions: []string{"search"}},
	}
	cfg.MCP.Servers[0].ID = "docs"
	cfg.MCP.Servers[0].URL = "https://example.invalid/mcp"

	r, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer r.Close()

	tool, ok := r.Tools.Get("mcp")
	require.True(t, ok)

	_, err = tool.Execute(context.Background(), map[string]any{
		"server_id": "docs",
		"action":    "delete-everything",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not permitted")
}
