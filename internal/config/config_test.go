package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_AppliesDefaultsForOmittedSections(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: sqlite
  dsn: ":memory:"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Streaming.Enabled)
	assert.Equal(t, 4096, cfg.Streaming.BufferSize)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_RejectsMissingStorageDSN(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: sqlite
  dsn: ""
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsMCPServerMissingURL(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: sqlite
  dsn: "app.db"
mcp:
  enabled: true
  servers:
    - id: s1
      name: test
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_EnvOverridesOverrideFileValues(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: sqlite
  dsn: "app.db"
logging:
  level: warn
`)
	t.Setenv("CREWENGINE_LOG_LEVEL", "debug")
	t.Setenv("CREWENGINE_STREAMING_CHUNK_SIZE", "128")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 128, cfg.Streaming.ChunkSize)
}

func TestLoad_ExpandsEnvVarsInFileContents(t *testing.T) {
	t.Setenv("TEST_DSN", "from-env.db")
	path := writeConfig(t, `
storage:
  driver: sqlite
  dsn: "${TEST_DSN}"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Storage.DSN)
}

func TestLoad_ProviderAPIKeyEnvOverride(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: sqlite
  dsn: "app.db"
`)
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Contains(t, cfg.Providers.Drivers, "anthropic")
	assert.Equal(t, "sk-test-key", cfg.Providers.Drivers["anthropic"].APIKey)
}

func TestDefault_MatchesSpecifiedDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, time.Hour, cfg.Memory.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.Memory.CleanupInterval)
	assert.False(t, cfg.Queue.Enabled)
	assert.False(t, cfg.Cron.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Cron.PollInterval)
}

func TestLoad_RejectsCronFlowMissingCronExpression(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: sqlite
  dsn: "app.db"
cron:
  enabled: true
  flows:
    - name: nightly-report
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_CronEnvOverride(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: sqlite
  dsn: "app.db"
`)
	t.Setenv("CREWENGINE_CRON_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Cron.Enabled)
}
