// Package config implements C12's configuration aggregate: a single
// YAML-backed Config struct composed of section structs, loaded from
// disk and overlaid with recognized environment variables, following the
// teacher's internal/config/config.go shape (section structs, "yaml:..."
// tags, applyDefaults/applyEnvOverrides separated from parsing).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crewkit/engine/internal/queue"
	"github.com/crewkit/engine/internal/storage"
	"github.com/crewkit/engine/pkg/models"
)

// Config is the top-level aggregate every ambient and domain concern
// reads its settings from.
type Config struct {
	Providers ProvidersConfig `yaml:"providers"`
	Storage   StorageConfig   `yaml:"storage"`
	MCP       MCPConfig       `yaml:"mcp"`
	Queue     QueueConfig     `yaml:"queue"`
	Cron      CronConfig      `yaml:"cron"`
	Memory    MemoryConfig    `yaml:"memory"`
	Streaming StreamingConfig `yaml:"streaming"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ProvidersConfig carries per-driver credentials and the default driver
// name consulted when a Crew/Agent does not name one explicitly.
type ProvidersConfig struct {
	Default string                   `yaml:"default"`
	Drivers map[string]ProviderEntry `yaml:"drivers"`
}

// ProviderEntry is one configured backend: its API key/host and default
// model.
type ProviderEntry struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	DefaultModel      string  `yaml:"default_model"`
	Region            string  `yaml:"region"`              // bedrock only
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 disables pacing
}

// StorageConfig selects and configures the durable backend.
type StorageConfig struct {
	Driver storage.Driver `yaml:"driver"`
	DSN    string         `yaml:"dsn"`
}

// MCPConfig lists the auxiliary tool servers the MCP client may reach.
// Each entry is a models.MCPServerConfig plus the per-server allowed-
// actions allowlist the specification's environment-variable table names.
type MCPConfig struct {
	Enabled bool             `yaml:"enabled"`
	Servers []MCPServerEntry `yaml:"servers"`
}

// MCPServerEntry wraps the wire-level server config with the action
// allowlist, which is a deployment-time concern, not part of the
// MCP protocol config itself.
type MCPServerEntry struct {
	models.MCPServerConfig `yaml:",inline"`
	Actions                []string `yaml:"actions"`
}

// QueueConfig toggles the deferred-execution bridge and its poll cadence.
type QueueConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// CronConfig lists named Flows that dispatch on a recurring schedule
// instead of (or in addition to) on-demand enqueue, supplementing C11
// with the scheduled-flow path.
type CronConfig struct {
	Enabled      bool                  `yaml:"enabled"`
	PollInterval time.Duration         `yaml:"poll_interval"`
	Flows        []ScheduledFlowConfig `yaml:"flows"`
}

// ScheduledFlowConfig binds a cron expression to a flow descriptor.
type ScheduledFlowConfig struct {
	Name string               `yaml:"name"`
	Cron string               `yaml:"cron"`
	Flow queue.FlowDescriptor `yaml:"flow"`
}

// MemoryConfig governs the C4 store's cache TTL and cleanup cadence.
type MemoryConfig struct {
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// StreamingConfig governs the C2 envelope's buffering and pacing.
type StreamingConfig struct {
	Enabled    bool          `yaml:"enabled"`
	BufferSize int           `yaml:"buffer_size"`
	ChunkSize  int           `yaml:"chunk_size"`
	Timeout    time.Duration `yaml:"timeout"`
	ChunkDelay time.Duration `yaml:"chunk_delay"`
}

// LoggingConfig governs the ambient slog handler.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
}

// Default returns a Config matching the specification's defaults: sqlite
// storage, streaming enabled with a 4096-byte buffer, logging at info.
func Default() Config {
	return Config{
		Storage: StorageConfig{Driver: storage.DriverSQLite, DSN: "crewengine.db"},
		Queue:   QueueConfig{Enabled: false, PollInterval: time.Second},
		Cron:    CronConfig{Enabled: false, PollInterval: 10 * time.Second},
		Memory:  MemoryConfig{CacheTTL: time.Hour, CleanupInterval: 24 * time.Hour},
		Streaming: StreamingConfig{
			Enabled: true, BufferSize: 4096, ChunkSize: 256,
			Timeout: 30 * time.Second, ChunkDelay: 0,
		},
		Logging: LoggingConfig{Enabled: true, Level: "info"},
	}
}

// Load reads path, expands ${VAR} references the way the teacher's
// loader does, applies defaults, then layers recognized environment
// variables on top (env wins over file, matching the teacher's
// applyEnvOverrides ordering).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides layers the recognized environment variables from the
// specification's §201 table on top of the file-sourced Config.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CREWENGINE_DEFAULT_PROVIDER")); v != "" {
		cfg.Providers.Default = v
	}
	for driver := range cfg.Providers.Drivers {
		envKey := "CREWENGINE_" + strings.ToUpper(driver) + "_API_KEY"
		if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
			entry := cfg.Providers.Drivers[driver]
			entry.APIKey = v
			cfg.Providers.Drivers[driver] = entry
		}
	}
	// well-known provider keys are also recognized by their conventional
	// names, independent of whether the driver is configured yet
	for driver, envKey := range map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"grok":      "GROK_API_KEY",
		"deepseek":  "DEEPSEEK_API_KEY",
		"gemini":    "GEMINI_API_KEY",
	} {
		v := strings.TrimSpace(os.Getenv(envKey))
		if v == "" {
			continue
		}
		if cfg.Providers.Drivers == nil {
			cfg.Providers.Drivers = make(map[string]ProviderEntry)
		}
		entry := cfg.Providers.Drivers[driver]
		entry.APIKey = v
		cfg.Providers.Drivers[driver] = entry
	}

	if v := strings.TrimSpace(os.Getenv("CREWENGINE_STORAGE_DSN")); v != "" {
		cfg.Storage.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("CREWENGINE_QUEUE_ENABLED")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.Queue.Enabled = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("CREWENGINE_CRON_ENABLED")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.Cron.Enabled = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("CREWENGINE_LOG_ENABLED")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.Logging.Enabled = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("CREWENGINE_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("CREWENGINE_MEMORY_CACHE_TTL")); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Memory.CacheTTL = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("CREWENGINE_STREAMING_ENABLED")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.Streaming.Enabled = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("CREWENGINE_STREAMING_BUFFER_SIZE")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Streaming.BufferSize = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("CREWENGINE_STREAMING_CHUNK_SIZE")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Streaming.ChunkSize = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("CREWENGINE_STREAMING_TIMEOUT")); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Streaming.Timeout = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("CREWENGINE_STREAMING_CHUNK_DELAY")); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Streaming.ChunkDelay = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("CREWENGINE_MCP_ENABLED")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.MCP.Enabled = parsed
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Storage.Driver != storage.DriverSQLite && cfg.Storage.Driver != storage.DriverPostgres {
		return fmt.Errorf("config: unknown storage driver %q", cfg.Storage.Driver)
	}
	if cfg.Storage.DSN == "" {
		return fmt.Errorf("config: storage.dsn must not be empty")
	}
	for i, server := range cfg.MCP.Servers {
		if server.ID == "" {
			return fmt.Errorf("config: mcp.servers[%d].id must not be empty", i)
		}
		if server.URL == "" {
			return fmt.Errorf("config: mcp.servers[%d].url must not be empty", i)
		}
	}
	for i, sf := range cfg.Cron.Flows {
		if sf.Name == "" {
			return fmt.Errorf("config: cron.flows[%d].name must not be empty", i)
		}
		if sf.Cron == "" {
			return fmt.Errorf("config: cron.flows[%d].cron must not be empty", i)
		}
	}
	return nil
}
