// Package registry assembles the process-wide dependency graph: storage,
// provider/tool/MCP registries, the token-usage tracker, and the
// deferred-execution queue, all wired from a single config.Config. It
// replaces package-level globals with one explicit struct any command or
// server entrypoint constructs once at startup and tears down on exit.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/crewkit/engine/internal/config"
	"github.com/crewkit/engine/internal/mcpclient"
	"github.com/crewkit/engine/internal/memory"
	"github.com/crewkit/engine/internal/providers"
	"github.com/crewkit/engine/internal/queue"
	"github.com/crewkit/engine/internal/storage"
	"github.com/crewkit/engine/internal/tools"
	"github.com/crewkit/engine/internal/usage"
)

// Registry holds every long-lived dependency a server or CLI command
// needs, constructed once from a config.Config.
type Registry struct {
	Config *config.Config
	Logger *slog.Logger

	DB *sql.DB

	Providers *providers.Registry
	Tools     *tools.Registry
	MCP       *mcpclient.Client
	Memory    *memory.Store
	Usage     *usage.Tracker
	Queue     *queue.Store
	Cron      *queue.CronScheduler

	// Metrics is this instance's own Prometheus registry (not the global
	// DefaultRegisterer), so constructing more than one Registry in the
	// same process — as tests do — never collides over metric names.
	Metrics *prometheus.Registry
}

// New opens storage, runs migrations, and wires every section of cfg
// into its corresponding component. The caller owns the returned
// Registry's lifetime and must call Close when done.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}

	storageCfg := storage.Config{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN}
	db, err := storage.Open(ctx, storageCfg)
	if err != nil {
		return nil, fmt.Errorf("registry: open storage: %w", err)
	}
	if err := storage.Migrate(ctx, db, cfg.Storage.Driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: migrate storage: %w", err)
	}

	r := &Registry{Config: cfg, Logger: logger, DB: db, Metrics: prometheus.NewRegistry()}

	r.Providers = buildProviders(ctx, cfg.Providers, logger)
	r.MCP = buildMCPClient(cfg.MCP)
	r.Tools = buildTools(db, r.MCP, cfg.MCP)
	r.Memory = memory.New(db, cfg.Storage.Driver, logger)
	r.Usage = usage.New(db, cfg.Storage.Driver, usage.Pricing{}, r.Metrics)

	if cfg.Queue.Enabled || cfg.Cron.Enabled {
		r.Queue = queue.NewStore(db, cfg.Storage.Driver)
	}
	if cfg.Cron.Enabled {
		cron, err := buildCronScheduler(cfg.Cron, r.Queue, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("registry: build cron scheduler: %w", err)
		}
		r.Cron = cron
	}

	return r, nil
}

// Close releases the underlying database connection. Safe to call once.
func (r *Registry) Close() error {
	if r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// buildProviders constructs one provider per configured driver entry,
// recognizing the same driver names the specification's provider table
// names. An unrecognized driver name whose entry sets a base URL is built
// as an OpenAI-compatible provider; one without a base URL is logged and
// skipped rather than failing startup, since a misconfigured secondary
// provider shouldn't block the primary one from serving.
func buildProviders(ctx context.Context, cfg config.ProvidersConfig, logger *slog.Logger) *providers.Registry {
	reg := providers.NewRegistry()
	for name, entry := range cfg.Drivers {
		p, err := newProvider(ctx, name, entry)
		if err != nil {
			logger.Error("registry: skipping provider", "driver", name, "error", err)
			continue
		}
		if p != nil {
			reg.Register(p)
		}
	}
	return reg
}

func newProvider(ctx context.Context, name string, entry config.ProviderEntry) (providers.Provider, error) {
	switch name {
	case "anthropic":
		return providers.NewAnthropic(entry.APIKey, entry.DefaultModel, entry.RequestsPerSecond), nil
	case "openai":
		return providers.NewOpenAI(entry.APIKey, entry.DefaultModel, entry.RequestsPerSecond), nil
	case "grok":
		return providers.NewGrok(entry.APIKey, entry.DefaultModel, entry.RequestsPerSecond), nil
	case "deepseek":
		return providers.NewDeepSeek(entry.APIKey, entry.DefaultModel, entry.RequestsPerSecond), nil
	case "gemini":
		return providers.NewGemini(ctx, entry.APIKey, entry.DefaultModel, entry.RequestsPerSecond)
	case "ollama":
		return providers.NewOllama(entry.BaseURL, entry.DefaultModel, entry.RequestsPerSecond), nil
	case "bedrock":
		return providers.NewBedrock(ctx, entry.Region, entry.DefaultModel, entry.RequestsPerSecond)
	default:
		if entry.BaseURL == "" {
			return nil, fmt.Errorf("registry: unknown provider driver %q", name)
		}
		return providers.NewOpenAICompatible(name, entry.APIKey, entry.BaseURL, entry.DefaultModel, "", entry.RequestsPerSecond), nil
	}
}

// buildCronScheduler constructs a CronScheduler and registers every
// configured scheduled flow against it. The scheduler is returned
// unstarted; the caller (cmd/crewengine's serve command) runs it
// alongside the queue worker.
func buildCronScheduler(cfg config.CronConfig, store *queue.Store, logger *slog.Logger) (*queue.CronScheduler, error) {
	scheduler := queue.NewCronScheduler(store)
	if cfg.PollInterval > 0 {
		scheduler.PollInterval = cfg.PollInterval
	}
	scheduler.Logger = logger
	now := time.Now().UTC()
	for _, entry := range cfg.Flows {
		sf, err := queue.NewScheduledFlow(entry.Name, entry.Cron, entry.Flow, now)
		if err != nil {
			return nil, fmt.Errorf("cron flow %q: %w", entry.Name, err)
		}
		scheduler.Add(sf)
	}
	return scheduler, nil
}

// buildMCPClient registers every configured MCP server with a single
// client instance, matching the 1:1 (process, client) relationship the
// teacher's own external-integration clients use.
func buildMCPClient(cfg config.MCPConfig) *mcpclient.Client {
	client := mcpclient.NewClient()
	if !cfg.Enabled {
		return client
	}
	for _, server := range cfg.Servers {
		client.AddServer(server.MCPServerConfig)
	}
	return client
}

// buildTools registers every built-in tool. The MCP tool is wrapped with
// an allowlistedMCPTool per server when the configuration names a
// restricted action set, so a misconfigured or compromised agent cannot
// reach MCP actions the deployment never opted into.
func buildTools(db *sql.DB, mcp *mcpclient.Client, cfg config.MCPConfig) *tools.Registry {
	reg := tools.NewRegistry()
	_ = reg.Register(tools.NewHTTPTool())
	_ = reg.Register(tools.NewFilesystemTool("."))
	if db != nil {
		_ = reg.Register(tools.NewDatabaseTool(db))
	}
	if cfg.Enabled {
		allowed := make(map[string][]string, len(cfg.Servers))
		for _, server := range cfg.Servers {
			if len(server.Actions) > 0 {
				allowed[server.ID] = server.Actions
			}
		}
		mcpTool := tools.NewMCPTool(mcp)
		if len(allowed) > 0 {
			_ = reg.Register(newAllowlistedMCPTool(mcpTool, allowed))
		} else {
			_ = reg.Register(mcpTool)
		}
	}
	return reg
}
