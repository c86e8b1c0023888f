package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crewkit/engine/internal/config"
	"github.com/crewkit/engine/internal/providers"
	"github.com/crewkit/engine/internal/queue"
	"github.com/crewkit/engine/internal/registry"
	"github.com/crewkit/engine/internal/storage"
)

// =============================================================================
// Serve
// =============================================================================

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the crew engine server",
		Long: `Start the crew engine server.

Loads configuration, opens storage, and runs migrations. When queue.enabled
is set, also starts the deferred-execution worker, polling for crew and
flow jobs enqueued by another process. When cron.enabled is set, also
starts the scheduled-flow dispatcher, enqueueing a job each time one of
cron.flows comes due.

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg, err := registry.New(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}
	defer reg.Close()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("crewengine started",
		"storage", cfg.Storage.Driver,
		"queue_enabled", cfg.Queue.Enabled,
		"cron_enabled", cfg.Cron.Enabled,
	)

	if !cfg.Queue.Enabled && !cfg.Cron.Enabled {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		return nil
	}

	errCh := make(chan error, 2)
	running := 0

	if cfg.Queue.Enabled {
		worker := queue.NewWorker(reg.Queue, reg.Providers, reg.Memory, reg.Tools, nil)
		worker.PollInterval = cfg.Queue.PollInterval
		running++
		go func() { errCh <- worker.Run(ctx) }()
	}
	if cfg.Cron.Enabled {
		running++
		go func() { errCh <- reg.Cron.Run(ctx) }()
	}

	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && ctx.Err() == nil {
			cancel()
			return fmt.Errorf("crewengine: %w", err)
		}
	}
	slog.Info("crewengine stopped")
	return nil
}

// =============================================================================
// Migrate
// =============================================================================

func buildMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runMigrate(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := storage.Open(ctx, storage.Config{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()
	if err := storage.Migrate(ctx, db, cfg.Storage.Driver); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	fmt.Println("migrations applied")
	return nil
}

// =============================================================================
// Cleanup
// =============================================================================

func buildCleanupMemoryCmd() *cobra.Command {
	var (
		configPath string
		days       int
	)

	cmd := &cobra.Command{
		Use:   "cleanup-memory",
		Short: "Delete expired memory records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanupMemory(cmd.Context(), resolveConfigPath(configPath), days)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().IntVar(&days, "days", 0, "accepted for CLI symmetry; memory cleanup is TTL-driven, not day-windowed")
	return cmd
}

func runCleanupMemory(ctx context.Context, configPath string, days int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	reg, err := registry.New(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}
	defer reg.Close()

	if days > 0 {
		slog.Warn("--days ignored: memory records expire by their own TTL, not a fixed retention window")
	}

	n, err := reg.Memory.Cleanup(ctx)
	if err != nil {
		return fmt.Errorf("cleanup memory: %w", err)
	}
	fmt.Printf("removed %d expired memory record(s)\n", n)
	return nil
}

func buildCleanupTokensCmd() *cobra.Command {
	var (
		configPath string
		days       int
	)

	cmd := &cobra.Command{
		Use:   "cleanup-tokens",
		Short: "Delete token-usage rows older than --days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanupTokens(cmd.Context(), resolveConfigPath(configPath), days)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().IntVar(&days, "days", 90, "retention window in days")
	return cmd
}

func runCleanupTokens(ctx context.Context, configPath string, days int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	reg, err := registry.New(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}
	defer reg.Close()

	n, err := reg.Usage.Cleanup(ctx, days)
	if err != nil {
		return fmt.Errorf("cleanup tokens: %w", err)
	}
	fmt.Printf("removed %d token-usage row(s) older than %d days\n", n, days)
	return nil
}

// =============================================================================
// Stats
// =============================================================================

func buildStatsCmd() *cobra.Command {
	var (
		configPath string
		days       int
		provider   string
		model      string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show token-usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), resolveConfigPath(configPath), provider, model, days)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().IntVar(&days, "days", 0, "window in days (0 = all time)")
	cmd.Flags().StringVar(&provider, "provider", "", "filter by provider name")
	cmd.Flags().StringVar(&model, "model", "", "filter by model name")
	return cmd
}

func runStats(ctx context.Context, configPath, provider, model string, days int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	reg, err := registry.New(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}
	defer reg.Close()

	rows, err := reg.Usage.GetStats(ctx, provider, model, days)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	if len(rows) == 0 {
		fmt.Println("no usage recorded")
		return nil
	}
	for _, r := range rows {
		fmt.Printf("%-12s %-20s requests=%-6d tokens=%-10d cost=%.4f\n", r.Provider, r.Model, r.Requests, r.TotalTokens, r.TotalCost)
	}
	return nil
}

// =============================================================================
// Test-provider
// =============================================================================

func buildTestProviderCmd() *cobra.Command {
	var (
		configPath string
		model      string
	)

	cmd := &cobra.Command{
		Use:   "test-provider <name>",
		Short: "Send a one-off prompt to a configured provider and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTestProvider(cmd.Context(), resolveConfigPath(configPath), args[0], model)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model override (defaults to the provider's configured default)")
	return cmd
}

func runTestProvider(ctx context.Context, configPath, name, model string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	reg, err := registry.New(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}
	defer reg.Close()

	provider, err := reg.Providers.Resolve(name)
	if err != nil {
		return fmt.Errorf("resolve provider %q: %w", name, err)
	}

	opts := providers.DefaultOptions()
	opts.Model = model

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	text, usage, err := provider.Generate(callCtx, providers.ModeChat, "Say hello in one short sentence.", opts)
	if err != nil {
		return fmt.Errorf("provider %q: %w", name, err)
	}

	fmt.Println(text)
	if usage != nil {
		fmt.Fprintf(os.Stderr, "tokens: prompt=%d completion=%d\n", usage.PromptTokens, usage.CompletionTokens)
	}
	return nil
}
