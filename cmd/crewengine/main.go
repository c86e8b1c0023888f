// Package main provides the CLI entry point for the crew engine.
//
// crewengine wires together the provider/tool/MCP registries and the
// deferred-execution queue behind a small command surface.
//
// # Basic Usage
//
//	crewengine serve --config crewengine.yaml
//	crewengine migrate --config crewengine.yaml
//	crewengine stats --days 7
//
// # Environment Variables
//
//   - CREWENGINE_CONFIG: path to the configuration file (default: crewengine.yaml)
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY, GROK_API_KEY, DEEPSEEK_API_KEY, GEMINI_API_KEY
//   - CREWENGINE_DEFAULT_PROVIDER, CREWENGINE_STORAGE_DSN, CREWENGINE_QUEUE_ENABLED
//   - CREWENGINE_LOG_ENABLED, CREWENGINE_LOG_LEVEL
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/crewkit/engine/internal/observability"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	shutdownTracing := observability.InstallTracerProvider(observability.TraceConfig{
		ServiceName:    "crewengine",
		ServiceVersion: version,
	})
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Error("tracer provider shutdown failed", "error", err)
		}
	}()

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "crewengine",
		Short:        "crewengine - multi-agent orchestration engine",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildCleanupMemoryCmd(),
		buildCleanupTokensCmd(),
		buildStatsCmd(),
		buildTestProviderCmd(),
	)

	return rootCmd
}

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("CREWENGINE_CONFIG"); env != "" {
		return env
	}
	return "crewengine.yaml"
}
