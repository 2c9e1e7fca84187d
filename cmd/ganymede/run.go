package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"pilothouse-hq/ganymede/pkg/audit"
	auditstorage "pilothouse-hq/ganymede/pkg/audit/storage"
	"pilothouse-hq/ganymede/pkg/config"
	"pilothouse-hq/ganymede/pkg/engine"
	"pilothouse-hq/ganymede/pkg/limits"
	limitstorage "pilothouse-hq/ganymede/pkg/limits/storage"
	"pilothouse-hq/ganymede/pkg/policy/store"
	"pilothouse-hq/ganymede/pkg/server"
	"pilothouse-hq/ganymede/pkg/telemetry/logging"
	"pilothouse-hq/ganymede/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	policyDir     string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Ganymede policy server",
	Long: `Start the Ganymede policy server with the specified configuration.

The server loads policies from the configured directory, watches them for
changes, and serves the evaluation and management API.

Examples:
  # Start with default config
  ganymede run

  # Start with custom config
  ganymede run --config /etc/ganymede/config.yaml

  # Override the policy directory
  ganymede run --policies ./policies

  # Validate config without starting the server
  ganymede run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&runFlags.policyDir, "policies", "", "override policy directory")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if runFlags.policyDir != "" {
		cfg.Policy.Dir = runFlags.policyDir
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Telemetry.Logging, nil)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	location, err := time.LoadLocation(cfg.Policy.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Policy.Timezone, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Policy store
	st := store.New(
		store.WithTimezone(location),
		store.WithLogger(logger.With("component", "policy.store")),
	)
	if err := store.LoadIntoStore(st, cfg.Policy.Dir); err != nil {
		return fmt.Errorf("failed to load policies from %q: %w", cfg.Policy.Dir, err)
	}
	fmt.Printf("✓ Policies loaded (%d policies)\n", st.Snapshot().Len())

	if cfg.Policy.Watch {
		watcher := store.NewWatcher(st, cfg.Policy.Dir, cfg.Policy.DebounceInterval,
			logger.With("component", "policy.watcher"))
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				logger.Error("policy watcher stopped", "error", err)
			}
		}()
	}

	// Limit tracker, optionally persisted
	tracker := limits.NewTracker(location, logger.With("component", "limits"))
	if cfg.Limits.Backend == "sqlite" {
		backend, err := limitstorage.NewSQLiteBackend(cfg.Limits.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open limits database: %w", err)
		}
		defer backend.Close()

		persister := limitstorage.NewPersister(tracker, backend, cfg.Limits.FlushInterval,
			logger.With("component", "limits.persister"))
		if err := persister.Restore(ctx); err != nil {
			logger.Warn("failed to restore limit counters", "error", err)
		}
		go persister.Run(ctx)
		fmt.Println("✓ Limit persistence enabled")
	}

	// Audit storage and retention
	var auditStore audit.Storage
	switch cfg.Audit.Backend {
	case "sqlite":
		auditStore, err = auditstorage.NewSQLiteStorage(cfg.Audit.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open audit database: %w", err)
		}
	case "memory":
		auditStore = auditstorage.NewMemoryStorage()
	default:
		return fmt.Errorf("unsupported audit backend: %s", cfg.Audit.Backend)
	}
	defer auditStore.Close()
	fmt.Println("✓ Audit store initialized")

	if cfg.Audit.RetentionDays > 0 {
		pruner := audit.NewPruner(auditStore, audit.RetentionConfig{
			RetentionDays: cfg.Audit.RetentionDays,
			PruneSchedule: cfg.Audit.PruneSchedule,
		}, logger.With("component", "audit.retention"))
		if err := pruner.Start(ctx); err != nil {
			logger.Warn("failed to start retention scheduler", "error", err)
		} else {
			defer pruner.Stop()
		}
	}

	// Metrics
	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(nil)
		collector.SetPoliciesLoaded(st.Snapshot().Len())
	}

	// Engine
	eng := engine.New(st, tracker,
		engine.WithLogger(logger.With("component", "engine")),
		engine.WithDedupTTL(cfg.Engine.DedupTTL),
	)

	// HTTP server, blocks until shutdown
	srv := server.NewServer(&cfg.Server, &cfg.Telemetry.Metrics, eng, st, auditStore, collector,
		logger.With("component", "server"))
	fmt.Printf("✓ Listening on %s\n", cfg.Server.ListenAddress)
	return srv.Start(ctx)
}
