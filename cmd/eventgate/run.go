package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"mercator-hq/eventgate/pkg/cli"
	"mercator-hq/eventgate/pkg/config"
	"mercator-hq/eventgate/pkg/providers"
	"mercator-hq/eventgate/pkg/routing"
	"mercator-hq/eventgate/pkg/security/auth"
	"mercator-hq/eventgate/pkg/security/secrets"
	eventtls "mercator-hq/eventgate/pkg/security/tls"
	"mercator-hq/eventgate/pkg/server"
	"mercator-hq/eventgate/pkg/store/seed"
	"mercator-hq/eventgate/pkg/telemetry/health"
	"mercator-hq/eventgate/pkg/telemetry/logging"
	"mercator-hq/eventgate/pkg/telemetry/metrics"
	"mercator-hq/eventgate/pkg/telemetry/tracing"
	"mercator-hq/eventgate/pkg/usage"
	"mercator-hq/eventgate/pkg/usage/retention"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	storeBackend  string
	seedFile      string
	noWatch       bool
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway",
	Long: `Start the gateway with the specified configuration.

Examples:
  # Start with default config
  eventgate run

  # Development run on the in-memory store, seeded from a file
  eventgate run --store memory --seed catalog.yaml

  # Validate config and open the stores without serving
  eventgate run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&runFlags.storeBackend, "store", "", "override store backend (sqlite, memory)")
	runCmd.Flags().StringVar(&runFlags.seedFile, "seed", "", "catalog seed file applied at startup")
	runCmd.Flags().BoolVar(&runFlags.noWatch, "no-watch", false, "do not reload the config file on change")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and open stores without serving")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	switch {
	case runFlags.logLevel != "":
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	case verbose:
		cfg.Telemetry.Logging.Level = "debug"
	}
	if runFlags.storeBackend != "" {
		cfg.Store.Backend = runFlags.storeBackend
	}

	levelVar := new(slog.LevelVar)
	logCfg := logging.FromConfig(&cfg.Telemetry.Logging)
	logCfg.LevelVar = levelVar
	if _, err := logging.Setup(logCfg); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to initialize tracing: %w", err))
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, registry)

	secretsMgr, err := secrets.NewManagerFromConfig(cfg.Security.Secrets)
	if err != nil {
		return cli.NewConfigError("security.secrets", err.Error())
	}
	defer secretsMgr.Close()

	be, err := openBackend(ctx, cfg, secretsMgr)
	if err != nil {
		return err
	}
	defer be.Close()

	if runFlags.seedFile != "" {
		catalog, err := seed.Load(runFlags.seedFile)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		res, err := catalog.Apply(ctx, be.store, secretsMgr.ResolveReferences, nil)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to seed catalog: %w", err))
		}
		slog.Info("catalog seeded", "file", runFlags.seedFile, "events", res.Events, "deployments", res.Deployments)
	}

	tlsConfig, certReloader, err := eventtls.ServerConfig(&cfg.Security.TLS)
	if err != nil {
		return cli.NewConfigError("security.tls", err.Error())
	}
	if certReloader != nil {
		defer certReloader.Close()
	}

	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid, stores opened")
		return nil
	}

	feed := usage.NewFeed(cfg.Admin.FeedBuffer)
	sink := usage.NewSink(be.recorder, feed, collector)
	forwarder := providers.New(&cfg.Upstream, sink, collector)
	defer forwarder.Close()

	authResolver := auth.NewResolver(be.store, auth.Config{
		AuthorizedTTL:   cfg.Cache.AuthorizedTTL,
		UnauthorizedTTL: cfg.Cache.UnauthorizedTTL,
	}, collector)
	catalogResolver := routing.NewResolver(be.store, routing.Config{
		MinTTL: cfg.Cache.CatalogMinTTL,
		MaxTTL: cfg.Cache.CatalogMaxTTL,
	}, collector)

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.RegisterCheck("catalog_store", health.PingCheck(be.store))
	if be.ledger != nil {
		checker.RegisterCheck("usage_ledger", health.PingCheck(be.ledger))
	}

	scheduler, err := newMaintenance(cfg, authResolver, catalogResolver, be)
	if err != nil {
		return cli.NewConfigError("cache.sweep_schedule", err.Error())
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if !runFlags.noWatch {
		startConfigWatcher(ctx, levelVar)
	}

	srv := server.New(cfg, server.Dependencies{
		Store:     be.store,
		Auth:      authResolver,
		Catalog:   catalogResolver,
		Forwarder: forwarder,
		Feed:      feed,
		Collector: collector,
		Health:    checker,
		Build:     server.BuildInfo{Version: Version, Commit: GitCommit, BuildTime: BuildDate},
	}, tlsConfig)

	printBanner(cmd, cfg)
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

// newMaintenance schedules the UTC-midnight authorization flush, the cache
// sweeps and, with a ledger, usage retention.
func newMaintenance(cfg *config.Config, authResolver *auth.Resolver, catalogResolver *routing.Resolver, be *backend) (*retention.Scheduler, error) {
	s := retention.NewScheduler()

	if err := s.AddJob("auth-flush", "@midnight", func(context.Context) {
		authResolver.Flush()
		slog.Info("authorization cache flushed for the new UTC day")
	}); err != nil {
		return nil, err
	}

	if err := s.AddJob("cache-sweep", cfg.Cache.SweepSchedule, func(context.Context) {
		n := authResolver.Sweep() + catalogResolver.Sweep()
		if n > 0 {
			slog.Debug("expired cache entries swept", "count", n)
		}
	}); err != nil {
		return nil, err
	}

	if be.ledger != nil {
		pruner := retention.NewPruner(be.ledger, cfg.Usage.Retention.Days)
		if err := pruner.Schedule(s, cfg.Usage.Retention.PruneSchedule); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// startConfigWatcher reloads the file on change and applies the new log
// level. Other settings take effect on restart.
func startConfigWatcher(ctx context.Context, levelVar *slog.LevelVar) {
	config.OnReload(func(c *config.Config) {
		if err := logging.SetLevel(levelVar, c.Telemetry.Logging.Level); err != nil {
			slog.Warn("ignoring reloaded log level", "error", err)
		}
		slog.Info("configuration reloaded", "path", config.Path(), "log_level", c.Telemetry.Logging.Level)
	})

	w, err := config.NewWatcher(config.Path(), 0)
	if err != nil {
		slog.Warn("config watcher disabled", "error", err)
		return
	}
	go func() {
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("config watcher stopped", "error", err)
		}
	}()
}

func printBanner(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	scheme := "http"
	if cfg.Security.TLS.Enabled {
		scheme = "https"
	}
	fmt.Fprintf(out, "Eventgate v%s\n", Version)
	fmt.Fprintf(out, "✓ Configuration loaded from %s\n", cfgFile)
	fmt.Fprintf(out, "✓ Store: %s\n", cfg.Store.Backend)
	fmt.Fprintf(out, "✓ Listening on %s://%s%s\n", scheme, cfg.Server.ListenAddress, cfg.Server.BasePath)
	if cfg.Admin.APIKey != "" {
		fmt.Fprintf(out, "✓ Usage feed: %s\n", cfg.Admin.FeedPath)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")
}
