package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/spendcap/pkg/cli"
	"mercator-hq/spendcap/pkg/config"
	"mercator-hq/spendcap/pkg/limits/provision"
	"mercator-hq/spendcap/pkg/limits/retention"
	sectls "mercator-hq/spendcap/pkg/security/tls"
	"mercator-hq/spendcap/pkg/server"
	"mercator-hq/spendcap/pkg/telemetry/health"
)

var runFlags struct {
	listen string
	dryRun bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the spend admission server",
	Long: `Start the internal REST API for spend admission.

The server checks and records spend against rolling-window caps, applies
the provisioning file when one is configured, and sweeps ledger entries
older than the retention horizon on a cron schedule.`,
	Example: `  # Start with a config file
  spendcap run --config config.yaml

  # Override the listen address
  spendcap run --config config.yaml --listen 127.0.0.1:9090

  # Validate configuration and storage without serving
  spendcap run --config config.yaml --dry-run`,
	RunE: runServer,
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.listen, "listen", "l", "", "override listen address")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate configuration and storage without serving")
	rootCmd.AddCommand(runCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := cli.SetupSignalHandler()
	defer cancel()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if runFlags.listen != "" {
		cfg.Server.ListenAddress = runFlags.listen
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	eng, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Error("shutdown incomplete", "error", err)
		}
	}()

	if runFlags.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (storage: %s, listen: %s)\n",
			cfg.Storage.Backend, cfg.Server.ListenAddress)
		return nil
	}

	if cfg.Limits.Provisioning.File != "" {
		stopWatch, err := startProvisioning(ctx, eng)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		defer stopWatch()
	}

	if cfg.Retention.Enabled {
		scheduler, err := startRetention(ctx, eng)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		defer scheduler.Stop()
	}

	var serverTLS *tls.Config
	if cfg.Server.TLS.Enabled {
		serverTLS, err = startTLS(ctx, eng)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
	}

	checker := health.New(health.DefaultCheckTimeout)
	checker.RegisterCheck("storage", health.PingCheck(eng.store))

	opts := server.Options{
		Limits:       eng.limits,
		Health:       checker,
		FencedRecord: cfg.Limits.FencedRecord,
		TLS:          serverTLS,
		Tracer:       eng.tracer.Tracer("mercator-hq/spendcap/pkg/server"),
		Logger:       logger,
		Version:      Version,
		Commit:       GitCommit,
		BuildTime:    BuildDate,
	}
	if cfg.Telemetry.Metrics.Enabled {
		opts.Metrics = eng.collector
		opts.MetricsPath = cfg.Telemetry.Metrics.Path
	}

	srv, err := server.New(cfg.Server, opts)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	logger.Info("starting spendcap",
		"version", Version,
		"listen", cfg.Server.ListenAddress,
		"storage", cfg.Storage.Backend,
		"fenced_record", cfg.Limits.FencedRecord,
	)

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	logger.Info("spendcap stopped")
	return nil
}

// startProvisioning applies the provisioning file once and, when watching is
// enabled, re-applies it on every change. An invalid file at startup is
// fatal; later invalid edits are logged and the previous caps stay in place.
func startProvisioning(ctx context.Context, eng *engine) (func(), error) {
	pcfg := eng.cfg.Limits.Provisioning
	var opts []provision.Option
	if pcfg.StateFile != "" {
		opts = append(opts, provision.WithStateFile(pcfg.StateFile))
	}
	prov := provision.NewProvisioner(eng.limits.Caps(), pcfg.File, eng.logger, opts...)

	res, err := prov.Apply(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply provisioning file: %w", err)
	}
	eng.logger.Info("provisioned caps",
		"file", pcfg.File,
		"applied", res.Applied,
		"removed", res.Removed,
	)

	if !pcfg.Watch {
		return func() {}, nil
	}

	watcher, err := provision.NewWatcher(pcfg.File, pcfg.Debounce, eng.logger)
	if err != nil {
		return nil, fmt.Errorf("watch provisioning file: %w", err)
	}
	go func() {
		if err := watcher.Watch(ctx, prov.Reload); err != nil {
			eng.logger.Error("provisioning watcher stopped", "error", err)
		}
	}()

	return func() {
		if err := watcher.Stop(); err != nil {
			eng.logger.Warn("failed to stop provisioning watcher", "error", err)
		}
	}, nil
}

// startTLS loads the server certificate, watches it for rotation and builds
// the TLS configuration.
func startTLS(ctx context.Context, eng *engine) (*tls.Config, error) {
	tcfg := eng.cfg.Server.TLS
	certs, err := sectls.NewReloader(tcfg.CertFile, tcfg.KeyFile, eng.logger)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := certs.Watch(ctx); err != nil {
			eng.logger.Error("certificate watcher stopped", "error", err)
		}
	}()
	return sectls.NewServerConfig(tcfg, certs)
}

// startRetention schedules ledger sweeps.
func startRetention(ctx context.Context, eng *engine) (*retention.Scheduler, error) {
	rcfg := eng.cfg.Retention
	sweeper, err := retention.NewSweeper(eng.store, rcfg.Horizon,
		retention.WithLogger(eng.logger),
		retention.WithMetrics(retention.NewMetrics(eng.collector.Registerer())),
	)
	if err != nil {
		return nil, err
	}

	scheduler := retention.NewScheduler(sweeper, retention.SchedulerConfig{
		Schedule:   rcfg.Schedule,
		RunOnStart: rcfg.RunOnStart,
		Logger:     eng.logger,
	})
	if err := scheduler.Start(ctx); err != nil {
		return nil, fmt.Errorf("start retention scheduler: %w", err)
	}
	return scheduler, nil
}
