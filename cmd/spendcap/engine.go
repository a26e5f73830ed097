package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"mercator-hq/spendcap/pkg/cli"
	"mercator-hq/spendcap/pkg/config"
	"mercator-hq/spendcap/pkg/events"
	"mercator-hq/spendcap/pkg/limits"
	"mercator-hq/spendcap/pkg/limits/storage"
	"mercator-hq/spendcap/pkg/security/secrets"
	"mercator-hq/spendcap/pkg/telemetry/logging"
	"mercator-hq/spendcap/pkg/telemetry/metrics"
	"mercator-hq/spendcap/pkg/telemetry/tracing"
)

const closeTimeout = 5 * time.Second

// engine bundles the components shared by every command.
type engine struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     storage.Backend
	publisher events.Publisher
	tracer    *tracing.Tracer
	collector *metrics.Collector
	limits    *limits.Controller
}

// loadConfig reads the configuration selected by --config, applies the
// global flag overrides and resolves secret references.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			return nil, err
		}
		return nil, cli.NewConfigError("config", err.Error())
	}
	if logLevel != "" {
		cfg.Telemetry.Logging.Level = logLevel
	}
	if err := resolveSecrets(ctx, cfg); err != nil {
		return nil, cli.NewConfigError("secrets", err.Error())
	}
	return cfg, nil
}

// resolveSecrets replaces ${secret:name} references in secret-bearing
// fields.
func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	providers := []secrets.Provider{secrets.NewEnvProvider(cfg.Secrets.EnvPrefix)}
	if cfg.Secrets.Dir != "" {
		dir, err := secrets.NewDirProvider(cfg.Secrets.Dir)
		if err != nil {
			return err
		}
		providers = append(providers, dir)
	}

	return secrets.NewManager(providers...).ResolveAll(ctx,
		&cfg.Server.InternalAuthSecret,
		&cfg.Server.InternalAuthSecondarySecret,
		&cfg.Storage.Postgres.DSN,
		&cfg.Storage.Postgres.Password,
		&cfg.Storage.Redis.Password,
	)
}

// newLogger builds the process logger. Logs go to stderr so command output
// on stdout stays machine readable.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(logging.Config{
		Level:         cfg.Telemetry.Logging.Level,
		Format:        cfg.Telemetry.Logging.Format,
		AddSource:     cfg.Telemetry.Logging.AddSource,
		RedactSecrets: cfg.Telemetry.Logging.RedactSecrets,
		Writer:        os.Stderr,
	})
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return logger, nil
}

// setup loads configuration, installs the default logger and builds the
// engine.
func setup(ctx context.Context) (*engine, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return buildEngine(ctx, cfg, logger)
}

// buildEngine opens storage and wires the admission controller with its
// publisher, metrics and tracer.
func buildEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*engine, error) {
	tracer, err := tracing.New(cfg.Telemetry.Tracing, Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	store, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		shutdownTracer(tracer)
		return nil, err
	}

	publisher, err := newPublisher(cfg.Events)
	if err != nil {
		store.Close()
		shutdownTracer(tracer)
		return nil, cli.NewConfigError("events", err.Error())
	}

	collector := metrics.NewCollector()
	ctrl := limits.NewController(limits.Config{
		Storage:          store,
		Publisher:        publisher,
		Metrics:          limits.NewMetrics(collector.Registerer()),
		Logger:           logger,
		Tracer:           tracer.Tracer("mercator-hq/spendcap/pkg/limits"),
		OperationTimeout: cfg.Limits.OperationTimeout,
	})

	logger.Debug("engine ready",
		"storage", cfg.Storage.Backend,
		"events", cfg.Events.Enabled,
		"tracing", tracer.Enabled(),
	)

	return &engine{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		publisher: publisher,
		tracer:    tracer,
		collector: collector,
		limits:    ctrl,
	}, nil
}

// Close releases the publisher, the store and the tracer in that order.
func (e *engine) Close() error {
	var errs []error
	if err := e.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	if err := shutdownTracer(e.tracer); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
	}
	return errors.Join(errs...)
}

func shutdownTracer(t *tracing.Tracer) error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return t.Shutdown(ctx)
}

// openStorage opens the configured backend and verifies it is reachable.
func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	var (
		store storage.Backend
		err   error
	)

	switch cfg.Backend {
	case "memory":
		store = storage.NewMemoryBackend()
	case "sqlite":
		store, err = storage.NewSQLiteBackendWithConfig(storage.SQLiteBackendConfig{
			DBPath:             cfg.SQLite.Path,
			Driver:             cfg.SQLite.Driver,
			BusyTimeout:        cfg.SQLite.BusyTimeout,
			CheckpointInterval: cfg.SQLite.CheckpointInterval,
		})
	case "postgres":
		store, err = storage.NewPostgresBackend(ctx, storage.PostgresBackendConfig{
			DSN:             cfg.Postgres.ConnectionString(),
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = storage.NewRedisBackend(client, storage.RedisBackendConfig{
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	default:
		return nil, cli.NewConfigError("storage.backend", fmt.Sprintf("unsupported backend %q", cfg.Backend))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s backend: %v", limits.ErrStore, cfg.Backend, err)
	}

	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("%w: %s backend unreachable: %v", limits.ErrStore, cfg.Backend, err)
	}
	return store, nil
}

func newPublisher(cfg config.EventsConfig) (events.Publisher, error) {
	if !cfg.Enabled {
		return events.NopPublisher{}, nil
	}
	return events.NewKafkaPublisher(events.KafkaConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		WriteTimeout: cfg.WriteTimeout,
	})
}
