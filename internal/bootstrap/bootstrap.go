// Package bootstrap assembles the ledger runtime from configuration. Both
// ledgerd and ledgerctl build their services here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/cache"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/event"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/persistence"
	"github.com/erp/ledger/internal/infrastructure/policy"
	"github.com/erp/ledger/internal/infrastructure/scheduler"
	"github.com/erp/ledger/internal/infrastructure/storage"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Runtime holds every long-lived component of a ledger process
type Runtime struct {
	Config    *config.Config
	Logger    *zap.Logger
	Telemetry *telemetry.Providers
	Profiler  *telemetry.Profiler
	Metrics   *telemetry.LedgerMetrics

	DB    *persistence.Database
	Redis *redis.Client

	Accounts     *persistence.GormAccountDirectory
	AccountCache *cache.CachedAccountDirectory
	Invalidator  *cache.AccountInvalidator
	Roles        *policy.RoleDirectory

	Archive  *storage.S3ObjectStorage
	Archiver *storage.SnapshotArchiver

	Outbox     *event.GormOutboxRepository
	Dispatcher *event.AuditDispatcher
	Services   *appledger.Services

	closers []func(context.Context) error
}

// New connects to the database and Redis, loads the approval policy and
// builds the ledger services. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, base *zap.Logger) (rt *Runtime, err error) {
	rt = &Runtime{Config: cfg, Logger: base}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
			rt = nil
		}
	}()

	if err = rt.setupTelemetry(ctx); err != nil {
		return rt, err
	}
	if err = rt.openStores(); err != nil {
		return rt, err
	}

	file, err := LoadPolicy(cfg)
	if err != nil {
		return rt, err
	}
	rt.Roles = policy.NewRoleDirectory(file.Bindings)

	rt.Accounts = persistence.NewGormAccountDirectory(rt.DB.DB)
	cacheOpts := []cache.AccountCacheOption{
		cache.WithCacheTTL(cfg.Ledger.AccountCacheTTL),
		cache.WithCacheLogger(rt.Logger.Named("account_cache")),
	}
	if rt.Redis != nil {
		rt.Invalidator = cache.NewAccountInvalidator(rt.Redis, cache.WithInvalidatorLogger(rt.Logger.Named("account_invalidation")))
		rt.closers = append(rt.closers, func(context.Context) error { return rt.Invalidator.Close() })
		cacheOpts = append(cacheOpts, cache.WithRedis(rt.Redis), cache.WithInvalidator(rt.Invalidator))
	}
	rt.AccountCache = cache.NewCachedAccountDirectory(rt.Accounts, cacheOpts...)

	if cfg.Archive.Enabled {
		rt.Archive, err = storage.NewS3ObjectStorage(&cfg.Archive, storage.WithLogger(rt.Logger.Named("archive")))
		if err != nil {
			return rt, err
		}
		rt.Archiver = storage.NewSnapshotArchiver(rt.Archive, cfg.Archive.Prefix)
	}

	deps := appledger.Dependencies{
		Scope:    persistence.NewGormTransactionScope(rt.DB.DB, rt.scopeOptions()...),
		Accounts: rt.AccountCache,
		Roles:    rt.Roles,
		Policies: file.Table(),
		Policy:   LedgerPolicy(cfg.Ledger),
		Clock:    shared.SystemClock{},
		Logger:   rt.Logger,
		Metrics:  rt.Metrics,
	}
	if rt.Archiver != nil {
		deps.Archiver = rt.Archiver
	}
	if rt.Services, err = appledger.NewServices(deps); err != nil {
		return rt, err
	}

	rt.Outbox = event.NewGormOutboxRepository(rt.DB.DB)
	sinks, err := BuildSinks(cfg.Event, rt.Redis, rt.Logger)
	if err != nil {
		return rt, err
	}
	rt.Dispatcher = event.NewAuditDispatcher(rt.Outbox, sinks, DispatcherConfig(cfg.Event),
		shared.SystemClock{}, rt.Metrics, rt.Logger.Named("audit_dispatcher"))

	return rt, nil
}

func (rt *Runtime) setupTelemetry(ctx context.Context) error {
	cfg := rt.Config
	providers, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, rt.Logger)
	if err != nil {
		return err
	}
	rt.Telemetry = providers
	rt.closers = append(rt.closers, providers.Shutdown)

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	rt.Logger = telemetry.BridgeLogger(rt.Logger, providers, level)

	rt.Profiler, err = telemetry.StartProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeEndpoint,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, rt.Logger)
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, func(context.Context) error { return rt.Profiler.Stop() })
	if rt.Profiler.Enabled() {
		providers.EnableSpanProfiles()
	}

	rt.Metrics, err = telemetry.NewLedgerMetrics(providers.Meter(telemetry.TracerName), rt.Logger)
	return err
}

func (rt *Runtime) openStores() error {
	cfg := rt.Config
	gormLog := logger.NewGormLogger(rt.Logger, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.OpenDatabase(&cfg.Database, gormLog)
	if err != nil {
		return err
	}
	rt.DB = db
	rt.closers = append(rt.closers, func(context.Context) error { return db.Close() })

	reg, err := telemetry.RegisterPoolMetrics(rt.Telemetry.Meter(telemetry.TracerName), cfg.Database.DBName, db.Stats)
	if err != nil {
		return err
	}
	rt.closers = append(rt.closers, func(context.Context) error { return reg.Unregister() })

	if err := telemetry.InstrumentDB(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		DBName:          cfg.Database.DBName,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, rt.Logger); err != nil {
		return fmt.Errorf("instrument database: %w", err)
	}

	if !cfg.Redis.Enabled {
		return nil
	}
	client, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		return err
	}
	rt.Redis = client
	rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })
	return nil
}

func (rt *Runtime) scopeOptions() []persistence.TransactionScopeOption {
	if rt.Config.Ledger.SequenceBackend == config.SequenceBackendRedis && rt.Redis != nil {
		return []persistence.TransactionScopeOption{
			persistence.WithSequence(cache.NewRedisSequence(rt.Redis, "ledger:seq:")),
		}
	}
	return nil
}

// IntegritySweep builds the scheduler that re-verifies active snapshots. With
// Redis the sweep holds a redsync lock so one replica runs it at a time.
func (rt *Runtime) IntegritySweep() *scheduler.Scheduler {
	cfg := rt.Config.Scheduler
	task := scheduler.NewIntegritySweep(persistence.NewGormScopeLister(rt.DB.DB),
		rt.Services.TrialBalance, rt.Logger.Named("integrity_sweep"))
	var opts []scheduler.Option
	if rt.Redis != nil {
		opts = append(opts, scheduler.WithLocker(scheduler.NewRedsyncLocker(rt.Redis)))
	}
	return scheduler.NewScheduler(scheduler.Config{
		Interval:   cfg.SweepInterval,
		JobTimeout: cfg.JobTimeout,
		LockTTL:    cfg.LockTTL,
	}, task, rt.Logger.Named("scheduler"), opts...)
}

// Close releases resources in reverse order of acquisition
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
