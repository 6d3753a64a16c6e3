// Command ledgerd runs the ledger background processes: the audit outbox
// dispatcher, the account cache invalidation listener and the integrity sweep.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/ledger/internal/bootstrap"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config.toml")
	flag.Parse()

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync(log) }()

	if err := run(cfg, log); err != nil {
		log.Error("ledgerd stopped with error", zap.Error(err))
		_ = logger.Sync(log)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting ledgerd",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("sequence_backend", cfg.Ledger.SequenceBackend),
		zap.String("reversal_mode", cfg.Ledger.ReversalMode),
	)

	rt, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	log = rt.Logger
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			log.Error("Error releasing resources", zap.Error(err))
		}
	}()

	ctx = logger.WithContext(logger.WithActor(ctx, "ledgerd"), log)

	if rt.Invalidator != nil {
		go func() {
			if err := rt.AccountCache.StartInvalidationSubscription(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Account invalidation subscription failed", zap.Error(err))
			}
		}()
	}

	if cfg.Event.DispatcherEnabled {
		if err := rt.Dispatcher.Start(ctx); err != nil {
			return err
		}
		defer stopWithTimeout(log, "audit dispatcher", rt.Dispatcher.Stop)
	}

	if cfg.Scheduler.Enabled {
		sweep := rt.IntegritySweep()
		if err := sweep.Start(ctx); err != nil {
			return err
		}
		defer stopWithTimeout(log, "integrity sweep", sweep.Stop)
	}

	log.Info("ledgerd running",
		zap.Bool("dispatcher", cfg.Event.DispatcherEnabled),
		zap.Bool("integrity_sweep", cfg.Scheduler.Enabled),
		zap.Bool("archive", cfg.Archive.Enabled),
		zap.Bool("telemetry", rt.Telemetry.Enabled()),
	)
	<-ctx.Done()
	log.Info("Shutting down ledgerd")
	return nil
}

func stopWithTimeout(log *zap.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		log.Error("Failed to stop "+name, zap.Error(err))
	}
}
