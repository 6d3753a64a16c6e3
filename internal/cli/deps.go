package cli

import (
	"context"
	"time"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/bootstrap"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/erp/ledger/internal/infrastructure/event"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OutboxAdmin inspects and drives the audit outbox
type OutboxAdmin interface {
	Stats(ctx context.Context) (map[shared.OutboxStatus]int64, error)
	RetryDead(ctx context.Context, id uuid.UUID) error
	DispatchOnce(ctx context.Context) (event.DispatchResult, error)
}

// AccountWriter maintains the chart of accounts
type AccountWriter interface {
	Upsert(ctx context.Context, scope ledger.Scope, info ledger.AccountInfo, now time.Time) error
}

// AccountInvalidator drops cached account lookups on every replica
type AccountInvalidator interface {
	Invalidate(ctx context.Context, scope ledger.Scope, code string) error
}

// SnapshotArchive reads archived snapshot copies
type SnapshotArchive interface {
	Key(scope ledger.Scope, periodCode string, revision int) string
	Compare(ctx context.Context, snapshot *ledger.TBSnapshot) error
}

// Presigner issues temporary download links for archive objects
type Presigner interface {
	PresignDownload(ctx context.Context, key string, expiresIn time.Duration) (string, error)
}

// Deps is what the commands operate on. Archive and Presigner are nil when
// archiving is disabled.
type Deps struct {
	Services  *appledger.Services
	Outbox    OutboxAdmin
	Accounts  AccountWriter
	Cache     AccountInvalidator
	Archive   SnapshotArchive
	Presigner Presigner
	Clock     shared.Clock
	Logger    *zap.Logger
	Close     func(ctx context.Context) error
}

// Loader opens the dependencies for one command invocation
type Loader func(ctx context.Context, opts *RootOptions) (*Deps, error)

// RuntimeLoader builds Deps from the configuration file, logging to stderr.
// Continuous profiling stays off for one-shot commands.
func RuntimeLoader(ctx context.Context, opts *RootOptions) (*Deps, error) {
	cfg, err := config.LoadFrom(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Telemetry.ProfilingEnabled = false

	log, err := logger.New(&logger.Config{Level: opts.LogLevel, Format: "console", Output: "stderr"})
	if err != nil {
		return nil, err
	}
	rt, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	d := &Deps{
		Services: rt.Services,
		Outbox:   rt.Dispatcher,
		Accounts: rt.Accounts,
		Cache:    rt.AccountCache,
		Clock:    shared.SystemClock{},
		Logger:   rt.Logger,
		Close: func(ctx context.Context) error {
			err := rt.Close(ctx)
			_ = logger.Sync(log)
			return err
		},
	}
	if rt.Archiver != nil {
		d.Archive = rt.Archiver
		d.Presigner = rt.Archive
	}
	return d, nil
}
