package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PostingEngine is the only writer of ledger lines. Every posting is keyed by
// its source type and id; posting the same key twice returns the first result.
type PostingEngine struct {
	deps   Dependencies
	logger *zap.Logger
}

// Post posts an APPROVED journal entry
func (p *PostingEngine) Post(ctx context.Context, req PostRequest) (*ledger.PostingResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "posting_engine", "post")
	defer span.End()
	telemetry.SetAttributes(span, "entry_id", req.EntryID.String(), "tenant_id", req.TenantID.String())

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	scope := req.Scope()

	var (
		result            ledger.PostingResult
		sourceType, srcID string
		err               error
	)
	started := time.Now()
	telemetry.WithProfilingLabels(ctx, telemetry.LedgerOperationLabels(telemetry.OperationPostEntry, req.TenantID), func(c context.Context) {
		err = p.deps.Scope.Execute(c, func(repos TransactionalRepositories) error {
			entry, err := repos.Entries().FindByID(c, scope, req.EntryID)
			if err != nil {
				return err
			}
			sourceType, srcID = entry.SourceType, entry.SourceID
			if prior, err := repos.Postings().FindBySource(c, scope, entry.SourceType, entry.SourceID); err != nil {
				return err
			} else if prior != nil {
				result = prior.Result(true)
				return nil
			}
			if err := entry.CheckVersion(req.ExpectedVersion); err != nil {
				return err
			}
			result, err = p.postInTx(c, repos, entry, req.ActorID, p.deps.Clock.Now())
			return err
		})
	})
	p.deps.Metrics.RecordPostingDuration(ctx, time.Since(started))

	if err != nil {
		return p.resolveFailure(ctx, span, "post", scope, sourceType, srcID, err)
	}
	p.deps.Metrics.RecordPosting(ctx, req.TenantID, result.Replayed)
	p.logPosted(ctx, result, scope)
	return &result, nil
}

// PostDocument creates and posts an entry for an upstream source document in
// one transaction. Replaying the same source key returns the first result.
func (p *PostingEngine) PostDocument(ctx context.Context, req SourceDocumentRequest) (*ledger.PostingResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "posting_engine", "post_document")
	defer span.End()
	telemetry.SetAttributes(span, "source_type", req.SourceType, "source_id", req.SourceID)

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := p.deps.Policy.checkCurrency(req.Currency); err != nil {
		return nil, p.deps.rejected(ctx, "post_document", err)
	}
	scope := req.Scope()
	now := p.deps.Clock.Now()

	meta := req.metadata(ledger.EntryTypeStandard)
	meta.SourceType = req.SourceType
	meta.SourceID = req.SourceID

	var result ledger.PostingResult
	started := time.Now()
	err := p.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if prior, err := repos.Postings().FindBySource(ctx, scope, req.SourceType, req.SourceID); err != nil {
			return err
		} else if prior != nil {
			result = prior.Result(true)
			return nil
		}
		entry, err := ledger.NewSourceEntry(scope, req.ActorID, meta, toDomainLines(req.Lines), now)
		if err != nil {
			return err
		}
		if existing, err := repos.Entries().FindByReference(ctx, scope, entry.Reference); err != nil {
			return err
		} else if existing != nil {
			return ledger.ErrDuplicateReference.WithDetail("reference", entry.Reference)
		}
		if err := repos.Entries().Create(ctx, entry); err != nil {
			return err
		}
		result, err = p.postInTx(ctx, repos, entry, req.ActorID, now)
		return err
	})
	p.deps.Metrics.RecordPostingDuration(ctx, time.Since(started))

	if err != nil {
		return p.resolveFailure(ctx, span, "post_document", scope, req.SourceType, req.SourceID, err)
	}
	p.deps.Metrics.RecordPosting(ctx, req.TenantID, result.Replayed)
	p.logPosted(ctx, result, scope)
	return &result, nil
}

// CreateReversal builds the mirror of a POSTED entry and posts it at once.
// The original becomes REVERSED in the same transaction.
func (p *PostingEngine) CreateReversal(ctx context.Context, req ReverseEntryRequest) (*ReversalResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "posting_engine", "create_reversal")
	defer span.End()
	telemetry.SetAttributes(span, "entry_id", req.EntryID.String())

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	scope := req.Scope()
	now := p.deps.Clock.Now()

	var (
		reversal *ledger.JournalEntry
		result   ledger.PostingResult
	)
	err := p.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		original, err := repos.Entries().FindByID(ctx, scope, req.EntryID)
		if err != nil {
			return err
		}
		reversal, result, err = p.reverseInTx(ctx, repos, original, req.ActorID, req.Reason, req.PeriodCode, now)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		logger.For(ctx, p.logger).Warn("reversal rejected",
			zap.String("entry_id", req.EntryID.String()),
			zap.Error(err),
		)
		return nil, p.deps.rejected(ctx, "create_reversal", txError(err))
	}
	p.deps.Metrics.RecordPosting(ctx, req.TenantID, false)
	logger.For(ctx, p.logger).Info("entry reversed",
		zap.String("entry_id", req.EntryID.String()),
		zap.String("reversal_id", reversal.ID.String()),
		zap.Int64("sequence", result.Sequence),
	)
	return &ReversalResponse{Reversal: ToEntryResponse(reversal), Posting: &result}, nil
}

// reverseInTx creates and posts the reversal of original inside the caller's transaction.
func (p *PostingEngine) reverseInTx(ctx context.Context, repos TransactionalRepositories, original *ledger.JournalEntry, actor uuid.UUID, reason, periodCode string, now time.Time) (*ledger.JournalEntry, ledger.PostingResult, error) {
	if original.Status == ledger.EntryStatusReversed || original.ReversedByID != nil {
		return nil, ledger.PostingResult{}, ledger.ErrAlreadyReversed.WithDetail("entry_id", original.ID.String())
	}
	existing, err := repos.Entries().FindReversalOf(ctx, original.Scope(), original.ID)
	if err != nil {
		return nil, ledger.PostingResult{}, err
	}
	if existing != nil {
		return nil, ledger.PostingResult{}, ledger.ErrAlreadyReversed.WithDetails(map[string]string{
			"entry_id":    original.ID.String(),
			"reversal_id": existing.ID.String(),
		})
	}
	reversal, err := original.BuildReversal(actor, reason, periodCode, now)
	if err != nil {
		return nil, ledger.PostingResult{}, err
	}
	if err := reversal.Approve(actor, now); err != nil {
		return nil, ledger.PostingResult{}, err
	}
	if err := repos.Entries().Create(ctx, reversal); err != nil {
		return nil, ledger.PostingResult{}, err
	}
	result, err := p.postInTx(ctx, repos, reversal, actor, now)
	if err != nil {
		return nil, ledger.PostingResult{}, err
	}
	return reversal, result, nil
}

// postInTx runs the posting checks and writes for an entry already stored
// in the current transaction.
func (p *PostingEngine) postInTx(ctx context.Context, repos TransactionalRepositories, entry *ledger.JournalEntry, actor uuid.UUID, now time.Time) (ledger.PostingResult, error) {
	scope := entry.Scope()
	if entry.Status != ledger.EntryStatusApproved {
		return ledger.PostingResult{}, shared.ErrInvalidState.WithDetails(map[string]string{
			"entry_status": string(entry.Status),
			"operation":    "post",
		})
	}
	if err := entry.CheckPostingBalance(); err != nil {
		return ledger.PostingResult{}, err
	}
	if err := ledger.CheckPostable(ctx, p.deps.Accounts, scope, entry.AccountCodes()); err != nil {
		return ledger.PostingResult{}, err
	}
	if err := ledger.CheckPeriodOpen(ctx, p.deps.calendar(repos), scope, entry.PeriodCode); err != nil {
		return ledger.PostingResult{}, err
	}

	seq, err := repos.Sequence().Next(ctx, scope.Key())
	if err != nil {
		return ledger.PostingResult{}, err
	}
	lines, posting := ledger.MaterializeLines(entry, seq, actor, now)
	if err := entry.MarkPosted(seq, actor, now); err != nil {
		return ledger.PostingResult{}, err
	}

	if entry.ReversalOfID != nil {
		original, err := repos.Entries().FindByID(ctx, scope, *entry.ReversalOfID)
		if err != nil {
			return ledger.PostingResult{}, err
		}
		if err := original.MarkReversed(entry.ID, actor, entry.ReversalReason, now); err != nil {
			return ledger.PostingResult{}, err
		}
		if err := repos.Entries().SaveWithLock(ctx, original); err != nil {
			return ledger.PostingResult{}, err
		}
		if err := recordEvents(ctx, repos, original); err != nil {
			return ledger.PostingResult{}, err
		}
	}

	if err := repos.LedgerLines().Append(ctx, lines); err != nil {
		return ledger.PostingResult{}, err
	}
	if err := repos.Postings().Create(ctx, posting); err != nil {
		return ledger.PostingResult{}, err
	}
	if err := repos.Entries().SaveWithLock(ctx, entry); err != nil {
		return ledger.PostingResult{}, err
	}
	if err := recordEvents(ctx, repos, entry); err != nil {
		return ledger.PostingResult{}, err
	}
	return posting.Result(false), nil
}

// resolveFailure turns a posting failure into the caller-facing error. A
// lost race on the source key is answered with the winner's result; the
// loser may trip either the posting's source index or the entry's reference
// index first.
func (p *PostingEngine) resolveFailure(ctx context.Context, span trace.Span, operation string, scope ledger.Scope, sourceType, sourceID string, err error) (*ledger.PostingResult, error) {
	if sourceType != "" && uniqueConflict(err) {
		var replay *ledger.PostingResult
		rerr := p.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
			prior, err := repos.Postings().FindBySource(ctx, scope, sourceType, sourceID)
			if err != nil || prior == nil {
				return err
			}
			r := prior.Result(true)
			replay = &r
			return nil
		})
		if rerr == nil && replay != nil {
			p.deps.Metrics.RecordPosting(ctx, scope.TenantID, true)
			return replay, nil
		}
	}
	telemetry.RecordError(span, err)
	logger.For(ctx, p.logger).Warn("posting rejected",
		zap.String("operation", operation),
		zap.String("source_type", sourceType),
		zap.String("source_id", sourceID),
		zap.Error(err),
	)
	return nil, p.deps.rejected(ctx, operation, txError(err))
}

func uniqueConflict(err error) bool {
	return errors.Is(err, shared.ErrAlreadyExists) || errors.Is(err, ledger.ErrDuplicateReference)
}

func (p *PostingEngine) logPosted(ctx context.Context, result ledger.PostingResult, scope ledger.Scope) {
	if result.Replayed {
		logger.For(ctx, p.logger).Info("posting replayed",
			zap.String("scope", scope.Key()),
			zap.String("source_type", result.SourceType),
			zap.String("source_id", result.SourceID),
			zap.String("posting_id", result.PostingID.String()),
		)
		return
	}
	logger.For(ctx, p.logger).Info("entry posted",
		zap.String("scope", scope.Key()),
		zap.String("entry_id", result.EntryID.String()),
		zap.Int64("sequence", result.Sequence),
		zap.Int("lines", len(result.LineIDs)),
		zap.String("amount", ledger.FormatMinor(result.TotalDebit, result.Currency)),
	)
}
