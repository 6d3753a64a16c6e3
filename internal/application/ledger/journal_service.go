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
	"go.uber.org/zap"
)

// JournalService drives the journal entry lifecycle from DRAFT to POSTED or
// REVERSED.
type JournalService struct {
	deps    Dependencies
	logger  *zap.Logger
	posting *PostingEngine
}

// Create validates and stores a DRAFT entry
func (s *JournalService) Create(ctx context.Context, req CreateEntryRequest) (*EntryResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "journal_service", "create")
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := s.deps.Policy.checkCurrency(req.Currency); err != nil {
		return nil, s.deps.rejected(ctx, "create", err)
	}
	entry, err := ledger.NewJournalEntry(req.Scope(), req.ActorID, req.metadata(ledger.EntryType(req.Type)), toDomainLines(req.Lines), s.deps.Clock.Now())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, s.deps.rejected(ctx, "create", err)
	}

	err = s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		existing, err := repos.Entries().FindByReference(ctx, entry.Scope(), entry.Reference)
		if err != nil {
			return err
		}
		if existing != nil {
			return ledger.ErrDuplicateReference.WithDetail("reference", entry.Reference)
		}
		if err := checkDraftablePeriod(ctx, repos, entry.Scope(), entry.PeriodCode); err != nil {
			return err
		}
		if err := repos.Entries().Create(ctx, entry); err != nil {
			return err
		}
		return recordEvents(ctx, repos, entry)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, s.deps.rejected(ctx, "create", txError(err))
	}

	logger.For(ctx, s.logger).Info("journal entry created",
		zap.String("entry_id", entry.ID.String()),
		zap.String("reference", entry.Reference),
		zap.String("amount", ledger.FormatMinor(entry.TotalDebit, entry.Currency)),
	)
	resp := ToEntryResponse(entry)
	return &resp, nil
}

// Update replaces the lines and header of an editable entry
func (s *JournalService) Update(ctx context.Context, req UpdateEntryRequest) (*EntryResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "journal_service", "update")
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := s.deps.Policy.checkCurrency(req.Currency); err != nil {
		return nil, s.deps.rejected(ctx, "update", err)
	}
	scope := req.Scope()
	now := s.deps.Clock.Now()

	var entry *ledger.JournalEntry
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		entry, err = repos.Entries().FindByID(ctx, scope, req.EntryID)
		if err != nil {
			return err
		}
		if err := entry.CheckVersion(req.ExpectedVersion); err != nil {
			return err
		}
		if req.Reference != entry.Reference {
			existing, err := repos.Entries().FindByReference(ctx, scope, req.Reference)
			if err != nil {
				return err
			}
			if existing != nil && existing.ID != entry.ID {
				return ledger.ErrDuplicateReference.WithDetail("reference", req.Reference)
			}
		}
		if err := entry.Revise(req.metadata(entry.EntryType), toDomainLines(req.Lines), s.deps.Policy.RejectedEntriesEditable, now); err != nil {
			return err
		}
		if err := checkDraftablePeriod(ctx, repos, scope, entry.PeriodCode); err != nil {
			return err
		}
		return repos.Entries().SaveWithLock(ctx, entry)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, s.deps.rejected(ctx, "update", txError(err))
	}
	resp := ToEntryResponse(entry)
	return &resp, nil
}

// Submit sends a DRAFT entry into approval. The entry and its new route are
// stored in one transaction.
func (s *JournalService) Submit(ctx context.Context, req EntryActionRequest) (*EntryResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "journal_service", "submit")
	defer span.End()
	telemetry.SetAttributes(span, "entry_id", req.EntryID.String())

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	scope := req.Scope()
	now := s.deps.Clock.Now()

	var (
		entry *ledger.JournalEntry
		route *ledger.ApprovalRoute
	)
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		entry, err = repos.Entries().FindByID(ctx, scope, req.EntryID)
		if err != nil {
			return err
		}
		if err := entry.CheckVersion(req.ExpectedVersion); err != nil {
			return err
		}
		route, err = s.submitInTx(ctx, repos, entry, req.ActorID, true, now)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		logger.For(ctx, s.logger).Warn("submit rejected", zap.String("entry_id", req.EntryID.String()), zap.Error(err))
		return nil, s.deps.rejected(ctx, "submit", txError(err))
	}

	logger.For(ctx, s.logger).Info("journal entry submitted",
		zap.String("entry_id", entry.ID.String()),
		zap.String("route_id", route.ID.String()),
		zap.String("policy", route.PolicyName),
		zap.Int("levels", len(route.Levels)),
	)
	resp := ToEntryResponse(entry)
	return &resp, nil
}

// submitInTx checks a DRAFT entry, builds its route and stores both. Manual
// submits may not carry reversal entries; those come through Reverse.
func (s *JournalService) submitInTx(ctx context.Context, repos TransactionalRepositories, entry *ledger.JournalEntry, actor uuid.UUID, manual bool, now time.Time) (*ledger.ApprovalRoute, error) {
	if entry.Status != ledger.EntryStatusDraft {
		return nil, shared.ErrInvalidState.WithDetails(map[string]string{
			"entry_status": string(entry.Status),
			"operation":    "submit",
		})
	}
	scope := entry.Scope()
	if err := ledger.CheckPeriodOpen(ctx, s.deps.calendar(repos), scope, entry.PeriodCode); err != nil {
		return nil, err
	}
	if manual && entry.EntryType == ledger.EntryTypeReversal {
		return nil, ledger.ErrEntryTypeNotAllowed.WithDetails(map[string]string{
			"entry_type": string(entry.EntryType),
			"operation":  "submit",
		})
	}
	if err := ledger.CheckPostable(ctx, s.deps.Accounts, scope, entry.AccountCodes()); err != nil {
		return nil, err
	}
	route, err := ledger.BuildRoute(entry, s.deps.Policies, actor, now)
	if err != nil {
		return nil, err
	}
	if err := entry.Submit(actor, route.ID, now); err != nil {
		return nil, err
	}
	if err := repos.Routes().Create(ctx, route); err != nil {
		return nil, err
	}
	if err := repos.Entries().SaveWithLock(ctx, entry); err != nil {
		return nil, err
	}
	return route, recordEvents(ctx, repos, entry)
}

// onApprovalResolved applies a terminal route outcome to its entry inside the
// approval transaction, posting it at once when configured to.
func (s *JournalService) onApprovalResolved(ctx context.Context, repos TransactionalRepositories, route *ledger.ApprovalRoute, actor uuid.UUID, now time.Time) (*ledger.JournalEntry, *ledger.PostingResult, error) {
	entry, err := repos.Entries().FindByID(ctx, route.Scope(), route.EntryID)
	if err != nil {
		return nil, nil, err
	}
	if err := entry.ApplyRouteOutcome(route.Status, actor, route.RejectionComments(), now); err != nil {
		return nil, nil, err
	}
	if err := repos.Entries().SaveWithLock(ctx, entry); err != nil {
		return nil, nil, err
	}
	if err := recordEvents(ctx, repos, entry); err != nil {
		return nil, nil, err
	}
	if entry.Status != ledger.EntryStatusApproved || !s.deps.Policy.AutoPostOnApproval {
		return entry, nil, nil
	}
	result, err := s.posting.postInTx(ctx, repos, entry, actor, now)
	if err != nil {
		return nil, nil, err
	}
	return entry, &result, nil
}

// Reverse reverses a POSTED entry. In auto_post mode the reversal posts
// immediately; in approval mode it is submitted like any other entry and
// the original is marked REVERSED when the reversal posts.
func (s *JournalService) Reverse(ctx context.Context, req ReverseEntryRequest) (*ReversalResponse, error) {
	if s.deps.Policy.ReversalMode == ReversalModeAutoPost {
		return s.posting.CreateReversal(ctx, req)
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "journal_service", "reverse")
	defer span.End()
	telemetry.SetAttributes(span, "entry_id", req.EntryID.String())

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	scope := req.Scope()
	now := s.deps.Clock.Now()

	var reversal *ledger.JournalEntry
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		original, err := repos.Entries().FindByID(ctx, scope, req.EntryID)
		if err != nil {
			return err
		}
		existing, err := repos.Entries().FindReversalOf(ctx, scope, original.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			reversal, err = s.resubmitReversal(ctx, repos, original, existing, req, now)
			return err
		}
		reversal, err = original.BuildReversal(req.ActorID, req.Reason, req.PeriodCode, now)
		if err != nil {
			return err
		}
		if err := repos.Entries().Create(ctx, reversal); err != nil {
			return err
		}
		if err := recordEvents(ctx, repos, reversal); err != nil {
			return err
		}
		_, err = s.submitInTx(ctx, repos, reversal, req.ActorID, false, now)
		return err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		logger.For(ctx, s.logger).Warn("reverse rejected", zap.String("entry_id", req.EntryID.String()), zap.Error(err))
		return nil, s.deps.rejected(ctx, "reverse", txError(err))
	}

	logger.For(ctx, s.logger).Info("reversal submitted for approval",
		zap.String("entry_id", req.EntryID.String()),
		zap.String("reversal_id", reversal.ID.String()),
	)
	return &ReversalResponse{Reversal: ToEntryResponse(reversal)}, nil
}

// resubmitReversal lets a REJECTED reversal be revised and sent back into
// approval; any other existing reversal blocks a new one.
func (s *JournalService) resubmitReversal(ctx context.Context, repos TransactionalRepositories, original, existing *ledger.JournalEntry, req ReverseEntryRequest, now time.Time) (*ledger.JournalEntry, error) {
	if existing.Status != ledger.EntryStatusRejected || !s.deps.Policy.RejectedEntriesEditable {
		return nil, ledger.ErrEntryAlreadyReversed.WithDetails(map[string]string{
			"entry_id":    original.ID.String(),
			"reversal_id": existing.ID.String(),
		})
	}
	if err := original.CheckReversible(); err != nil {
		return nil, err
	}
	meta := ledger.EntryMetadata{
		Reference:   existing.Reference,
		Description: req.Reason,
		PeriodCode:  existing.PeriodCode,
		Currency:    existing.Currency,
	}
	if req.PeriodCode != "" {
		meta.PeriodCode = req.PeriodCode
	}
	if err := existing.Revise(meta, existing.Lines, true, now); err != nil {
		return nil, err
	}
	existing.ReversalReason = req.Reason
	if err := repos.Entries().SaveWithLock(ctx, existing); err != nil {
		return nil, err
	}
	if _, err := s.submitInTx(ctx, repos, existing, req.ActorID, false, now); err != nil {
		return nil, err
	}
	return existing, nil
}

// Get returns one entry
func (s *JournalService) Get(ctx context.Context, scope ledger.Scope, id uuid.UUID) (*EntryResponse, error) {
	var entry *ledger.JournalEntry
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		entry, err = repos.Entries().FindByID(ctx, scope, id)
		return err
	})
	if err != nil {
		return nil, txError(err)
	}
	resp := ToEntryResponse(entry)
	return &resp, nil
}

// List returns a page of entries matching the request filter
func (s *JournalService) List(ctx context.Context, req ListEntriesRequest) (*shared.Paginated[EntryResponse], error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	filter := ledger.EntryFilter{
		Page:       pageOf(req.Page, req.PageSize),
		PeriodCode: req.PeriodCode,
		Reference:  req.Reference,
		SortBy:     req.SortBy,
		SortOrder:  req.SortOrder,
	}
	for _, st := range req.Statuses {
		filter.Statuses = append(filter.Statuses, ledger.EntryStatus(st))
	}

	var (
		entries []*ledger.JournalEntry
		total   int64
	)
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		entries, total, err = repos.Entries().FindAll(ctx, req.Scope(), filter)
		return err
	})
	if err != nil {
		return nil, txError(err)
	}
	items := make([]EntryResponse, len(entries))
	for i, e := range entries {
		items[i] = ToEntryResponse(e)
	}
	page := shared.NewPaginated(items, total, filter.Page)
	return &page, nil
}

// CountPending counts entries of a period that still block its close
func (s *JournalService) CountPending(ctx context.Context, scope ledger.Scope, periodCode string) (int64, error) {
	var n int64
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		n, err = repos.Entries().CountInPeriod(ctx, scope, periodCode, ledger.PendingEntryStatuses()...)
		return err
	})
	return n, txError(err)
}

// checkDraftablePeriod keeps drafts out of periods that are closing or
// closed. Submit still requires the period to exist; an unknown period code
// is allowed here.
func checkDraftablePeriod(ctx context.Context, repos TransactionalRepositories, scope ledger.Scope, code string) error {
	period, err := repos.Periods().FindByCode(ctx, scope, code)
	if errors.Is(err, ledger.ErrPeriodNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !period.AcceptsNewEntries() {
		return ledger.ErrPeriodClosed.WithDetails(map[string]string{
			"period": code,
			"status": string(period.Status),
		})
	}
	return nil
}
