package ledger

import (
	"context"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ApprovalRouter records approval decisions against routes and resolves the
// entry when a route terminates.
type ApprovalRouter struct {
	deps    Dependencies
	logger  *zap.Logger
	journal *JournalService
}

// Decide records one decision at a level of a route
func (r *ApprovalRouter) Decide(ctx context.Context, req DecideRequest) (*DecisionResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "approval_router", "decide")
	defer span.End()
	telemetry.SetAttributes(span, "route_id", req.RouteID.String(), "level", req.Level, "decision", req.Decision)

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	scope := req.Scope()
	now := r.deps.Clock.Now()

	var resp DecisionResponse
	err := r.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		route, err := repos.Routes().FindByID(ctx, scope, req.RouteID)
		if err != nil {
			return err
		}
		if err := route.CheckDecidable(req.Level, req.ActorID); err != nil {
			return err
		}
		if err := route.CheckVersion(req.ExpectedVersion); err != nil {
			return err
		}
		held, err := r.heldRoles(ctx, scope, req.ActorID, route.CurrentStep().Roles)
		if err != nil {
			return err
		}
		rec, err := route.Decide(req.Level, req.ActorID, ledger.Decision(req.Decision), req.Comments, held, now)
		if err != nil {
			return err
		}
		if err := repos.Routes().SaveWithLock(ctx, route); err != nil {
			return err
		}
		if err := recordEvents(ctx, repos, route); err != nil {
			return err
		}

		resp = DecisionResponse{
			Record:       rec,
			RouteStatus:  string(route.Status),
			CurrentLevel: route.CurrentLevel,
			RouteVersion: route.Version,
		}
		if !route.Status.IsTerminal() {
			return nil
		}
		entry, posting, err := r.journal.onApprovalResolved(ctx, repos, route, req.ActorID, now)
		if err != nil {
			return err
		}
		er := ToEntryResponse(entry)
		resp.Entry = &er
		resp.Posting = posting
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		logger.For(ctx, r.logger).Warn("approval decision rejected",
			zap.String("route_id", req.RouteID.String()),
			zap.Int("level", req.Level),
			zap.String("actor", req.ActorID.String()),
			zap.Error(err),
		)
		return nil, r.deps.rejected(ctx, "decide", txError(err))
	}

	r.deps.Metrics.RecordApprovalDecision(ctx, req.Decision)
	logger.For(ctx, r.logger).Info("approval decision recorded",
		zap.String("route_id", req.RouteID.String()),
		zap.Int("level", req.Level),
		zap.String("decision", req.Decision),
		zap.String("route_status", resp.RouteStatus),
	)
	return &resp, nil
}

// heldRoles asks the policy port which of the level's roles the actor holds
func (r *ApprovalRouter) heldRoles(ctx context.Context, scope ledger.Scope, actor uuid.UUID, roles []string) (map[string]bool, error) {
	held := make(map[string]bool, len(roles))
	for _, role := range roles {
		ok, err := r.deps.Roles.HasRole(ctx, scope, actor, role)
		if err != nil {
			return nil, err
		}
		held[role] = ok
	}
	return held, nil
}

// GetRoute returns a route with its decision records
func (r *ApprovalRouter) GetRoute(ctx context.Context, scope ledger.Scope, routeID uuid.UUID) (*ledger.ApprovalRoute, error) {
	var route *ledger.ApprovalRoute
	err := r.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		route, err = repos.Routes().FindByID(ctx, scope, routeID)
		return err
	})
	if err != nil {
		return nil, txError(err)
	}
	return route, nil
}

// ListPending returns routes still awaiting decisions, with the ones past
// their SLA logged for follow-up.
func (r *ApprovalRouter) ListPending(ctx context.Context, scope ledger.Scope, page, pageSize int) (*shared.Paginated[*ledger.ApprovalRoute], error) {
	p := pageOf(page, pageSize)
	var (
		routes []*ledger.ApprovalRoute
		total  int64
	)
	err := r.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		routes, total, err = repos.Routes().FindPending(ctx, scope, p)
		return err
	})
	if err != nil {
		return nil, txError(err)
	}
	now := r.deps.Clock.Now()
	for _, route := range routes {
		if route.IsOverdue(now) {
			logger.For(ctx, r.logger).Warn("approval level past SLA",
				zap.String("route_id", route.ID.String()),
				zap.Int("level", route.CurrentLevel),
			)
		}
	}
	result := shared.NewPaginated(routes, total, p)
	return &result, nil
}
