package ledger

import (
	"strconv"
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// RouteStatus is the state of an approval route
type RouteStatus string

const (
	RouteStatusPending  RouteStatus = "PENDING"
	RouteStatusApproved RouteStatus = "APPROVED"
	RouteStatusRejected RouteStatus = "REJECTED"
)

// IsTerminal reports whether no further decisions are accepted
func (s RouteStatus) IsTerminal() bool {
	return s == RouteStatusApproved || s == RouteStatusRejected
}

// Decision is an approver's verdict
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// IsValid checks the decision value
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// ApprovalLevel is a materialized step of a route.
type ApprovalLevel struct {
	Level        int
	Roles        []string
	RequireAll   bool
	MinApprovals int
	SLA          time.Duration
	DueAt        *time.Time
}

// ApprovalRecord is the immutable audit of one decision.
type ApprovalRecord struct {
	ID        uuid.UUID
	RouteID   uuid.UUID
	Level     int
	Actor     uuid.UUID
	Decision  Decision
	Comments  string
	DecidedAt time.Time
}

// ApprovalRoute is the aggregate root tracking multi-level approval of one entry.
type ApprovalRoute struct {
	shared.TenantAggregateRoot
	EntryID        uuid.UUID
	EntryCreatedBy uuid.UUID
	PolicyName     string
	Amount         int64
	Levels         []ApprovalLevel
	CurrentLevel   int
	Status         RouteStatus
	Records        []ApprovalRecord
	ResolvedAt     *time.Time
}

// BuildRoute selects the first matching threshold rule and materializes its
// steps as ordered levels starting at 1.
func BuildRoute(entry *JournalEntry, table PolicyTable, submittedBy uuid.UUID, now time.Time) (*ApprovalRoute, error) {
	rule, err := table.Match(entry.TotalDebit, entry.EntryType)
	if err != nil {
		return nil, err
	}
	levels := make([]ApprovalLevel, len(rule.Steps))
	for i, s := range rule.Steps {
		lvl := ApprovalLevel{
			Level:        i + 1,
			Roles:        append([]string(nil), s.Roles...),
			RequireAll:   s.RequireAll,
			MinApprovals: s.MinApprovals,
			SLA:          s.SLA,
		}
		if lvl.MinApprovals < 1 {
			lvl.MinApprovals = 1
		}
		levels[i] = lvl
	}
	route := &ApprovalRoute{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(entry.TenantID, entry.CompanyID, submittedBy, now),
		EntryID:             entry.ID,
		EntryCreatedBy:      entry.CreatedBy,
		PolicyName:          rule.Name,
		Amount:              entry.TotalDebit,
		Levels:              levels,
		CurrentLevel:        1,
		Status:              RouteStatusPending,
	}
	route.stampDue(now)
	return route, nil
}

// Scope returns the books the route belongs to
func (r *ApprovalRoute) Scope() Scope {
	return ScopeOf(&r.TenantAggregateRoot)
}

// CurrentStep returns the level awaiting decisions
func (r *ApprovalRoute) CurrentStep() ApprovalLevel {
	return r.Levels[r.CurrentLevel-1]
}

// IsFinalLevel reports whether the current level is the last one
func (r *ApprovalRoute) IsFinalLevel() bool {
	return r.CurrentLevel == len(r.Levels)
}

// CheckDecidable runs every check that does not need role information, in
// order: separation of duties, terminal route, level mismatch, repeat actor.
func (r *ApprovalRoute) CheckDecidable(level int, actor uuid.UUID) error {
	if actor == r.EntryCreatedBy {
		return ErrSoDViolation.WithDetails(map[string]string{
			"entry_id": r.EntryID.String(),
			"actor":    actor.String(),
		})
	}
	switch r.Status {
	case RouteStatusApproved:
		return ErrAlreadyApproved.WithDetail("route_id", r.ID.String())
	case RouteStatusRejected:
		return ErrAlreadyRejected.WithDetail("route_id", r.ID.String())
	}
	if level != r.CurrentLevel {
		return ErrApprovalAlreadyActioned.WithDetails(map[string]string{
			"route_id":      r.ID.String(),
			"level":         strconv.Itoa(level),
			"current_level": strconv.Itoa(r.CurrentLevel),
		})
	}
	for _, rec := range r.Records {
		if rec.Level == level && rec.Actor == actor {
			return ErrApprovalAlreadyActioned.WithDetails(map[string]string{
				"route_id": r.ID.String(),
				"level":    strconv.Itoa(level),
				"actor":    actor.String(),
			})
		}
	}
	return nil
}

// Authorize decides role eligibility for the current level given the set of
// roles the actor holds among those the level names.
func (r *ApprovalRoute) Authorize(actor uuid.UUID, heldRoles map[string]bool) error {
	step := r.CurrentStep()
	held := 0
	for _, role := range step.Roles {
		if heldRoles[role] {
			held++
		}
	}
	ok := held > 0
	if step.RequireAll {
		ok = held == len(step.Roles)
	}
	if !ok {
		return ErrNotAuthorizedToApprove.WithDetails(map[string]string{
			"actor": actor.String(),
			"level": strconv.Itoa(step.Level),
			"roles": strings.Join(step.Roles, ","),
		})
	}
	return nil
}

// Decide applies a decision at the current level. Reject is absorbing;
// approval advances the level once it has enough distinct approvers, and the
// route becomes APPROVED after the final level.
func (r *ApprovalRoute) Decide(level int, actor uuid.UUID, decision Decision, comments string, heldRoles map[string]bool, now time.Time) (ApprovalRecord, error) {
	if !decision.IsValid() {
		return ApprovalRecord{}, shared.ErrInvalidInput.WithDetail("decision", string(decision))
	}
	if err := r.CheckDecidable(level, actor); err != nil {
		return ApprovalRecord{}, err
	}
	if err := r.Authorize(actor, heldRoles); err != nil {
		return ApprovalRecord{}, err
	}

	rec := ApprovalRecord{
		ID:        uuid.New(),
		RouteID:   r.ID,
		Level:     level,
		Actor:     actor,
		Decision:  decision,
		Comments:  comments,
		DecidedAt: now,
	}
	r.Records = append(r.Records, rec)

	switch decision {
	case DecisionReject:
		r.Status = RouteStatusRejected
		r.ResolvedAt = &now
	case DecisionApprove:
		if r.approvalsAt(level) >= r.CurrentStep().MinApprovals {
			if r.IsFinalLevel() {
				r.Status = RouteStatusApproved
				r.ResolvedAt = &now
			} else {
				r.CurrentLevel++
				r.stampDue(now)
			}
		}
	}
	r.Touch(now)
	r.IncrementVersion()
	r.AddDomainEvent(NewApprovalDecisionRecordedEvent(r, rec, now))
	return rec, nil
}

// RejectionComments returns the comments of the rejecting decision, if any.
func (r *ApprovalRoute) RejectionComments() string {
	for i := len(r.Records) - 1; i >= 0; i-- {
		if r.Records[i].Decision == DecisionReject {
			return r.Records[i].Comments
		}
	}
	return ""
}

// IsOverdue reports whether the current level has passed its SLA.
func (r *ApprovalRoute) IsOverdue(now time.Time) bool {
	if r.Status.IsTerminal() {
		return false
	}
	due := r.CurrentStep().DueAt
	return due != nil && now.After(*due)
}

func (r *ApprovalRoute) approvalsAt(level int) int {
	n := 0
	for _, rec := range r.Records {
		if rec.Level == level && rec.Decision == DecisionApprove {
			n++
		}
	}
	return n
}

func (r *ApprovalRoute) stampDue(now time.Time) {
	lvl := &r.Levels[r.CurrentLevel-1]
	if lvl.SLA > 0 && lvl.DueAt == nil {
		due := now.Add(lvl.SLA)
		lvl.DueAt = &due
	}
}
