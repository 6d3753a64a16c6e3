package ledger

import (
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// PeriodStatus is the lifecycle state of a fiscal period
type PeriodStatus string

const (
	PeriodStatusOpen         PeriodStatus = "OPEN"
	PeriodStatusPendingClose PeriodStatus = "PENDING_CLOSE"
	PeriodStatusClosed       PeriodStatus = "CLOSED"
	PeriodStatusReopened     PeriodStatus = "REOPENED"
)

// AcceptsPostings reports whether ledger lines may be written to the period
func (s PeriodStatus) AcceptsPostings() bool {
	return s == PeriodStatusOpen || s == PeriodStatusReopened
}

// ChecklistTask is one named step of the close checklist
type ChecklistTask struct {
	Name   string
	Done   bool
	DoneBy *uuid.UUID
	DoneAt *time.Time
}

// Period is the aggregate root for a fiscal period of one tenant and company.
type Period struct {
	shared.TenantAggregateRoot
	Code             string
	StartDate        time.Time
	EndDate          time.Time
	Status           PeriodStatus
	Checklist        []ChecklistTask
	ClosedAt         *time.Time
	ClosedBy         *uuid.UUID
	ReopenDeadline   *time.Time
	ReopenCount      int
	LastReopenReason string
	SnapshotID       *uuid.UUID
}

// NewPeriod creates an OPEN period. Dates are truncated to whole days and the
// range is inclusive on both ends.
func NewPeriod(scope Scope, code string, start, end time.Time, checklist []string, createdBy uuid.UUID, now time.Time) (*Period, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, shared.ErrInvalidInput.WithDetail("field", "code")
	}
	start, end = truncateDay(start), truncateDay(end)
	if end.Before(start) {
		return nil, ErrInvalidPeriodRange.WithDetails(map[string]string{
			"start": start.Format(time.DateOnly),
			"end":   end.Format(time.DateOnly),
		})
	}
	p := &Period{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(scope.TenantID, scope.CompanyID, createdBy, now),
		Code:                code,
		StartDate:           start,
		EndDate:             end,
		Status:              PeriodStatusOpen,
	}
	seen := make(map[string]bool, len(checklist))
	for _, name := range checklist {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		p.Checklist = append(p.Checklist, ChecklistTask{Name: name})
	}
	p.AddDomainEvent(NewPeriodCreatedEvent(p, createdBy, now))
	return p, nil
}

// Scope returns the books the period belongs to
func (p *Period) Scope() Scope {
	return ScopeOf(&p.TenantAggregateRoot)
}

// Overlaps reports whether two inclusive date ranges intersect
func (p *Period) Overlaps(start, end time.Time) bool {
	start, end = truncateDay(start), truncateDay(end)
	return !start.After(p.EndDate) && !end.Before(p.StartDate)
}

// Contains reports whether the date falls inside the period
func (p *Period) Contains(t time.Time) bool {
	return p.Overlaps(t, t)
}

// OverlapError builds the PERIOD_OVERLAP error against an existing period
func (p *Period) OverlapError(code string) error {
	return ErrPeriodOverlap.WithDetails(map[string]string{
		"period":   code,
		"existing": p.Code,
	})
}

// CompleteTask marks a checklist task done. Completing a done task is a no-op.
func (p *Period) CompleteTask(name string, actor uuid.UUID, now time.Time) error {
	if p.Status == PeriodStatusClosed || p.Status == PeriodStatusPendingClose {
		return shared.ErrInvalidState.WithDetails(map[string]string{"period_status": string(p.Status), "operation": "complete_task"})
	}
	for i := range p.Checklist {
		t := &p.Checklist[i]
		if t.Name != name {
			continue
		}
		if t.Done {
			return nil
		}
		t.Done = true
		t.DoneBy = &actor
		t.DoneAt = &now
		p.Touch(now)
		p.IncrementVersion()
		return nil
	}
	return ErrUnknownChecklistTask.WithDetails(map[string]string{"period": p.Code, "task": name})
}

// UndoneTasks returns the names of checklist tasks still open
func (p *Period) UndoneTasks() []string {
	var out []string
	for _, t := range p.Checklist {
		if !t.Done {
			out = append(out, t.Name)
		}
	}
	return out
}

// BeginClose checks the checklist and moves the period to PENDING_CLOSE.
// A period already PENDING_CLOSE stays there so a failed close can be retried.
func (p *Period) BeginClose(actor uuid.UUID, now time.Time) error {
	switch p.Status {
	case PeriodStatusClosed:
		return ErrAlreadyClosed.WithDetail("period", p.Code)
	case PeriodStatusOpen, PeriodStatusReopened, PeriodStatusPendingClose:
	default:
		return shared.ErrInvalidState.WithDetails(map[string]string{"period_status": string(p.Status), "operation": "start_close"})
	}
	if undone := p.UndoneTasks(); len(undone) > 0 {
		return ErrChecklistIncomplete.WithDetails(map[string]string{
			"period": p.Code,
			"tasks":  strings.Join(undone, ","),
		})
	}
	if p.Status == PeriodStatusPendingClose {
		return nil
	}
	p.Status = PeriodStatusPendingClose
	p.Touch(now)
	p.IncrementVersion()
	p.AddDomainEvent(NewPeriodCloseStartedEvent(p, actor, now))
	return nil
}

// CancelClose returns a PENDING_CLOSE period to OPEN. Checklist progress is
// kept.
func (p *Period) CancelClose(actor uuid.UUID, reason string, now time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired.WithDetail("operation", "cancel_close")
	}
	if p.Status != PeriodStatusPendingClose {
		return shared.ErrInvalidState.WithDetails(map[string]string{"period_status": string(p.Status), "operation": "cancel_close"})
	}
	p.Status = PeriodStatusOpen
	p.Touch(now)
	p.IncrementVersion()
	p.AddDomainEvent(NewCloseCancelledEvent(p, actor, reason, now))
	return nil
}

// AcceptsNewEntries reports whether entries may still be drafted or edited
// for the period
func (p *Period) AcceptsNewEntries() bool {
	return p.Status.AcceptsPostings()
}

// CompleteClose moves a PENDING_CLOSE period to CLOSED and opens the reopen
// window. A zero window means the period can never be reopened.
func (p *Period) CompleteClose(snapshotID, actor uuid.UUID, reopenWindow time.Duration, now time.Time) error {
	if p.Status != PeriodStatusPendingClose {
		return shared.ErrInvalidState.WithDetails(map[string]string{"period_status": string(p.Status), "operation": "complete_close"})
	}
	deadline := now.Add(reopenWindow)
	p.Status = PeriodStatusClosed
	p.ClosedAt = &now
	p.ClosedBy = &actor
	p.ReopenDeadline = &deadline
	p.SnapshotID = &snapshotID
	p.Touch(now)
	p.IncrementVersion()
	p.AddDomainEvent(NewPeriodClosedEvent(p, actor, now))
	return nil
}

// Reopen moves a CLOSED period to REOPENED while the reopen window lasts.
func (p *Period) Reopen(actor uuid.UUID, reason string, now time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired.WithDetail("operation", "reopen")
	}
	if p.Status != PeriodStatusClosed {
		return ErrPeriodNotClosed.WithDetails(map[string]string{"period": p.Code, "period_status": string(p.Status)})
	}
	if p.ReopenDeadline == nil || !now.Before(*p.ReopenDeadline) {
		details := map[string]string{"period": p.Code}
		if p.ReopenDeadline != nil {
			details["deadline"] = p.ReopenDeadline.UTC().Format(time.RFC3339)
		}
		return ErrReopenWindowExpired.WithDetails(details)
	}
	p.Status = PeriodStatusReopened
	p.ReopenCount++
	p.LastReopenReason = reason
	p.SnapshotID = nil
	p.Touch(now)
	p.IncrementVersion()
	p.AddDomainEvent(NewPeriodReopenedEvent(p, actor, reason, now))
	return nil
}

// ResumeOpen returns a REOPENED period to OPEN for corrections. Checklist
// tasks are reset so the next close walks the list again.
func (p *Period) ResumeOpen(now time.Time) error {
	if p.Status != PeriodStatusReopened {
		return shared.ErrInvalidState.WithDetails(map[string]string{"period_status": string(p.Status), "operation": "resume_open"})
	}
	p.Status = PeriodStatusOpen
	p.ClosedAt = nil
	p.ClosedBy = nil
	p.ReopenDeadline = nil
	for i := range p.Checklist {
		p.Checklist[i].Done = false
		p.Checklist[i].DoneBy = nil
		p.Checklist[i].DoneAt = nil
	}
	p.Touch(now)
	p.IncrementVersion()
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
