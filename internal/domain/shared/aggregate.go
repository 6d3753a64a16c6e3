package shared

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// AggregateRoot is the base interface for all aggregate roots
type AggregateRoot interface {
	Entity
	GetVersion() int
	IncrementVersion()
	AddDomainEvent(event DomainEvent)
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// BaseAggregateRoot provides common fields for aggregate roots.
// Version is the optimistic concurrency token: every state transition
// increments it and repositories persist with compare-and-swap on the
// previous value.
type BaseAggregateRoot struct {
	BaseEntity
	Version      int
	domainEvents []DomainEvent
}

// GetVersion returns the aggregate version for optimistic locking
func (a *BaseAggregateRoot) GetVersion() int {
	return a.Version
}

// IncrementVersion increments the version number
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
}

// CheckVersion fails with ErrVersionConflict when the caller observed a
// different version. Zero means the caller did not supply one.
func (a *BaseAggregateRoot) CheckVersion(expected int) error {
	if expected != 0 && expected != a.Version {
		return ErrVersionConflict.
			WithDetail("expected_version", strconv.Itoa(expected)).
			WithDetail("current_version", strconv.Itoa(a.Version))
	}
	return nil
}

// AddDomainEvent adds a domain event to be published
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// GetDomainEvents returns all pending domain events
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents clears the pending domain events
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}

// NewBaseAggregateRoot creates a new base aggregate root at version 1
func NewBaseAggregateRoot(now time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity:   NewBaseEntity(now),
		Version:      1,
		domainEvents: make([]DomainEvent, 0),
	}
}

// TenantAggregateRoot extends BaseAggregateRoot with tenant and company scope
type TenantAggregateRoot struct {
	BaseAggregateRoot
	TenantID  uuid.UUID
	CompanyID uuid.UUID
	CreatedBy uuid.UUID
}

// NewTenantAggregateRoot creates a new aggregate root owned by a tenant+company
func NewTenantAggregateRoot(tenantID, companyID, createdBy uuid.UUID, now time.Time) TenantAggregateRoot {
	return TenantAggregateRoot{
		BaseAggregateRoot: NewBaseAggregateRoot(now),
		TenantID:          tenantID,
		CompanyID:         companyID,
		CreatedBy:         createdBy,
	}
}

// GetCreatedBy returns the creator user ID
func (t *TenantAggregateRoot) GetCreatedBy() uuid.UUID {
	return t.CreatedBy
}
