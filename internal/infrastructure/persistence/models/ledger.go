package models

import (
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/google/uuid"
)

// JournalEntryModel is the persistence model for the JournalEntry aggregate
type JournalEntryModel struct {
	TenantAggregateModel
	EntryType       string     `gorm:"type:varchar(20);not null"`
	Status          string     `gorm:"type:varchar(20);not null;index"`
	TotalDebit      int64      `gorm:"not null"`
	TotalCredit     int64      `gorm:"not null"`
	Currency        string     `gorm:"type:varchar(3);not null"`
	PeriodCode      string     `gorm:"type:varchar(32);not null;index"`
	Reference       string     `gorm:"type:varchar(64);not null"`
	Description     string     `gorm:"type:text"`
	EntryDate       time.Time  `gorm:"not null"`
	SourceType      string     `gorm:"type:varchar(64);not null"`
	SourceID        string     `gorm:"type:varchar(128);not null"`
	RouteID         *uuid.UUID `gorm:"type:uuid"`
	ReversalOfID    *uuid.UUID `gorm:"type:uuid;index"`
	ReversedByID    *uuid.UUID `gorm:"type:uuid"`
	ReversalReason  string     `gorm:"type:text"`
	RejectionReason string     `gorm:"type:text"`
	SubmittedBy     *uuid.UUID `gorm:"type:uuid"`
	SubmittedAt     *time.Time
	ApprovedAt      *time.Time
	RejectedAt      *time.Time
	PostedBy        *uuid.UUID `gorm:"type:uuid"`
	PostedAt        *time.Time
	PostingSequence int64              `gorm:"not null;default:0"`
	Lines           []JournalLineModel `gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (JournalEntryModel) TableName() string {
	return "journal_entries"
}

// ToDomain converts the persistence model to a domain JournalEntry
func (m *JournalEntryModel) ToDomain() *ledger.JournalEntry {
	e := &ledger.JournalEntry{
		EntryType:       ledger.EntryType(m.EntryType),
		Status:          ledger.EntryStatus(m.Status),
		TotalDebit:      m.TotalDebit,
		TotalCredit:     m.TotalCredit,
		Currency:        m.Currency,
		PeriodCode:      m.PeriodCode,
		Reference:       m.Reference,
		Description:     m.Description,
		EntryDate:       m.EntryDate,
		SourceType:      m.SourceType,
		SourceID:        m.SourceID,
		RouteID:         m.RouteID,
		ReversalOfID:    m.ReversalOfID,
		ReversedByID:    m.ReversedByID,
		ReversalReason:  m.ReversalReason,
		RejectionReason: m.RejectionReason,
		SubmittedBy:     m.SubmittedBy,
		SubmittedAt:     m.SubmittedAt,
		ApprovedAt:      m.ApprovedAt,
		RejectedAt:      m.RejectedAt,
		PostedBy:        m.PostedBy,
		PostedAt:        m.PostedAt,
		PostingSequence: m.PostingSequence,
		Lines:           make([]ledger.JournalLine, len(m.Lines)),
	}
	m.PopulateTenantAggregateRoot(&e.TenantAggregateRoot)
	for i, l := range m.Lines {
		e.Lines[i] = l.ToDomain()
	}
	return e
}

// FromDomain populates the persistence model from a domain JournalEntry
func (m *JournalEntryModel) FromDomain(e *ledger.JournalEntry) {
	m.FromDomainTenantAggregateRoot(e.TenantAggregateRoot)
	m.EntryType = string(e.EntryType)
	m.Status = string(e.Status)
	m.TotalDebit = e.TotalDebit
	m.TotalCredit = e.TotalCredit
	m.Currency = e.Currency
	m.PeriodCode = e.PeriodCode
	m.Reference = e.Reference
	m.Description = e.Description
	m.EntryDate = e.EntryDate
	m.SourceType = e.SourceType
	m.SourceID = e.SourceID
	m.RouteID = e.RouteID
	m.ReversalOfID = e.ReversalOfID
	m.ReversedByID = e.ReversedByID
	m.ReversalReason = e.ReversalReason
	m.RejectionReason = e.RejectionReason
	m.SubmittedBy = e.SubmittedBy
	m.SubmittedAt = e.SubmittedAt
	m.ApprovedAt = e.ApprovedAt
	m.RejectedAt = e.RejectedAt
	m.PostedBy = e.PostedBy
	m.PostedAt = e.PostedAt
	m.PostingSequence = e.PostingSequence
	m.Lines = JournalLineModelsFromDomain(e.ID, e.Lines)
}

// JournalEntryModelFromDomain creates a new persistence model from a domain JournalEntry
func JournalEntryModelFromDomain(e *ledger.JournalEntry) *JournalEntryModel {
	m := &JournalEntryModel{}
	m.FromDomain(e)
	return m
}

// JournalLineModel is one line of a journal entry. Lines are replaced as a
// whole when a draft is edited.
type JournalLineModel struct {
	EntryID     uuid.UUID         `gorm:"type:uuid;primaryKey"`
	LineNo      int               `gorm:"primaryKey;autoIncrement:false"`
	AccountCode string            `gorm:"type:varchar(32);not null"`
	Debit       int64             `gorm:"not null;default:0"`
	Credit      int64             `gorm:"not null;default:0"`
	Memo        string            `gorm:"type:text"`
	Dimensions  map[string]string `gorm:"type:jsonb;serializer:json"`
}

// TableName returns the table name for GORM
func (JournalLineModel) TableName() string {
	return "journal_lines"
}

// ToDomain converts the persistence model to a domain JournalLine
func (m *JournalLineModel) ToDomain() ledger.JournalLine {
	return ledger.JournalLine{
		LineNo:      m.LineNo,
		AccountCode: m.AccountCode,
		Debit:       m.Debit,
		Credit:      m.Credit,
		Memo:        m.Memo,
		Dimensions:  m.Dimensions,
	}
}

// JournalLineModelsFromDomain maps the lines of one entry
func JournalLineModelsFromDomain(entryID uuid.UUID, lines []ledger.JournalLine) []JournalLineModel {
	out := make([]JournalLineModel, len(lines))
	for i, l := range lines {
		out[i] = JournalLineModel{
			EntryID:     entryID,
			LineNo:      l.LineNo,
			AccountCode: l.AccountCode,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Memo:        l.Memo,
			Dimensions:  l.Dimensions,
		}
	}
	return out
}

// ApprovalLevelModel is the JSON form of a route level
type ApprovalLevelModel struct {
	Level        int        `json:"level"`
	Roles        []string   `json:"roles"`
	RequireAll   bool       `json:"require_all,omitempty"`
	MinApprovals int        `json:"min_approvals"`
	SLA          int64      `json:"sla_seconds,omitempty"`
	DueAt        *time.Time `json:"due_at,omitempty"`
}

// ApprovalRouteModel is the persistence model for the ApprovalRoute aggregate
type ApprovalRouteModel struct {
	TenantAggregateModel
	EntryID        uuid.UUID             `gorm:"type:uuid;not null;index"`
	EntryCreatedBy uuid.UUID             `gorm:"type:uuid;not null"`
	PolicyName     string                `gorm:"type:varchar(64);not null"`
	Amount         int64                 `gorm:"not null"`
	Levels         []ApprovalLevelModel  `gorm:"type:jsonb;serializer:json;not null"`
	CurrentLevel   int                   `gorm:"not null"`
	Status         string                `gorm:"type:varchar(20);not null;index"`
	ResolvedAt     *time.Time
	Records        []ApprovalRecordModel `gorm:"foreignKey:RouteID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (ApprovalRouteModel) TableName() string {
	return "approval_routes"
}

// ToDomain converts the persistence model to a domain ApprovalRoute
func (m *ApprovalRouteModel) ToDomain() *ledger.ApprovalRoute {
	r := &ledger.ApprovalRoute{
		EntryID:        m.EntryID,
		EntryCreatedBy: m.EntryCreatedBy,
		PolicyName:     m.PolicyName,
		Amount:         m.Amount,
		Levels:         make([]ledger.ApprovalLevel, len(m.Levels)),
		CurrentLevel:   m.CurrentLevel,
		Status:         ledger.RouteStatus(m.Status),
		ResolvedAt:     m.ResolvedAt,
		Records:        make([]ledger.ApprovalRecord, len(m.Records)),
	}
	m.PopulateTenantAggregateRoot(&r.TenantAggregateRoot)
	for i, l := range m.Levels {
		r.Levels[i] = ledger.ApprovalLevel{
			Level:        l.Level,
			Roles:        l.Roles,
			RequireAll:   l.RequireAll,
			MinApprovals: l.MinApprovals,
			SLA:          time.Duration(l.SLA) * time.Second,
			DueAt:        l.DueAt,
		}
	}
	for i, rec := range m.Records {
		r.Records[i] = rec.ToDomain()
	}
	return r
}

// FromDomain populates the persistence model from a domain ApprovalRoute
func (m *ApprovalRouteModel) FromDomain(r *ledger.ApprovalRoute) {
	m.FromDomainTenantAggregateRoot(r.TenantAggregateRoot)
	m.EntryID = r.EntryID
	m.EntryCreatedBy = r.EntryCreatedBy
	m.PolicyName = r.PolicyName
	m.Amount = r.Amount
	m.CurrentLevel = r.CurrentLevel
	m.Status = string(r.Status)
	m.ResolvedAt = r.ResolvedAt
	m.Levels = make([]ApprovalLevelModel, len(r.Levels))
	for i, l := range r.Levels {
		m.Levels[i] = ApprovalLevelModel{
			Level:        l.Level,
			Roles:        l.Roles,
			RequireAll:   l.RequireAll,
			MinApprovals: l.MinApprovals,
			SLA:          int64(l.SLA / time.Second),
			DueAt:        l.DueAt,
		}
	}
	m.Records = make([]ApprovalRecordModel, len(r.Records))
	for i, rec := range r.Records {
		m.Records[i] = ApprovalRecordModelFromDomain(r.TenantID, r.CompanyID, rec)
	}
}

// ApprovalRouteModelFromDomain creates a new persistence model from a domain ApprovalRoute
func ApprovalRouteModelFromDomain(r *ledger.ApprovalRoute) *ApprovalRouteModel {
	m := &ApprovalRouteModel{}
	m.FromDomain(r)
	return m
}

// ApprovalRecordModel is an append-only approval decision. The unique index
// on (route_id, level, actor) backs the one-decision-per-actor rule.
type ApprovalRecordModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null"`
	CompanyID uuid.UUID `gorm:"type:uuid;not null"`
	RouteID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_approval_records_actor,priority:1"`
	Level     int       `gorm:"not null;uniqueIndex:uq_approval_records_actor,priority:2"`
	Actor     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_approval_records_actor,priority:3"`
	Decision  string    `gorm:"type:varchar(10);not null"`
	Comments  string    `gorm:"type:text"`
	DecidedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ApprovalRecordModel) TableName() string {
	return "approval_records"
}

// ToDomain converts the persistence model to a domain ApprovalRecord
func (m *ApprovalRecordModel) ToDomain() ledger.ApprovalRecord {
	return ledger.ApprovalRecord{
		ID:        m.ID,
		RouteID:   m.RouteID,
		Level:     m.Level,
		Actor:     m.Actor,
		Decision:  ledger.Decision(m.Decision),
		Comments:  m.Comments,
		DecidedAt: m.DecidedAt,
	}
}

// ApprovalRecordModelFromDomain maps a decision of a route in the given scope
func ApprovalRecordModelFromDomain(tenantID, companyID uuid.UUID, r ledger.ApprovalRecord) ApprovalRecordModel {
	return ApprovalRecordModel{
		ID:        r.ID,
		TenantID:  tenantID,
		CompanyID: companyID,
		RouteID:   r.RouteID,
		Level:     r.Level,
		Actor:     r.Actor,
		Decision:  string(r.Decision),
		Comments:  r.Comments,
		DecidedAt: r.DecidedAt,
	}
}

// LedgerLineModel is one immutable posted line
type LedgerLineModel struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID         `gorm:"type:uuid;not null;index:idx_ledger_lines_period,priority:1"`
	CompanyID    uuid.UUID         `gorm:"type:uuid;not null;index:idx_ledger_lines_period,priority:2"`
	PeriodCode   string            `gorm:"type:varchar(32);not null;index:idx_ledger_lines_period,priority:3"`
	EntryID      uuid.UUID         `gorm:"type:uuid;not null;index"`
	LineNo       int               `gorm:"not null"`
	AccountCode  string            `gorm:"type:varchar(32);not null"`
	Debit        int64             `gorm:"not null;default:0"`
	Credit       int64             `gorm:"not null;default:0"`
	Currency     string            `gorm:"type:varchar(3);not null"`
	PostedAt     time.Time         `gorm:"not null"`
	Sequence     int64             `gorm:"not null"`
	SourceType   string            `gorm:"type:varchar(64);not null"`
	SourceID     string            `gorm:"type:varchar(128);not null"`
	ReversalOfID *uuid.UUID        `gorm:"type:uuid"`
	Dimensions   map[string]string `gorm:"type:jsonb;serializer:json"`
}

// TableName returns the table name for GORM
func (LedgerLineModel) TableName() string {
	return "ledger_lines"
}

// ToDomain converts the persistence model to a domain LedgerLine
func (m *LedgerLineModel) ToDomain() ledger.LedgerLine {
	return ledger.LedgerLine{
		ID:           m.ID,
		TenantID:     m.TenantID,
		CompanyID:    m.CompanyID,
		EntryID:      m.EntryID,
		LineNo:       m.LineNo,
		AccountCode:  m.AccountCode,
		Debit:        m.Debit,
		Credit:       m.Credit,
		Currency:     m.Currency,
		PeriodCode:   m.PeriodCode,
		PostedAt:     m.PostedAt,
		Sequence:     m.Sequence,
		SourceType:   m.SourceType,
		SourceID:     m.SourceID,
		ReversalOfID: m.ReversalOfID,
		Dimensions:   m.Dimensions,
	}
}

// LedgerLineModelFromDomain creates a new persistence model from a domain LedgerLine
func LedgerLineModelFromDomain(l ledger.LedgerLine) LedgerLineModel {
	return LedgerLineModel{
		ID:           l.ID,
		TenantID:     l.TenantID,
		CompanyID:    l.CompanyID,
		EntryID:      l.EntryID,
		LineNo:       l.LineNo,
		AccountCode:  l.AccountCode,
		Debit:        l.Debit,
		Credit:       l.Credit,
		Currency:     l.Currency,
		PeriodCode:   l.PeriodCode,
		PostedAt:     l.PostedAt,
		Sequence:     l.Sequence,
		SourceType:   l.SourceType,
		SourceID:     l.SourceID,
		ReversalOfID: l.ReversalOfID,
		Dimensions:   l.Dimensions,
	}
}

// PostingModel indexes a posting by its idempotency key
type PostingModel struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:uq_postings_source,priority:1"`
	CompanyID   uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:uq_postings_source,priority:2"`
	SourceType  string      `gorm:"type:varchar(64);not null;uniqueIndex:uq_postings_source,priority:3"`
	SourceID    string      `gorm:"type:varchar(128);not null;uniqueIndex:uq_postings_source,priority:4"`
	EntryID     uuid.UUID   `gorm:"type:uuid;not null;index"`
	Sequence    int64       `gorm:"not null"`
	LineIDs     []uuid.UUID `gorm:"type:jsonb;serializer:json;not null"`
	TotalDebit  int64       `gorm:"not null"`
	TotalCredit int64       `gorm:"not null"`
	Currency    string      `gorm:"type:varchar(3);not null"`
	PeriodCode  string      `gorm:"type:varchar(32);not null"`
	PostedBy    uuid.UUID   `gorm:"type:uuid;not null"`
	PostedAt    time.Time   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PostingModel) TableName() string {
	return "postings"
}

// ToDomain converts the persistence model to a domain Posting
func (m *PostingModel) ToDomain() *ledger.Posting {
	return &ledger.Posting{
		ID:          m.ID,
		TenantID:    m.TenantID,
		CompanyID:   m.CompanyID,
		EntryID:     m.EntryID,
		SourceType:  m.SourceType,
		SourceID:    m.SourceID,
		Sequence:    m.Sequence,
		LineIDs:     m.LineIDs,
		TotalDebit:  m.TotalDebit,
		TotalCredit: m.TotalCredit,
		Currency:    m.Currency,
		PeriodCode:  m.PeriodCode,
		PostedBy:    m.PostedBy,
		PostedAt:    m.PostedAt,
	}
}

// PostingModelFromDomain creates a new persistence model from a domain Posting
func PostingModelFromDomain(p *ledger.Posting) *PostingModel {
	return &PostingModel{
		ID:          p.ID,
		TenantID:    p.TenantID,
		CompanyID:   p.CompanyID,
		EntryID:     p.EntryID,
		SourceType:  p.SourceType,
		SourceID:    p.SourceID,
		Sequence:    p.Sequence,
		LineIDs:     p.LineIDs,
		TotalDebit:  p.TotalDebit,
		TotalCredit: p.TotalCredit,
		Currency:    p.Currency,
		PeriodCode:  p.PeriodCode,
		PostedBy:    p.PostedBy,
		PostedAt:    p.PostedAt,
	}
}

// ChecklistTaskModel is the JSON form of a close checklist task
type ChecklistTaskModel struct {
	Name   string     `json:"name"`
	Done   bool       `json:"done"`
	DoneBy *uuid.UUID `json:"done_by,omitempty"`
	DoneAt *time.Time `json:"done_at,omitempty"`
}

// PeriodModel is the persistence model for the Period aggregate
type PeriodModel struct {
	TenantAggregateModel
	Code             string               `gorm:"type:varchar(32);not null"`
	StartDate        time.Time            `gorm:"not null"`
	EndDate          time.Time            `gorm:"not null"`
	Status           string               `gorm:"type:varchar(20);not null"`
	Checklist        []ChecklistTaskModel `gorm:"type:jsonb;serializer:json;not null"`
	ClosedAt         *time.Time
	ClosedBy         *uuid.UUID `gorm:"type:uuid"`
	ReopenDeadline   *time.Time
	ReopenCount      int        `gorm:"not null;default:0"`
	LastReopenReason string     `gorm:"type:text"`
	SnapshotID       *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (PeriodModel) TableName() string {
	return "fiscal_periods"
}

// ToDomain converts the persistence model to a domain Period
func (m *PeriodModel) ToDomain() *ledger.Period {
	p := &ledger.Period{
		Code:             m.Code,
		StartDate:        m.StartDate,
		EndDate:          m.EndDate,
		Status:           ledger.PeriodStatus(m.Status),
		Checklist:        make([]ledger.ChecklistTask, len(m.Checklist)),
		ClosedAt:         m.ClosedAt,
		ClosedBy:         m.ClosedBy,
		ReopenDeadline:   m.ReopenDeadline,
		ReopenCount:      m.ReopenCount,
		LastReopenReason: m.LastReopenReason,
		SnapshotID:       m.SnapshotID,
	}
	m.PopulateTenantAggregateRoot(&p.TenantAggregateRoot)
	for i, t := range m.Checklist {
		p.Checklist[i] = ledger.ChecklistTask{Name: t.Name, Done: t.Done, DoneBy: t.DoneBy, DoneAt: t.DoneAt}
	}
	return p
}

// FromDomain populates the persistence model from a domain Period
func (m *PeriodModel) FromDomain(p *ledger.Period) {
	m.FromDomainTenantAggregateRoot(p.TenantAggregateRoot)
	m.Code = p.Code
	m.StartDate = p.StartDate
	m.EndDate = p.EndDate
	m.Status = string(p.Status)
	m.ClosedAt = p.ClosedAt
	m.ClosedBy = p.ClosedBy
	m.ReopenDeadline = p.ReopenDeadline
	m.ReopenCount = p.ReopenCount
	m.LastReopenReason = p.LastReopenReason
	m.SnapshotID = p.SnapshotID
	m.Checklist = make([]ChecklistTaskModel, len(p.Checklist))
	for i, t := range p.Checklist {
		m.Checklist[i] = ChecklistTaskModel{Name: t.Name, Done: t.Done, DoneBy: t.DoneBy, DoneAt: t.DoneAt}
	}
}

// PeriodModelFromDomain creates a new persistence model from a domain Period
func PeriodModelFromDomain(p *ledger.Period) *PeriodModel {
	m := &PeriodModel{}
	m.FromDomain(p)
	return m
}

// TBSnapshotModel is the persistence model for a trial balance snapshot
type TBSnapshotModel struct {
	ID           uuid.UUID                 `gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID                 `gorm:"type:uuid;not null;index:idx_tb_snapshots_period,priority:1"`
	CompanyID    uuid.UUID                 `gorm:"type:uuid;not null;index:idx_tb_snapshots_period,priority:2"`
	PeriodCode   string                    `gorm:"type:varchar(32);not null;index:idx_tb_snapshots_period,priority:3"`
	Revision     int                       `gorm:"not null"`
	Lines        []ledger.TrialBalanceLine `gorm:"type:jsonb;serializer:json;not null"`
	TotalDebit   int64                     `gorm:"not null"`
	TotalCredit  int64                     `gorm:"not null"`
	Currency     string                    `gorm:"type:varchar(3);not null"`
	Hash         string                    `gorm:"type:char(64);not null"`
	PreviousHash string                    `gorm:"type:char(64);not null"`
	GeneratedAt  time.Time                 `gorm:"not null"`
	GeneratedBy  uuid.UUID                 `gorm:"type:uuid;not null"`
	Immutable    bool                      `gorm:"not null;default:true"`
	Superseded   bool                      `gorm:"not null;default:false"`
	SupersededAt *time.Time
	Version      int `gorm:"not null;default:1"`
}

// TableName returns the table name for GORM
func (TBSnapshotModel) TableName() string {
	return "tb_snapshots"
}

// ToDomain converts the persistence model to a domain TBSnapshot
func (m *TBSnapshotModel) ToDomain() *ledger.TBSnapshot {
	return &ledger.TBSnapshot{
		ID:           m.ID,
		TenantID:     m.TenantID,
		CompanyID:    m.CompanyID,
		PeriodCode:   m.PeriodCode,
		Revision:     m.Revision,
		Lines:        m.Lines,
		TotalDebit:   m.TotalDebit,
		TotalCredit:  m.TotalCredit,
		Currency:     m.Currency,
		Hash:         m.Hash,
		PreviousHash: m.PreviousHash,
		GeneratedAt:  m.GeneratedAt,
		GeneratedBy:  m.GeneratedBy,
		Immutable:    m.Immutable,
		Superseded:   m.Superseded,
		SupersededAt: m.SupersededAt,
		Version:      m.Version,
	}
}

// TBSnapshotModelFromDomain creates a new persistence model from a domain TBSnapshot
func TBSnapshotModelFromDomain(s *ledger.TBSnapshot) *TBSnapshotModel {
	return &TBSnapshotModel{
		ID:           s.ID,
		TenantID:     s.TenantID,
		CompanyID:    s.CompanyID,
		PeriodCode:   s.PeriodCode,
		Revision:     s.Revision,
		Lines:        s.Lines,
		TotalDebit:   s.TotalDebit,
		TotalCredit:  s.TotalCredit,
		Currency:     s.Currency,
		Hash:         s.Hash,
		PreviousHash: s.PreviousHash,
		GeneratedAt:  s.GeneratedAt,
		GeneratedBy:  s.GeneratedBy,
		Immutable:    s.Immutable,
		Superseded:   s.Superseded,
		SupersededAt: s.SupersededAt,
		Version:      s.Version,
	}
}

// AccountModel is the read side of the chart of accounts consumed by the
// ledger. The chart itself is maintained by another service.
type AccountModel struct {
	TenantID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	CompanyID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Code      string    `gorm:"type:varchar(32);primaryKey"`
	Name      string    `gorm:"type:varchar(200);not null"`
	Active    bool      `gorm:"not null"`
	Postable  bool      `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AccountModel) TableName() string {
	return "ledger_accounts"
}

// ToDomain converts the row to the port's AccountInfo
func (m *AccountModel) ToDomain() ledger.AccountInfo {
	return ledger.AccountInfo{
		Code:     m.Code,
		Name:     m.Name,
		Exists:   true,
		Active:   m.Active,
		Postable: m.Postable,
	}
}

// SequenceModel holds the last posting number handed out per scope
type SequenceModel struct {
	Scope     string    `gorm:"type:varchar(128);primaryKey"`
	Value     int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SequenceModel) TableName() string {
	return "ledger_sequences"
}

// AllLedgerModels lists every model owned by the ledger schema
func AllLedgerModels() []any {
	return []any{
		&JournalEntryModel{},
		&JournalLineModel{},
		&ApprovalRouteModel{},
		&ApprovalRecordModel{},
		&LedgerLineModel{},
		&PostingModel{},
		&PeriodModel{},
		&TBSnapshotModel{},
		&AccountModel{},
		&SequenceModel{},
		&OutboxEntryModel{},
	}
}
