package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memState is the whole store. Transactions work on a deep copy that
// replaces the committed state only when fn succeeds.
type memState struct {
	entries   map[uuid.UUID]*ledger.JournalEntry
	routes    map[uuid.UUID]*ledger.ApprovalRoute
	lines     []ledger.LedgerLine
	postings  map[string]*ledger.Posting
	snapshots map[uuid.UUID]*ledger.TBSnapshot
	periods   map[uuid.UUID]*ledger.Period
	events    []shared.DomainEvent
	sequences map[string]int64
}

func newMemState() *memState {
	return &memState{
		entries:   map[uuid.UUID]*ledger.JournalEntry{},
		routes:    map[uuid.UUID]*ledger.ApprovalRoute{},
		postings:  map[string]*ledger.Posting{},
		snapshots: map[uuid.UUID]*ledger.TBSnapshot{},
		periods:   map[uuid.UUID]*ledger.Period{},
		sequences: map[string]int64{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.entries {
		c.entries[k] = cloneEntry(v)
	}
	for k, v := range s.routes {
		c.routes[k] = cloneRoute(v)
	}
	c.lines = append([]ledger.LedgerLine(nil), s.lines...)
	for k, v := range s.postings {
		p := *v
		c.postings[k] = &p
	}
	for k, v := range s.snapshots {
		c.snapshots[k] = cloneSnapshot(v)
	}
	for k, v := range s.periods {
		c.periods[k] = clonePeriod(v)
	}
	c.events = append([]shared.DomainEvent(nil), s.events...)
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	return c
}

func cloneEntry(e *ledger.JournalEntry) *ledger.JournalEntry {
	c := *e
	c.Lines = append([]ledger.JournalLine(nil), e.Lines...)
	c.ClearDomainEvents()
	return &c
}

func cloneRoute(r *ledger.ApprovalRoute) *ledger.ApprovalRoute {
	c := *r
	c.Levels = append([]ledger.ApprovalLevel(nil), r.Levels...)
	c.Records = append([]ledger.ApprovalRecord(nil), r.Records...)
	c.ClearDomainEvents()
	return &c
}

func clonePeriod(p *ledger.Period) *ledger.Period {
	c := *p
	c.Checklist = append([]ledger.ChecklistTask(nil), p.Checklist...)
	c.ClearDomainEvents()
	return &c
}

func cloneSnapshot(s *ledger.TBSnapshot) *ledger.TBSnapshot {
	c := *s
	c.Lines = append([]ledger.TrialBalanceLine(nil), s.Lines...)
	return &c
}

func inScope(root *shared.TenantAggregateRoot, scope ledger.Scope) bool {
	return root.TenantID == scope.TenantID && root.CompanyID == scope.CompanyID
}

// memStore implements TransactionScope over memState
type memStore struct {
	mu    sync.Mutex
	state *memState

	// failSnapshotCreate makes every snapshot insert fail
	failSnapshotCreate error
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

func (m *memStore) Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(&memRepos{s: work, store: m}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// racingScope lets another transaction commit between the read view and
// the commit of the first transaction it runs, like two replicas handling
// the same message. Commit then enforces the unique reference index.
type racingScope struct {
	*memStore
	competitor func()
	fired      bool
}

func (r *racingScope) Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error {
	if r.fired || r.competitor == nil {
		return r.memStore.Execute(ctx, fn)
	}
	r.fired = true

	r.mu.Lock()
	stale := r.state.clone()
	r.mu.Unlock()

	r.competitor()

	if err := fn(&memRepos{s: stale, store: r.memStore}); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range stale.entries {
		for _, committed := range r.state.entries {
			if committed.ID != e.ID && committed.Reference == e.Reference && committed.Scope() == e.Scope() {
				return ledger.ErrDuplicateReference.WithDetail("reference", e.Reference)
			}
		}
	}
	r.state = stale
	return nil
}

// hookedScope runs afterCommit against the committed state once a
// transaction succeeds, standing in for a writer that slips in between
// two transactions of the same operation.
type hookedScope struct {
	*memStore
	afterCommit func(s *memState)
}

func (h *hookedScope) Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error {
	if err := h.memStore.Execute(ctx, fn); err != nil {
		return err
	}
	if hook := h.afterCommit; hook != nil {
		h.mu.Lock()
		hook(h.state)
		h.mu.Unlock()
	}
	return nil
}

// read runs fn against the committed state
func (m *memStore) read(fn func(s *memState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state)
}

func (m *memStore) eventTypes() []string {
	var out []string
	m.read(func(s *memState) {
		for _, e := range s.events {
			out = append(out, e.EventType())
		}
	})
	return out
}

func (m *memStore) ledgerLines() []ledger.LedgerLine {
	var out []ledger.LedgerLine
	m.read(func(s *memState) { out = append(out, s.lines...) })
	return out
}

func (m *memStore) entry(id uuid.UUID) *ledger.JournalEntry {
	var out *ledger.JournalEntry
	m.read(func(s *memState) {
		if e, ok := s.entries[id]; ok {
			out = cloneEntry(e)
		}
	})
	return out
}

type memRepos struct {
	s     *memState
	store *memStore
}

func (r *memRepos) Entries() ledger.JournalEntryRepository  { return memEntries{r.s} }
func (r *memRepos) Routes() ledger.ApprovalRouteRepository  { return memRoutes{r.s} }
func (r *memRepos) LedgerLines() ledger.LedgerLineRepository { return memLines{r.s} }
func (r *memRepos) Postings() ledger.PostingRepository      { return memPostings{r.s} }
func (r *memRepos) Snapshots() ledger.TBSnapshotRepository {
	return memSnapshots{s: r.s, failCreate: r.store.failSnapshotCreate}
}
func (r *memRepos) Periods() ledger.PeriodRepository { return memPeriods{r.s} }
func (r *memRepos) Events() shared.EventRecorder     { return memEvents{r.s} }
func (r *memRepos) Sequence() ledger.SequencePort    { return memSequence{r.s} }

type memEntries struct{ s *memState }

func (r memEntries) FindByID(_ context.Context, scope ledger.Scope, id uuid.UUID) (*ledger.JournalEntry, error) {
	e, ok := r.s.entries[id]
	if !ok || !inScope(&e.TenantAggregateRoot, scope) {
		return nil, ledger.ErrEntryNotFound.WithDetail("entry_id", id.String())
	}
	return cloneEntry(e), nil
}

func (r memEntries) FindByReference(_ context.Context, scope ledger.Scope, reference string) (*ledger.JournalEntry, error) {
	for _, e := range r.s.entries {
		if inScope(&e.TenantAggregateRoot, scope) && e.Reference == reference {
			return cloneEntry(e), nil
		}
	}
	return nil, nil
}

func (r memEntries) FindReversalOf(_ context.Context, scope ledger.Scope, originalID uuid.UUID) (*ledger.JournalEntry, error) {
	for _, e := range r.s.entries {
		if inScope(&e.TenantAggregateRoot, scope) && e.ReversalOfID != nil && *e.ReversalOfID == originalID {
			return cloneEntry(e), nil
		}
	}
	return nil, nil
}

func (r memEntries) FindAll(_ context.Context, scope ledger.Scope, f ledger.EntryFilter) ([]*ledger.JournalEntry, int64, error) {
	var out []*ledger.JournalEntry
	for _, e := range r.s.entries {
		if !inScope(&e.TenantAggregateRoot, scope) {
			continue
		}
		if f.PeriodCode != "" && e.PeriodCode != f.PeriodCode {
			continue
		}
		if f.Reference != "" && !strings.Contains(e.Reference, f.Reference) {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, e.Status) {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reference < out[j].Reference })
	total := int64(len(out))
	p := f.Page.Normalize()
	start := p.Offset()
	if start > len(out) {
		start = len(out)
	}
	end := start + p.PageSize
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

func (r memEntries) CountInPeriod(_ context.Context, scope ledger.Scope, periodCode string, statuses ...ledger.EntryStatus) (int64, error) {
	var n int64
	for _, e := range r.s.entries {
		if inScope(&e.TenantAggregateRoot, scope) && e.PeriodCode == periodCode && hasStatus(statuses, e.Status) {
			n++
		}
	}
	return n, nil
}

func (r memEntries) Create(_ context.Context, e *ledger.JournalEntry) error {
	for _, other := range r.s.entries {
		if other.TenantID == e.TenantID && other.CompanyID == e.CompanyID && other.Reference == e.Reference {
			return ledger.ErrDuplicateReference.WithDetail("reference", e.Reference)
		}
	}
	r.s.entries[e.ID] = cloneEntry(e)
	return nil
}

func (r memEntries) SaveWithLock(_ context.Context, e *ledger.JournalEntry) error {
	stored, ok := r.s.entries[e.ID]
	if !ok {
		return ledger.ErrEntryNotFound.WithDetail("entry_id", e.ID.String())
	}
	if stored.Version != e.Version-1 {
		return shared.ErrVersionConflict.WithDetail("entry_id", e.ID.String())
	}
	r.s.entries[e.ID] = cloneEntry(e)
	return nil
}

func hasStatus(statuses []ledger.EntryStatus, s ledger.EntryStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

type memRoutes struct{ s *memState }

func (r memRoutes) FindByID(_ context.Context, scope ledger.Scope, id uuid.UUID) (*ledger.ApprovalRoute, error) {
	rt, ok := r.s.routes[id]
	if !ok || !inScope(&rt.TenantAggregateRoot, scope) {
		return nil, shared.ErrNotFound.WithDetail("route_id", id.String())
	}
	return cloneRoute(rt), nil
}

func (r memRoutes) FindByEntryID(_ context.Context, scope ledger.Scope, entryID uuid.UUID) (*ledger.ApprovalRoute, error) {
	var latest *ledger.ApprovalRoute
	for _, rt := range r.s.routes {
		if inScope(&rt.TenantAggregateRoot, scope) && rt.EntryID == entryID {
			if latest == nil || rt.CreatedAt.After(latest.CreatedAt) {
				latest = rt
			}
		}
	}
	if latest == nil {
		return nil, shared.ErrNotFound.WithDetail("entry_id", entryID.String())
	}
	return cloneRoute(latest), nil
}

func (r memRoutes) FindPending(_ context.Context, scope ledger.Scope, page shared.Page) ([]*ledger.ApprovalRoute, int64, error) {
	var out []*ledger.ApprovalRoute
	for _, rt := range r.s.routes {
		if inScope(&rt.TenantAggregateRoot, scope) && rt.Status == ledger.RouteStatusPending {
			out = append(out, cloneRoute(rt))
		}
	}
	return out, int64(len(out)), nil
}

func (r memRoutes) Create(_ context.Context, rt *ledger.ApprovalRoute) error {
	r.s.routes[rt.ID] = cloneRoute(rt)
	return nil
}

func (r memRoutes) SaveWithLock(_ context.Context, rt *ledger.ApprovalRoute) error {
	stored, ok := r.s.routes[rt.ID]
	if !ok {
		return shared.ErrNotFound.WithDetail("route_id", rt.ID.String())
	}
	if stored.Version != rt.Version-1 {
		return shared.ErrVersionConflict.WithDetail("route_id", rt.ID.String())
	}
	r.s.routes[rt.ID] = cloneRoute(rt)
	return nil
}

type memLines struct{ s *memState }

func (r memLines) Append(_ context.Context, lines []ledger.LedgerLine) error {
	r.s.lines = append(r.s.lines, lines...)
	return nil
}

func (r memLines) FindByEntry(_ context.Context, scope ledger.Scope, entryID uuid.UUID) ([]ledger.LedgerLine, error) {
	var out []ledger.LedgerLine
	for _, l := range r.s.lines {
		if l.TenantID == scope.TenantID && l.CompanyID == scope.CompanyID && l.EntryID == entryID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r memLines) FindByPeriod(_ context.Context, scope ledger.Scope, periodCode string) ([]ledger.LedgerLine, error) {
	var out []ledger.LedgerLine
	for _, l := range r.s.lines {
		if l.TenantID == scope.TenantID && l.CompanyID == scope.CompanyID && l.PeriodCode == periodCode {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r memLines) CountByEntry(ctx context.Context, scope ledger.Scope, entryID uuid.UUID) (int64, error) {
	lines, _ := r.FindByEntry(ctx, scope, entryID)
	return int64(len(lines)), nil
}

type memPostings struct{ s *memState }

func postingKey(scope ledger.Scope, sourceType, sourceID string) string {
	return scope.Key() + "|" + sourceType + "|" + sourceID
}

func (r memPostings) FindBySource(_ context.Context, scope ledger.Scope, sourceType, sourceID string) (*ledger.Posting, error) {
	p, ok := r.s.postings[postingKey(scope, sourceType, sourceID)]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (r memPostings) Create(_ context.Context, p *ledger.Posting) error {
	key := postingKey(ledger.NewScope(p.TenantID, p.CompanyID), p.SourceType, p.SourceID)
	if _, ok := r.s.postings[key]; ok {
		return shared.ErrAlreadyExists.WithDetail("source_id", p.SourceID)
	}
	c := *p
	r.s.postings[key] = &c
	return nil
}

type memSnapshots struct {
	s          *memState
	failCreate error
}

func (r memSnapshots) scoped(scope ledger.Scope) []*ledger.TBSnapshot {
	var out []*ledger.TBSnapshot
	for _, s := range r.s.snapshots {
		if s.TenantID == scope.TenantID && s.CompanyID == scope.CompanyID {
			out = append(out, s)
		}
	}
	return out
}

func (r memSnapshots) FindByID(_ context.Context, scope ledger.Scope, id uuid.UUID) (*ledger.TBSnapshot, error) {
	s, ok := r.s.snapshots[id]
	if !ok || s.TenantID != scope.TenantID || s.CompanyID != scope.CompanyID {
		return nil, ledger.ErrSnapshotNotFound.WithDetail("snapshot_id", id.String())
	}
	return cloneSnapshot(s), nil
}

func (r memSnapshots) FindActiveByPeriod(_ context.Context, scope ledger.Scope, periodCode string) (*ledger.TBSnapshot, error) {
	for _, s := range r.scoped(scope) {
		if s.PeriodCode == periodCode && !s.Superseded {
			return cloneSnapshot(s), nil
		}
	}
	return nil, nil
}

func (r memSnapshots) FindLatestActiveBefore(_ context.Context, scope ledger.Scope, before time.Time) (*ledger.TBSnapshot, error) {
	var (
		best      *ledger.TBSnapshot
		bestStart time.Time
	)
	for _, s := range r.scoped(scope) {
		if s.Superseded {
			continue
		}
		p := r.period(scope, s.PeriodCode)
		if p == nil || !p.StartDate.Before(before) {
			continue
		}
		if best == nil || p.StartDate.After(bestStart) {
			best, bestStart = s, p.StartDate
		}
	}
	if best == nil {
		return nil, nil
	}
	return cloneSnapshot(best), nil
}

func (r memSnapshots) period(scope ledger.Scope, code string) *ledger.Period {
	for _, p := range r.s.periods {
		if inScope(&p.TenantAggregateRoot, scope) && p.Code == code {
			return p
		}
	}
	return nil
}

func (r memSnapshots) FindAllActive(_ context.Context, scope ledger.Scope) ([]*ledger.TBSnapshot, error) {
	var out []*ledger.TBSnapshot
	for _, s := range r.scoped(scope) {
		if !s.Superseded {
			out = append(out, cloneSnapshot(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GeneratedAt.Before(out[j].GeneratedAt) })
	return out, nil
}

func (r memSnapshots) FindByPeriod(_ context.Context, scope ledger.Scope, periodCode string) ([]*ledger.TBSnapshot, error) {
	var out []*ledger.TBSnapshot
	for _, s := range r.scoped(scope) {
		if s.PeriodCode == periodCode {
			out = append(out, cloneSnapshot(s))
		}
	}
	return out, nil
}

func (r memSnapshots) MaxRevision(_ context.Context, scope ledger.Scope, periodCode string) (int, error) {
	highest := 0
	for _, s := range r.scoped(scope) {
		if s.PeriodCode == periodCode && s.Revision > highest {
			highest = s.Revision
		}
	}
	return highest, nil
}

func (r memSnapshots) Create(_ context.Context, s *ledger.TBSnapshot) error {
	if r.failCreate != nil {
		return r.failCreate
	}
	r.s.snapshots[s.ID] = cloneSnapshot(s)
	return nil
}

func (r memSnapshots) MarkSuperseded(_ context.Context, s *ledger.TBSnapshot) error {
	stored, ok := r.s.snapshots[s.ID]
	if !ok {
		return ledger.ErrSnapshotNotFound.WithDetail("snapshot_id", s.ID.String())
	}
	if stored.Version != s.Version-1 {
		return shared.ErrVersionConflict.WithDetail("snapshot_id", s.ID.String())
	}
	r.s.snapshots[s.ID] = cloneSnapshot(s)
	return nil
}

type memPeriods struct{ s *memState }

func (r memPeriods) FindByCode(_ context.Context, scope ledger.Scope, code string) (*ledger.Period, error) {
	for _, p := range r.s.periods {
		if inScope(&p.TenantAggregateRoot, scope) && p.Code == code {
			return clonePeriod(p), nil
		}
	}
	return nil, ledger.ErrPeriodNotFound.WithDetail("period", code)
}

func (r memPeriods) FindByID(_ context.Context, scope ledger.Scope, id uuid.UUID) (*ledger.Period, error) {
	p, ok := r.s.periods[id]
	if !ok || !inScope(&p.TenantAggregateRoot, scope) {
		return nil, ledger.ErrPeriodNotFound.WithDetail("period_id", id.String())
	}
	return clonePeriod(p), nil
}

func (r memPeriods) FindOverlapping(_ context.Context, scope ledger.Scope, start, end time.Time) ([]*ledger.Period, error) {
	var out []*ledger.Period
	for _, p := range r.s.periods {
		if inScope(&p.TenantAggregateRoot, scope) && p.Overlaps(start, end) {
			out = append(out, clonePeriod(p))
		}
	}
	return out, nil
}

func (r memPeriods) FindAll(_ context.Context, scope ledger.Scope) ([]*ledger.Period, error) {
	var out []*ledger.Period
	for _, p := range r.s.periods {
		if inScope(&p.TenantAggregateRoot, scope) {
			out = append(out, clonePeriod(p))
		}
	}
	return out, nil
}

func (r memPeriods) Create(_ context.Context, p *ledger.Period) error {
	r.s.periods[p.ID] = clonePeriod(p)
	return nil
}

func (r memPeriods) SaveWithLock(_ context.Context, p *ledger.Period) error {
	stored, ok := r.s.periods[p.ID]
	if !ok {
		return ledger.ErrPeriodNotFound.WithDetail("period", p.Code)
	}
	if stored.Version != p.Version-1 {
		return shared.ErrVersionConflict.WithDetail("period", p.Code)
	}
	r.s.periods[p.ID] = clonePeriod(p)
	return nil
}

type memEvents struct{ s *memState }

func (r memEvents) Record(_ context.Context, events ...shared.DomainEvent) error {
	r.s.events = append(r.s.events, events...)
	return nil
}

type memSequence struct{ s *memState }

func (r memSequence) Next(_ context.Context, scope string) (int64, error) {
	r.s.sequences[scope]++
	return r.s.sequences[scope], nil
}

// fakeAccounts is a chart of accounts keyed by code
type fakeAccounts map[string]ledger.AccountInfo

func (f fakeAccounts) Resolve(_ context.Context, _ ledger.Scope, code string) (ledger.AccountInfo, error) {
	info, ok := f[code]
	if !ok {
		return ledger.AccountInfo{Code: code}, nil
	}
	return info, nil
}

func postable(code string) ledger.AccountInfo {
	return ledger.AccountInfo{Code: code, Name: code, Exists: true, Active: true, Postable: true}
}

// fakeRoles grants roles per actor
type fakeRoles struct {
	mu    sync.Mutex
	roles map[uuid.UUID]map[string]bool
}

func newFakeRoles() *fakeRoles {
	return &fakeRoles{roles: map[uuid.UUID]map[string]bool{}}
}

func (f *fakeRoles) grant(actor uuid.UUID, roles ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roles[actor] == nil {
		f.roles[actor] = map[string]bool{}
	}
	for _, r := range roles {
		f.roles[actor][r] = true
	}
}

func (f *fakeRoles) HasRole(_ context.Context, _ ledger.Scope, actor uuid.UUID, role string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles[actor][role], nil
}

// MockSnapshotArchiver is a mock implementation of SnapshotArchiver
type MockSnapshotArchiver struct {
	mock.Mock
}

func (m *MockSnapshotArchiver) Archive(ctx context.Context, snapshot *ledger.TBSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

var (
	testStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	testNow   = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
)

func testPolicyTable() ledger.PolicyTable {
	return ledger.PolicyTable{Rules: []ledger.ThresholdRule{
		{
			Name:      "large",
			MinAmount: 1_000_000,
			Steps: []ledger.ApprovalStep{
				{Roles: []string{"controller"}},
				{Roles: []string{"cfo"}},
			},
		},
		{
			Name:      "standard",
			MinAmount: 0,
			MaxAmount: 1_000_000,
			Steps:     []ledger.ApprovalStep{{Roles: []string{"accountant", "controller"}}},
		},
	}}
}

func testPolicy() Policy {
	return Policy{
		RejectedEntriesEditable: true,
		ReversalMode:            ReversalModeApproval,
		ReopenWindow:            30 * 24 * time.Hour,
		AutoPostOnApproval:      false,
		FunctionalCurrency:      "USD",
		DefaultChecklist:        []string{"bank_reconciliation"},
	}
}

// harness wires the services over the in-memory store
type harness struct {
	t        *testing.T
	ctx      context.Context
	store    *memStore
	roles    *fakeRoles
	clock    *shared.ManualClock
	accounts fakeAccounts
	svc      *Services

	tenantID  uuid.UUID
	companyID uuid.UUID
	preparer  uuid.UUID
	approver  uuid.UUID
	cfo       uuid.UUID
	closer    uuid.UUID
}

func newHarness(t *testing.T, mutate ...func(*Dependencies)) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ctx:   context.Background(),
		store: newMemStore(),
		roles: newFakeRoles(),
		clock: shared.NewManualClock(testNow),
		accounts: fakeAccounts{
			"1000": postable("1000"),
			"1100": postable("1100"),
			"2000": postable("2000"),
			"4000": postable("4000"),
			"6000": postable("6000"),
			"1900": {Code: "1900", Exists: true, Active: false, Postable: true},
			"1999": {Code: "1999", Exists: true, Active: true, Postable: false},
		},
		tenantID:  uuid.New(),
		companyID: uuid.New(),
		preparer:  uuid.New(),
		approver:  uuid.New(),
		cfo:       uuid.New(),
		closer:    uuid.New(),
	}
	h.roles.grant(h.preparer, "accountant", "controller", "cfo")
	h.roles.grant(h.approver, "controller")
	h.roles.grant(h.cfo, "cfo")

	deps := Dependencies{
		Scope:    h.store,
		Accounts: h.accounts,
		Roles:    h.roles,
		Policies: testPolicyTable(),
		Policy:   testPolicy(),
		Clock:    h.clock,
	}
	for _, m := range mutate {
		m(&deps)
	}
	svc, err := NewServices(deps)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) scope() ledger.Scope {
	return ledger.NewScope(h.tenantID, h.companyID)
}

func (h *harness) as(actor uuid.UUID) ScopeRequest {
	return ScopeRequest{TenantID: h.tenantID, CompanyID: h.companyID, ActorID: actor}
}

func (h *harness) createPeriod(code string, start time.Time) *ledger.Period {
	h.t.Helper()
	p, err := h.svc.Periods.CreatePeriod(h.ctx, CreatePeriodRequest{
		ScopeRequest: h.as(h.closer),
		Code:         code,
		StartDate:    start,
		EndDate:      start.AddDate(0, 1, -1),
	})
	require.NoError(h.t, err)
	return p
}

func lines(debitAccount, creditAccount string, amount int64) []LineInput {
	return []LineInput{
		{AccountCode: debitAccount, Debit: amount},
		{AccountCode: creditAccount, Credit: amount},
	}
}

func (h *harness) createEntry(ref, period string, in []LineInput) *EntryResponse {
	h.t.Helper()
	e, err := h.svc.Journal.Create(h.ctx, CreateEntryRequest{
		ScopeRequest: h.as(h.preparer),
		EntryInput: EntryInput{
			Reference:  ref,
			PeriodCode: period,
			Currency:   "USD",
			Lines:      in,
		},
		Type: string(ledger.EntryTypeStandard),
	})
	require.NoError(h.t, err)
	return e
}

func (h *harness) submit(e *EntryResponse) *EntryResponse {
	h.t.Helper()
	out, err := h.svc.Journal.Submit(h.ctx, EntryActionRequest{
		ScopeRequest:    h.as(h.preparer),
		EntryID:         e.ID,
		ExpectedVersion: e.Version,
	})
	require.NoError(h.t, err)
	return out
}

func (h *harness) decide(routeID uuid.UUID, level int, actor uuid.UUID, decision string) (*DecisionResponse, error) {
	route, err := h.svc.Approvals.GetRoute(h.ctx, h.scope(), routeID)
	require.NoError(h.t, err)
	return h.svc.Approvals.Decide(h.ctx, DecideRequest{
		ScopeRequest:    h.as(actor),
		RouteID:         routeID,
		Level:           level,
		Decision:        decision,
		ExpectedVersion: route.Version,
	})
}

// approvedEntry creates, submits and approves a standard entry
func (h *harness) approvedEntry(ref, period string, in []LineInput) *EntryResponse {
	h.t.Helper()
	e := h.submit(h.createEntry(ref, period, in))
	resp, err := h.decide(*e.RouteID, 1, h.approver, "APPROVE")
	require.NoError(h.t, err)
	require.Equal(h.t, string(ledger.RouteStatusApproved), resp.RouteStatus)
	return resp.Entry
}

func (h *harness) post(e *EntryResponse) *ledger.PostingResult {
	h.t.Helper()
	res, err := h.svc.Posting.Post(h.ctx, PostRequest{
		ScopeRequest:    h.as(h.approver),
		EntryID:         e.ID,
		ExpectedVersion: e.Version,
	})
	require.NoError(h.t, err)
	return res
}

func (h *harness) postedEntry(ref, period string, in []LineInput) *EntryResponse {
	h.t.Helper()
	e := h.approvedEntry(ref, period, in)
	h.post(e)
	out, err := h.svc.Journal.Get(h.ctx, h.scope(), e.ID)
	require.NoError(h.t, err)
	return out
}

func (h *harness) completeChecklist(code string) {
	h.t.Helper()
	p, err := h.svc.Periods.Get(h.ctx, h.scope(), code)
	require.NoError(h.t, err)
	for _, task := range p.UndoneTasks() {
		p, err = h.svc.Periods.CompleteTask(h.ctx, CompleteTaskRequest{
			PeriodActionRequest: PeriodActionRequest{ScopeRequest: h.as(h.closer), PeriodCode: code, ExpectedVersion: p.Version},
			Task:                task,
		})
		require.NoError(h.t, err)
	}
}

func (h *harness) close(code string) (*CloseResponse, error) {
	h.t.Helper()
	p, err := h.svc.Periods.Get(h.ctx, h.scope(), code)
	require.NoError(h.t, err)
	return h.svc.Periods.StartClose(h.ctx, PeriodActionRequest{
		ScopeRequest:    h.as(h.closer),
		PeriodCode:      code,
		ExpectedVersion: p.Version,
	})
}
