package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	appledger "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/google/uuid"
)

// ObjectStore is the subset of S3ObjectStorage the archiver needs
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
}

// ErrArchiveMismatch is returned when an archived copy disagrees with the
// snapshot it was taken from
var ErrArchiveMismatch = errors.New("archived snapshot does not match")

// archivedSnapshot is the JSON document written per snapshot revision
type archivedSnapshot struct {
	ID           uuid.UUID                 `json:"id"`
	TenantID     uuid.UUID                 `json:"tenant_id"`
	CompanyID    uuid.UUID                 `json:"company_id"`
	PeriodCode   string                    `json:"period_code"`
	Revision     int                       `json:"revision"`
	Currency     string                    `json:"currency"`
	Lines        []ledger.TrialBalanceLine `json:"lines"`
	TotalDebit   int64                     `json:"total_debit"`
	TotalCredit  int64                     `json:"total_credit"`
	Hash         string                    `json:"hash"`
	PreviousHash string                    `json:"previous_hash"`
	GeneratedAt  time.Time                 `json:"generated_at"`
	GeneratedBy  uuid.UUID                 `json:"generated_by"`
}

// SnapshotArchiver writes sealed snapshots as JSON under
// <prefix>/<tenant>/<company>/<period>/rev-<n>.json
type SnapshotArchiver struct {
	store  ObjectStore
	prefix string
}

// NewSnapshotArchiver creates an archiver over store
func NewSnapshotArchiver(store ObjectStore, prefix string) *SnapshotArchiver {
	return &SnapshotArchiver{store: store, prefix: strings.Trim(prefix, "/")}
}

// Key returns the object key of a snapshot revision
func (a *SnapshotArchiver) Key(scope ledger.Scope, periodCode string, revision int) string {
	return path.Join(a.prefix,
		scope.TenantID.String(),
		scope.CompanyID.String(),
		periodCode,
		fmt.Sprintf("rev-%04d.json", revision))
}

// Archive uploads snapshot. Rewriting the same revision is harmless: the
// content of a sealed revision never changes.
func (a *SnapshotArchiver) Archive(ctx context.Context, snapshot *ledger.TBSnapshot) error {
	if snapshot == nil {
		return errors.New("snapshot is required")
	}
	data, err := json.MarshalIndent(archivedSnapshot{
		ID:           snapshot.ID,
		TenantID:     snapshot.TenantID,
		CompanyID:    snapshot.CompanyID,
		PeriodCode:   snapshot.PeriodCode,
		Revision:     snapshot.Revision,
		Currency:     snapshot.Currency,
		Lines:        snapshot.Lines,
		TotalDebit:   snapshot.TotalDebit,
		TotalCredit:  snapshot.TotalCredit,
		Hash:         snapshot.Hash,
		PreviousHash: snapshot.PreviousHash,
		GeneratedAt:  snapshot.GeneratedAt.UTC(),
		GeneratedBy:  snapshot.GeneratedBy,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", snapshot.ID, err)
	}
	return a.store.Upload(ctx, a.Key(snapshot.Scope(), snapshot.PeriodCode, snapshot.Revision), data, "application/json")
}

// Fetch reads an archived revision back
func (a *SnapshotArchiver) Fetch(ctx context.Context, scope ledger.Scope, periodCode string, revision int) (*ledger.TBSnapshot, error) {
	data, err := a.store.Download(ctx, a.Key(scope, periodCode, revision))
	if err != nil {
		return nil, err
	}
	var doc archivedSnapshot
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode archived snapshot: %w", err)
	}
	return &ledger.TBSnapshot{
		ID:           doc.ID,
		TenantID:     doc.TenantID,
		CompanyID:    doc.CompanyID,
		PeriodCode:   doc.PeriodCode,
		Revision:     doc.Revision,
		Lines:        doc.Lines,
		TotalDebit:   doc.TotalDebit,
		TotalCredit:  doc.TotalCredit,
		Currency:     doc.Currency,
		Hash:         doc.Hash,
		PreviousHash: doc.PreviousHash,
		GeneratedAt:  doc.GeneratedAt,
		GeneratedBy:  doc.GeneratedBy,
		Immutable:    true,
	}, nil
}

// Compare fetches the archived copy of snapshot and checks that its stored
// hash equals the snapshot's and that its lines still produce that hash
func (a *SnapshotArchiver) Compare(ctx context.Context, snapshot *ledger.TBSnapshot) error {
	archived, err := a.Fetch(ctx, snapshot.Scope(), snapshot.PeriodCode, snapshot.Revision)
	if err != nil {
		return err
	}
	if archived.Hash != snapshot.Hash {
		return fmt.Errorf("%w: hash %s, archived %s", ErrArchiveMismatch, snapshot.Hash, archived.Hash)
	}
	recomputed, err := ledger.ComputeSnapshotHash(archived.Lines, archived.TotalDebit, archived.TotalCredit,
		archived.Currency, archived.PeriodCode, archived.PreviousHash)
	if err != nil {
		return err
	}
	if recomputed != archived.Hash {
		return fmt.Errorf("%w: archived content hashes to %s", ErrArchiveMismatch, recomputed)
	}
	return nil
}

// Ensure SnapshotArchiver implements SnapshotArchiver
var _ appledger.SnapshotArchiver = (*SnapshotArchiver)(nil)
