package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryStore) Upload(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	m.types[key] = contentType
	return nil
}

func (m *memoryStore) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return data, nil
}

func sealedSnapshot(t *testing.T) *ledger.TBSnapshot {
	t.Helper()
	scope := ledger.NewScope(uuid.New(), uuid.New())
	rows := []ledger.LedgerLine{
		{AccountCode: "6000", Debit: 100000},
		{AccountCode: "1000", Credit: 100000},
	}
	s, err := ledger.NewTBSnapshot(scope, "2026-03", "USD", 2, rows, "", uuid.New(),
		time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return s
}

func TestSnapshotArchiver_Key(t *testing.T) {
	a := NewSnapshotArchiver(newMemoryStore(), "/tb-snapshots/")
	tenant := uuid.MustParse("6f1c2b44-1c1e-4c52-9d3e-5f1f4a0b1c01")
	company := uuid.MustParse("6f1c2b44-1c1e-4c52-9d3e-5f1f4a0b1c02")

	assert.Equal(t,
		"tb-snapshots/6f1c2b44-1c1e-4c52-9d3e-5f1f4a0b1c01/6f1c2b44-1c1e-4c52-9d3e-5f1f4a0b1c02/2026-03/rev-0003.json",
		a.Key(ledger.NewScope(tenant, company), "2026-03", 3))
}

func TestSnapshotArchiver_ArchiveAndFetch(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	a := NewSnapshotArchiver(store, "tb-snapshots")
	s := sealedSnapshot(t)

	require.NoError(t, a.Archive(ctx, s))

	key := a.Key(s.Scope(), s.PeriodCode, s.Revision)
	assert.Equal(t, "application/json", store.types[key])

	var doc map[string]any
	require.NoError(t, json.Unmarshal(store.objects[key], &doc))
	assert.Equal(t, s.Hash, doc["hash"])
	assert.Equal(t, "2026-03", doc["period_code"])

	got, err := a.Fetch(ctx, s.Scope(), s.PeriodCode, s.Revision)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.Lines, got.Lines)
	assert.Equal(t, s.PreviousHash, got.PreviousHash)
	assert.True(t, got.GeneratedAt.Equal(s.GeneratedAt))

	require.NoError(t, a.Compare(ctx, s))
}

func TestSnapshotArchiver_Compare(t *testing.T) {
	ctx := context.Background()

	t.Run("missing archive", func(t *testing.T) {
		a := NewSnapshotArchiver(newMemoryStore(), "p")
		err := a.Compare(ctx, sealedSnapshot(t))
		assert.ErrorIs(t, err, ErrObjectNotFound)
	})

	t.Run("hash differs from database", func(t *testing.T) {
		a := NewSnapshotArchiver(newMemoryStore(), "p")
		s := sealedSnapshot(t)
		require.NoError(t, a.Archive(ctx, s))

		changed := *s
		changed.Hash = ledger.GenesisHash
		assert.ErrorIs(t, a.Compare(ctx, &changed), ErrArchiveMismatch)
	})

	t.Run("archived lines edited", func(t *testing.T) {
		store := newMemoryStore()
		a := NewSnapshotArchiver(store, "p")
		s := sealedSnapshot(t)

		tampered := *s
		tampered.Lines = []ledger.TrialBalanceLine{
			{AccountCode: "1000", CreditTotal: 1},
			{AccountCode: "6000", DebitTotal: 1},
		}
		require.NoError(t, a.Archive(ctx, &tampered))

		err := a.Compare(ctx, s)
		assert.ErrorIs(t, err, ErrArchiveMismatch)
	})
}

func TestSnapshotArchiver_NilSnapshot(t *testing.T) {
	a := NewSnapshotArchiver(newMemoryStore(), "p")
	assert.Error(t, a.Archive(context.Background(), nil))
}

type failingStore struct{ memoryStore }

func (f *failingStore) Upload(context.Context, string, []byte, string) error {
	return errors.New("bucket unavailable")
}

func TestSnapshotArchiver_UploadError(t *testing.T) {
	a := NewSnapshotArchiver(&failingStore{}, "p")
	err := a.Archive(context.Background(), sealedSnapshot(t))
	assert.EqualError(t, err, "bucket unavailable")
}
