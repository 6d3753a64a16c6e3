package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestOutboxRecorder_Record(t *testing.T) {
	db := setupOutboxTestDB(t)
	ctx := context.Background()
	tenantID := uuid.New()
	first := newTestEvent("ledger.entry.created", tenantID)
	second := newTestEvent("ledger.entry.posted", tenantID)

	err := db.Transaction(func(tx *gorm.DB) error {
		return NewOutboxRecorder(tx, shared.NewManualClock(testNow)).Record(ctx, first, second)
	})
	require.NoError(t, err)

	var rows []models.OutboxEntryModel
	require.NoError(t, db.Order("event_type ASC").Find(&rows).Error)
	require.Len(t, rows, 2)

	got := rows[0]
	assert.Equal(t, first.EventID(), got.EventID)
	assert.Equal(t, tenantID, got.TenantID)
	assert.Equal(t, first.CompanyID(), got.CompanyID)
	assert.Equal(t, first.AggregateID(), got.AggregateID)
	assert.Equal(t, shared.OutboxStatusPending, got.Status)
	assert.Equal(t, shared.DefaultMaxRetries, got.MaxRetries)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.Equal(t, "test data", payload["data"])
	assert.Equal(t, "ledger.entry.created", payload["type"])
}

func TestOutboxRecorder_Record_Empty(t *testing.T) {
	db := setupOutboxTestDB(t)

	err := NewOutboxRecorder(db, nil).Record(context.Background())

	require.NoError(t, err)
	var n int64
	require.NoError(t, db.Model(&models.OutboxEntryModel{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestOutboxRecorder_RollbackDiscardsEvents(t *testing.T) {
	db := setupOutboxTestDB(t)
	ctx := context.Background()
	boom := errors.New("ledger write failed")

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := NewOutboxRecorder(tx, nil).Record(ctx, newTestEvent("ledger.entry.posted", uuid.New())); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	var n int64
	require.NoError(t, db.Model(&models.OutboxEntryModel{}).Count(&n).Error)
	assert.Zero(t, n)
}
