package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_IsMatchesByCode(t *testing.T) {
	err := ErrVersionConflict.WithDetail("current_version", "3")

	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Empty(t, ErrVersionConflict.Details, "sentinel must not be mutated")
}

func TestDomainError_WrapKeepsCauseAndKind(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("post entry: %w", ErrTransaction.Wrap(cause))

	assert.ErrorIs(t, err, ErrTransaction)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindTransactional, KindOf(err))
	assert.True(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestDomainError_MessageListsDetailsSorted(t *testing.T) {
	err := NewDomainError("UNBALANCED", "Entry is not balanced").
		WithDetails(map[string]string{"debit": "500.00", "credit": "400.00"})

	assert.Equal(t, "Entry is not balanced (credit=400.00, debit=500.00)", err.Error())
}

func TestKindHelpers(t *testing.T) {
	integrity := NewKindError(KindIntegrity, "HASH_MISMATCH", "hash mismatch")

	assert.True(t, IsCritical(integrity))
	assert.False(t, IsRetryable(integrity))
	assert.False(t, IsRetryable(ErrUnauthorized))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

func TestIsCritical_SeesThroughWrapping(t *testing.T) {
	integrity := NewKindError(KindIntegrity, "HASH_MISMATCH", "hash mismatch")
	wrapped := NewKindError(KindTransactional, "TB_SNAPSHOT_FAILED", "snapshot failed").Wrap(integrity)

	assert.Equal(t, KindTransactional, KindOf(wrapped))
	assert.True(t, IsCritical(wrapped))
	assert.False(t, IsCritical(ErrTransaction.Wrap(errors.New("timeout"))))
}
