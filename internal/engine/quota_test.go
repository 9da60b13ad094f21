package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowQuota_WithinLimit(t *testing.T) {
	q := NewRowQuota(10)

	require.NoError(t, q.Take("req-1", "Insert7", 4))
	require.NoError(t, q.Take("req-1", "SimpleInsert3", 6))
	assert.Equal(t, 10, q.Current())
	assert.Equal(t, 10, q.Max())
}

func TestRowQuota_ExceedsLimit(t *testing.T) {
	q := NewRowQuota(5)
	require.NoError(t, q.Take("req-1", "Insert7", 1))

	err := q.Take("req-1", "SimpleInsert3", 5)
	require.Error(t, err)

	var re *RowsExceededError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "req-1", re.RequestID)
	assert.Equal(t, "SimpleInsert3", re.Resource)
	assert.Equal(t, 6, re.Rows)
	assert.Equal(t, 5, re.Limit)
	assert.Contains(t, err.Error(), "6 rows > 5 limit")
}

func TestRowQuota_Disabled(t *testing.T) {
	q := NewRowQuota(0)
	require.NoError(t, q.Take("req-1", "SimpleInsert3", 1_000_000))
}

func TestIsRowsExceededError(t *testing.T) {
	err := &RowsExceededError{RequestID: "r", Resource: "x", Rows: 2, Limit: 1}

	assert.True(t, IsRowsExceededError(err))
	assert.True(t, IsRowsExceededError(fmt.Errorf("dispatch: %w", err)))
	assert.False(t, IsRowsExceededError(fmt.Errorf("plain")))
	assert.False(t, IsRowsExceededError(nil))
}
