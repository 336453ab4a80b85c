package store_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jobdeck/jobdeck-api/internal/store"
)

func TestSentinelErrorHierarchy(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, store.ErrTaskNotFound, store.ErrNotFound)
	assert.ErrorIs(t, store.ErrQueueItemNotFound, store.ErrNotFound)
	assert.ErrorIs(t, store.ErrCacheEntryNotFound, store.ErrNotFound)
	assert.ErrorIs(t, store.ErrDuplicateQueueItem, store.ErrDuplicate)

	assert.True(t, store.IsNotFoundError(fmt.Errorf("lookup: %w", store.ErrTaskNotFound)))
	assert.False(t, store.IsNotFoundError(store.ErrDuplicateQueueItem))
	assert.True(t, store.IsDuplicateError(fmt.Errorf("insert: %w", store.ErrDuplicateQueueItem)))
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := store.NewStoreError("task", "create", "insert failed", cause)

	assert.Contains(t, err.Error(), "create operation on task failed")
	assert.Contains(t, err.Error(), "connection reset")
	assert.ErrorIs(t, err, cause)

	var storeErr *store.StoreError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &storeErr))
	assert.Equal(t, "task", storeErr.Entity)
}
