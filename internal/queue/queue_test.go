package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobdeck/jobdeck-api/internal/domain"
	"github.com/jobdeck/jobdeck-api/internal/store"
)

// memoryQueueStore is an in-memory store.QueueStore. CreateExclusive holds
// the mutex across the duplicate check and the insert, matching the
// atomicity the real store gets from its partial unique index.
type memoryQueueStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.QueueItem
}

func newMemoryQueueStore() *memoryQueueStore {
	return &memoryQueueStore{items: make(map[uuid.UUID]*domain.QueueItem)}
}

func (m *memoryQueueStore) CreateExclusive(_ context.Context, item *domain.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.items {
		if existing.OwnerID == item.OwnerID && existing.URL == item.URL && existing.Status.IsActive() {
			return store.ErrDuplicateQueueItem
		}
	}

	clone := *item
	m.items[item.ID] = &clone
	return nil
}

func (m *memoryQueueStore) GetByID(_ context.Context, id uuid.UUID) (*domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return nil, store.ErrQueueItemNotFound
	}
	clone := *item
	return &clone, nil
}

func (m *memoryQueueStore) FindInFlight(_ context.Context, ownerID uuid.UUID, url string) (*domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range m.items {
		if item.OwnerID == ownerID && item.URL == url && item.Status.IsActive() {
			clone := *item
			return &clone, nil
		}
	}
	return nil, store.ErrQueueItemNotFound
}

func (m *memoryQueueStore) FindByOwner(_ context.Context, ownerID uuid.UUID) ([]*domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.QueueItem
	for _, item := range m.items {
		if item.OwnerID == ownerID {
			clone := *item
			out = append(out, &clone)
		}
	}
	sortDispatchOrder(out)
	return out, nil
}

func (m *memoryQueueStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return store.ErrQueueItemNotFound
	}
	item.Status = status
	item.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryQueueStore) FindStuck(_ context.Context, createdBefore time.Time) ([]*domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.QueueItem
	for _, item := range m.items {
		if item.Status.IsActive() && item.CreatedAt.Before(createdBefore) {
			clone := *item
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memoryQueueStore) NextPending(_ context.Context, limit int) ([]*domain.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []*domain.QueueItem
	for _, item := range m.items {
		if item.Status == domain.TaskStatusPending {
			pending = append(pending, item)
		}
	}
	sortDispatchOrder(pending)
	if len(pending) > limit {
		pending = pending[:limit]
	}

	out := make([]*domain.QueueItem, 0, len(pending))
	for _, item := range pending {
		item.Status = domain.TaskStatusProcessing
		item.UpdatedAt = time.Now().UTC()
		clone := *item
		out = append(out, &clone)
	}
	return out, nil
}

func (m *memoryQueueStore) WithTx(_ *sql.Tx) store.QueueStore {
	return m
}

func sortDispatchOrder(items []*domain.QueueItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

func TestEnqueueCreatesPendingItem(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := New(newMemoryQueueStore(), nil, nil)
	ownerID := uuid.New()

	seed := json.RawMessage(`{"html": "<title>Senior Engineer</title>"}`)
	result, err := q.Enqueue(ctx, ownerID, "https://jobs.example.com/posting/1", 5, seed)
	require.NoError(t, err)

	assert.False(t, result.Duplicate)
	require.NotNil(t, result.Item)
	assert.Equal(t, domain.TaskStatusPending, result.Item.Status)
	assert.Equal(t, 5, result.Item.Priority)
	assert.JSONEq(t, string(seed), string(result.Item.SeedData))
}

func TestEnqueueRejectsBadURL(t *testing.T) {
	t.Parallel()

	q := New(newMemoryQueueStore(), nil, nil)

	for _, rawURL := range []string{"", "not a url", "ftp://example.com/x", "https://"} {
		_, err := q.Enqueue(context.Background(), uuid.New(), rawURL, 0, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidQueueItemURL, "url %q", rawURL)
	}
}

func TestEnqueueDuplicateInFlight(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := New(newMemoryQueueStore(), nil, nil)
	ownerID := uuid.New()
	const url = "https://jobs.example.com/posting/7"

	first, err := q.Enqueue(ctx, ownerID, url, 0, nil)
	require.NoError(t, err)
	require.NotNil(t, first.Item)

	second, err := q.Enqueue(ctx, ownerID, url, 0, nil)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Item.ID, second.ExistingID)
	assert.Nil(t, second.Item)
}

func TestEnqueueDifferentOwnersSameURL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := New(newMemoryQueueStore(), nil, nil)
	const url = "https://jobs.example.com/posting/9"

	first, err := q.Enqueue(ctx, uuid.New(), url, 0, nil)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := q.Enqueue(ctx, uuid.New(), url, 0, nil)
	require.NoError(t, err)
	assert.False(t, second.Duplicate, "deduplication is scoped per owner")
}

func TestEnqueueAfterTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	items := newMemoryQueueStore()
	q := New(items, nil, nil)
	ownerID := uuid.New()
	const url = "https://jobs.example.com/posting/3"

	for _, terminal := range []domain.TaskStatus{domain.TaskStatusCompleted, domain.TaskStatusFailed} {
		result, err := q.Enqueue(ctx, ownerID, url, 0, nil)
		require.NoError(t, err)
		require.False(t, result.Duplicate)

		require.NoError(t, items.UpdateStatus(ctx, result.Item.ID, terminal))
	}

	// Two terminal items for the URL exist; a fresh enqueue still succeeds.
	result, err := q.Enqueue(ctx, ownerID, url, 0, nil)
	require.NoError(t, err)
	assert.False(t, result.Duplicate, "terminal items must not block re-enqueue")
}

func TestEnqueueConcurrentSameURL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := New(newMemoryQueueStore(), nil, nil)
	ownerID := uuid.New()
	const url = "https://jobs.example.com/posting/race"
	const attempts = 16

	results := make([]*EnqueueResult, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := q.Enqueue(ctx, ownerID, url, 0, nil)
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	created := 0
	for _, result := range results {
		require.NotNil(t, result)
		if !result.Duplicate {
			created++
		}
	}
	assert.Equal(t, 1, created, "exactly one concurrent enqueue may win")

	queue, err := q.GetUserQueue(ctx, ownerID)
	require.NoError(t, err)
	assert.Len(t, queue, 1)
}

func TestEnqueueBatchContinuesPastFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := New(newMemoryQueueStore(), nil, nil)
	ownerID := uuid.New()

	urls := []string{
		"https://jobs.example.com/a",
		"not a url",
		"https://jobs.example.com/b",
		"https://jobs.example.com/a", // duplicate of the first
	}

	results := q.EnqueueBatch(ctx, ownerID, urls)
	require.Len(t, results, len(urls))

	assert.NoError(t, results[0].Err)
	assert.False(t, results[0].Result.Duplicate)

	assert.Error(t, results[1].Err)
	assert.Nil(t, results[1].Result)

	assert.NoError(t, results[2].Err)
	assert.False(t, results[2].Result.Duplicate)

	assert.NoError(t, results[3].Err)
	assert.True(t, results[3].Result.Duplicate)
	assert.Equal(t, results[0].Result.Item.ID, results[3].Result.ExistingID)

	queue, err := q.GetUserQueue(ctx, ownerID)
	require.NoError(t, err)
	assert.Len(t, queue, 2)
}

func TestGetUserQueueOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	items := newMemoryQueueStore()
	q := New(items, nil, nil)
	ownerID := uuid.New()

	base := time.Now().UTC().Add(-time.Hour)
	add := func(url string, priority int, offset time.Duration) uuid.UUID {
		item, err := domain.NewQueueItem(ownerID, url, priority, nil)
		require.NoError(t, err)
		item.CreatedAt = base.Add(offset)
		require.NoError(t, items.CreateExclusive(ctx, item))
		return item.ID
	}

	lowOld := add("https://jobs.example.com/1", 0, 0)
	highNew := add("https://jobs.example.com/2", 10, 2*time.Minute)
	highOld := add("https://jobs.example.com/3", 10, time.Minute)

	queue, err := q.GetUserQueue(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, queue, 3)

	assert.Equal(t, highOld, queue[0].ID)
	assert.Equal(t, highNew, queue[1].ID)
	assert.Equal(t, lowOld, queue[2].ID)
}

func TestGetExtractionStatus(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := New(newMemoryQueueStore(), nil, nil)
	ownerID := uuid.New()

	result, err := q.Enqueue(ctx, ownerID, "https://jobs.example.com/posting/5", 0, nil)
	require.NoError(t, err)

	item, err := q.GetExtractionStatus(ctx, result.Item.ID, ownerID)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, result.Item.ID, item.ID)

	// Foreign owner and unknown id both read as absent.
	item, err = q.GetExtractionStatus(ctx, result.Item.ID, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, item)

	item, err = q.GetExtractionStatus(ctx, uuid.New(), ownerID)
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestUpdateStatusNotifies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var mu sync.Mutex
	var seen []domain.TaskStatus
	notifier := NotifierFunc(func(_ context.Context, item *domain.QueueItem) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, item.Status)
	})

	q := New(newMemoryQueueStore(), notifier, nil)
	ownerID := uuid.New()

	result, err := q.Enqueue(ctx, ownerID, "https://jobs.example.com/posting/11", 0, nil)
	require.NoError(t, err)

	item, err := q.UpdateStatus(ctx, result.Item.ID, domain.TaskStatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusProcessing, item.Status)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusProcessing}, seen)
}
