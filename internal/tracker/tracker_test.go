package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
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

// memoryTaskStore is an in-memory store.TaskStore used to exercise the
// tracker without a database.
type memoryTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task

	failUpdates map[uuid.UUID]error
}

func newMemoryTaskStore() *memoryTaskStore {
	return &memoryTaskStore{
		tasks:       make(map[uuid.UUID]*domain.Task),
		failUpdates: make(map[uuid.UUID]error),
	}
}

func (m *memoryTaskStore) Create(_ context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := task.Validate(); err != nil {
		return err
	}

	clone := *task
	m.tasks[task.ID] = &clone
	return nil
}

func (m *memoryTaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	clone := *task
	return &clone, nil
}

func (m *memoryTaskStore) ApplyUpdate(_ context.Context, id uuid.UUID, update store.TaskUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.failUpdates[id]; ok {
		return err
	}

	task, ok := m.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}

	task.Status = update.Status
	if update.CurrentStep != nil {
		task.CurrentStep = *update.CurrentStep
	}
	if update.Error != nil {
		task.Error = *update.Error
	}
	if len(update.Result) > 0 {
		task.Result = update.Result
	}
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memoryTaskStore) FindActiveByOwner(_ context.Context, ownerID uuid.UUID) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Task
	for _, task := range m.tasks {
		if task.OwnerID == ownerID && task.Status.IsActive() {
			clone := *task
			out = append(out, &clone)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *memoryTaskStore) FindRecentByOwner(_ context.Context, ownerID uuid.UUID, limit int) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Task
	for _, task := range m.tasks {
		if task.OwnerID == ownerID {
			clone := *task
			out = append(out, &clone)
		}
	}
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryTaskStore) FindStuck(_ context.Context, createdBefore time.Time) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Task
	for _, task := range m.tasks {
		if task.Status.IsActive() && task.CreatedAt.Before(createdBefore) {
			clone := *task
			out = append(out, &clone)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *memoryTaskStore) WithTx(_ *sql.Tx) store.TaskStore {
	return m
}

func sortNewestFirst(tasks []*domain.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}

// recordingNotifier captures every callback invocation.
type recordingNotifier struct {
	mu    sync.Mutex
	tasks []*domain.Task
}

func (n *recordingNotifier) TaskChanged(_ context.Context, task *domain.Task) {
	n.mu.Lock()
	defer n.mu.Unlock()

	clone := *task
	n.tasks = append(n.tasks, &clone)
}

func (n *recordingNotifier) calls() []*domain.Task {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]*domain.Task, len(n.tasks))
	copy(out, n.tasks)
	return out
}

func TestCreateStartsPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tasks := newMemoryTaskStore()
	notifier := &recordingNotifier{}
	tr := New(tasks, notifier, nil)

	ownerID := uuid.New()
	task, err := tr.Create(ctx, ownerID, domain.TaskKindSalaryAnalysis, "Acme Corp")
	require.NoError(t, err)

	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.Equal(t, ownerID, task.OwnerID)
	assert.Empty(t, task.Error)
	assert.Empty(t, task.Result)

	stored, err := tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, stored.Status)

	calls := notifier.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, task.ID, calls[0].ID)
}

func TestCreateRejectsInvalidKind(t *testing.T) {
	t.Parallel()

	tr := New(newMemoryTaskStore(), nil, nil)

	_, err := tr.Create(context.Background(), uuid.New(), domain.TaskKind("bogus"), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidTaskKind)
}

func TestTransitionFullLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tasks := newMemoryTaskStore()
	notifier := &recordingNotifier{}
	tr := New(tasks, notifier, nil)

	task, err := tr.Create(ctx, uuid.New(), domain.TaskKindMatchScore, "Globex")
	require.NoError(t, err)

	step := "scoring requirements"
	task, err = tr.Transition(ctx, task.ID, domain.TaskStatusProcessing, TransitionOptions{
		CurrentStep: &step,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusProcessing, task.Status)
	assert.Equal(t, step, task.CurrentStep)

	result := json.RawMessage(`{"score": 82}`)
	task, err = tr.Transition(ctx, task.ID, domain.TaskStatusCompleted, TransitionOptions{
		Result: result,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	assert.JSONEq(t, `{"score": 82}`, string(task.Result))
	assert.Empty(t, task.Error)

	// Every mutation announced, in order.
	calls := notifier.calls()
	require.Len(t, calls, 3)
	assert.Equal(t, domain.TaskStatusPending, calls[0].Status)
	assert.Equal(t, domain.TaskStatusProcessing, calls[1].Status)
	assert.Equal(t, domain.TaskStatusCompleted, calls[2].Status)
}

func TestTransitionRejectsTerminalTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tasks := newMemoryTaskStore()
	tr := New(tasks, nil, nil)

	for _, terminal := range []domain.TaskStatus{
		domain.TaskStatusCompleted,
		domain.TaskStatusCached,
		domain.TaskStatusFailed,
	} {
		task, err := tr.Create(ctx, uuid.New(), domain.TaskKindExtraction, "job posting")
		require.NoError(t, err)

		_, err = tr.Transition(ctx, task.ID, domain.TaskStatusProcessing, TransitionOptions{})
		require.NoError(t, err)

		opts := TransitionOptions{}
		if terminal == domain.TaskStatusFailed {
			msg := "boom"
			opts.Error = &msg
		}
		_, err = tr.Transition(ctx, task.ID, terminal, opts)
		require.NoError(t, err)

		_, err = tr.Transition(ctx, task.ID, domain.TaskStatusProcessing, TransitionOptions{})
		assert.ErrorIs(t, err, ErrTaskFinalized, "terminal state %s must be immutable", terminal)
	}
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr := New(newMemoryTaskStore(), nil, nil)

	task, err := tr.Create(ctx, uuid.New(), domain.TaskKindNegotiationStrategy, "Initech")
	require.NoError(t, err)

	// pending -> completed skips processing.
	_, err = tr.Transition(ctx, task.ID, domain.TaskStatusCompleted, TransitionOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestTransitionEnforcesResultPlacement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr := New(newMemoryTaskStore(), nil, nil)

	task, err := tr.Create(ctx, uuid.New(), domain.TaskKindSalaryAnalysis, "Acme")
	require.NoError(t, err)

	// A result on a non-final transition is rejected.
	_, err = tr.Transition(ctx, task.ID, domain.TaskStatusProcessing, TransitionOptions{
		Result: json.RawMessage(`{}`),
	})
	assert.ErrorIs(t, err, domain.ErrResultWithoutFinal)

	// An error message on a success transition is rejected.
	_, err = tr.Transition(ctx, task.ID, domain.TaskStatusProcessing, TransitionOptions{})
	require.NoError(t, err)

	msg := "should not be here"
	_, err = tr.Transition(ctx, task.ID, domain.TaskStatusCompleted, TransitionOptions{
		Error: &msg,
	})
	assert.ErrorIs(t, err, domain.ErrErrorWithoutFailed)
}

func TestTransitionFailedDefaultsErrorMessage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr := New(newMemoryTaskStore(), nil, nil)

	task, err := tr.Create(ctx, uuid.New(), domain.TaskKindExtraction, "posting")
	require.NoError(t, err)

	task, err = tr.Transition(ctx, task.ID, domain.TaskStatusFailed, TransitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, task.Status)
	assert.NotEmpty(t, task.Error)
}

func TestTransitionUnknownTask(t *testing.T) {
	t.Parallel()

	tr := New(newMemoryTaskStore(), nil, nil)

	_, err := tr.Transition(context.Background(), uuid.New(), domain.TaskStatusProcessing, TransitionOptions{})
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestListActiveExcludesTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr := New(newMemoryTaskStore(), nil, nil)
	ownerID := uuid.New()

	pending, err := tr.Create(ctx, ownerID, domain.TaskKindSalaryAnalysis, "a")
	require.NoError(t, err)

	done, err := tr.Create(ctx, ownerID, domain.TaskKindMatchScore, "b")
	require.NoError(t, err)
	_, err = tr.Transition(ctx, done.ID, domain.TaskStatusProcessing, TransitionOptions{})
	require.NoError(t, err)
	_, err = tr.Transition(ctx, done.ID, domain.TaskStatusCompleted, TransitionOptions{})
	require.NoError(t, err)

	// Another owner's task must not leak in.
	_, err = tr.Create(ctx, uuid.New(), domain.TaskKindSalaryAnalysis, "c")
	require.NoError(t, err)

	active, err := tr.ListActive(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, pending.ID, active[0].ID)
}

func TestListRecentAppliesDefaultLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tasks := newMemoryTaskStore()
	tr := New(tasks, nil, nil)
	ownerID := uuid.New()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < DefaultRecentLimit+5; i++ {
		task, err := domain.NewTask(ownerID, domain.TaskKindExtraction, fmt.Sprintf("posting %d", i))
		require.NoError(t, err)
		task.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, tasks.Create(ctx, task))
	}

	recent, err := tr.ListRecent(ctx, ownerID, 0)
	require.NoError(t, err)
	assert.Len(t, recent, DefaultRecentLimit)

	// Newest first.
	for i := 1; i < len(recent); i++ {
		assert.True(t, !recent[i-1].CreatedAt.Before(recent[i].CreatedAt))
	}
}

func TestReclaimStuckFailsOldActiveTasks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tasks := newMemoryTaskStore()
	notifier := &recordingNotifier{}

	current := time.Now().UTC()
	tr := New(tasks, notifier, nil, WithClock(func() time.Time { return current }))

	ownerID := uuid.New()

	// An active task just past the threshold.
	stale, err := domain.NewTask(ownerID, domain.TaskKindSalaryAnalysis, "stale")
	require.NoError(t, err)
	stale.CreatedAt = current.Add(-DefaultStuckThreshold - time.Second)
	require.NoError(t, tasks.Create(ctx, stale))

	// An active task still within the threshold.
	fresh, err := domain.NewTask(ownerID, domain.TaskKindSalaryAnalysis, "fresh")
	require.NoError(t, err)
	fresh.CreatedAt = current.Add(-time.Second)
	require.NoError(t, tasks.Create(ctx, fresh))

	reclaimed, err := tr.ReclaimStuck(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	got, err := tr.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Contains(t, got.Error, "stuck")

	got, err = tr.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, got.Status)

	calls := notifier.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, stale.ID, calls[0].ID)
	assert.Equal(t, domain.TaskStatusFailed, calls[0].Status)
}

func TestReclaimStuckSkipsFailedUpdates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tasks := newMemoryTaskStore()

	current := time.Now().UTC()
	tr := New(tasks, nil, nil, WithClock(func() time.Time { return current }))

	ownerID := uuid.New()
	first, err := tr.Create(ctx, ownerID, domain.TaskKindExtraction, "one")
	require.NoError(t, err)
	second, err := tr.Create(ctx, ownerID, domain.TaskKindExtraction, "two")
	require.NoError(t, err)

	tasks.failUpdates[first.ID] = fmt.Errorf("write refused")

	current = current.Add(DefaultStuckThreshold + time.Minute)

	reclaimed, err := tr.ReclaimStuck(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	got, err := tr.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
}

func TestReclaimStuckNoCandidates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tr := New(newMemoryTaskStore(), nil, nil)

	_, err := tr.Create(ctx, uuid.New(), domain.TaskKindMatchScore, "fresh")
	require.NoError(t, err)

	reclaimed, err := tr.ReclaimStuck(ctx, DefaultStuckThreshold)
	require.NoError(t, err)
	assert.Zero(t, reclaimed)
}
