// Package tracker implements the task lifecycle service: creating tasks,
// driving them through the pending -> processing -> terminal state machine,
// listing them per owner, and reclaiming tasks that have been stuck in an
// active state for too long.
package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jobdeck/jobdeck-api/internal/domain"
	"github.com/jobdeck/jobdeck-api/internal/store"
)

// ErrTaskFinalized is returned when a transition is attempted on a task that
// has already reached a terminal state. Terminal tasks are immutable.
var ErrTaskFinalized = errors.New("task is already in a terminal state")

// StuckTaskError is the error message recorded on tasks failed by the
// reclamation sweep.
const StuckTaskError = "stuck in pending/processing state"

// DefaultRecentLimit bounds ListRecent when the caller passes no limit.
const DefaultRecentLimit = 20

// DefaultStuckThreshold is the age after which an active task is considered
// abandoned by the reclamation sweep.
const DefaultStuckThreshold = 5 * time.Minute

// Notifier receives a callback after every successful task mutation. The
// tracker calls it synchronously with the post-transition task state.
type Notifier interface {
	TaskChanged(ctx context.Context, task *domain.Task)
}

// NotifierFunc adapts a plain function to the Notifier interface.
type NotifierFunc func(ctx context.Context, task *domain.Task)

// TaskChanged implements Notifier.
func (f NotifierFunc) TaskChanged(ctx context.Context, task *domain.Task) {
	f(ctx, task)
}

// TransitionOptions carries the optional fields of a status transition.
type TransitionOptions struct {
	// CurrentStep, when non-nil, replaces the task's progress label.
	CurrentStep *string
	// Result is the output payload. Only valid when transitioning to
	// completed or cached.
	Result json.RawMessage
	// Error is the failure message. Only valid when transitioning to
	// failed; defaults to a generic message when omitted.
	Error *string
}

// Tracker is the task lifecycle service. All state lives in the injected
// store; the tracker itself holds no task data, so a single instance is safe
// for concurrent use.
type Tracker struct {
	tasks    store.TaskStore
	notifier Notifier
	logger   *slog.Logger

	// db, when set, makes the reclamation sweep run in a single
	// transaction instead of row at a time.
	db *sql.DB

	// now is injected so tests can control the clock.
	now func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the tracker's time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithDB provides the database handle used to run the reclamation sweep
// transactionally.
func WithDB(db *sql.DB) Option {
	return func(t *Tracker) {
		t.db = db
	}
}

// New creates a Tracker backed by the given store. The notifier may be nil
// when no change propagation is wanted.
func New(tasks store.TaskStore, notifier Notifier, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}

	t := &Tracker{
		tasks:    tasks,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "tracker")),
		now:      func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Create registers a new pending task for the owner and announces it.
func (t *Tracker) Create(ctx context.Context, ownerID uuid.UUID, kind domain.TaskKind, subjectLabel string) (*domain.Task, error) {
	task, err := domain.NewTask(ownerID, kind, subjectLabel)
	if err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	if err := t.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	t.logger.DebugContext(ctx, "task created",
		slog.String("task_id", task.ID.String()),
		slog.String("kind", string(task.Kind)))

	t.notify(ctx, task)
	return task, nil
}

// Transition moves a task to the target status, applying the optional step,
// result, and error fields. It returns the post-transition task.
//
// Transitions from a terminal state return ErrTaskFinalized; transitions not
// permitted by the state machine return domain.ErrInvalidTransition.
func (t *Tracker) Transition(ctx context.Context, taskID uuid.UUID, target domain.TaskStatus, opts TransitionOptions) (*domain.Task, error) {
	task, err := t.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	if task.Status.IsTerminal() {
		return nil, fmt.Errorf("cannot transition task %s from %s to %s: %w",
			taskID, task.Status, target, ErrTaskFinalized)
	}

	if !task.Status.CanTransitionTo(target) {
		return nil, fmt.Errorf("cannot transition task %s from %s to %s: %w",
			taskID, task.Status, target, domain.ErrInvalidTransition)
	}

	update, err := buildUpdate(target, opts)
	if err != nil {
		return nil, err
	}

	if err := t.tasks.ApplyUpdate(ctx, taskID, update); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	applyToTask(task, update, t.now())

	t.logger.DebugContext(ctx, "task transitioned",
		slog.String("task_id", taskID.String()),
		slog.String("status", string(target)))

	t.notify(ctx, task)
	return task, nil
}

// ListActive returns the owner's pending and processing tasks, newest first.
func (t *Tracker) ListActive(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error) {
	tasks, err := t.tasks.FindActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tasks: %w", err)
	}
	return tasks, nil
}

// ListRecent returns the owner's tasks regardless of status, newest first.
// A non-positive limit falls back to DefaultRecentLimit.
func (t *Tracker) ListRecent(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.Task, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	tasks, err := t.tasks.FindRecentByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent tasks: %w", err)
	}
	return tasks, nil
}

// Get returns a single task by ID.
func (t *Tracker) Get(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	task, err := t.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return task, nil
}

// ReclaimStuck fails every active task older than the threshold and returns
// how many tasks were reclaimed. A non-positive threshold falls back to
// DefaultStuckThreshold. Individual transition failures are logged and
// skipped so one bad row cannot stall the sweep.
//
// When the tracker was constructed with WithDB, the whole sweep runs in one
// transaction and notifications fire only after it commits.
func (t *Tracker) ReclaimStuck(ctx context.Context, threshold time.Duration) (int, error) {
	if threshold <= 0 {
		threshold = DefaultStuckThreshold
	}

	cutoff := t.now().Add(-threshold)

	var reclaimed []*domain.Task
	sweep := func(ctx context.Context, tasks store.TaskStore) error {
		stuck, err := tasks.FindStuck(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to find stuck tasks: %w", err)
		}

		for _, task := range stuck {
			msg := StuckTaskError
			update := store.TaskUpdate{
				Status: domain.TaskStatusFailed,
				Error:  &msg,
			}

			if err := tasks.ApplyUpdate(ctx, task.ID, update); err != nil {
				t.logger.ErrorContext(ctx, "failed to reclaim stuck task",
					slog.String("task_id", task.ID.String()),
					slog.String("error", err.Error()))
				continue
			}

			applyToTask(task, update, t.now())
			reclaimed = append(reclaimed, task)

			t.logger.WarnContext(ctx, "reclaimed stuck task",
				slog.String("task_id", task.ID.String()),
				slog.String("kind", string(task.Kind)),
				slog.Time("created_at", task.CreatedAt))
		}

		return nil
	}

	var err error
	if t.db != nil {
		err = store.RunInTransaction(ctx, t.db, func(ctx context.Context, tx *sql.Tx) error {
			return sweep(ctx, t.tasks.WithTx(tx))
		})
	} else {
		err = sweep(ctx, t.tasks)
	}
	if err != nil {
		return 0, err
	}

	for _, task := range reclaimed {
		t.notify(ctx, task)
	}

	return len(reclaimed), nil
}

// notify invokes the change callback when one is configured.
func (t *Tracker) notify(ctx context.Context, task *domain.Task) {
	if t.notifier != nil {
		t.notifier.TaskChanged(ctx, task)
	}
}

// buildUpdate converts transition options into a store update, enforcing the
// result/error placement invariants before anything is written.
func buildUpdate(target domain.TaskStatus, opts TransitionOptions) (store.TaskUpdate, error) {
	update := store.TaskUpdate{
		Status:      target,
		CurrentStep: opts.CurrentStep,
	}

	switch target {
	case domain.TaskStatusCompleted, domain.TaskStatusCached:
		update.Result = opts.Result
		if opts.Error != nil {
			return store.TaskUpdate{}, fmt.Errorf("transition to %s: %w", target, domain.ErrErrorWithoutFailed)
		}
	case domain.TaskStatusFailed:
		if len(opts.Result) > 0 {
			return store.TaskUpdate{}, fmt.Errorf("transition to %s: %w", target, domain.ErrResultWithoutFinal)
		}
		msg := "task failed"
		if opts.Error != nil {
			msg = *opts.Error
		}
		update.Error = &msg
	default:
		if len(opts.Result) > 0 {
			return store.TaskUpdate{}, fmt.Errorf("transition to %s: %w", target, domain.ErrResultWithoutFinal)
		}
		if opts.Error != nil {
			return store.TaskUpdate{}, fmt.Errorf("transition to %s: %w", target, domain.ErrErrorWithoutFailed)
		}
	}

	return update, nil
}

// applyToTask mirrors a store update onto an in-memory task so the caller and
// notifier observe the post-transition state without a reload.
func applyToTask(task *domain.Task, update store.TaskUpdate, now time.Time) {
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
	task.UpdatedAt = now
}
