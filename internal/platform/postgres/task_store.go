package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jobdeck/jobdeck-api/internal/domain"
	"github.com/jobdeck/jobdeck-api/internal/platform/logger"
	"github.com/jobdeck/jobdeck-api/internal/store"
)

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL.
type PostgresTaskStore struct {
	db store.DBTX
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{db: db}
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

const taskColumns = `id, owner_id, kind, subject_label, status, current_step, error_message, result, created_at, updated_at`

// Create saves a new task to the database.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO tasks (id, owner_id, kind, subject_label, status, current_step, error_message, result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.OwnerID,
		task.Kind,
		task.SubjectLabel,
		task.Status,
		nullableString(task.CurrentStep),
		nullableString(task.Error),
		nullableBytes(task.Result),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to save task",
			"task_id", task.ID,
			"kind", task.Kind,
			"error", err)
		return MapError(err)
	}

	return nil
}

// GetByID retrieves a task by its unique ID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	row := s.db.QueryRowContext(ctx, query, id)
	task, err := scanTask(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}

	return task, nil
}

// ApplyUpdate writes a status transition, bumping updated_at. The statement
// only matches non-terminal rows, so a transition losing the race against
// another writer's terminal transition affects zero rows instead of
// mutating an immutable task.
func (s *PostgresTaskStore) ApplyUpdate(ctx context.Context, id uuid.UUID, update store.TaskUpdate) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE tasks
		SET status = $1,
		    current_step = COALESCE($2, current_step),
		    error_message = COALESCE($3, error_message),
		    result = COALESCE($4, result),
		    updated_at = $5
		WHERE id = $6 AND status IN ($7, $8)
	`

	result, err := s.db.ExecContext(ctx, query,
		update.Status,
		update.CurrentStep,
		update.Error,
		nullableBytes(update.Result),
		time.Now().UTC(),
		id,
		domain.TaskStatusPending,
		domain.TaskStatusProcessing,
	)
	if err != nil {
		log.Error("failed to update task",
			"task_id", id,
			"status", update.Status,
			"error", err)
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		return store.ErrTaskNotFound
	}

	return nil
}

// FindActiveByOwner retrieves all pending/processing tasks for the owner,
// newest first.
func (s *PostgresTaskStore) FindActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE owner_id = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC
	`

	return s.queryTasks(ctx, query, ownerID, domain.TaskStatusPending, domain.TaskStatusProcessing)
}

// FindRecentByOwner retrieves tasks for the owner regardless of status,
// newest first, bounded by limit.
func (s *PostgresTaskStore) FindRecentByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	return s.queryTasks(ctx, query, ownerID, limit)
}

// FindStuck retrieves every pending/processing task created before the cutoff.
func (s *PostgresTaskStore) FindStuck(ctx context.Context, createdBefore time.Time) ([]*domain.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status IN ($1, $2) AND created_at < $3
		ORDER BY created_at ASC
	`

	return s.queryTasks(ctx, query, domain.TaskStatusPending, domain.TaskStatusProcessing, createdBefore)
}

// WithTx returns a new TaskStore instance that uses the provided transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx}
}

// queryTasks runs a query returning task rows and scans them.
func (s *PostgresTaskStore) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", "error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan task row", "error", err)
			return nil, MapError(err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		log.Error("error iterating task rows", "error", err)
		return nil, MapError(err)
	}

	return tasks, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask maps one task row onto a domain.Task.
func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task        domain.Task
		currentStep sql.NullString
		errorMsg    sql.NullString
		result      []byte
	)

	if err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Kind,
		&task.SubjectLabel,
		&task.Status,
		&currentStep,
		&errorMsg,
		&result,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}

	task.CurrentStep = currentStep.String
	task.Error = errorMsg.String
	task.Result = result

	return &task, nil
}

// nullableString maps "" to NULL so empty optional fields stay NULL in the row.
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullableBytes maps an empty slice to NULL.
func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
