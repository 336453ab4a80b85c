package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a unit of background work.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCached     TaskStatus = "cached"
	TaskStatusFailed     TaskStatus = "failed"
)

// TaskKind identifies the type of AI/extraction operation a task performs.
type TaskKind string

// Possible task kinds
const (
	TaskKindSalaryAnalysis      TaskKind = "salary_analysis"
	TaskKindMatchScore          TaskKind = "match_score"
	TaskKindNegotiationStrategy TaskKind = "negotiation_strategy"
	TaskKindExtraction          TaskKind = "extraction"
)

// Common validation errors for Task
var (
	ErrEmptyTaskID        = errors.New("task ID cannot be empty")
	ErrEmptyTaskOwnerID   = errors.New("task owner ID cannot be empty")
	ErrInvalidTaskKind    = errors.New("invalid task kind")
	ErrInvalidTaskStatus  = errors.New("invalid task status")
	ErrResultWithoutFinal = errors.New("task result may only be set on a completed or cached task")
	ErrErrorWithoutFailed = errors.New("task error may only be set on a failed task")
)

// Task represents one unit of trackable AI or extraction work owned by a
// single user. The result payload is opaque to this layer; the schema for
// each kind is owned by the calling code.
type Task struct {
	ID           uuid.UUID       `json:"id"`
	OwnerID      uuid.UUID       `json:"owner_id"`
	Kind         TaskKind        `json:"kind"`
	SubjectLabel string          `json:"subject_label"`
	Status       TaskStatus      `json:"status"`
	CurrentStep  string          `json:"current_step,omitempty"`
	Error        string          `json:"error,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewTask creates a new Task in the pending state for the given owner.
// Returns an error if validation fails.
func NewTask(ownerID uuid.UUID, kind TaskKind, subjectLabel string) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		Kind:         kind,
		SubjectLabel: subjectLabel,
		Status:       TaskStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data and satisfies the
// status/result/error invariants.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.OwnerID == uuid.Nil {
		return ErrEmptyTaskOwnerID
	}

	if !isValidTaskKind(t.Kind) {
		return ErrInvalidTaskKind
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	if len(t.Result) > 0 && t.Status != TaskStatusCompleted && t.Status != TaskStatusCached {
		return ErrResultWithoutFinal
	}

	if t.Error != "" && t.Status != TaskStatusFailed {
		return ErrErrorWithoutFailed
	}

	return nil
}

// IsTerminal reports whether the task has reached a final state.
// Terminal tasks are immutable except for being read.
func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// IsTerminal reports whether the status is one of the final states.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusCached, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// IsActive reports whether the status is pending or processing.
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusPending || s == TaskStatusProcessing
}

// CanTransitionTo reports whether the state machine permits moving from the
// current status to the target status.
func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	if s.IsTerminal() {
		return false
	}

	switch s {
	case TaskStatusPending:
		// A pending task may start processing, or fail directly when the
		// reclamation sweep gives up on it.
		return target == TaskStatusProcessing || target == TaskStatusFailed
	case TaskStatusProcessing:
		return target == TaskStatusCompleted ||
			target == TaskStatusCached ||
			target == TaskStatusFailed
	default:
		return false
	}
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted,
		TaskStatusCached, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// isValidTaskKind checks if the given kind is a valid TaskKind.
func isValidTaskKind(kind TaskKind) bool {
	switch kind {
	case TaskKindSalaryAnalysis, TaskKindMatchScore,
		TaskKindNegotiationStrategy, TaskKindExtraction:
		return true
	default:
		return false
	}
}
