package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/jobdeck/jobdeck-api/internal/api/shared"
	"github.com/jobdeck/jobdeck-api/internal/domain"
	"github.com/jobdeck/jobdeck-api/internal/tracker"
)

// TaskService is the tracker surface the task handler needs.
type TaskService interface {
	Create(ctx context.Context, ownerID uuid.UUID, kind domain.TaskKind, subjectLabel string) (*domain.Task, error)
	Transition(ctx context.Context, taskID uuid.UUID, target domain.TaskStatus, opts tracker.TransitionOptions) (*domain.Task, error)
	Get(ctx context.Context, taskID uuid.UUID) (*domain.Task, error)
	ListActive(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error)
	ListRecent(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.Task, error)
}

// TaskHandler serves the /api/tasks endpoints.
type TaskHandler struct {
	tracker TaskService
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(trackerSvc TaskService) *TaskHandler {
	return &TaskHandler{tracker: trackerSvc}
}

// Create handles POST /api/tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	kind, err := parseTaskKind(req.Kind)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.tracker.Create(r.Context(), ownerID, kind, req.SubjectLabel)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, task)
}

// List handles GET /api/tasks?scope=active|recent&limit=N. Scope defaults to
// active.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = "active"
	}

	var tasks []*domain.Task
	var err error
	switch scope {
	case "active":
		tasks, err = h.tracker.ListActive(r.Context(), ownerID)
	case "recent":
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 0 {
				shared.RespondWithError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
		}
		tasks, err = h.tracker.ListRecent(r.Context(), ownerID, limit)
	default:
		shared.RespondWithError(w, r, http.StatusBadRequest, "scope must be active or recent")
		return
	}
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, tasks)
}

// Get handles GET /api/tasks/{id}. Foreign-owner tasks read as 404.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	taskID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.tracker.Get(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if task.OwnerID != ownerID {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// Transition handles PATCH /api/tasks/{id}: the worker-facing status
// transition endpoint. Attempts against finished tasks return 409.
func (h *TaskHandler) Transition(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}

	taskID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req TransitionTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	// Ownership check before any mutation.
	existing, err := h.tracker.Get(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if existing.OwnerID != ownerID {
		shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		return
	}

	task, err := h.tracker.Transition(r.Context(), taskID, domain.TaskStatus(req.Status), tracker.TransitionOptions{
		CurrentStep: req.CurrentStep,
		Result:      req.Result,
		Error:       req.Error,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, task)
}
