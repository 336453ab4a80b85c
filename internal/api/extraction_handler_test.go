package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobdeck/jobdeck-api/internal/api/shared"
	"github.com/jobdeck/jobdeck-api/internal/domain"
	"github.com/jobdeck/jobdeck-api/internal/queue"
)

// stubExtractionService returns canned results per method.
type stubExtractionService struct {
	enqueueResult *queue.EnqueueResult
	enqueueErr    error
	batchResults  []queue.BatchResult
	queueItems    []*domain.QueueItem
	queueErr      error
	statusItem    *domain.QueueItem
	statusErr     error
}

func (s *stubExtractionService) Enqueue(_ context.Context, _ uuid.UUID, _ string, _ int, _ json.RawMessage) (*queue.EnqueueResult, error) {
	return s.enqueueResult, s.enqueueErr
}

func (s *stubExtractionService) EnqueueBatch(_ context.Context, _ uuid.UUID, _ []string) []queue.BatchResult {
	return s.batchResults
}

func (s *stubExtractionService) GetUserQueue(_ context.Context, _ uuid.UUID) ([]*domain.QueueItem, error) {
	return s.queueItems, s.queueErr
}

func (s *stubExtractionService) GetExtractionStatus(_ context.Context, _, _ uuid.UUID) (*domain.QueueItem, error) {
	return s.statusItem, s.statusErr
}

// authedRequest builds a request with an owner identity already in context.
func authedRequest(t *testing.T, method, target, body string, ownerID uuid.UUID) *http.Request {
	t.Helper()

	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := context.WithValue(r.Context(), shared.UserIDContextKey, ownerID)
	return r.WithContext(ctx)
}

func newQueueItem(t *testing.T, ownerID uuid.UUID, url string) *domain.QueueItem {
	t.Helper()
	item, err := domain.NewQueueItem(ownerID, url, 0, nil)
	require.NoError(t, err)
	return item
}

func TestEnqueueAccepted(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	item := newQueueItem(t, ownerID, "https://jobs.example.com/posting/1")
	h := NewExtractionHandler(&stubExtractionService{
		enqueueResult: &queue.EnqueueResult{Item: item},
	})

	w := httptest.NewRecorder()
	r := authedRequest(t, http.MethodPost, "/api/extractions",
		`{"url": "https://jobs.example.com/posting/1", "priority": 3}`, ownerID)
	h.Enqueue(w, r)

	require.Equal(t, http.StatusAccepted, w.Code)

	var got domain.QueueItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, domain.TaskStatusPending, got.Status)
}

func TestEnqueueDuplicateReturns200(t *testing.T) {
	t.Parallel()

	existingID := uuid.New()
	h := NewExtractionHandler(&stubExtractionService{
		enqueueResult: &queue.EnqueueResult{Duplicate: true, ExistingID: existingID},
	})

	w := httptest.NewRecorder()
	r := authedRequest(t, http.MethodPost, "/api/extractions",
		`{"url": "https://jobs.example.com/posting/1"}`, uuid.New())
	h.Enqueue(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var got DuplicateExtractionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Duplicate)
	assert.Equal(t, existingID, got.ExistingID)
}

func TestEnqueueValidation(t *testing.T) {
	t.Parallel()

	h := NewExtractionHandler(&stubExtractionService{})

	tests := []struct {
		name string
		body string
	}{
		{"missing url", `{"priority": 1}`},
		{"malformed url", `{"url": "not a url"}`},
		{"negative priority", `{"url": "https://x.example.com/1", "priority": -1}`},
		{"broken json", `{"url":`},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			r := authedRequest(t, http.MethodPost, "/api/extractions", tc.body, uuid.New())
			h.Enqueue(w, r)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestEnqueueUnauthenticated(t *testing.T) {
	t.Parallel()

	h := NewExtractionHandler(&stubExtractionService{})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/extractions",
		strings.NewReader(`{"url": "https://jobs.example.com/1"}`))
	h.Enqueue(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEnqueueBatchMixedOutcomes(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	created := newQueueItem(t, ownerID, "https://jobs.example.com/a")
	existingID := uuid.New()

	h := NewExtractionHandler(&stubExtractionService{
		batchResults: []queue.BatchResult{
			{URL: "https://jobs.example.com/a", Result: &queue.EnqueueResult{Item: created}},
			{URL: "bad-url", Err: domain.ErrInvalidQueueItemURL},
			{URL: "https://jobs.example.com/a", Result: &queue.EnqueueResult{Duplicate: true, ExistingID: existingID}},
		},
	})

	w := httptest.NewRecorder()
	r := authedRequest(t, http.MethodPost, "/api/extractions/batch",
		`{"urls": ["https://jobs.example.com/a", "bad-url", "https://jobs.example.com/a"]}`, ownerID)
	h.EnqueueBatch(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var got BatchExtractionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Results, 3)

	assert.NotNil(t, got.Results[0].Item)
	assert.Empty(t, got.Results[0].Error)

	assert.NotEmpty(t, got.Results[1].Error)
	assert.Nil(t, got.Results[1].Item)

	assert.True(t, got.Results[2].Duplicate)
	require.NotNil(t, got.Results[2].ExistingID)
	assert.Equal(t, existingID, *got.Results[2].ExistingID)
}

func TestEnqueueBatchRejectsEmptyList(t *testing.T) {
	t.Parallel()

	h := NewExtractionHandler(&stubExtractionService{})

	w := httptest.NewRecorder()
	r := authedRequest(t, http.MethodPost, "/api/extractions/batch", `{"urls": []}`, uuid.New())
	h.EnqueueBatch(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListReturnsEmptyArray(t *testing.T) {
	t.Parallel()

	h := NewExtractionHandler(&stubExtractionService{})

	w := httptest.NewRecorder()
	r := authedRequest(t, http.MethodGet, "/api/extractions", "", uuid.New())
	h.List(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestGetExtraction(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	item := newQueueItem(t, ownerID, "https://jobs.example.com/posting/5")

	router := chi.NewRouter()
	h := NewExtractionHandler(&stubExtractionService{statusItem: item})
	router.Get("/api/extractions/{id}", h.Get)

	w := httptest.NewRecorder()
	r := authedRequest(t, http.MethodGet, "/api/extractions/"+item.ID.String(), "", ownerID)
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var got domain.QueueItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, item.ID, got.ID)
}

func TestGetExtractionAbsentIs404(t *testing.T) {
	t.Parallel()

	router := chi.NewRouter()
	h := NewExtractionHandler(&stubExtractionService{statusItem: nil})
	router.Get("/api/extractions/{id}", h.Get)

	w := httptest.NewRecorder()
	r := authedRequest(t, http.MethodGet, "/api/extractions/"+uuid.NewString(), "", uuid.New())
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetExtractionBadID(t *testing.T) {
	t.Parallel()

	router := chi.NewRouter()
	h := NewExtractionHandler(&stubExtractionService{})
	router.Get("/api/extractions/{id}", h.Get)

	w := httptest.NewRecorder()
	r := authedRequest(t, http.MethodGet, "/api/extractions/not-a-uuid", "", uuid.New())
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
