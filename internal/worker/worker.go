// Package worker implements the background extraction pool: it claims
// pending queue items, runs them through the LLM extraction boundary, and
// records the outcome on both the queue item and its tracking task. It also
// hosts the periodic reclamation sweep for work that never finished.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jobdeck/jobdeck-api/internal/domain"
	"github.com/jobdeck/jobdeck-api/internal/generation"
	"github.com/jobdeck/jobdeck-api/internal/store"
	"github.com/jobdeck/jobdeck-api/internal/tracker"
)

// Tasks is the slice of the task tracker the pool drives.
type Tasks interface {
	Create(ctx context.Context, ownerID uuid.UUID, kind domain.TaskKind, subjectLabel string) (*domain.Task, error)
	Transition(ctx context.Context, taskID uuid.UUID, target domain.TaskStatus, opts tracker.TransitionOptions) (*domain.Task, error)
	ReclaimStuck(ctx context.Context, threshold time.Duration) (int, error)
}

// Queue is the slice of the queue service the pool drives. Claiming happens
// against the store directly so it stays atomic; status announcements go
// through the service so watchers hear about them.
type Queue interface {
	UpdateStatus(ctx context.Context, itemID uuid.UUID, status domain.TaskStatus) (*domain.QueueItem, error)
}

// Config holds the pool's tuning knobs.
type Config struct {
	// Concurrency is the number of extraction workers.
	Concurrency int

	// PollInterval is how often the dispatcher looks for pending items.
	PollInterval time.Duration

	// StuckThreshold is the age past which active tasks and queue items are
	// reclaimed as failed.
	StuckThreshold time.Duration

	// SweepInterval is how often the reclamation sweep runs.
	SweepInterval time.Duration
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:    2,
		PollInterval:   2 * time.Second,
		StuckThreshold: tracker.DefaultStuckThreshold,
		SweepInterval:  time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.StuckThreshold <= 0 {
		c.StuckThreshold = defaults.StuckThreshold
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaults.SweepInterval
	}
	return c
}

// Pool consumes the extraction queue with a fixed number of workers.
type Pool struct {
	claims    store.QueueStore
	queue     Queue
	tasks     Tasks
	generator generation.Generator
	config    Config
	logger    *slog.Logger

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	items      chan *domain.QueueItem
	startOnce  sync.Once
	stopOnce   sync.Once
}

// New creates a Pool. Call Start to begin processing.
func New(claims store.QueueStore, queueSvc Queue, tasks Tasks, generator generation.Generator, config Config, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	config = config.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		claims:     claims,
		queue:      queueSvc,
		tasks:      tasks,
		generator:  generator,
		config:     config,
		logger:     logger.With(slog.String("component", "worker_pool")),
		ctx:        ctx,
		cancelFunc: cancel,
		items:      make(chan *domain.QueueItem, config.Concurrency),
	}
}

// Start launches the dispatcher, the workers, and the reclamation sweep.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.config.Concurrency; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}

		p.wg.Add(1)
		go p.dispatcher()

		p.wg.Add(1)
		go p.sweeper()

		p.logger.Info("worker pool started",
			slog.Int("concurrency", p.config.Concurrency),
			slog.Duration("poll_interval", p.config.PollInterval))
	})
}

// Stop cancels all loops and waits for in-flight extractions to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.cancelFunc()
		p.wg.Wait()
		p.logger.Info("worker pool stopped")
	})
}

// dispatcher polls for pending items and hands claimed work to the workers.
// Claiming marks items processing in the same store operation, so a claimed
// item is never seen by another pool instance.
func (p *Pool) dispatcher() {
	defer p.wg.Done()
	defer close(p.items)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.claimBatch()
		}
	}
}

// claimBatch claims up to one item per worker and queues them for processing.
func (p *Pool) claimBatch() {
	claimed, err := p.claims.NextPending(p.ctx, p.config.Concurrency)
	if err != nil {
		if p.ctx.Err() == nil {
			p.logger.Error("failed to claim pending items",
				slog.String("error", err.Error()))
		}
		return
	}

	for _, item := range claimed {
		select {
		case p.items <- item:
		case <-p.ctx.Done():
			// Shutting down mid-batch. The claimed item stays processing
			// until the reclamation sweep fails it; accepted cost of a
			// non-transactional handoff.
			return
		}
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With(slog.Int("worker_id", id))
	logger.Debug("worker started")

	for {
		select {
		case <-p.ctx.Done():
			logger.Debug("worker stopping")
			return
		case item, ok := <-p.items:
			if !ok {
				return
			}
			p.processItem(item, logger)
		}
	}
}

// processItem runs one extraction end to end: announce the claim, track the
// work as an extraction task, call the model, record the outcome on both the
// task and the queue item.
func (p *Pool) processItem(item *domain.QueueItem, logger *slog.Logger) {
	// Deliberately not the pool context: an extraction in flight during
	// shutdown is allowed to finish and record its outcome.
	ctx := context.Background()

	logger = logger.With(
		slog.String("item_id", item.ID.String()),
		slog.String("url", item.URL))

	// The claim already marked the row processing; this re-apply exists to
	// announce the change to watchers.
	if _, err := p.queue.UpdateStatus(ctx, item.ID, domain.TaskStatusProcessing); err != nil {
		logger.Error("failed to announce claim", slog.String("error", err.Error()))
	}

	task, err := p.tasks.Create(ctx, item.OwnerID, domain.TaskKindExtraction, item.URL)
	if err != nil {
		logger.Error("failed to create extraction task", slog.String("error", err.Error()))
		p.failItem(ctx, item, logger)
		return
	}

	step := "extracting job posting"
	if _, err := p.tasks.Transition(ctx, task.ID, domain.TaskStatusProcessing, tracker.TransitionOptions{
		CurrentStep: &step,
	}); err != nil {
		logger.Error("failed to mark task processing", slog.String("error", err.Error()))
	}

	logger.Info("extraction started", slog.String("task_id", task.ID.String()))

	result, err := p.extract(ctx, item)
	if err != nil {
		logger.Error("extraction failed", slog.String("error", err.Error()))

		msg := err.Error()
		if _, terr := p.tasks.Transition(ctx, task.ID, domain.TaskStatusFailed, tracker.TransitionOptions{
			Error: &msg,
		}); terr != nil {
			logger.Error("failed to record task failure", slog.String("error", terr.Error()))
		}
		p.failItem(ctx, item, logger)
		return
	}

	if _, err := p.tasks.Transition(ctx, task.ID, domain.TaskStatusCompleted, tracker.TransitionOptions{
		Result: result,
	}); err != nil {
		logger.Error("failed to record task result", slog.String("error", err.Error()))
	}
	if _, err := p.queue.UpdateStatus(ctx, item.ID, domain.TaskStatusCompleted); err != nil {
		logger.Error("failed to complete queue item", slog.String("error", err.Error()))
	}

	logger.Info("extraction completed", slog.String("task_id", task.ID.String()))
}

func (p *Pool) failItem(ctx context.Context, item *domain.QueueItem, logger *slog.Logger) {
	if _, err := p.queue.UpdateStatus(ctx, item.ID, domain.TaskStatusFailed); err != nil {
		logger.Error("failed to fail queue item", slog.String("error", err.Error()))
	}
}

// extract calls the model and validates that the response is the JSON
// document the prompt demands.
func (p *Pool) extract(ctx context.Context, item *domain.QueueItem) (json.RawMessage, error) {
	prompt := buildExtractionPrompt(item.URL, item.SeedData)

	output, err := p.generator.Complete(ctx, prompt, generation.Options{
		ResponseJSON: true,
	})
	if err != nil {
		return nil, err
	}

	if !json.Valid([]byte(output)) {
		return nil, fmt.Errorf("model returned malformed JSON: %w", generation.ErrInvalidResponse)
	}

	return json.RawMessage(output), nil
}

// sweeper periodically reclaims tasks and queue items that have sat in an
// active state past the threshold.
func (p *Pool) sweeper() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.sweepOnce()
		}
	}
}

// sweepOnce runs one reclamation pass over tasks and queue items.
func (p *Pool) sweepOnce() {
	ctx := context.Background()

	reclaimed, err := p.tasks.ReclaimStuck(ctx, p.config.StuckThreshold)
	if err != nil {
		p.logger.Error("task reclamation sweep failed", slog.String("error", err.Error()))
	} else if reclaimed > 0 {
		p.logger.Warn("reclaimed stuck tasks", slog.Int("count", reclaimed))
	}

	cutoff := time.Now().UTC().Add(-p.config.StuckThreshold)
	stuck, err := p.claims.FindStuck(ctx, cutoff)
	if err != nil {
		p.logger.Error("queue reclamation sweep failed", slog.String("error", err.Error()))
		return
	}

	for _, item := range stuck {
		if _, err := p.queue.UpdateStatus(ctx, item.ID, domain.TaskStatusFailed); err != nil {
			p.logger.Error("failed to reclaim stuck queue item",
				slog.String("item_id", item.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		p.logger.Warn("reclaimed stuck queue item",
			slog.String("item_id", item.ID.String()),
			slog.String("url", item.URL))
	}
}

// buildExtractionPrompt renders the extraction instruction for one posting.
// Seed data, when present, spares the model a description of content it
// cannot fetch itself.
func buildExtractionPrompt(url string, seedData json.RawMessage) string {
	prompt := fmt.Sprintf(`Extract the job posting at %s into a JSON object with the fields:
"title", "company", "location", "salary_min", "salary_max", "currency",
"employment_type", "remote", "requirements" (array of strings), and
"description_summary". Use null for fields the posting does not state.
Respond with the JSON object only.`, url)

	if len(seedData) > 0 {
		prompt += fmt.Sprintf("\n\nPage content captured at enqueue time:\n%s", seedData)
	}

	return prompt
}
