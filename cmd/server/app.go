package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jobdeck/jobdeck-api/internal/cache"
	"github.com/jobdeck/jobdeck-api/internal/config"
	"github.com/jobdeck/jobdeck-api/internal/domain"
	"github.com/jobdeck/jobdeck-api/internal/generation"
	"github.com/jobdeck/jobdeck-api/internal/hub"
	"github.com/jobdeck/jobdeck-api/internal/platform/gemini"
	"github.com/jobdeck/jobdeck-api/internal/platform/postgres"
	"github.com/jobdeck/jobdeck-api/internal/queue"
	"github.com/jobdeck/jobdeck-api/internal/service"
	"github.com/jobdeck/jobdeck-api/internal/service/auth"
	"github.com/jobdeck/jobdeck-api/internal/store"
	"github.com/jobdeck/jobdeck-api/internal/tracker"
	"github.com/jobdeck/jobdeck-api/internal/worker"
)

// changeRelay forwards tracker and queue change notifications to the
// coordinator. The coordinator is attached after construction because it
// reads from the tracker and queue services, which in turn need a notifier
// at construction time.
type changeRelay struct {
	mu          sync.RWMutex
	coordinator *service.Coordinator
}

func (r *changeRelay) attach(c *service.Coordinator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coordinator = c
}

func (r *changeRelay) target() *service.Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.coordinator
}

func (r *changeRelay) TaskChanged(ctx context.Context, task *domain.Task) {
	if c := r.target(); c != nil {
		c.TaskChanged(ctx, task)
	}
}

func (r *changeRelay) QueueChanged(ctx context.Context, item *domain.QueueItem) {
	if c := r.target(); c != nil {
		c.QueueChanged(ctx, item)
	}
}

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	taskStore  store.TaskStore
	queueStore store.QueueStore
	cacheStore store.CacheStore

	jwtService auth.JWTService
	generator  generation.Generator

	tracker      *tracker.Tracker
	queue        *queue.Queue
	unifiedCache *cache.UnifiedCache
	coordinator  *service.Coordinator
	hub          *hub.Hub
	workerPool   *worker.Pool
}

// newApplication creates an application instance with all dependencies
// initialized and background processing started.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	app.taskStore = postgres.NewPostgresTaskStore(db)
	app.queueStore = postgres.NewPostgresQueueStore(db)
	app.cacheStore = postgres.NewPostgresCacheStore(db)

	app.generator, err = gemini.NewGeminiGenerator(
		ctx,
		logger.With(slog.String("component", "llm_generator")),
		cfg.LLM,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM generator: %w", err)
	}

	// Tracker and queue announce mutations through the relay; the coordinator
	// turns those announcements into hub broadcasts once attached.
	relay := &changeRelay{}
	app.tracker = tracker.New(app.taskStore, relay, logger, tracker.WithDB(db))
	app.queue = queue.New(app.queueStore, relay, logger)
	app.unifiedCache = cache.New(app.cacheStore, logger)

	app.coordinator = service.NewCoordinator(app.tracker, app.queue, cfg.Hub.RecheckInterval, logger)
	relay.attach(app.coordinator)

	app.hub = hub.New(app.coordinator, cfg.Hub.LongPollTimeout, logger)
	app.coordinator.AttachBroadcaster(app.hub)
	app.coordinator.StartRecheck()

	app.workerPool = worker.New(app.queueStore, app.queue, app.tracker, app.generator, worker.Config{
		Concurrency:    cfg.Worker.Concurrency,
		PollInterval:   cfg.Worker.PollInterval,
		StuckThreshold: cfg.Worker.StuckThreshold,
		SweepInterval:  cfg.Worker.SweepInterval,
	}, logger)
	app.workerPool.Start()

	logger.Info("application initialized")
	return app, nil
}

// Run starts the HTTP server and blocks until shutdown completes.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources. Order matters:
// the worker pool drains first so in-flight extractions record their
// outcome, then the notification side shuts down, then the database closes.
func (app *application) cleanup() {
	if app.workerPool != nil {
		app.workerPool.Stop()
	}
	if app.coordinator != nil {
		app.coordinator.StopRecheck()
	}
	if app.hub != nil {
		app.hub.Shutdown()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", slog.String("error", err.Error()))
		}
	}

	app.logger.Info("application shutdown completed")
}
