package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jobdeck/jobdeck-api/internal/api"
	apiMiddleware "github.com/jobdeck/jobdeck-api/internal/api/middleware"
)

// setupRouter creates the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	extractionHandler := api.NewExtractionHandler(app.queue)
	taskHandler := api.NewTaskHandler(app.tracker)
	cacheHandler := api.NewCacheHandler(app.unifiedCache)
	updatesHandler := api.NewUpdatesHandler(app.hub, app.coordinator, app.config.Hub.HeartbeatInterval)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Post("/extractions", extractionHandler.Enqueue)
		r.Post("/extractions/batch", extractionHandler.EnqueueBatch)
		r.Get("/extractions", extractionHandler.List)
		r.Get("/extractions/{id}", extractionHandler.Get)

		r.Post("/tasks", taskHandler.Create)
		r.Get("/tasks", taskHandler.List)
		r.Get("/tasks/{id}", taskHandler.Get)
		r.Patch("/tasks/{id}", taskHandler.Transition)

		r.Get("/caches/{subjectID}/{kind}", cacheHandler.Get)
		r.Post("/caches/{subjectID}/{kind}", cacheHandler.Save)
		r.Post("/caches/{subjectID}/preload", cacheHandler.Preload)
		r.Delete("/caches/{subjectID}", cacheHandler.Clear)

		r.Get("/updates/wait", updatesHandler.Wait)
		r.Get("/updates/stream", updatesHandler.Stream)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
