package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/voicetransl/voicetransl-api/internal/api"
	apiMiddleware "github.com/voicetransl/voicetransl-api/internal/api/middleware"
	"github.com/voicetransl/voicetransl-api/internal/task"
)

// setupRouter creates the router with every route and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	admission := apiMiddleware.NewAdmission(app.limits, app.resources, app.logger)

	taskHandler := api.NewTaskHandler(app.tasks, app.resources, app.limits, app.logger)
	transcriptionHandler := api.NewTranscriptionHandler(
		app.tasks,
		app.transcriber.Unit(),
		app.config.Transcription.TempDir,
		int64(app.config.Transcription.MaxUploadMB)<<20,
		app.logger,
	)
	translationHandler := api.NewTranslationHandler(
		app.tasks,
		app.translator.Unit(),
		app.translator.Name(),
		app.logger,
	)
	tools := api.NewToolHandler(
		api.NewToolServer(app.tasks, translationHandler, app.resources, app.limits, version, app.logger),
	)

	r.Route("/api", func(r chi.Router) {
		r.Use(admission.Handler)

		r.Post("/transcribe", transcriptionHandler.Create)
		r.Get("/transcribe/{taskID}/status", taskHandler.Status(task.KindTranscription))
		r.Get("/transcribe/{taskID}/result", taskHandler.Result(task.KindTranscription))
		r.Delete("/transcribe/{taskID}", taskHandler.Cancel(task.KindTranscription))

		r.Post("/translate", translationHandler.Create)
		r.Get("/translate/{taskID}/status", taskHandler.Status(task.KindTranslation))
		r.Get("/translate/{taskID}/result", taskHandler.Result(task.KindTranslation))
		r.Delete("/translate/{taskID}", taskHandler.Cancel(task.KindTranslation))

		r.Get("/status/{taskID}", taskHandler.Status(""))
		r.Get("/result/{taskID}", taskHandler.Result(""))
		r.Get("/tasks", taskHandler.List)
		r.Delete("/tasks/{taskID}", taskHandler.Cancel(""))
		r.Get("/stats", taskHandler.Stats)

		r.Handle("/mcp", tools)
	})

	r.Get("/health", api.Health(version))

	return r
}
