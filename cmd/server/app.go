package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/voicetransl/voicetransl-api/internal/config"
	"github.com/voicetransl/voicetransl-api/internal/events"
	"github.com/voicetransl/voicetransl-api/internal/platform/asr"
	"github.com/voicetransl/voicetransl-api/internal/platform/gemini"
	"github.com/voicetransl/voicetransl-api/internal/platform/ollama"
	"github.com/voicetransl/voicetransl-api/internal/processing"
	"github.com/voicetransl/voicetransl-api/internal/ratelimit"
	"github.com/voicetransl/voicetransl-api/internal/resource"
	"github.com/voicetransl/voicetransl-api/internal/task"
)

// application holds the shared dependencies of the server and owns their
// lifecycle.
type application struct {
	config *config.Config
	logger *slog.Logger

	emitter   *events.InMemoryEmitter
	resources *resource.Manager
	tasks     *task.Manager
	limits    *ratelimit.Tiered
	sweeper   *cron.Cron

	asrClient   *asr.Client
	fetcher     *asr.Fetcher
	transcriber *processing.Transcriber
	translator  *processing.Translator
}

// appOptions replaces backends, mostly for tests.
type appOptions struct {
	probe      resource.Probe
	recognizer processing.SpeechRecognizer
	backend    processing.TextTranslator
}

type appOption func(*appOptions)

func withProbe(p resource.Probe) appOption {
	return func(o *appOptions) { o.probe = p }
}

func withSpeechRecognizer(r processing.SpeechRecognizer) appOption {
	return func(o *appOptions) { o.recognizer = r }
}

func withTranslationBackend(b processing.TextTranslator) appOption {
	return func(o *appOptions) { o.backend = b }
}

// newApplication constructs and starts every component. Missing backend
// settings are not fatal: the matching tasks fail with a clear error.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...appOption) (*application, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	app := &application{
		config: cfg,
		logger: logger,
	}

	app.emitter = events.NewInMemoryEmitter(logger)
	app.emitter.RegisterHandler(events.NewLogHandler(logger))

	var resOpts []resource.Option
	if o.probe != nil {
		resOpts = append(resOpts, resource.WithProbe(o.probe))
	}
	var err error
	app.resources, err = resource.NewManager(resource.ConfigFrom(cfg.Task, cfg.Resource), logger, resOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource manager: %w", err)
	}

	app.tasks, err = task.NewManager(task.ConfigFrom(cfg.Task), app.resources, logger, task.WithEmitter(app.emitter))
	if err != nil {
		return nil, fmt.Errorf("failed to create task manager: %w", err)
	}
	if err := app.tasks.Start(); err != nil {
		return nil, fmt.Errorf("failed to start task cleanup: %w", err)
	}

	app.limits, err = ratelimit.NewTiered(cfg.RateLimit, logger)
	if err != nil {
		app.cleanup(ctx)
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}
	if err := app.startSweeper(); err != nil {
		app.cleanup(ctx)
		return nil, err
	}

	recognizer := o.recognizer
	if recognizer == nil {
		recognizer = app.setupRecognizer()
	}
	app.fetcher = asr.NewFetcher(int64(cfg.Transcription.MaxUploadMB)<<20, logger)
	app.transcriber = processing.NewTranscriber(recognizer, app.fetcher, cfg.Transcription.TempDir, logger)

	backend := o.backend
	if backend == nil {
		backend = app.setupTranslationBackend(ctx)
	}
	app.translator = processing.NewTranslator(backend, cfg.LLM.BatchSize, logger)

	logger.Info("Application initialized successfully",
		"speech_recognition", recognizer != nil,
		"translator", app.translator.Name())
	return app, nil
}

// setupRecognizer returns nil when no transcription service is configured.
func (app *application) setupRecognizer() processing.SpeechRecognizer {
	client, err := asr.NewClient(app.config.Transcription, app.logger)
	if err != nil {
		if errors.Is(err, asr.ErrNotConfigured) {
			app.logger.Warn("transcription service not configured, transcription tasks will fail")
		} else {
			app.logger.Error("failed to create transcription client", "error", err)
		}
		return nil
	}
	app.asrClient = client
	return client
}

// setupTranslationBackend returns nil when the selected provider is not
// configured.
func (app *application) setupTranslationBackend(ctx context.Context) processing.TextTranslator {
	llm := app.config.LLM
	switch llm.Provider {
	case "ollama":
		if llm.OllamaModel == "" {
			app.logger.Warn("Ollama model not configured, translation tasks will fail")
			return nil
		}
		t, err := ollama.NewTranslator(llm, app.logger)
		if err != nil {
			app.logger.Error("failed to create Ollama translator", "error", err)
			return nil
		}
		return t

	default:
		if llm.GeminiAPIKey == "" {
			app.logger.Warn("Gemini API key not configured, translation tasks will fail")
			return nil
		}
		t, err := gemini.NewTranslator(ctx, llm, app.logger)
		if err != nil {
			app.logger.Error("failed to create Gemini translator", "error", err)
			return nil
		}
		return t
	}
}

// startSweeper schedules the idle rate-limit key sweep.
func (app *application) startSweeper() error {
	interval := config.Seconds(app.config.RateLimit.SweepIntervalSeconds)
	app.sweeper = cron.New()
	_, err := app.sweeper.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if n := app.limits.Sweep(); n > 0 {
			app.logger.Debug("swept idle rate limit keys", "removed", n)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule rate limit sweep: %w", err)
	}
	app.sweeper.Start()
	return nil
}

// Run serves HTTP until ctx is cancelled, then shuts everything down.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup stops background work and releases backend connections.
func (app *application) cleanup(ctx context.Context) {
	if app.sweeper != nil {
		<-app.sweeper.Stop().Done()
	}
	if app.tasks != nil {
		if err := app.tasks.Shutdown(ctx); err != nil {
			app.logger.Error("task manager shutdown incomplete", "error", err)
		}
	}
	if app.asrClient != nil {
		if err := app.asrClient.Close(); err != nil {
			app.logger.Warn("failed to close transcription client", "error", err)
		}
	}
	if app.fetcher != nil {
		if err := app.fetcher.Close(); err != nil {
			app.logger.Warn("failed to close media fetcher", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
