package processing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voicetransl/voicetransl-api/internal/task"
)

// Translation task input keys
const (
	InputLRCContent     = "lrc_content"
	InputTargetLanguage = "target_language"
	InputTranslator     = "translator"
)

// TextTranslator translates lines of text. It returns exactly one output
// line per input line, in order.
type TextTranslator interface {
	Name() string
	Translate(ctx context.Context, lines []string, source, target string) ([]string, error)
}

// TranslatedEntry is one translated LRC line.
type TranslatedEntry struct {
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	OriginalText   string  `json:"original_text"`
	TranslatedText string  `json:"translated_text"`
	Translated     bool    `json:"translated"`
}

// Translator is the translation work unit.
type Translator struct {
	backend   TextTranslator
	batchSize int
	logger    *slog.Logger
}

// NewTranslator creates a Translator sending batchSize lines per backend
// call. backend may be nil, in which case every task fails with
// ErrBackendNotConfigured.
func NewTranslator(backend TextTranslator, batchSize int, logger *slog.Logger) *Translator {
	if batchSize <= 0 {
		batchSize = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{
		backend:   backend,
		batchSize: batchSize,
		logger:    logger.With("component", "translator"),
	}
}

// Name returns the backend name, or an empty string without a backend.
func (t *Translator) Name() string {
	if t.backend == nil {
		return ""
	}
	return t.backend.Name()
}

// Unit adapts Run to the task manager.
func (t *Translator) Unit() task.WorkUnit {
	return func(ctx context.Context, h *task.Handle) (task.Payload, error) {
		return t.Run(ctx, h)
	}
}

// Run translates the task's LRC content batch by batch, checking for
// cancellation between batches. A failed batch keeps its original text; the
// task fails only when every batch fails.
func (t *Translator) Run(ctx context.Context, p Progress) (task.Payload, error) {
	start := time.Now()
	in := p.Input()
	target := stringInput(in, InputTargetLanguage)

	p.SetProgress(10, "Initializing translation")
	if t.backend == nil {
		return nil, fmt.Errorf("translation %w", ErrBackendNotConfigured)
	}

	p.SetProgress(20, "Parsing LRC content")
	entries := ParseLRC(stringInput(in, InputLRCContent))
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}

	p.SetProgress(40, "Translating content")
	out := make([]TranslatedEntry, len(entries))
	var (
		failed   int
		firstErr error
	)
	for from := 0; from < len(entries); from += t.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		to := min(from+t.batchSize, len(entries))

		lines := make([]string, 0, to-from)
		for _, e := range entries[from:to] {
			lines = append(lines, e.Text)
		}

		translated, err := t.backend.Translate(ctx, lines, SourceLanguage, target)
		if err == nil && len(translated) != len(lines) {
			err = fmt.Errorf("backend returned %d lines for %d inputs", len(translated), len(lines))
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			t.logger.Warn("translation batch failed, keeping original text",
				"batch_start", from, "batch_size", len(lines), "error", err)
			failed += len(lines)
			if firstErr == nil {
				firstErr = err
			}
		}

		for i, e := range entries[from:to] {
			te := TranslatedEntry{Start: e.Start, End: e.End, OriginalText: e.Text, TranslatedText: e.Text}
			if err == nil && translated[i] != "" {
				te.TranslatedText = translated[i]
				te.Translated = true
			}
			out[from+i] = te
		}

		p.SetProgress(40+50*float64(to)/float64(len(entries)), "Translating content")
	}

	if failed == len(entries) {
		return nil, fmt.Errorf("translation failed: %w", firstErr)
	}

	p.SetProgress(90, "Generating output")
	lrc := make([]Entry, len(out))
	succeeded := 0
	for i, e := range out {
		lrc[i] = Entry{Start: e.Start, End: e.End, Text: e.TranslatedText}
		if e.Translated {
			succeeded++
		}
	}

	return task.Payload{
		"lrc_content":             FormatLRC(lrc),
		"entries":                 out,
		"source_language":         SourceLanguage,
		"target_language":         target,
		"translator":              t.backend.Name(),
		"entry_count":             len(out),
		"successful_translations": succeeded,
		"failed_translations":     len(out) - succeeded,
		"processing_time":         time.Since(start).Seconds(),
	}, nil
}
