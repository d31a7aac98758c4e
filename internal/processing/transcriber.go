package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/voicetransl/voicetransl-api/internal/task"
)

// SourceLanguage is the spoken language of every input.
const SourceLanguage = "ja"

// Output formats for transcription results
const (
	OutputLRC  = "lrc"
	OutputSRT  = "srt"
	OutputJSON = "json"
)

// ValidFormat reports whether f is a supported output format.
func ValidFormat(f string) bool {
	return f == OutputLRC || f == OutputSRT || f == OutputJSON
}

// Transcription task input keys
const (
	InputFilePath     = "file_path"
	InputFilename     = "filename"
	InputURL          = "url"
	InputOutputFormat = "output_format"
)

// SpeechRecognizer turns an audio file into SubRip subtitles.
type SpeechRecognizer interface {
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

// MediaFetcher downloads a remote media file into dir and returns its path.
type MediaFetcher interface {
	Fetch(ctx context.Context, url, dir string) (string, error)
}

// Transcriber is the transcription work unit.
type Transcriber struct {
	recognizer SpeechRecognizer
	fetcher    MediaFetcher
	tempDir    string
	logger     *slog.Logger
}

// NewTranscriber creates a Transcriber. recognizer may be nil, in which case
// every task fails with ErrBackendNotConfigured.
func NewTranscriber(recognizer SpeechRecognizer, fetcher MediaFetcher, tempDir string, logger *slog.Logger) *Transcriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{
		recognizer: recognizer,
		fetcher:    fetcher,
		tempDir:    tempDir,
		logger:     logger.With("component", "transcriber"),
	}
}

// Unit adapts Run to the task manager.
func (t *Transcriber) Unit() task.WorkUnit {
	return func(ctx context.Context, h *task.Handle) (task.Payload, error) {
		return t.Run(ctx, h)
	}
}

// Run transcribes the task's audio input. Uploaded and downloaded files are
// removed when Run returns.
func (t *Transcriber) Run(ctx context.Context, p Progress) (task.Payload, error) {
	start := time.Now()
	in := p.Input()

	format := stringInput(in, InputOutputFormat)
	if format == "" {
		format = OutputLRC
	}
	if !ValidFormat(format) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	p.SetProgress(10, "Initializing transcription")
	if t.recognizer == nil {
		return nil, fmt.Errorf("speech recognition %w", ErrBackendNotConfigured)
	}

	p.SetProgress(20, "Preparing audio file")
	audioPath, err := t.prepareAudio(ctx, in)
	if audioPath != "" {
		defer t.remove(audioPath)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.SetProgress(40, "Transcribing audio")
	srt, err := t.recognizer.Transcribe(ctx, audioPath, SourceLanguage)
	if err != nil {
		return nil, fmt.Errorf("audio transcription failed: %w", err)
	}

	p.SetProgress(90, "Processing results")
	entries := ParseSRT(srt)
	if len(entries) == 0 {
		return nil, fmt.Errorf("transcription produced no output: %w", ErrNoEntries)
	}

	result := task.Payload{
		"output_format":   format,
		"language":        SourceLanguage,
		"segment_count":   len(entries),
		"processing_time": time.Since(start).Seconds(),
	}
	switch format {
	case OutputLRC:
		result["lrc_content"] = FormatLRC(entries)
	case OutputSRT:
		result["srt_content"] = FormatSRT(entries)
	case OutputJSON:
		result["segments"] = entries
	}
	return result, nil
}

func (t *Transcriber) prepareAudio(ctx context.Context, in task.Payload) (string, error) {
	if path := stringInput(in, InputFilePath); path != "" {
		if _, err := os.Stat(path); err != nil {
			return path, fmt.Errorf("uploaded audio unavailable: %w", err)
		}
		return path, nil
	}

	url := stringInput(in, InputURL)
	if url == "" {
		return "", ErrNoAudioInput
	}
	if t.fetcher == nil {
		return "", fmt.Errorf("media download %w", ErrBackendNotConfigured)
	}
	path, err := t.fetcher.Fetch(ctx, url, t.tempDir)
	if err != nil {
		return path, fmt.Errorf("failed to download audio from URL: %w", err)
	}
	return path, nil
}

func (t *Transcriber) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		t.logger.Warn("failed to remove temporary audio file", "error", err)
	}
}
