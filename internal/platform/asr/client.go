package asr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voicetransl/voicetransl-api/internal/config"
	"resty.dev/v3"
)

// TranscriptionPath is the endpoint of an OpenAI-compatible transcription API.
const TranscriptionPath = "/v1/audio/transcriptions"

// ErrNotConfigured is returned when no base URL is configured.
var ErrNotConfigured = errors.New("speech recognition base URL not configured")

// Client implements processing.SpeechRecognizer over HTTP.
type Client struct {
	http   *resty.Client
	model  string
	logger *slog.Logger
}

// NewClient creates a Client for the configured service.
func NewClient(cfg config.TranscriptionConfig, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = slog.Default()
	}

	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(config.Seconds(cfg.TimeoutSeconds))
	if cfg.APIKey != "" {
		rc.SetAuthToken(cfg.APIKey)
	}

	return &Client{
		http:   rc,
		model:  cfg.Model,
		logger: logger.With("component", "asr_client"),
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// Transcribe uploads the audio file and returns SubRip subtitles.
func (c *Client) Transcribe(ctx context.Context, audioPath, language string) (string, error) {
	start := time.Now()

	resp, err := c.http.R().
		SetContext(ctx).
		SetFile("file", audioPath).
		SetFormData(map[string]string{
			"model":           c.model,
			"language":        language,
			"response_format": "srt",
		}).
		Post(TranscriptionPath)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("transcription service returned status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}

	// resp.String trims surrounding whitespace; keep the body as sent.
	body := string(resp.Bytes())
	c.logger.DebugContext(ctx, "transcription received",
		"duration_ms", time.Since(start).Milliseconds(),
		"bytes", len(body))
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
