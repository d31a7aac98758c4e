package ollama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/voicetransl/voicetransl-api/internal/config"
	"github.com/voicetransl/voicetransl-api/internal/processing"
)

// Error definitions for the ollama package.
var (
	// ErrInvalidConfig is returned when the client cannot be configured.
	ErrInvalidConfig = errors.New("invalid ollama configuration")

	// ErrInvalidResponse is returned when the answer does not have one row
	// per input line.
	ErrInvalidResponse = errors.New("invalid response from ollama")
)

const systemPrompt = "You are a subtitle translation model. Translate each line the user sends from %s into %s. " +
	"Answer with exactly one translated line per input line, in the same order, " +
	"without numbering, notes or blank lines."

// chatter is the part of the Ollama client the translator uses.
// *api.Client satisfies it.
type chatter interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
}

// Translator translates subtitle lines with a model served by Ollama.
type Translator struct {
	client     chatter
	model      string
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewTranslator creates a Translator from the LLM settings.
func NewTranslator(cfg config.LLMConfig, logger *slog.Logger) (*Translator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.OllamaModel == "" {
		return nil, fmt.Errorf("%w: model cannot be empty", ErrInvalidConfig)
	}
	base, err := url.Parse(cfg.OllamaHost)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid host %q", ErrInvalidConfig, cfg.OllamaHost)
	}

	client := api.NewClient(base, &http.Client{})
	return newTranslator(client, cfg, logger), nil
}

func newTranslator(client chatter, cfg config.LLMConfig, logger *slog.Logger) *Translator {
	return &Translator{
		client:     client,
		model:      cfg.OllamaModel,
		maxRetries: max(cfg.MaxRetries, 0),
		retryDelay: config.Seconds(max(cfg.RetryDelaySeconds, 1)),
		logger:     logger.With("component", "ollama_translator", "model", cfg.OllamaModel),
	}
}

// Name identifies the backend in task results.
func (t *Translator) Name() string {
	return "ollama"
}

// Translate returns one translation per input line, in order.
func (t *Translator) Translate(ctx context.Context, lines []string, source, target string) ([]string, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	flat := make([]string, len(lines))
	for i, l := range lines {
		flat[i] = strings.Join(strings.Fields(l), " ")
	}

	stream := false
	req := &api.ChatRequest{
		Model: t.model,
		Messages: []api.Message{
			{Role: "system", Content: fmt.Sprintf(systemPrompt,
				processing.LanguageName(source), processing.LanguageName(target))},
			{Role: "user", Content: strings.Join(flat, "\n")},
		},
		Stream:  &stream,
		Options: map[string]any{"temperature": 0.1},
	}

	text, err := t.chatWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	return splitRows(text, len(lines))
}

// chatWithRetry retries failed calls with a linear delay.
func (t *Translator) chatWithRetry(ctx context.Context, req *api.ChatRequest) (string, error) {
	for attempt := 0; ; attempt++ {
		var b strings.Builder
		err := t.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			b.WriteString(resp.Message.Content)
			return nil
		})
		if err == nil {
			return b.String(), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		t.logger.WarnContext(ctx, "ollama call failed", "attempt", attempt+1, "error", err)
		if attempt >= t.maxRetries {
			return "", fmt.Errorf("ollama chat failed after %d attempts: %w", attempt+1, err)
		}

		select {
		case <-time.After(t.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// splitRows maps the answer back to want lines, ignoring blank rows.
func splitRows(text string, want int) ([]string, error) {
	out := make([]string, 0, want)
	for _, row := range strings.Split(text, "\n") {
		if row = strings.TrimSpace(row); row != "" {
			out = append(out, row)
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("%w: got %d of %d lines", ErrInvalidResponse, len(out), want)
	}
	return out, nil
}
