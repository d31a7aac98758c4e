package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/voicetransl/voicetransl-api/internal/config"
	"google.golang.org/genai"
)

// contentGenerator is the part of the genai client the translator uses.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Translator translates subtitle lines with a Gemini model.
type Translator struct {
	models     contentGenerator
	model      string
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewTranslator creates a Translator from the LLM settings.
func NewTranslator(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Translator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return newTranslator(client.Models, cfg, logger), nil
}

func newTranslator(models contentGenerator, cfg config.LLMConfig, logger *slog.Logger) *Translator {
	return &Translator{
		models:     models,
		model:      cfg.ModelName,
		maxRetries: max(cfg.MaxRetries, 0),
		baseDelay:  config.Seconds(max(cfg.RetryDelaySeconds, 1)),
		logger:     logger.With("component", "gemini_translator", "model", cfg.ModelName),
	}
}

// Name identifies the backend in task results.
func (t *Translator) Name() string {
	return "gemini"
}

// Translate returns one translation per input line, in order.
func (t *Translator) Translate(ctx context.Context, lines []string, source, target string) ([]string, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	prompt, err := buildPrompt(lines, source, target)
	if err != nil {
		return nil, err
	}

	text, err := t.generateWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseNumbered(text, len(lines))
}

// generateWithRetry calls the model, retrying transient failures with
// exponential backoff and jitter.
func (t *Translator) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0.3)}

	for attempt := 0; ; attempt++ {
		t.logger.DebugContext(ctx, "calling gemini", "attempt", attempt+1, "max_attempts", t.maxRetries+1)

		resp, err := t.models.GenerateContent(ctx, t.model, genai.Text(prompt), cfg)
		if err == nil {
			return responseText(resp)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		t.logger.WarnContext(ctx, "gemini call failed", "attempt", attempt+1, "error", err)
		if attempt >= t.maxRetries {
			return "", fmt.Errorf("%w: %d attempts: %v", ErrTransientFailure, attempt+1, err)
		}

		// delay = base * 2^attempt * [0.5, 1.0)
		delay := time.Duration(float64(t.baseDelay) * math.Pow(2, float64(attempt)) * (0.5 + rand.Float64()*0.5))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// responseText extracts the text of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", ErrContentBlocked
	}
	if cand.Content == nil {
		return "", fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: empty text", ErrInvalidResponse)
	}
	return b.String(), nil
}
