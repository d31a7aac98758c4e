package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicetransl/voicetransl-api/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedChat answers with queued replies and records requests.
type scriptedChat struct {
	replies  []string
	errs     []error
	requests []*api.ChatRequest
}

func (s *scriptedChat) Chat(_ context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error {
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return s.errs[i]
	}
	var reply string
	if i < len(s.replies) {
		reply = s.replies[i]
	}
	return fn(api.ChatResponse{Message: api.Message{Role: "assistant", Content: reply}, Done: true})
}

func TestNewTranslatorValidation(t *testing.T) {
	_, err := NewTranslator(config.LLMConfig{OllamaHost: "http://127.0.0.1:11434"}, testLogger())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewTranslator(config.LLMConfig{OllamaModel: "sakura", OllamaHost: "localhost"}, testLogger())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewTranslator(config.LLMConfig{OllamaModel: "sakura", OllamaHost: "http://127.0.0.1:11434"}, nil)
	assert.Error(t, err)

	tr, err := NewTranslator(config.LLMConfig{OllamaModel: "sakura", OllamaHost: "http://127.0.0.1:11434"}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "ollama", tr.Name())
}

func TestTranslate(t *testing.T) {
	chat := &scriptedChat{replies: []string{"早上好\n\n你好吗？\n"}}
	tr := newTranslator(chat, config.LLMConfig{OllamaModel: "sakura"}, testLogger())

	out, err := tr.Translate(context.Background(), []string{"おはよう", "元気\nですか"}, "ja", "zh-cn")

	require.NoError(t, err)
	assert.Equal(t, []string{"早上好", "你好吗？"}, out)

	require.Len(t, chat.requests, 1)
	req := chat.requests[0]
	assert.Equal(t, "sakura", req.Model)
	require.NotNil(t, req.Stream)
	assert.False(t, *req.Stream)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[0].Content, "from Japanese into Simplified Chinese")
	assert.Equal(t, "おはよう\n元気 ですか", req.Messages[1].Content)
}

func TestTranslateEmpty(t *testing.T) {
	chat := &scriptedChat{}
	tr := newTranslator(chat, config.LLMConfig{OllamaModel: "sakura"}, testLogger())

	out, err := tr.Translate(context.Background(), nil, "ja", "en")

	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Empty(t, chat.requests)
}

func TestTranslateRowMismatch(t *testing.T) {
	chat := &scriptedChat{replies: []string{"only one"}}
	tr := newTranslator(chat, config.LLMConfig{OllamaModel: "sakura"}, testLogger())

	_, err := tr.Translate(context.Background(), []string{"a", "b"}, "ja", "en")

	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestTranslateRetries(t *testing.T) {
	chat := &scriptedChat{
		errs:    []error{errors.New("connection refused"), nil},
		replies: []string{"", "hello"},
	}
	tr := newTranslator(chat, config.LLMConfig{OllamaModel: "sakura", MaxRetries: 1}, testLogger())
	tr.retryDelay = 0

	out, err := tr.Translate(context.Background(), []string{"こんにちは"}, "ja", "en")

	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, out)
	assert.Len(t, chat.requests, 2)
}

func TestTranslateRetriesExhausted(t *testing.T) {
	chat := &scriptedChat{errs: []error{errors.New("boom"), errors.New("boom")}}
	tr := newTranslator(chat, config.LLMConfig{OllamaModel: "sakura", MaxRetries: 1}, testLogger())
	tr.retryDelay = 0

	_, err := tr.Translate(context.Background(), []string{"a"}, "ja", "en")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestTranslateOverHTTP(t *testing.T) {
	var got api.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "sakura",
			"message": map[string]string{"role": "assistant", "content": "Good morning\nGood night"},
			"done":    true,
		})
	}))
	defer srv.Close()

	tr, err := NewTranslator(config.LLMConfig{OllamaModel: "sakura", OllamaHost: srv.URL}, testLogger())
	require.NoError(t, err)

	out, err := tr.Translate(context.Background(), []string{"おはよう", "おやすみ"}, "ja", "en")

	require.NoError(t, err)
	assert.Equal(t, []string{"Good morning", "Good night"}, out)
	assert.Equal(t, "sakura", got.Model)
}
