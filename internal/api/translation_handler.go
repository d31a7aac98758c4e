package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/voicetransl/voicetransl-api/internal/api/shared"
	"github.com/voicetransl/voicetransl-api/internal/processing"
	"github.com/voicetransl/voicetransl-api/internal/task"
)

// maxTranslationBody bounds the JSON body of a translation request.
const maxTranslationBody = 16 << 20

// TranslationHandler creates translation tasks.
type TranslationHandler struct {
	tasks      TaskManager
	unit       task.WorkUnit
	translator string
	logger     *slog.Logger
}

// NewTranslationHandler creates a TranslationHandler. translator is the
// name of the configured backend; requests naming another one are refused.
func NewTranslationHandler(tasks TaskManager, unit task.WorkUnit, translator string, logger *slog.Logger) *TranslationHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TranslationHandler")
	}
	return &TranslationHandler{
		tasks:      tasks,
		unit:       unit,
		translator: translator,
		logger:     logger.With(slog.String("component", "translation_handler")),
	}
}

// Create handles POST /api/translate.
func (h *TranslationHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTranslationBody)

	var req TranslationRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if msg := h.validate(&req); msg != "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, msg)
		return
	}

	id, err := h.tasks.Create(task.KindTranslation, h.input(req), h.unit)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	h.logger.Info("translation task created",
		"task_id", id,
		"target_language", req.TargetLanguage,
		"client_id", shared.GetClientID(r.Context()))
	shared.RespondWithJSON(w, r, http.StatusAccepted, CreateTaskResponse{
		TaskID:  id,
		Status:  task.StatusPending,
		Message: "Translation task created successfully",
	})
}

// validate fills defaults and returns a user-facing message for an invalid
// request, or an empty string.
func (h *TranslationHandler) validate(req *TranslationRequest) string {
	req.TargetLanguage = strings.ToLower(strings.TrimSpace(req.TargetLanguage))
	if req.TargetLanguage == "" {
		req.TargetLanguage = DefaultTargetLanguage
	}
	if req.TargetLanguage == LangJapanese {
		return "Target language cannot be Japanese (source is always Japanese)"
	}
	if strings.TrimSpace(req.LRCContent) == "" {
		return "LRC content cannot be empty"
	}
	if err := shared.ValidateRequest(req); err != nil {
		return SanitizeValidationError(err)
	}
	if !hasTimestamp(req.LRCContent) {
		return "Invalid LRC format: no timestamps found"
	}
	if req.Translator != "" && !strings.EqualFold(req.Translator, h.translator) {
		return fmt.Sprintf("Unsupported translator: %s", req.Translator)
	}
	return ""
}

// input builds the task payload of a validated request.
func (h *TranslationHandler) input(req TranslationRequest) task.Payload {
	return task.Payload{
		processing.InputLRCContent:     req.LRCContent,
		processing.InputTargetLanguage: req.TargetLanguage,
		processing.InputTranslator:     h.translator,
	}
}

func hasTimestamp(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "[") && strings.Contains(line, "]") {
			return true
		}
	}
	return false
}
