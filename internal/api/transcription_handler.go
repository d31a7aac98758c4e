package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/voicetransl/voicetransl-api/internal/api/shared"
	"github.com/voicetransl/voicetransl-api/internal/processing"
	"github.com/voicetransl/voicetransl-api/internal/task"
)

// multipartMemory is the part of a multipart body kept in memory while
// parsing; the rest spills to disk.
const multipartMemory = 32 << 20

// TranscriptionHandler creates transcription tasks.
type TranscriptionHandler struct {
	tasks     TaskManager
	unit      task.WorkUnit
	tempDir   string
	maxUpload int64
	logger    *slog.Logger
}

// NewTranscriptionHandler creates a TranscriptionHandler storing uploads in
// tempDir. Uploads larger than maxUpload bytes are refused.
func NewTranscriptionHandler(
	tasks TaskManager,
	unit task.WorkUnit,
	tempDir string,
	maxUpload int64,
	logger *slog.Logger,
) *TranscriptionHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TranscriptionHandler")
	}
	return &TranscriptionHandler{
		tasks:     tasks,
		unit:      unit,
		tempDir:   tempDir,
		maxUpload: maxUpload,
		logger:    logger.With(slog.String("component", "transcription_handler")),
	}
}

// Create handles POST /api/transcribe. It accepts a JSON body with a URL or
// a multipart form with either a file or a url field.
func (h *TranscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		input task.Payload
		ok    bool
	)
	if mediaType == "multipart/form-data" {
		input, ok = h.formInput(w, r)
	} else {
		input, ok = h.jsonInput(w, r)
	}
	if !ok {
		return
	}

	id, err := h.tasks.Create(task.KindTranscription, input, h.unit)
	if err != nil {
		if path, _ := input[processing.InputFilePath].(string); path != "" {
			_ = os.Remove(path)
		}
		HandleAPIError(w, r, err, "")
		return
	}

	h.logger.Info("transcription task created", "task_id", id, "client_id", shared.GetClientID(r.Context()))
	shared.RespondWithJSON(w, r, http.StatusAccepted, CreateTaskResponse{
		TaskID:  id,
		Status:  task.StatusPending,
		Message: "Transcription task created successfully",
	})
}

func (h *TranscriptionHandler) jsonInput(w http.ResponseWriter, r *http.Request) (task.Payload, bool) {
	var req TranscriptionRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		if errors.Is(err, shared.ErrEmptyBody) {
			shared.RespondWithError(w, r, http.StatusBadRequest, noInputMessage)
			return nil, false
		}
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return nil, false
	}
	return h.urlInput(w, r, req)
}

const noInputMessage = "No input provided. Please provide either a file or URL."

func (h *TranscriptionHandler) formInput(w http.ResponseWriter, r *http.Request) (task.Payload, bool) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			shared.RespondWithError(w, r, http.StatusRequestEntityTooLarge, h.tooLargeMessage())
			return nil, false
		}
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid multipart form")
		return nil, false
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	format := r.FormValue(processing.InputOutputFormat)
	file, header, err := r.FormFile("file")
	if err != nil {
		if !errors.Is(err, http.ErrMissingFile) {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid file upload")
			return nil, false
		}
		url := r.FormValue(processing.InputURL)
		if url == "" {
			shared.RespondWithError(w, r, http.StatusBadRequest, noInputMessage)
			return nil, false
		}
		return h.urlInput(w, r, TranscriptionRequest{URL: url, OutputFormat: format})
	}
	defer file.Close()

	if format == "" {
		format = processing.OutputLRC
	}
	if !processing.ValidFormat(format) {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid output_format: invalid value")
		return nil, false
	}
	if h.maxUpload > 0 && header.Size > h.maxUpload {
		shared.RespondWithError(w, r, http.StatusRequestEntityTooLarge, h.tooLargeMessage())
		return nil, false
	}

	path, err := h.saveUpload(file, header)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to store uploaded file")
		return nil, false
	}

	return task.Payload{
		processing.InputFilePath:     path,
		processing.InputFilename:     header.Filename,
		processing.InputOutputFormat: format,
		"file_size":                  header.Size,
		"content_type":               header.Header.Get("Content-Type"),
	}, true
}

func (h *TranscriptionHandler) urlInput(w http.ResponseWriter, r *http.Request, req TranscriptionRequest) (task.Payload, bool) {
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return nil, false
	}
	format := req.OutputFormat
	if format == "" {
		format = processing.OutputLRC
	}
	return task.Payload{
		processing.InputURL:          req.URL,
		processing.InputOutputFormat: format,
	}, true
}

func (h *TranscriptionHandler) saveUpload(file multipart.File, header *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(h.tempDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".wav"
	}
	path := filepath.Join(h.tempDir, uuid.NewString()+ext)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to close upload: %w", err)
	}
	return path, nil
}

func (h *TranscriptionHandler) tooLargeMessage() string {
	return fmt.Sprintf("File size exceeds %d MB limit", h.maxUpload>>20)
}
