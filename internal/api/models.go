package api

import (
	"github.com/voicetransl/voicetransl-api/internal/processing"
	"github.com/voicetransl/voicetransl-api/internal/ratelimit"
	"github.com/voicetransl/voicetransl-api/internal/resource"
	"github.com/voicetransl/voicetransl-api/internal/task"
)

// Supported language codes
const (
	LangJapanese           = processing.SourceLanguage
	LangEnglish            = "en"
	LangChineseSimplified  = "zh-cn"
	LangChineseTraditional = "zh-tw"
	LangKorean             = "ko"
	LangRussian            = "ru"
	LangFrench             = "fr"
)

// DefaultTargetLanguage is used when a translation request names none.
const DefaultTargetLanguage = LangChineseSimplified

// TranscriptionRequest is the JSON body of POST /api/transcribe.
type TranscriptionRequest struct {
	URL          string `json:"url"           validate:"required,url"`
	OutputFormat string `json:"output_format" validate:"omitempty,oneof=lrc srt json"`
}

// TranslationRequest is the JSON body of POST /api/translate.
type TranslationRequest struct {
	LRCContent     string `json:"lrc_content"     validate:"required"`
	TargetLanguage string `json:"target_language" validate:"omitempty,oneof=en zh-cn zh-tw ko ru fr"`
	Translator     string `json:"translator"      validate:"omitempty,max=64"`
}

// CreateTaskResponse acknowledges a newly created task.
type CreateTaskResponse struct {
	TaskID  string      `json:"task_id"`
	Status  task.Status `json:"status"`
	Message string      `json:"message"`
}

// MessageResponse carries a single human-readable message.
type MessageResponse struct {
	Message string `json:"message"`
}

// TaskListResponse is the body of GET /api/tasks.
type TaskListResponse struct {
	Tasks  []task.Snapshot `json:"tasks"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	task.Stats
	Resources     resource.Snapshot       `json:"resources"`
	RateLimitKeys map[ratelimit.Class]int `json:"rate_limit_keys"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
