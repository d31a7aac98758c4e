package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"        validate:"required"`
	Task          TaskConfig          `mapstructure:"task"          validate:"required"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"    validate:"required"`
	Resource      ResourceConfig      `mapstructure:"resource"      validate:"required"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	LLM           LLMConfig           `mapstructure:"llm"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port                   int    `mapstructure:"port"                     validate:"required,gt=0,lt=65536"`
	LogLevel               string `mapstructure:"log_level"                validate:"required,oneof=debug info warn error"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"gt=0"`
}

// TaskConfig controls the task manager.
type TaskConfig struct {
	MaxConcurrentTasks     int `mapstructure:"max_concurrent_tasks"     validate:"required,gt=0"`
	CleanupIntervalSeconds int `mapstructure:"cleanup_interval_seconds" validate:"required,gt=0"`
	RetentionHours         int `mapstructure:"retention_hours"          validate:"required,gt=0"`
	// TimeoutSeconds bounds a single work unit. Zero disables the deadline.
	TimeoutSeconds       int `mapstructure:"timeout_seconds"        validate:"gte=0"`
	ShutdownGraceSeconds int `mapstructure:"shutdown_grace_seconds" validate:"gt=0"`
}

// RateLimitConfig contains both limiter tiers.
type RateLimitConfig struct {
	Requests             int `mapstructure:"requests"               validate:"required,gt=0"`
	WindowSeconds        int `mapstructure:"window_seconds"         validate:"required,gt=0"`
	TaskRequests         int `mapstructure:"task_requests"          validate:"required,gt=0"`
	TaskWindowSeconds    int `mapstructure:"task_window_seconds"    validate:"required,gt=0"`
	TaskBurst            int `mapstructure:"task_burst"             validate:"required,gt=0,ltefield=TaskRequests"`
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds" validate:"required,gt=0"`
	MaxKeys              int `mapstructure:"max_keys"               validate:"gte=0"`
}

// ResourceConfig contains the system load ceilings checked on admission.
type ResourceConfig struct {
	MaxMemoryMB          int     `mapstructure:"max_memory_mb"          validate:"required,gt=0"`
	MaxCPUPercent        float64 `mapstructure:"max_cpu_percent"        validate:"required,gt=0,lte=100"`
	CheckIntervalSeconds int     `mapstructure:"check_interval_seconds" validate:"gte=0"`
}

// TranscriptionConfig points at the speech-to-text backend.
type TranscriptionConfig struct {
	BaseURL        string `mapstructure:"base_url"        validate:"omitempty,url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" validate:"gte=0"`
	TempDir        string `mapstructure:"temp_dir"`
	MaxUploadMB    int    `mapstructure:"max_upload_mb"   validate:"gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	// Provider selects the translation backend.
	Provider          string `mapstructure:"provider"            validate:"omitempty,oneof=gemini ollama"`
	GeminiAPIKey      string `mapstructure:"gemini_api_key"`
	ModelName         string `mapstructure:"model_name"`
	BatchSize         int    `mapstructure:"batch_size"          validate:"gt=0"`
	MaxRetries        int    `mapstructure:"max_retries"         validate:"gte=0,lte=10"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gt=0"`

	OllamaHost  string `mapstructure:"ollama_host"  validate:"omitempty,url"`
	OllamaModel string `mapstructure:"ollama_model"`
}

// Seconds converts a config value expressed in seconds.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
