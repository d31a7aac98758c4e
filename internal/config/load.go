package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "VOICETRANSL"

// setDefaults registers a default for every key. Viper only maps environment
// variables onto keys it already knows about, so this list doubles as the
// registry of recognised settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout_seconds", 10)

	v.SetDefault("task.max_concurrent_tasks", 5)
	v.SetDefault("task.cleanup_interval_seconds", 300)
	v.SetDefault("task.retention_hours", 24)
	v.SetDefault("task.timeout_seconds", 3600)
	v.SetDefault("task.shutdown_grace_seconds", 10)

	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window_seconds", 3600)
	v.SetDefault("rate_limit.task_requests", 10)
	v.SetDefault("rate_limit.task_window_seconds", 3600)
	v.SetDefault("rate_limit.task_burst", 3)
	v.SetDefault("rate_limit.sweep_interval_seconds", 300)
	v.SetDefault("rate_limit.max_keys", 10000)

	v.SetDefault("resource.max_memory_mb", 1024)
	v.SetDefault("resource.max_cpu_percent", 90.0)
	v.SetDefault("resource.check_interval_seconds", 30)

	v.SetDefault("transcription.base_url", "")
	v.SetDefault("transcription.api_key", "")
	v.SetDefault("transcription.model", "whisper-1")
	v.SetDefault("transcription.timeout_seconds", 1800)
	v.SetDefault("transcription.temp_dir", "temp")
	v.SetDefault("transcription.max_upload_mb", 1024)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.batch_size", 20)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)
	v.SetDefault("llm.ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("llm.ollama_model", "")
}

// Load reads configuration from defaults, an optional config file and
// environment variables, in increasing order of precedence.
//
// configFile may be empty, in which case config.yaml is looked up in the
// working directory and ./config; a missing file is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
