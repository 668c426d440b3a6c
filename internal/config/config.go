package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Defaults mirror the values the container ships with.
const (
	DefaultAPIURL               = "http://localhost:3000"
	DefaultServerName           = "Servidor Local HubIA"
	DefaultSlug                 = "mvml"
	DefaultServerKeyPlaceholder = "your_server_key_here"
	DefaultOllamaBaseURL        = "http://localhost:11434"
	DefaultOllamaBin            = "ollama"
	DefaultModelTranscricao     = "gemma2:9b"
	DefaultModelVisao           = "llava:7b"
	DefaultModelConversacao     = "gemma2:9b"
	DefaultModelEmbeddings      = "nomic-embed-text"
	DefaultModelResumo          = "gemma2:9b"
	DefaultStatusAddr           = ":8080"
	DefaultEnvFile              = ".env"
)

// Config holds runtime parameters for both the startup sequence and the worker.
// Resolve starts from Default() and overlays only the keys a source sets, so
// an explicit zero is kept.
type Config struct {
	// Remote workflow API
	APIURL               string `json:"api_url" yaml:"api_url" toml:"api_url"`
	ServerName           string `json:"server_name" yaml:"server_name" toml:"server_name"`
	Slug                 string `json:"slug" yaml:"slug" toml:"slug"`
	ServerKey            string `json:"server_key" yaml:"server_key" toml:"server_key"`
	ServerKeyPlaceholder string `json:"server_key_placeholder" yaml:"server_key_placeholder" toml:"server_key_placeholder"`

	// Ollama runtime
	OllamaBaseURL    string   `json:"ollama_base_url" yaml:"ollama_base_url" toml:"ollama_base_url"`
	OllamaBin        string   `json:"ollama_bin" yaml:"ollama_bin" toml:"ollama_bin"`
	ModelTranscricao string   `json:"ollama_model_transcricao" yaml:"ollama_model_transcricao" toml:"ollama_model_transcricao"`
	ModelVisao       string   `json:"ollama_model_visao" yaml:"ollama_model_visao" toml:"ollama_model_visao"`
	ModelConversacao string   `json:"ollama_model_conversacao" yaml:"ollama_model_conversacao" toml:"ollama_model_conversacao"`
	ModelEmbeddings  string   `json:"ollama_model_embeddings" yaml:"ollama_model_embeddings" toml:"ollama_model_embeddings"`
	ModelResumo      string   `json:"ollama_model_resumo" yaml:"ollama_model_resumo" toml:"ollama_model_resumo"`
	RequiredModels   []string `json:"required_models" yaml:"required_models" toml:"required_models"`

	// Processing limits
	MaxAudioSizeMB    int `json:"max_audio_size_mb" yaml:"max_audio_size_mb" toml:"max_audio_size_mb"`
	MaxImageSizeMB    int `json:"max_image_size_mb" yaml:"max_image_size_mb" toml:"max_image_size_mb"`
	MaxDocumentSizeMB int `json:"max_document_size_mb" yaml:"max_document_size_mb" toml:"max_document_size_mb"`
	MaxTextLength     int `json:"max_text_length" yaml:"max_text_length" toml:"max_text_length"`

	// Logging
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFile   string `json:"log_file" yaml:"log_file" toml:"log_file"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	// Transcription
	TorchDevice  string `json:"torch_device" yaml:"torch_device" toml:"torch_device"`
	WhisperBin   string `json:"whisper_bin" yaml:"whisper_bin" toml:"whisper_bin"`
	WhisperModel string `json:"whisper_model" yaml:"whisper_model" toml:"whisper_model"`

	// Polling
	PollingIntervalSeconds int `json:"polling_interval_seconds" yaml:"polling_interval_seconds" toml:"polling_interval_seconds"`
	MaxRetries             int `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	RetryDelaySeconds      int `json:"retry_delay_seconds" yaml:"retry_delay_seconds" toml:"retry_delay_seconds"`

	// Startup sequence
	ReadyMaxAttempts     int    `json:"ready_max_attempts" yaml:"ready_max_attempts" toml:"ready_max_attempts"`
	ReadyIntervalSeconds int    `json:"ready_interval_seconds" yaml:"ready_interval_seconds" toml:"ready_interval_seconds"`
	ServerCmd            string `json:"server_cmd" yaml:"server_cmd" toml:"server_cmd"`
	EnvFile              string `json:"env_file" yaml:"env_file" toml:"env_file"`

	// Worker status server
	StatusAddr  string   `json:"status_addr" yaml:"status_addr" toml:"status_addr"`
	JournalPath string   `json:"journal_path" yaml:"journal_path" toml:"journal_path"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	// Largest page GET /tasks serves.
	TasksMaxLimit int `json:"tasks_max_limit" yaml:"tasks_max_limit" toml:"tasks_max_limit"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		APIURL:                 DefaultAPIURL,
		ServerName:             DefaultServerName,
		Slug:                   DefaultSlug,
		ServerKeyPlaceholder:   DefaultServerKeyPlaceholder,
		OllamaBaseURL:          DefaultOllamaBaseURL,
		OllamaBin:              DefaultOllamaBin,
		ModelTranscricao:       DefaultModelTranscricao,
		ModelVisao:             DefaultModelVisao,
		ModelConversacao:       DefaultModelConversacao,
		ModelEmbeddings:        DefaultModelEmbeddings,
		ModelResumo:            DefaultModelResumo,
		MaxAudioSizeMB:         50,
		MaxImageSizeMB:         20,
		MaxDocumentSizeMB:      10,
		MaxTextLength:          10000,
		LogLevel:               "info",
		LogFormat:              "console",
		TorchDevice:            "cuda",
		WhisperBin:             "whisper",
		WhisperModel:           "base",
		PollingIntervalSeconds: 5,
		MaxRetries:             3,
		RetryDelaySeconds:      10,
		ReadyMaxAttempts:       30,
		ReadyIntervalSeconds:   2,
		EnvFile:                DefaultEnvFile,
		StatusAddr:             DefaultStatusAddr,
		TasksMaxLimit:          500,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	for name, raw := range map[string]string{"api_url": c.APIURL, "ollama_base_url": c.OllamaBaseURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}
	for name, v := range map[string]int{
		"max_audio_size_mb":        c.MaxAudioSizeMB,
		"max_image_size_mb":        c.MaxImageSizeMB,
		"max_document_size_mb":     c.MaxDocumentSizeMB,
		"max_text_length":          c.MaxTextLength,
		"polling_interval_seconds": c.PollingIntervalSeconds,
		"retry_delay_seconds":      c.RetryDelaySeconds,
		"ready_max_attempts":       c.ReadyMaxAttempts,
		"ready_interval_seconds":   c.ReadyIntervalSeconds,
		"tasks_max_limit":          c.TasksMaxLimit,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	return nil
}

func (c Config) MaxAudioSizeBytes() int64    { return int64(c.MaxAudioSizeMB) * 1024 * 1024 }
func (c Config) MaxImageSizeBytes() int64    { return int64(c.MaxImageSizeMB) * 1024 * 1024 }
func (c Config) MaxDocumentSizeBytes() int64 { return int64(c.MaxDocumentSizeMB) * 1024 * 1024 }

func (c Config) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalSeconds) * time.Second
}
func (c Config) RetryDelay() time.Duration { return time.Duration(c.RetryDelaySeconds) * time.Second }
func (c Config) ReadyInterval() time.Duration {
	return time.Duration(c.ReadyIntervalSeconds) * time.Second
}

// HasServerKey reports whether a usable (non-placeholder) server key is configured.
func (c Config) HasServerKey() bool {
	k := strings.TrimSpace(c.ServerKey)
	return k != "" && k != c.ServerKeyPlaceholder
}
