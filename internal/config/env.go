package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Env helpers
func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		_, err := fmt.Sscanf(v, "%d", &n)
		if err == nil {
			return n
		}
	}
	return def
}

func envList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		return splitCSV(v)
	}
	return def
}

// splitCSV splits a comma separated list, trimming blanks and dropping empties.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ApplyEnv overlays process environment variables onto cfg.
func ApplyEnv(cfg Config) Config {
	cfg.APIURL = envStr("API_URL", cfg.APIURL)
	cfg.ServerName = envStr("SERVER_NAME", cfg.ServerName)
	cfg.Slug = envStr("SLUG", cfg.Slug)
	cfg.ServerKey = envStr("SERVER_KEY", cfg.ServerKey)
	cfg.ServerKeyPlaceholder = envStr("SERVER_KEY_PLACEHOLDER", cfg.ServerKeyPlaceholder)

	cfg.OllamaBaseURL = envStr("OLLAMA_BASE_URL", cfg.OllamaBaseURL)
	cfg.OllamaBin = envStr("OLLAMA_BIN", cfg.OllamaBin)
	cfg.ModelTranscricao = envStr("OLLAMA_MODEL_TRANSCRICAO", cfg.ModelTranscricao)
	cfg.ModelVisao = envStr("OLLAMA_MODEL_VISAO", cfg.ModelVisao)
	cfg.ModelConversacao = envStr("OLLAMA_MODEL_CONVERSACAO", cfg.ModelConversacao)
	cfg.ModelEmbeddings = envStr("OLLAMA_MODEL_EMBEDDINGS", cfg.ModelEmbeddings)
	cfg.ModelResumo = envStr("OLLAMA_MODEL_RESUMO", cfg.ModelResumo)
	cfg.RequiredModels = envList("REQUIRED_MODELS", cfg.RequiredModels)

	cfg.MaxAudioSizeMB = envInt("MAX_AUDIO_SIZE_MB", cfg.MaxAudioSizeMB)
	cfg.MaxImageSizeMB = envInt("MAX_IMAGE_SIZE_MB", cfg.MaxImageSizeMB)
	cfg.MaxDocumentSizeMB = envInt("MAX_DOCUMENT_SIZE_MB", cfg.MaxDocumentSizeMB)
	cfg.MaxTextLength = envInt("MAX_TEXT_LENGTH", cfg.MaxTextLength)

	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = envStr("LOG_FILE", cfg.LogFile)
	cfg.LogFormat = envStr("LOG_FORMAT", cfg.LogFormat)

	cfg.TorchDevice = envStr("TORCH_DEVICE", cfg.TorchDevice)
	cfg.WhisperBin = envStr("WHISPER_BIN", cfg.WhisperBin)
	cfg.WhisperModel = envStr("WHISPER_MODEL", cfg.WhisperModel)

	cfg.PollingIntervalSeconds = envInt("POLLING_INTERVAL_SECONDS", cfg.PollingIntervalSeconds)
	cfg.MaxRetries = envInt("MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryDelaySeconds = envInt("RETRY_DELAY_SECONDS", cfg.RetryDelaySeconds)

	cfg.ReadyMaxAttempts = envInt("READY_MAX_ATTEMPTS", cfg.ReadyMaxAttempts)
	cfg.ReadyIntervalSeconds = envInt("READY_INTERVAL_SECONDS", cfg.ReadyIntervalSeconds)
	cfg.ServerCmd = envStr("SERVER_CMD", cfg.ServerCmd)
	cfg.EnvFile = envStr("ENV_FILE", cfg.EnvFile)

	cfg.StatusAddr = envStr("STATUS_ADDR", cfg.StatusAddr)
	cfg.JournalPath = envStr("JOURNAL_PATH", cfg.JournalPath)
	cfg.CORSOrigins = envList("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.TasksMaxLimit = envInt("TASKS_MAX_LIMIT", cfg.TasksMaxLimit)
	return cfg
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// SetEnvFileKey writes key=value into the env file at path, keeping the other entries.
func SetEnvFileKey(path, key, value string) error {
	if path == "" {
		return fmt.Errorf("empty env file path")
	}
	values := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		existing, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("read env file %s: %w", path, err)
		}
		values = existing
	}
	values[key] = value
	if err := godotenv.Write(values, path); err != nil {
		return fmt.Errorf("write env file %s: %w", path, err)
	}
	return nil
}
