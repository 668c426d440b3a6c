package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	err := decodeFile(path, &cfg)
	return cfg, err
}

// decodeFile overlays the keys present in the file at path onto cfg.
func decodeFile(path string, cfg *Config) error {
	if path == "" {
		return fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	case ".json":
		return json.Unmarshal(b, cfg)
	case ".toml":
		return toml.Unmarshal(b, cfg)
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
}

// Resolve builds the effective configuration: defaults, then the optional
// config file, then the env file, then the process environment.
func Resolve(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = cfg.EnvFile
	}
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := LoadEnvFile(envFile); err != nil {
		return Config{}, err
	}
	cfg = ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
