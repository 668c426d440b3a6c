package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NonexistentFile(t *testing.T) {
	if _, err := Load("/definitely/not/a/real/file-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.yaml", "api_url: x\n: broken\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected YAML unmarshal error")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.json", `{ "api_url": "x", "slug": }`)
	if _, err := Load(p); err == nil {
		t.Fatalf("expected JSON unmarshal error")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.toml", "api_url=x\nslug\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected TOML unmarshal error")
	}
}

func TestResolve_Precedence(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "slug: from-file\nserver_name: file-name\nmax_retries: 5\n")
	envFile := writeTempFile(t, d, ".env", "WORKFLOWD_TEST_MAX_TEXT=1\nMAX_TEXT_LENGTH=77\n")
	t.Setenv("ENV_FILE", envFile)
	t.Setenv("SLUG", "from-env")
	t.Cleanup(func() {
		os.Unsetenv("MAX_TEXT_LENGTH")
		os.Unsetenv("WORKFLOWD_TEST_MAX_TEXT")
	})
	cfg, err := Resolve(p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.MaxTextLength != 77 {
		t.Fatalf("env file value not applied: %d", cfg.MaxTextLength)
	}
	if cfg.Slug != "from-env" {
		t.Fatalf("env should win over file: %q", cfg.Slug)
	}
	if cfg.MaxRetries != 5 {
		t.Fatalf("file value lost: %d", cfg.MaxRetries)
	}
	if cfg.ReadyMaxAttempts != 30 || cfg.ReadyIntervalSeconds != 2 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Fatalf("api url default: %q", cfg.APIURL)
	}
}

func TestResolve_ExplicitZeroKept(t *testing.T) {
	d := t.TempDir()
	t.Setenv("ENV_FILE", filepath.Join(d, "missing.env"))
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SLUG", "")

	t.Setenv("MAX_RETRIES", "0")
	cfg, err := Resolve("")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.MaxRetries != 0 {
		t.Fatalf("MAX_RETRIES=0 resolved to %d", cfg.MaxRetries)
	}

	t.Setenv("MAX_RETRIES", "")
	p := writeTempFile(t, d, "cfg.toml", "max_retries = 0\nslug = \"from-file\"\n")
	cfg, err = Resolve(p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.MaxRetries != 0 || cfg.Slug != "from-file" {
		t.Fatalf("file zero not kept: retries=%d slug=%q", cfg.MaxRetries, cfg.Slug)
	}
	if cfg.RetryDelaySeconds != 10 || cfg.TasksMaxLimit != 500 {
		t.Fatalf("defaults lost: %+v", cfg)
	}

	t.Setenv("POLLING_INTERVAL_SECONDS", "0")
	if _, err := Resolve(""); err == nil {
		t.Fatalf("explicit zero polling interval should fail validation")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := cfg
	bad.APIURL = "not a url"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected url error")
	}
	bad = cfg
	bad.ReadyMaxAttempts = -1
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected attempts error")
	}
}

func TestHasServerKey(t *testing.T) {
	cfg := Default()
	if cfg.HasServerKey() {
		t.Fatalf("empty key reported usable")
	}
	cfg.ServerKey = DefaultServerKeyPlaceholder
	if cfg.HasServerKey() {
		t.Fatalf("placeholder reported usable")
	}
	cfg.ServerKey = "real"
	if !cfg.HasServerKey() {
		t.Fatalf("real key reported unusable")
	}
}
