package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Output.Suffix != "_compressed" {
		t.Errorf("Output.Suffix = %q, want _compressed", cfg.Output.Suffix)
	}
	if cfg.Batch.ContinueOnError {
		t.Error("Batch.ContinueOnError should default to false")
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.Type = "magic"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "invalid backend type") {
		t.Fatalf("Validate() error = %v, want invalid backend type", err)
	}
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "trace"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should reject log level trace")
	}
}

func TestValidateNormalizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.BaseURL = "https://api.example.com/"
	cfg.Backend.Quality = 0
	cfg.Backend.Timeout = 0
	cfg.ImageExtensions = []string{"JPG", ".Png"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Backend.BaseURL != "https://api.example.com" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Quality != 80 {
		t.Errorf("Quality = %d, want 80", cfg.Backend.Quality)
	}
	if cfg.Backend.Timeout != 60*time.Second {
		t.Errorf("Timeout = %v, want 60s", cfg.Backend.Timeout)
	}
	if len(cfg.ImageExtensions) != 2 || cfg.ImageExtensions[0] != ".jpg" || cfg.ImageExtensions[1] != ".png" {
		t.Errorf("ImageExtensions = %v", cfg.ImageExtensions)
	}
}

func TestValidateRequiresSuffix(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.Suffix = ""
	cfg.Output.Prefix = "min-"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should reject an empty suffix")
	}
}

func TestValidateLogFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Format = ""
	if err := cfg.Validate(); err != nil || cfg.Logging.Format != "text" {
		t.Errorf("empty format: err %v, format %q", err, cfg.Logging.Format)
	}
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject format xml")
	}
}

func TestLoadConfigFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
backend:
  type: tinify
  base_url: https://api.tinify.test/
  timeout: 5s
output:
  suffix: _small
batch:
  continue_on_error: true
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("IMAGE_SHRINK_BACKEND_API_KEY", "secret-key")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Backend.Type != BackendTinify {
		t.Errorf("Backend.Type = %q", cfg.Backend.Type)
	}
	if cfg.Backend.BaseURL != "https://api.tinify.test" {
		t.Errorf("Backend.BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout != 5*time.Second {
		t.Errorf("Backend.Timeout = %v", cfg.Backend.Timeout)
	}
	if cfg.Backend.APIKey != "secret-key" {
		t.Errorf("Backend.APIKey = %q, want value from env", cfg.Backend.APIKey)
	}
	if cfg.Output.Suffix != "_small" {
		t.Errorf("Output.Suffix = %q", cfg.Output.Suffix)
	}
	if !cfg.Batch.ContinueOnError {
		t.Error("Batch.ContinueOnError = false, want true")
	}
	if cfg.File != path {
		t.Errorf("File = %q, want %q", cfg.File, path)
	}
	// untouched keys keep their defaults
	if cfg.Backend.CompressPath != "/api/tasks/images/compressions" {
		t.Errorf("Backend.CompressPath = %q", cfg.Backend.CompressPath)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("LoadConfig() should fail for a missing explicit config file")
	}
}
