package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LOG_LEVEL", "LOG_FORMAT", "DB_DRIVER", "DB_URL", "STORAGE_BACKEND", "STORAGE_ROOT",
		"LLM_PROVIDER", "LLM_BASE_URL", "GEMINI_MODEL", "GEMINI_API_KEY_ANALYZE", "CHECK_INTERVAL",
		"BATCH_SIZE", "TARGET_CONFIDENCE", "RECIPIENT_EMAIL", "SMTP_SERVER", "SENDER_EMAIL",
		"MINIO_ENDPOINT", "MINIO_BUCKET", "MINIO_USE_SSL", "KEY_STATE_FILE", "KEYS_STORE",
	} {
		t.Setenv(k, "")
	}
	for i := 1; i <= MaxOrganizeKeys; i++ {
		t.Setenv(fmt.Sprintf("GEMINI_API_KEY_%d", i), "")
	}
}

func TestLoadConfigDefaultsWhenFileMissing(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Pipeline.CheckInterval != 20*time.Second {
		t.Errorf("check interval = %v", cfg.Pipeline.CheckInterval)
	}
	if cfg.Pipeline.BatchSize != 5 || cfg.Keys.DailyLimit != 15 || cfg.Confidence.Target != 95 {
		t.Errorf("unexpected defaults: %+v", cfg.Pipeline)
	}
	if cfg.OCR.DPI != 200 || cfg.OCR.MaxPages != 15 {
		t.Errorf("ocr defaults = %+v", cfg.OCR)
	}
}

func TestLoadConfigYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	content := `
log:
  level: debug
storage:
  backend: minio
  minio:
    endpoint: "localhost:9000"
    bucket: contracts
pipeline:
  check_interval: 45s
  batch_size: 2
confidence:
  target: 90
llm:
  organize_api_keys: ["yaml-key"]
`
	path := filepath.Join(t.TempDir(), "contracts.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BATCH_SIZE", "7")
	t.Setenv("GEMINI_API_KEY_1", "env-1")
	t.Setenv("GEMINI_API_KEY_3", " env-3 ")
	t.Setenv("RECIPIENT_EMAIL", "a@x.be, b@x.be")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if cfg.Storage.Backend != "minio" || cfg.Storage.Minio.Bucket != "contracts" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Pipeline.CheckInterval != 45*time.Second {
		t.Errorf("check interval = %v", cfg.Pipeline.CheckInterval)
	}
	if cfg.Pipeline.BatchSize != 7 {
		t.Errorf("env override lost: batch size = %d", cfg.Pipeline.BatchSize)
	}
	if cfg.Confidence.Target != 90 {
		t.Errorf("target = %v", cfg.Confidence.Target)
	}
	if got := cfg.LLM.OrganizeAPIKeys; len(got) != 2 || got[0] != "env-1" || got[1] != "env-3" {
		t.Errorf("organize keys = %v", got)
	}
	if got := cfg.Notify.To; len(got) != 2 || got[1] != "b@x.be" {
		t.Errorf("recipients = %v", got)
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("pipeline: [unclosed"), 0o644)
	_, err := LoadConfig(path)
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != "CONFIG_ERROR" {
		t.Errorf("err = %v, want CONFIG_ERROR", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing analyze key", func(c *Config) { c.LLM.AnalyzeAPIKey = "" }, true},
		{"bad backend", func(c *Config) { c.Storage.Backend = "dropbox" }, true},
		{"minio without bucket", func(c *Config) { c.Storage.Backend = "minio"; c.Storage.Minio.Endpoint = "h:9000" }, true},
		{"postgres without dsn", func(c *Config) { c.Database.DSN = "" }, true},
		{"sqlite without dsn", func(c *Config) { c.Database.Driver = "sqlite"; c.Database.DSN = "" }, false},
		{"zero batch", func(c *Config) { c.Pipeline.BatchSize = 0 }, true},
		{"bad provider", func(c *Config) { c.LLM.Provider = "claude" }, true},
		{"zero interval", func(c *Config) { c.Pipeline.CheckInterval = 0 }, true},
		{"negative cooldown", func(c *Config) { c.Pipeline.QuotaCooldown = -time.Minute }, true},
		{"target above 100", func(c *Config) { c.Confidence.Target = 101 }, true},
		{"target at bound", func(c *Config) { c.Confidence.Target = 100 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.LLM.AnalyzeAPIKey = "k"
			cfg.Database.DSN = "postgres://localhost/contracts"
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Validate error should wrap ErrInvalidInput: %v", err)
			}
		})
	}
}
