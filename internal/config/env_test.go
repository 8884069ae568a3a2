package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "UPLOAD_DIR", "RENDER_DPI", "PRICING_TABLE", "MAX_CONCURRENT_ANALYSES", "REDIS_URL", "PROGRESS_TTL", "AXIOM_DATASET", "LOG_FILE_LEVEL", "AXIOM_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()

	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q", cfg.Server.Port)
	}
	if cfg.Server.UploadDir != "uploads" {
		t.Errorf("UploadDir = %q", cfg.Server.UploadDir)
	}
	if cfg.Render.DPI != 72 {
		t.Errorf("DPI = %v, want 72", cfg.Render.DPI)
	}
	if cfg.Render.Pricing != "standard" {
		t.Errorf("Pricing = %q", cfg.Render.Pricing)
	}
	if cfg.Progress.RedisURL != "" {
		t.Errorf("RedisURL = %q, want empty", cfg.Progress.RedisURL)
	}
	if cfg.Progress.TTL != 10*time.Minute {
		t.Errorf("TTL = %v", cfg.Progress.TTL)
	}
	if cfg.Axiom.Dataset != "dev_inkcost" {
		t.Errorf("Dataset = %q", cfg.Axiom.Dataset)
	}
	if cfg.Logging.FileLevel != "" || cfg.Axiom.Level != "info" {
		t.Errorf("FileLevel = %q, Axiom.Level = %q", cfg.Logging.FileLevel, cfg.Axiom.Level)
	}
	if got := cfg.Server.MaxUploadBytes(); got != 64<<20 {
		t.Errorf("MaxUploadBytes = %d", got)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("RENDER_DPI", "150")
	t.Setenv("PRICING_TABLE", "Legacy")
	t.Setenv("MAX_CONCURRENT_ANALYSES", "0")
	t.Setenv("PROGRESS_TTL", "not-a-duration")
	t.Setenv("LOG_PRETTY", "yes")

	cfg := FromEnv()
	if cfg.Server.Port != "9000" {
		t.Errorf("Port = %q", cfg.Server.Port)
	}
	if cfg.Render.DPI != 150 {
		t.Errorf("DPI = %v", cfg.Render.DPI)
	}
	if cfg.Render.Pricing != "legacy" {
		t.Errorf("Pricing = %q", cfg.Render.Pricing)
	}
	if cfg.Server.MaxConcurrent != 1 {
		t.Errorf("MaxConcurrent = %d, want 1", cfg.Server.MaxConcurrent)
	}
	if cfg.Progress.TTL != 10*time.Minute {
		t.Errorf("TTL = %v, want default", cfg.Progress.TTL)
	}
	if !cfg.Logging.Pretty {
		t.Error("Pretty = false")
	}
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("UPLOAD_DIR", "from-env")
	os.Unsetenv("PORT")

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PORT=7070\nUPLOAD_DIR=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := Load(path)
	if cfg.Server.Port != "7070" {
		t.Errorf("Port = %q, want value from .env", cfg.Server.Port)
	}
	if cfg.Server.UploadDir != "from-env" {
		t.Errorf("UploadDir = %q, environment must win", cfg.Server.UploadDir)
	}
}

func TestParseHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"1", true}, {"TRUE", true}, {" on ", true}, {"0", false}, {"", false}, {"nope", false},
	}
	for _, tt := range tests {
		if got := parseBool(tt.in); got != tt.want {
			t.Errorf("parseBool(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := parseInt("x", 3); got != 3 {
		t.Errorf("parseInt fallback = %d", got)
	}
	if got := parseFloat("1.5", 0); got != 1.5 {
		t.Errorf("parseFloat = %v", got)
	}
}
