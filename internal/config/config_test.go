package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"trafficlens/internal/config"
)

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unset %s: %v", key, err)
	}
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	unsetEnv(t, config.APIKeyVariable)
	unsetEnv(t, config.EnvFileVariable)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "trafficlens")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Gemini.APIKey != "" {
		t.Fatalf("expected empty api key, got %q", cfg.Gemini.APIKey)
	}
	if cfg.Sampler.FrameCount != 5 {
		t.Fatalf("expected 5 frames by default, got %d", cfg.Sampler.FrameCount)
	}
	if cfg.Sampler.JPEGQuality != 0.7 {
		t.Fatalf("expected jpeg quality 0.7, got %v", cfg.Sampler.JPEGQuality)
	}
	if got := cfg.MaxPayloadBytes(); got != 15*1024*1024 {
		t.Fatalf("unexpected payload ceiling: %d", got)
	}
	if got := cfg.MaxUploadBytes(); got != 20*1024*1024 {
		t.Fatalf("unexpected upload ceiling: %d", got)
	}
	if cfg.ExtractionDwell().Milliseconds() != 800 || cfg.StageDwell().Milliseconds() != 600 {
		t.Fatalf("unexpected dwell values: %s %s", cfg.ExtractionDwell(), cfg.StageDwell())
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "runs.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
}

func TestLoadUsesEnvAPIKey(t *testing.T) {
	unsetEnv(t, config.EnvFileVariable)
	t.Setenv(config.APIKeyVariable, "  env-key  ")
	t.Setenv("HOME", t.TempDir())

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Fatalf("expected env key, got %q", cfg.Gemini.APIKey)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	unsetEnv(t, config.APIKeyVariable)
	t.Setenv("HOME", t.TempDir())
	envPath := filepath.Join(t.TempDir(), "creds.env")
	if err := os.WriteFile(envPath, []byte("GEMINI_API_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv(config.EnvFileVariable, envPath)

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Gemini.APIKey != "from-dotenv" {
		t.Fatalf("expected key from env file, got %q", cfg.Gemini.APIKey)
	}
}

func TestLoadMissingExplicitEnvFileFails(t *testing.T) {
	unsetEnv(t, config.APIKeyVariable)
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.EnvFileVariable, filepath.Join(t.TempDir(), "missing.env"))

	if _, _, _, err := config.Load(""); err == nil {
		t.Fatal("expected error for missing explicit env file")
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	unsetEnv(t, config.EnvFileVariable)
	t.Setenv(config.APIKeyVariable, "env-key")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	payload := map[string]any{
		"paths": map[string]any{
			"data_dir": filepath.Join(dir, "data"),
		},
		"gemini": map[string]any{
			"api_key":        "file-key",
			"max_payload_mb": 2.5,
		},
		"sampler": map[string]any{
			"frame_count":  8,
			"jpeg_quality": 0.9,
			"backend":      " FFMPEG ",
		},
		"logging": map[string]any{
			"format": "JSON",
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config to resolve to %q, got %q (exists=%v)", path, resolved, exists)
	}
	if cfg.Gemini.APIKey != "file-key" {
		t.Fatalf("expected file key to win over env, got %q", cfg.Gemini.APIKey)
	}
	if cfg.Sampler.FrameCount != 8 || cfg.Sampler.JPEGQuality != 0.9 {
		t.Fatalf("unexpected sampler config: %+v", cfg.Sampler)
	}
	if cfg.Sampler.Backend != "ffmpeg" {
		t.Fatalf("expected normalized backend, got %q", cfg.Sampler.Backend)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized log format, got %q", cfg.Logging.Format)
	}
	if got := cfg.MaxPayloadBytes(); got != int64(2.5*1024*1024) {
		t.Fatalf("unexpected payload ceiling: %d", got)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"frame count", func(c *config.Config) { c.Sampler.FrameCount = 0 }, "sampler.frame_count"},
		{"quality", func(c *config.Config) { c.Sampler.JPEGQuality = 1.5 }, "sampler.jpeg_quality"},
		{"backend", func(c *config.Config) { c.Sampler.Backend = "vlc" }, "sampler.backend"},
		{"payload", func(c *config.Config) { c.Gemini.MaxPayloadMB = 0 }, "gemini.max_payload_mb"},
		{"base url", func(c *config.Config) { c.Gemini.BaseURL = "not a url" }, "gemini.base_url"},
		{"dwell", func(c *config.Config) { c.Pipeline.StageDwellMS = -1 }, "pipeline.stage_dwell_ms"},
		{"upload", func(c *config.Config) { c.Upload.MaxUploadMB = 0 }, "upload.max_upload_mb"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateAllowsMissingCredential(t *testing.T) {
	cfg := config.Default()
	cfg.Gemini.APIKey = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("missing credential must not fail validation: %v", err)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	unsetEnv(t, config.EnvFileVariable)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Sampler.FrameCount != 5 {
		t.Fatalf("unexpected sample frame count: %d", cfg.Sampler.FrameCount)
	}
}
