package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"trafficlens/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Dwell times are zeroed so pipeline runs complete immediately.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Gemini.APIKey = "test-key"
	cfgVal.Pipeline.ExtractionDwellMS = 0
	cfgVal.Pipeline.StageDwellMS = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithAPIKey sets the Gemini API key on the test config. An empty key
// simulates an unconfigured credential.
func WithAPIKey(key string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Gemini.APIKey = key
	}
}

// WithGeminiBaseURL points the adapter at a test server.
func WithGeminiBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Gemini.BaseURL = url
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// WithFakeDecoder installs ffprobe and ffmpeg scripts that report a ten second
// 640x360 video and emit a tiny JPEG for every capture, and points the sampler
// at them.
func WithFakeDecoder() ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "decoder")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir decoder dir: %v", err)
		}
		probe := "#!/bin/sh\n" +
			`printf '%s' '{"streams":[{"index":0,"codec_type":"video","width":640,"height":360}],"format":{"duration":"10.000000"}}'` + "\n"
		capture := "#!/bin/sh\nprintf '\\377\\330\\001\\377\\331'\n"
		scripts := map[string]string{"ffprobe": probe, "ffmpeg": capture}
		for name, body := range scripts {
			if err := os.WriteFile(filepath.Join(binDir, name), []byte(body), 0o755); err != nil {
				b.t.Fatalf("write %s script: %v", name, err)
			}
		}
		b.cfg.Sampler.Backend = "ffmpeg"
		b.cfg.Sampler.FFprobeBinary = filepath.Join(binDir, "ffprobe")
		b.cfg.Sampler.FFmpegBinary = filepath.Join(binDir, "ffmpeg")
	}
}

// WriteConfigFile serializes cfg as TOML next to its data directory and
// returns the path.
func WriteConfigFile(t testing.TB, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
