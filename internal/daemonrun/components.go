package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"trafficlens/internal/analysis"
	"trafficlens/internal/api"
	"trafficlens/internal/config"
	"trafficlens/internal/deps"
	"trafficlens/internal/logging"
	"trafficlens/internal/metrics"
	"trafficlens/internal/notifications"
	"trafficlens/internal/pipeline"
	"trafficlens/internal/preflight"
	"trafficlens/internal/runstore"
	"trafficlens/internal/sampler"
	"trafficlens/internal/stage"
)

// Components is the assembled runtime graph shared by the server and the
// one-shot CLI commands.
type Components struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    *runstore.Store
	Metrics  *metrics.Metrics
	Adapter  *analysis.Adapter
	Pipeline *pipeline.Orchestrator
	Service  *api.RunService
	Notifier notifications.Service

	apiService *api.RunService
	uploadDir  string
}

// BuildOption customizes Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	httpClient *http.Client
	dwell      *pipeline.Dwell
}

// WithHTTPClient overrides the client used to reach Gemini.
func WithHTTPClient(client *http.Client) BuildOption {
	return func(o *buildOptions) { o.httpClient = client }
}

// WithDwell overrides the configured stage dwell times.
func WithDwell(d pipeline.Dwell) BuildOption {
	return func(o *buildOptions) { o.dwell = &d }
}

// Build opens the run store and wires the adapter, orchestrator, and API
// service from cfg. Callers must Close the result.
func Build(cfg *config.Config, logger *slog.Logger, opts ...BuildOption) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var bo buildOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&bo)
		}
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	uploadDir := filepath.Join(cfg.Paths.DataDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	store, err := runstore.Open(cfg)
	if err != nil {
		return nil, err
	}

	m := metrics.New()

	adapterOpts := []analysis.Option{analysis.WithLogger(logging.NewComponentLogger(logger, "analysis"))}
	if bo.httpClient != nil {
		adapterOpts = append(adapterOpts, analysis.WithHTTPClient(bo.httpClient))
	}
	adapter := analysis.NewAdapter(analysis.Config{
		APIKey:          cfg.Gemini.APIKey,
		BaseURL:         cfg.Gemini.BaseURL,
		Model:           cfg.Gemini.Model,
		TimeoutSeconds:  cfg.Gemini.TimeoutSeconds,
		MaxPayloadBytes: int(cfg.MaxPayloadBytes()),
	}, adapterOpts...)

	dwell := pipeline.Dwell{Extraction: cfg.ExtractionDwell(), Stage: cfg.StageDwell()}
	if bo.dwell != nil {
		dwell = *bo.dwell
	}
	pipelineLogger := logging.NewComponentLogger(logger, "pipeline")
	notifier := notifications.NewService(cfg)
	observers := []pipeline.Observer{
		store.Observer(logger),
		m.Observer(),
		pipeline.LogObserver(pipelineLogger),
	}
	if notifications.Enabled(notifier) {
		observers = append(observers, notifications.Observer(notifier, cfg.Notifications.NotifyOnSuccess,
			logging.NewComponentLogger(logger, "notifications")))
	}
	frameSampler := pipeline.FixedCount(cfg.Sampler.FrameCount,
		sampler.WithQuality(cfg.Sampler.JPEGQuality),
		sampler.WithLogger(logging.NewComponentLogger(logger, "sampler")),
	)
	orchestrator := pipeline.New(frameSampler, adapter,
		pipeline.WithDwell(dwell),
		pipeline.WithLogger(pipelineLogger),
		pipeline.WithObserver(pipeline.Observers(observers...)),
	)

	c := &Components{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Metrics:   m,
		Adapter:   adapter,
		Pipeline:  orchestrator,
		Notifier:  notifier,
		uploadDir: uploadDir,
	}
	c.Service = api.NewRunService(orchestrator, store, c.OpenVideo, c.Health, logger)
	// HTTP clients get the result as soon as the model answers; stage pacing
	// only serves the interactive CLI.
	c.apiService = api.NewRunService(orchestrator.WithoutDwell(), store, c.OpenVideo, c.Health, logger)
	return c, nil
}

// OpenVideo opens path with the configured sampler backend.
func (c *Components) OpenVideo(path string) (sampler.Source, error) {
	return sampler.Open(c.Config.Sampler.Backend, path, sampler.FFmpegOptions{
		FFmpegBinary:  c.Config.FFmpegBinary(),
		FFprobeBinary: c.Config.FFprobeBinary(),
	})
}

// Health reports local readiness: directories, decoder binaries, and the
// model credential. It never contacts the remote model.
func (c *Components) Health(ctx context.Context) []stage.Health {
	checks := preflight.Health(preflight.RunAll(ctx, c.Config, nil))
	checks = append(checks, deps.Health(preflight.CheckSystemDeps(c.Config))...)
	checks = append(checks, c.Adapter.HealthCheck(ctx))
	return checks
}

// Handler builds the HTTP router for the API server.
func (c *Components) Handler() http.Handler {
	return api.NewRouter(api.Options{
		Service:         c.apiService,
		Metrics:         c.Metrics,
		Logger:          logging.NewComponentLogger(c.Logger, "api"),
		MaxRequestBytes: c.Config.MaxPayloadBytes() * 2,
		MaxUploadBytes:  c.Config.MaxUploadBytes(),
		UploadDir:       c.uploadDir,
	})
}

// Close releases the run store.
func (c *Components) Close() error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.Close()
}
