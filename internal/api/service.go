package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"trafficlens/internal/logging"
	"trafficlens/internal/pipeline"
	"trafficlens/internal/result"
	"trafficlens/internal/runstore"
	"trafficlens/internal/sampler"
	"trafficlens/internal/services"
	"trafficlens/internal/stage"
)

// Pipeline runs submissions. *pipeline.Orchestrator satisfies it.
type Pipeline interface {
	Run(ctx context.Context, video sampler.VideoSource, sourceLabel string) (*pipeline.Run, result.AnalysisResult, error)
	AnalyzeFrames(ctx context.Context, frames []sampler.Frame, sourceLabel string) (*pipeline.Run, result.AnalysisResult, error)
}

// RunReader abstracts run history queries.
type RunReader interface {
	List(ctx context.Context, limit int) ([]pipeline.Snapshot, error)
	Get(ctx context.Context, id string) (*pipeline.Snapshot, error)
	Stats(ctx context.Context) (runstore.Stats, error)
}

// VideoOpener opens a stored video for sampling.
type VideoOpener func(path string) (sampler.Source, error)

// HealthFunc reports dependency readiness.
type HealthFunc func(ctx context.Context) []stage.Health

// RunService turns API submissions into pipeline runs.
type RunService struct {
	pipeline Pipeline
	runs     RunReader
	open     VideoOpener
	health   HealthFunc
	logger   *slog.Logger
}

// NewRunService constructs a RunService. runs, open and health may be nil;
// the corresponding endpoints then report the feature as unavailable.
func NewRunService(p Pipeline, runs RunReader, open VideoOpener, health HealthFunc, logger *slog.Logger) *RunService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &RunService{pipeline: p, runs: runs, open: open, health: health, logger: logger}
}

// AnalyzeFrames decodes base64 frames and runs the frames-only pipeline.
func (s *RunService) AnalyzeFrames(ctx context.Context, encoded []string, label string) (*pipeline.Run, result.AnalysisResult, error) {
	frames, err := DecodeFrames(encoded)
	if err != nil {
		return nil, result.AnalysisResult{}, err
	}
	return s.pipeline.AnalyzeFrames(ctx, frames, label)
}

// AnalyzeVideo samples the video at path and runs the full pipeline. The
// source is closed on every exit path.
func (s *RunService) AnalyzeVideo(ctx context.Context, path, label string) (*pipeline.Run, result.AnalysisResult, error) {
	if s.open == nil {
		return nil, result.AnalysisResult{}, services.Wrap(services.ErrConfiguration, "upload", "open video", "video sampling is not configured", nil)
	}
	src, err := s.open(path)
	if err != nil {
		return nil, result.AnalysisResult{}, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			s.logger.Warn("video source close failed", logging.Error(cerr))
		}
	}()
	return s.pipeline.Run(ctx, src, label)
}

// List returns recent runs and summary counts.
func (s *RunService) List(ctx context.Context, limit int) (RunList, error) {
	if s.runs == nil {
		return RunList{Runs: []Run{}}, nil
	}
	snaps, err := s.runs.List(ctx, limit)
	if err != nil {
		return RunList{}, err
	}
	stats, err := s.runs.Stats(ctx)
	if err != nil {
		return RunList{}, err
	}
	return RunList{Runs: FromSnapshots(snaps), Stats: stats}, nil
}

// Describe fetches a single run.
func (s *RunService) Describe(ctx context.Context, id string) (*Run, error) {
	if s.runs == nil {
		return nil, fmt.Errorf("%w: run history disabled", services.ErrNotFound)
	}
	snap, err := s.runs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromSnapshot(*snap)
	return &dto, nil
}

// Health collects dependency readiness.
func (s *RunService) Health(ctx context.Context) HealthResponse {
	var checks []stage.Health
	if s.health != nil {
		checks = s.health(ctx)
	}
	if checks == nil {
		checks = []stage.Health{}
	}
	status := "ok"
	if !stage.AllReady(checks) {
		status = "degraded"
	}
	return HealthResponse{Status: status, Checks: checks}
}

// DecodeFrames converts base64 strings into JPEG frames. An empty list is
// returned as-is so the pipeline reports it as a missing-frames failure.
func DecodeFrames(encoded []string) ([]sampler.Frame, error) {
	frames := make([]sampler.Frame, 0, len(encoded))
	for i, raw := range encoded {
		raw = strings.TrimSpace(raw)
		if idx := strings.Index(raw, ";base64,"); idx >= 0 && strings.HasPrefix(raw, "data:") {
			raw = raw[idx+len(";base64,"):]
		}
		data, err := base64.StdEncoding.DecodeString(raw)
		if err != nil || len(data) == 0 {
			return nil, fmt.Errorf("%w: frame %d is not valid base64 image data", services.ErrValidation, i)
		}
		frames = append(frames, sampler.Frame{MIMEType: sampler.JPEGMIMEType, Data: data})
	}
	return frames, nil
}
