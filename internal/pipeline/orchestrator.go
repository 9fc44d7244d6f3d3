package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trafficlens/internal/analysis"
	"trafficlens/internal/logging"
	"trafficlens/internal/result"
	"trafficlens/internal/sampler"
	"trafficlens/internal/services"
)

// Analyzer turns sampled frames into a validated result.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (result.AnalysisResult, error)
}

// FrameSampler extracts frames from a caller-owned video source.
type FrameSampler interface {
	Sample(ctx context.Context, src sampler.VideoSource) ([]sampler.Frame, error)
}

// SamplerFunc adapts a function to FrameSampler.
type SamplerFunc func(ctx context.Context, src sampler.VideoSource) ([]sampler.Frame, error)

func (f SamplerFunc) Sample(ctx context.Context, src sampler.VideoSource) ([]sampler.Frame, error) {
	return f(ctx, src)
}

// FixedCount samples count evenly spaced frames.
func FixedCount(count int, opts ...sampler.Option) FrameSampler {
	return SamplerFunc(func(ctx context.Context, src sampler.VideoSource) ([]sampler.Frame, error) {
		return sampler.Sample(ctx, src, count, opts...)
	})
}

// Dwell is the minimum time each bookkeeping stage stays visible before it is
// marked complete. Zero disables the wait.
type Dwell struct {
	Extraction time.Duration
	Stage      time.Duration
}

// DefaultDwell returns the pacing used by the interactive uploader.
func DefaultDwell() Dwell {
	return Dwell{Extraction: 800 * time.Millisecond, Stage: 600 * time.Millisecond}
}

// Orchestrator drives runs through the fixed stage sequence. It holds no
// per-run state, so one orchestrator may execute many runs concurrently.
type Orchestrator struct {
	sampler  FrameSampler
	analyzer Analyzer
	observer Observer
	dwell    Dwell
	logger   *slog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

func WithObserver(o Observer) Option {
	return func(orch *Orchestrator) {
		if o != nil {
			orch.observer = o
		}
	}
}

func WithDwell(d Dwell) Option {
	return func(orch *Orchestrator) {
		orch.dwell = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(orch *Orchestrator) {
		if logger != nil {
			orch.logger = logger
		}
	}
}

// New constructs an orchestrator.
func New(fs FrameSampler, analyzer Analyzer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sampler:  fs,
		analyzer: analyzer,
		observer: Observers(),
		dwell:    DefaultDwell(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// WithoutDwell returns a copy of o whose bookkeeping stages complete
// immediately. Collaborators and observers are shared with o.
func (o *Orchestrator) WithoutDwell() *Orchestrator {
	cp := *o
	cp.dwell = Dwell{}
	return &cp
}

// Run samples video, paces through the local stages and analyzes the frames.
// Every call creates a new Run. On failure the run is left Failed with the
// stages that finished, and the originating error is returned unchanged.
func (o *Orchestrator) Run(ctx context.Context, video sampler.VideoSource, sourceLabel string) (*Run, result.AnalysisResult, error) {
	run := NewRun(sourceLabel)
	res, err := o.execute(ctx, run, o.dwell.Extraction, func(ctx context.Context) ([]sampler.Frame, error) {
		if o.sampler == nil {
			return nil, services.Wrap(services.ErrConfiguration, StageExtraction.String(), "sample", "frame sampler unavailable", nil)
		}
		return o.sampler.Sample(ctx, video)
	})
	return run, res, err
}

// AnalyzeFrames runs the pipeline over frames that were sampled elsewhere.
// Extraction completes immediately with the supplied frames.
func (o *Orchestrator) AnalyzeFrames(ctx context.Context, frames []sampler.Frame, sourceLabel string) (*Run, result.AnalysisResult, error) {
	run := NewRun(sourceLabel)
	res, err := o.execute(ctx, run, 0, func(context.Context) ([]sampler.Frame, error) {
		return frames, nil
	})
	return run, res, err
}

func (o *Orchestrator) execute(ctx context.Context, run *Run, extractionDwell time.Duration, frames func(context.Context) ([]sampler.Frame, error)) (result.AnalysisResult, error) {
	ctx = services.WithRunID(ctx, run.ID())
	notifyCtx := context.WithoutCancel(ctx)
	logger := logging.WithContext(ctx, o.logger)

	if err := run.start(); err != nil {
		return result.AnalysisResult{}, err
	}
	o.observer.RunStarted(notifyCtx, run.Snapshot())

	current := StageExtraction
	fail := func(err error) (result.AnalysisResult, error) {
		o.stageLogger(ctx, current).Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String("stage_name", current.Name()),
			logging.String(logging.FieldErrorKind, ErrorKind(err)),
			logging.Error(err),
		)
		if ferr := run.fail(err); ferr != nil {
			logger.Error("run transition rejected", logging.Error(ferr))
		}
		o.observer.RunFinished(notifyCtx, run.Snapshot())
		return result.AnalysisResult{}, err
	}

	started := o.begin(ctx, StageExtraction)
	sampled, err := frames(logging.WithStage(ctx, StageExtraction.String()))
	if err != nil {
		return fail(err)
	}
	run.setFrameCount(len(sampled))
	if err := o.advance(ctx, notifyCtx, run, StageExtraction, extractionDwell, started); err != nil {
		return fail(err)
	}

	for _, st := range []Stage{StageDenoising, StageUnblurring, StageContrast, StageDetection} {
		current = st
		if err := o.advance(ctx, notifyCtx, run, st, o.dwell.Stage, o.begin(ctx, st)); err != nil {
			return fail(err)
		}
	}

	current = StageInsights
	started = o.begin(ctx, StageInsights)
	if o.analyzer == nil {
		return fail(services.Wrap(services.ErrConfiguration, StageInsights.String(), "analyze", "analyzer unavailable", nil))
	}
	res, err := o.analyzer.Analyze(logging.WithStage(ctx, StageInsights.String()), analysis.Request{
		Frames:      sampled,
		SourceLabel: run.SourceLabel(),
	})
	if err != nil {
		return fail(err)
	}
	if err := o.finish(ctx, notifyCtx, run, StageInsights, started); err != nil {
		return fail(err)
	}
	if err := run.succeed(res); err != nil {
		return fail(err)
	}
	o.observer.RunFinished(notifyCtx, run.Snapshot())
	return res, nil
}

func (o *Orchestrator) stageLogger(ctx context.Context, st Stage) *slog.Logger {
	return logging.WithContext(logging.WithStage(ctx, st.String()), o.logger)
}

// begin logs the start of st and returns its start time.
func (o *Orchestrator) begin(ctx context.Context, st Stage) time.Time {
	o.stageLogger(ctx, st).Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("stage_name", st.Name()),
	)
	return time.Now()
}

// advance waits out the dwell for st and marks it complete.
func (o *Orchestrator) advance(ctx, notifyCtx context.Context, run *Run, st Stage, dwell time.Duration, started time.Time) error {
	if err := wait(ctx, dwell); err != nil {
		return fmt.Errorf("pipeline: %s: %w", st, err)
	}
	return o.finish(ctx, notifyCtx, run, st, started)
}

func (o *Orchestrator) finish(ctx, notifyCtx context.Context, run *Run, st Stage, started time.Time) error {
	if err := run.complete(st); err != nil {
		return err
	}
	snap := run.Snapshot()
	elapsed := time.Since(started)
	o.stageLogger(ctx, st).Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("stage_name", st.Name()),
		logging.Float64("progress", snap.Progress),
		logging.Duration("elapsed", elapsed),
	)
	o.observer.StageCompleted(notifyCtx, snap, st, elapsed)
	return nil
}

// wait blocks for d or until ctx is done. The timer is always released.
func wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsCanceled reports whether a run ended because its context was canceled.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
