package pipeline

import (
	"context"
	"log/slog"
	"time"

	"trafficlens/internal/logging"
)

// Observer receives run lifecycle notifications. Callbacks run synchronously
// on the orchestrating goroutine with a context that is never canceled, so
// implementations should return promptly.
type Observer interface {
	RunStarted(ctx context.Context, snap Snapshot)
	StageCompleted(ctx context.Context, snap Snapshot, st Stage, elapsed time.Duration)
	RunFinished(ctx context.Context, snap Snapshot)
}

type multiObserver []Observer

// Observers fans notifications out to every non-nil observer in order.
func Observers(list ...Observer) Observer {
	out := make(multiObserver, 0, len(list))
	for _, o := range list {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (m multiObserver) RunStarted(ctx context.Context, snap Snapshot) {
	for _, o := range m {
		o.RunStarted(ctx, snap)
	}
}

func (m multiObserver) StageCompleted(ctx context.Context, snap Snapshot, st Stage, elapsed time.Duration) {
	for _, o := range m {
		o.StageCompleted(ctx, snap, st, elapsed)
	}
}

func (m multiObserver) RunFinished(ctx context.Context, snap Snapshot) {
	for _, o := range m {
		o.RunFinished(ctx, snap)
	}
}

type logObserver struct {
	logger *slog.Logger
}

// LogObserver records run start and outcome as structured log lines.
func LogObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return logObserver{logger: logger}
}

func (l logObserver) RunStarted(ctx context.Context, snap Snapshot) {
	logging.WithContext(ctx, l.logger).Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("source_label", snap.SourceLabel),
	)
}

// StageCompleted is a no-op; the orchestrator logs stage transitions itself.
func (logObserver) StageCompleted(context.Context, Snapshot, Stage, time.Duration) {}

func (l logObserver) RunFinished(ctx context.Context, snap Snapshot) {
	logger := logging.WithContext(ctx, l.logger)
	if snap.State == StateSucceeded {
		logger.Info("run succeeded",
			logging.String(logging.FieldEventType, "run_complete"),
			logging.Int("frame_count", snap.FrameCount),
			logging.Int("vehicle_count", snap.Result.VehicleCount),
		)
		return
	}
	logger.Error("run failed",
		logging.String(logging.FieldEventType, "run_failure"),
		logging.String(logging.FieldErrorKind, snap.ErrorKind),
		logging.String("completed_stages", JoinStages(snap.CompletedStages)),
		logging.String("error_message", snap.ErrorMessage),
	)
}
