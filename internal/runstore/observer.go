package runstore

import (
	"context"
	"log/slog"
	"time"

	"trafficlens/internal/logging"
	"trafficlens/internal/pipeline"
)

type observer struct {
	store  *Store
	logger *slog.Logger
}

// Observer persists run transitions. Write failures are logged and never
// interrupt the run.
func (s *Store) Observer(logger *slog.Logger) pipeline.Observer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return observer{store: s, logger: logger}
}

func (o observer) RunStarted(ctx context.Context, snap pipeline.Snapshot) {
	o.report(ctx, "create", o.store.Create(ctx, snap))
}

func (o observer) StageCompleted(ctx context.Context, snap pipeline.Snapshot, _ pipeline.Stage, _ time.Duration) {
	o.report(ctx, "update", o.store.Update(ctx, snap))
}

func (o observer) RunFinished(ctx context.Context, snap pipeline.Snapshot) {
	o.report(ctx, "finish", o.store.Update(ctx, snap))
}

func (o observer) report(ctx context.Context, op string, err error) {
	if err == nil {
		return
	}
	logging.WithContext(ctx, o.logger).Warn("run history write failed",
		logging.String(logging.FieldEventType, "runstore_write_failed"),
		logging.String("operation", op),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check permissions on the data directory"),
	)
}
