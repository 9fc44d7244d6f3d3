package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"trafficlens/internal/logging"
	"trafficlens/internal/pipeline"
)

type observer struct {
	svc       Service
	onSuccess bool
	logger    *slog.Logger
}

// Observer publishes finished runs. Failures are always announced; successes
// only when onSuccess is set. Delivery errors are logged, never returned.
func Observer(svc Service, onSuccess bool, logger *slog.Logger) pipeline.Observer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return observer{svc: svc, onSuccess: onSuccess, logger: logger}
}

func (observer) RunStarted(context.Context, pipeline.Snapshot) {}

func (observer) StageCompleted(context.Context, pipeline.Snapshot, pipeline.Stage, time.Duration) {}

func (o observer) RunFinished(ctx context.Context, snap pipeline.Snapshot) {
	payload := Payload{"label": snap.SourceLabel, "runId": snap.ID}
	var event Event
	switch snap.State {
	case pipeline.StateSucceeded:
		if !o.onSuccess {
			return
		}
		event = EventRunSucceeded
		if snap.Result != nil {
			r := snap.Result
			payload["summary"] = fmt.Sprintf("%d vehicles, %s density, %.0f%% congestion", r.VehicleCount, r.TrafficDensity, r.CongestionLevel)
		}
	case pipeline.StateFailed:
		event = EventRunFailed
		payload["error"] = snap.ErrorMessage
		payload["errorKind"] = snap.ErrorKind
	default:
		return
	}
	if err := o.svc.Publish(ctx, event, payload); err != nil {
		o.logger.Warn("notification delivery failed",
			logging.String(logging.FieldEventType, "notification_failed"),
			logging.String("run_id", snap.ID),
			logging.Error(err),
		)
	}
}
