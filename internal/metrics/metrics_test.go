package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"trafficlens/internal/pipeline"
)

func TestObserverRecordsRunLifecycle(t *testing.T) {
	m := New()
	obs := m.Observer()
	ctx := context.Background()

	snap := pipeline.Snapshot{ID: "r1", State: pipeline.StateRunning, FrameCount: 5}
	obs.RunStarted(ctx, snap)
	if got := testutil.ToFloat64(m.ActiveRuns); got != 1 {
		t.Fatalf("active runs = %v", got)
	}
	obs.StageCompleted(ctx, snap, pipeline.StageExtraction, 800*time.Millisecond)
	obs.StageCompleted(ctx, snap, pipeline.StageDenoising, 600*time.Millisecond)
	if got := testutil.ToFloat64(m.FramesSampled); got != 5 {
		t.Fatalf("frames sampled = %v", got)
	}

	snap.State = pipeline.StateFailed
	snap.ErrorKind = "payload_too_large"
	obs.RunFinished(ctx, snap)

	if got := testutil.ToFloat64(m.ActiveRuns); got != 0 {
		t.Fatalf("active runs = %v", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed runs = %v", got)
	}
	if got := testutil.ToFloat64(m.RunErrors.WithLabelValues("payload_too_large")); got != 1 {
		t.Fatalf("error count = %v", got)
	}
	if got := testutil.CollectAndCount(m.StageDuration); got != 2 {
		t.Fatalf("stage series = %d", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.RunsTotal.WithLabelValues("succeeded").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `trafficlens_runs_total{outcome="succeeded"} 1`) {
		t.Fatalf("metrics output missing run counter:\n%s", body)
	}
}

func TestInstancesDoNotShareRegistries(t *testing.T) {
	a, b := New(), New()
	a.FramesSampled.Add(3)
	if got := testutil.ToFloat64(b.FramesSampled); got != 0 {
		t.Fatalf("registries leaked: %v", got)
	}
}
