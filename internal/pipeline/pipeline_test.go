package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"trafficlens/internal/analysis"
	"trafficlens/internal/result"
	"trafficlens/internal/sampler"
)

type fakeVideo struct {
	duration float64
}

func (f fakeVideo) Duration(context.Context) (float64, error) { return f.duration, nil }

func (f fakeVideo) Dimensions() (int, int) { return 1280, 720 }

func (f fakeVideo) CaptureAt(_ context.Context, ts float64, _ float64) ([]byte, error) {
	return []byte{0xFF, 0xD8, byte(ts), 0xFF, 0xD9}, nil
}

type fakeAnalyzer struct {
	mu       sync.Mutex
	calls    int
	frames   int
	label    string
	err      error
	block    bool
	response result.AnalysisResult
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req analysis.Request) (result.AnalysisResult, error) {
	f.mu.Lock()
	f.calls++
	f.frames = len(req.Frames)
	f.label = req.SourceLabel
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return result.AnalysisResult{}, ctx.Err()
	}
	if f.err != nil {
		return result.AnalysisResult{}, f.err
	}
	return f.response, nil
}

type recordingObserver struct {
	t        *testing.T
	mu       sync.Mutex
	started  int
	stages   []Stage
	finished []Snapshot
}

func (r *recordingObserver) RunStarted(_ context.Context, snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	if snap.State != StateRunning {
		r.t.Errorf("started snapshot state = %s", snap.State)
	}
}

func (r *recordingObserver) StageCompleted(ctx context.Context, snap Snapshot, st Stage, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx.Err() != nil {
		r.t.Errorf("observer context should not be canceled")
	}
	if !IsPrefix(snap.CompletedStages) {
		r.t.Errorf("completed stages not a prefix: %v", snap.CompletedStages)
	}
	if last := snap.CompletedStages[len(snap.CompletedStages)-1]; last != st {
		r.t.Errorf("notified %s but last completed is %s", st, last)
	}
	r.stages = append(r.stages, st)
}

func (r *recordingObserver) RunFinished(_ context.Context, snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, snap)
}

func sampleResult() result.AnalysisResult {
	return result.AnalysisResult{
		VehicleCount:      12,
		TrafficDensity:    result.DensityLight,
		AverageSpeed:      50,
		CongestionLevel:   10,
		DetectedVehicles:  []result.DetectedVehicle{{Type: result.VehicleCar, Count: 12, Confidence: 0.9}},
		FlowRate:          8,
		Anomalies:         []string{},
		ProcessingQuality: result.QualityHigh,
		Insights:          []string{"Light traffic"},
	}
}

func newTestOrchestrator(t *testing.T, analyzer Analyzer) (*Orchestrator, *recordingObserver) {
	t.Helper()
	obs := &recordingObserver{t: t}
	return New(FixedCount(5), analyzer, WithObserver(obs), WithDwell(Dwell{})), obs
}

func TestRunSucceeds(t *testing.T) {
	analyzer := &fakeAnalyzer{response: sampleResult()}
	orch, obs := newTestOrchestrator(t, analyzer)

	run, res, err := orch.Run(context.Background(), fakeVideo{duration: 10}, "clip.mp4")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.VehicleCount != 12 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if run.State() != StateSucceeded || run.Progress() != 100 {
		t.Fatalf("state=%s progress=%v", run.State(), run.Progress())
	}
	if got := run.CompletedStages(); len(got) != StageCount || !IsPrefix(got) {
		t.Fatalf("completed = %v", got)
	}
	if analyzer.frames != 5 || analyzer.label != "clip.mp4" {
		t.Fatalf("analyzer saw frames=%d label=%q", analyzer.frames, analyzer.label)
	}
	if obs.started != 1 || len(obs.stages) != StageCount || len(obs.finished) != 1 {
		t.Fatalf("observer started=%d stages=%d finished=%d", obs.started, len(obs.stages), len(obs.finished))
	}
	snap := obs.finished[0]
	if snap.Result == nil || snap.FrameCount != 5 || snap.ErrorKind != "" {
		t.Fatalf("unexpected final snapshot: %+v", snap)
	}
	if stored, ok := run.Result(); !ok || stored.VehicleCount != 12 {
		t.Fatal("expected run to hold result")
	}
}

func TestSamplingFailureLeavesNoStages(t *testing.T) {
	analyzer := &fakeAnalyzer{response: sampleResult()}
	orch, obs := newTestOrchestrator(t, analyzer)

	run, _, err := orch.Run(context.Background(), fakeVideo{duration: 0}, "empty.mp4")
	var se *sampler.SamplingError
	if !errors.As(err, &se) {
		t.Fatalf("expected sampling error, got %v", err)
	}
	if run.State() != StateFailed || len(run.CompletedStages()) != 0 || run.Progress() != 0 {
		t.Fatalf("unexpected run: state=%s stages=%v", run.State(), run.CompletedStages())
	}
	if analyzer.calls != 0 {
		t.Fatal("analyzer must not be called when sampling fails")
	}
	if obs.finished[0].ErrorKind != "sampling" {
		t.Fatalf("error kind = %q", obs.finished[0].ErrorKind)
	}
}

func TestAnalyzerFailureKeepsPrefix(t *testing.T) {
	adapterErr := &analysis.Error{Kind: analysis.KindUnparsableModelResponse, Message: "Could not parse JSON from Gemini response"}
	orch, obs := newTestOrchestrator(t, &fakeAnalyzer{err: adapterErr})

	run, _, err := orch.Run(context.Background(), fakeVideo{duration: 3}, "clip.mp4")
	if !errors.Is(err, adapterErr) {
		t.Fatalf("expected adapter error unchanged, got %v", err)
	}
	stages := run.CompletedStages()
	if len(stages) != StageCount-1 || !IsPrefix(stages) {
		t.Fatalf("completed = %v", stages)
	}
	if run.State() != StateFailed || run.Err() != err {
		t.Fatalf("state=%s err=%v", run.State(), run.Err())
	}
	if _, ok := run.Result(); ok {
		t.Fatal("failed run must not hold a result")
	}
	if got := obs.finished[0].ErrorKind; got != string(analysis.KindUnparsableModelResponse) {
		t.Fatalf("error kind = %q", got)
	}
}

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var line map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("decode log line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, line)
	}
	return lines
}

func TestStageTransitionsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	adapterErr := &analysis.Error{Kind: analysis.KindEmptyModelResponse, Message: "No content in Gemini response"}
	orch := New(FixedCount(2), &fakeAnalyzer{err: adapterErr}, WithDwell(Dwell{}), WithLogger(logger))

	run, _, err := orch.Run(context.Background(), fakeVideo{duration: 4}, "clip.mp4")
	if err == nil {
		t.Fatal("expected analyzer failure")
	}

	counts := map[string]int{}
	var failure map[string]any
	for _, line := range decodeLogLines(t, &buf) {
		event, _ := line["event_type"].(string)
		counts[event]++
		if line["run_id"] != run.ID() {
			t.Fatalf("log line missing run id: %v", line)
		}
		if event == "stage_failure" {
			failure = line
		}
	}
	if counts["stage_start"] != StageCount || counts["stage_complete"] != StageCount-1 || counts["stage_failure"] != 1 {
		t.Fatalf("unexpected stage events: %v", counts)
	}
	if failure["msg"] != "stage failed" || failure["stage"] != StageInsights.String() || failure["error_kind"] != string(analysis.KindEmptyModelResponse) {
		t.Fatalf("unexpected failure line: %v", failure)
	}
}

func TestSamplingFailureLogsExtractionStage(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	orch := New(FixedCount(2), &fakeAnalyzer{}, WithDwell(Dwell{}), WithLogger(logger))

	if _, _, err := orch.Run(context.Background(), fakeVideo{duration: 0}, "empty.mp4"); err == nil {
		t.Fatal("expected sampling failure")
	}
	var failures []map[string]any
	for _, line := range decodeLogLines(t, &buf) {
		if line["event_type"] == "stage_failure" {
			failures = append(failures, line)
		}
	}
	if len(failures) != 1 || failures[0]["stage"] != StageExtraction.String() || failures[0]["error_kind"] != "sampling" {
		t.Fatalf("unexpected failure lines: %v", failures)
	}
}

func TestRunsAreIndependent(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &fakeAnalyzer{response: sampleResult()})
	first, _, err := orch.Run(context.Background(), fakeVideo{duration: 5}, "a.mp4")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, _, err := orch.Run(context.Background(), fakeVideo{duration: 5}, "b.mp4")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.ID() == second.ID() {
		t.Fatal("expected distinct run identifiers")
	}
	if first.SourceLabel() != "a.mp4" || second.SourceLabel() != "b.mp4" {
		t.Fatal("source labels leaked between runs")
	}
}

func TestCancellationDuringDwell(t *testing.T) {
	analyzer := &fakeAnalyzer{response: sampleResult()}
	obs := &recordingObserver{t: t}
	orch := New(FixedCount(2), analyzer, WithObserver(obs), WithDwell(Dwell{Extraction: time.Hour, Stage: time.Hour}))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	run, _, err := orch.Run(ctx, fakeVideo{duration: 4}, "clip.mp4")
	if !IsCanceled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if run.State() != StateFailed || len(run.CompletedStages()) != 0 {
		t.Fatalf("state=%s stages=%v", run.State(), run.CompletedStages())
	}
	if analyzer.calls != 0 {
		t.Fatal("analyzer must not run after cancellation")
	}
	if obs.finished[0].ErrorKind != "canceled" {
		t.Fatalf("error kind = %q", obs.finished[0].ErrorKind)
	}
}

func TestCancellationDuringAnalysis(t *testing.T) {
	analyzer := &fakeAnalyzer{block: true}
	orch, _ := newTestOrchestrator(t, analyzer)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	run, _, err := orch.Run(ctx, fakeVideo{duration: 4}, "clip.mp4")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(run.CompletedStages()) != StageCount-1 {
		t.Fatalf("completed = %v", run.CompletedStages())
	}
}

func TestAnalyzeFramesSkipsSampling(t *testing.T) {
	analyzer := &fakeAnalyzer{response: sampleResult()}
	orch := New(nil, analyzer, WithDwell(Dwell{Extraction: time.Hour}))

	frames := []sampler.Frame{{MIMEType: sampler.JPEGMIMEType, Data: []byte{1}}}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, _, err := orch.AnalyzeFrames(ctx, frames, "upload.mp4")
	if err != nil {
		t.Fatalf("AnalyzeFrames: %v", err)
	}
	if run.Snapshot().FrameCount != 1 || analyzer.frames != 1 {
		t.Fatalf("frame count not propagated")
	}
}

func TestRunRejectsOutOfOrderCompletion(t *testing.T) {
	run := NewRun("x")
	if err := run.complete(StageExtraction); !errors.Is(err, ErrInvalidTransition) {
		t.Fatal("idle run must not complete stages")
	}
	if err := run.start(); err != nil {
		t.Fatal(err)
	}
	if err := run.complete(StageContrast); !errors.Is(err, ErrInvalidTransition) {
		t.Fatal("expected skipped stage to be rejected")
	}
	if err := run.complete(StageExtraction); err != nil {
		t.Fatal(err)
	}
	if err := run.complete(StageExtraction); !errors.Is(err, ErrInvalidTransition) {
		t.Fatal("expected duplicate stage to be rejected")
	}
	if err := run.succeed(sampleResult()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatal("succeed requires every stage")
	}
	if err := run.fail(errors.New("boom")); err != nil {
		t.Fatal(err)
	}
	if err := run.start(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatal("terminal run must not restart")
	}
	if err := run.fail(errors.New("again")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatal("terminal run must not fail twice")
	}
}

func TestStageHelpers(t *testing.T) {
	if StageCount != 6 {
		t.Fatalf("StageCount = %d", StageCount)
	}
	stages, err := ParseStageList(JoinStages(Stages()))
	if err != nil || len(stages) != StageCount || !IsPrefix(stages) {
		t.Fatalf("round trip failed: %v %v", stages, err)
	}
	if IsPrefix([]Stage{StageExtraction, StageContrast}) {
		t.Fatal("gap must not count as prefix")
	}
	if _, err := ParseStage("sharpening"); err == nil {
		t.Fatal("expected unknown stage error")
	}
	if StageUnblurring.Name() != "Motion Deblurring" {
		t.Fatalf("name = %q", StageUnblurring.Name())
	}
	if StateSucceeded.Title() != "Succeeded" {
		t.Fatalf("title = %q", StateSucceeded.Title())
	}
}
