package daemonrun

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trafficlens/internal/analysis"
	"trafficlens/internal/logging"
	"trafficlens/internal/pipeline"
	"trafficlens/internal/stage"
	"trafficlens/internal/testsupport"
)

func jpegFrame() string {
	return base64.StdEncoding.EncodeToString([]byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9})
}

func TestBuildRunsFramesThroughStoreAndMetrics(t *testing.T) {
	stub := testsupport.NewGeminiStub(t, http.StatusOK, testsupport.ValidModelJSON)
	cfg := testsupport.NewConfig(t, testsupport.WithGeminiBaseURL(stub.URL()))

	c, err := Build(cfg, logging.NewNop(), WithHTTPClient(stub.Client()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	run, res, err := c.Service.AnalyzeFrames(context.Background(), []string{jpegFrame(), jpegFrame()}, "clip.mp4")
	if err != nil {
		t.Fatalf("AnalyzeFrames: %v", err)
	}
	if res.VehicleCount != 12 {
		t.Fatalf("unexpected vehicle count %d", res.VehicleCount)
	}
	if stub.Hits() != 1 {
		t.Fatalf("expected one model call, got %d", stub.Hits())
	}

	stored, err := c.Store.Get(context.Background(), run.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.State != pipeline.StateSucceeded || len(stored.CompletedStages) != pipeline.StageCount {
		t.Fatalf("unexpected stored run %+v", stored)
	}
	if stored.FrameCount != 2 {
		t.Fatalf("expected 2 frames recorded, got %d", stored.FrameCount)
	}
}

func TestBuildRecordsCredentialFailure(t *testing.T) {
	stub := testsupport.NewGeminiStub(t, http.StatusUnauthorized, `{"error":{"code":401}}`)
	cfg := testsupport.NewConfig(t, testsupport.WithGeminiBaseURL(stub.URL()))

	c, err := Build(cfg, logging.NewNop(), WithHTTPClient(stub.Client()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	run, _, err := c.Service.AnalyzeFrames(context.Background(), []string{jpegFrame()}, "clip.mp4")
	if kind, _ := analysis.KindOf(err); kind != analysis.KindInvalidCredential {
		t.Fatalf("expected invalid credential, got %v", err)
	}
	stored, err := c.Store.Get(context.Background(), run.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.State != pipeline.StateFailed || stored.ErrorKind != string(analysis.KindInvalidCredential) {
		t.Fatalf("unexpected stored failure %+v", stored)
	}
	if len(stored.CompletedStages) != pipeline.StageCount-1 {
		t.Fatalf("expected every stage but insights, got %v", stored.CompletedStages)
	}
}

func TestHealthFlagsMissingCredential(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIKey(""), testsupport.WithStubbedBinaries())
	c, err := Build(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	checks := c.Health(context.Background())
	if stage.AllReady(checks) {
		t.Fatalf("expected degraded health, got %+v", checks)
	}
	var gemini *stage.Health
	for i := range checks {
		if checks[i].Name == "gemini" {
			gemini = &checks[i]
		} else if !checks[i].Ready {
			t.Errorf("check %s unexpectedly failed: %s", checks[i].Name, checks[i].Detail)
		}
	}
	if gemini == nil || gemini.Ready {
		t.Fatalf("expected gemini check to fail, got %+v", gemini)
	}
}

func TestHandlerServesHealthAndMetrics(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	c, err := Build(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()
	handler := c.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "trafficlens_http_requests_total") {
		t.Fatalf("unexpected metrics response %d", rec.Code)
	}
}

func TestHandlerSkipsStageDwell(t *testing.T) {
	stub := testsupport.NewGeminiStub(t, http.StatusOK, testsupport.ValidModelJSON)
	cfg := testsupport.NewConfig(t, testsupport.WithGeminiBaseURL(stub.URL()))
	cfg.Pipeline.ExtractionDwellMS = 5000
	cfg.Pipeline.StageDwellMS = 5000

	c, err := Build(cfg, logging.NewNop(), WithHTTPClient(stub.Client()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	body := `{"frames":["` + jpegFrame() + `"],"fileName":"clip.mp4","fileSize":5}`
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	begin := time.Now()
	c.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	if elapsed := time.Since(begin); elapsed > 4*time.Second {
		t.Fatalf("HTTP analysis waited on stage dwell: %s", elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, _, err := c.Service.AnalyzeFrames(ctx, []string{jpegFrame()}, "clip.mp4"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the CLI service to keep its dwell, got %v", err)
	}
}

func TestOpenVideoRejectsUnknownBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	c, err := Build(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	c.Config.Sampler.Backend = "vhs"
	if _, err := c.OpenVideo("/nonexistent.mp4"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestBuildNotifiesFailedRuns(t *testing.T) {
	var titles []string
	ntfy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		titles = append(titles, r.Header.Get("Title"))
		w.WriteHeader(http.StatusOK)
	}))
	defer ntfy.Close()

	stub := testsupport.NewGeminiStub(t, http.StatusOK, "no json here")
	cfg := testsupport.NewConfig(t, testsupport.WithGeminiBaseURL(stub.URL()))
	cfg.Notifications.NtfyTopic = ntfy.URL

	c, err := Build(cfg, logging.NewNop(), WithHTTPClient(stub.Client()))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer c.Close()

	if _, _, err := c.Service.AnalyzeFrames(context.Background(), []string{jpegFrame()}, "clip.mp4"); err == nil {
		t.Fatal("expected unparsable response error")
	}
	if len(titles) != 1 || titles[0] != "trafficlens - Analysis Failed" {
		t.Fatalf("expected one failure notification, got %v", titles)
	}
}
