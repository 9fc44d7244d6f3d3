package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"trafficlens/internal/analysis"
	"trafficlens/internal/api"
	"trafficlens/internal/config"
	"trafficlens/internal/pipeline"
	"trafficlens/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	return &cliTestEnv{
		cfg:        cfg,
		configPath: testsupport.WriteConfigFile(t, cfg),
		baseDir:    testsupport.BaseDir(cfg),
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func writeVideo(t *testing.T, env *cliTestEnv) string {
	t.Helper()
	path := filepath.Join(env.baseDir, "videos", "junction.mp4")
	testsupport.WriteFile(t, path, 4096)
	return path
}

func TestAnalyzePrintsStagesAndSummary(t *testing.T) {
	stub := testsupport.NewGeminiStub(t, http.StatusOK, testsupport.ValidModelJSON)
	env := setupCLITestEnv(t, testsupport.WithFakeDecoder(), testsupport.WithGeminiBaseURL(stub.URL()))
	video := writeVideo(t, env)

	out, err := runCLI(t, []string{"analyze", "--frames", "3", video}, env.configPath)
	if err != nil {
		t.Fatalf("analyze: %v\n%s", err, out)
	}
	for _, want := range []string{"Frame Extraction", "AI Analysis", "Vehicles: 12", "Density: Light", "- Traffic is light"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "pending") || strings.Contains(out, "failed") {
		t.Errorf("expected every stage done:\n%s", out)
	}
	if stub.Hits() != 1 {
		t.Fatalf("expected one model call, got %d", stub.Hits())
	}

	listOut, err := runCLI(t, []string{"runs", "list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	var list api.RunList
	if err := json.Unmarshal([]byte(listOut), &list); err != nil {
		t.Fatalf("decode runs list: %v\n%s", err, listOut)
	}
	if len(list.Runs) != 1 || list.Stats.Succeeded != 1 {
		t.Fatalf("unexpected run list %+v", list)
	}
	run := list.Runs[0]
	if run.SourceLabel != "junction.mp4" || run.FrameCount != 3 || run.Result == nil {
		t.Fatalf("unexpected run %+v", run)
	}
}

func TestAnalyzeJSONOutput(t *testing.T) {
	stub := testsupport.NewGeminiStub(t, http.StatusOK, testsupport.ValidModelJSON)
	env := setupCLITestEnv(t, testsupport.WithFakeDecoder(), testsupport.WithGeminiBaseURL(stub.URL()))
	video := writeVideo(t, env)

	out, err := runCLI(t, []string{"analyze", "--json", video}, env.configPath)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var resp api.VideoResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if resp.Result.VehicleCount != 12 || resp.Run.State != string(pipeline.StateSucceeded) {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(resp.Run.CompletedStages) != pipeline.StageCount {
		t.Fatalf("expected %d stages, got %d", pipeline.StageCount, len(resp.Run.CompletedStages))
	}
}

func TestAnalyzeInvalidKeyPointsAtSetupLink(t *testing.T) {
	stub := testsupport.NewGeminiStub(t, http.StatusUnauthorized, `{"error":{"code":401}}`)
	env := setupCLITestEnv(t, testsupport.WithFakeDecoder(), testsupport.WithGeminiBaseURL(stub.URL()))
	video := writeVideo(t, env)

	out, err := runCLI(t, []string{"analyze", video}, env.configPath)
	if err == nil {
		t.Fatal("expected analyze to fail")
	}
	if !strings.Contains(err.Error(), analysis.SetupURL) {
		t.Fatalf("expected setup link in error, got %v", err)
	}
	if !strings.Contains(out, "failed") {
		t.Fatalf("expected failed stage in output:\n%s", out)
	}
}

func TestAnalyzeMissingVideo(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithFakeDecoder())
	_, err := runCLI(t, []string{"analyze", filepath.Join(env.baseDir, "missing.mp4")}, env.configPath)
	if err == nil {
		t.Fatal("expected error for missing video")
	}
}

func TestRunsListEmpty(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := runCLI(t, []string{"runs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	if !strings.Contains(out, "No runs recorded") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunsListAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	testsupport.InsertRun(t, store, "aaaa1111-0000-0000-0000-000000000001", "north.mp4", pipeline.StateSucceeded, pipeline.StageCount)
	testsupport.InsertRun(t, store, "bbbb2222-0000-0000-0000-000000000002", "south.mp4", pipeline.StateFailed, 2)

	out, err := runCLI(t, []string{"runs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	for _, want := range []string{"aaaa1111", "north.mp4", "Succeeded", "bbbb2222", "Failed", "2 total: 1 succeeded, 1 failed, 0 running"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, []string{"runs", "show", "bbbb2222-0000-0000-0000-000000000002"}, env.configPath)
	if err != nil {
		t.Fatalf("runs show: %v", err)
	}
	if !strings.Contains(out, "south.mp4") || !strings.Contains(out, "failed") || !strings.Contains(out, "pending") {
		t.Fatalf("unexpected show output:\n%s", out)
	}

	out, err = runCLI(t, []string{"runs", "show", "--json", "aaaa1111-0000-0000-0000-000000000001"}, env.configPath)
	if err != nil {
		t.Fatalf("runs show --json: %v", err)
	}
	var run api.Run
	if err := json.Unmarshal([]byte(out), &run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.StateLabel != "Succeeded" || len(run.CompletedStages) != pipeline.StageCount {
		t.Fatalf("unexpected run %+v", run)
	}
}

func TestRunsShowUnknownID(t *testing.T) {
	env := setupCLITestEnv(t)
	_, err := runCLI(t, []string{"runs", "show", "nope"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestHealthJSONReportsReady(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithFakeDecoder())
	out, err := runCLI(t, []string{"health", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("health: %v\n%s", err, out)
	}
	var resp api.HealthResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || len(resp.Checks) == 0 {
		t.Fatalf("unexpected health %+v", resp)
	}
}

func TestHealthLiveFlagsRejectedKey(t *testing.T) {
	stub := testsupport.NewGeminiStub(t, http.StatusForbidden, `{"error":{"code":403}}`)
	env := setupCLITestEnv(t, testsupport.WithFakeDecoder(), testsupport.WithGeminiBaseURL(stub.URL()))

	out, err := runCLI(t, []string{"health", "--live"}, env.configPath)
	if err != errUnhealthy {
		t.Fatalf("expected unhealthy error, got %v", err)
	}
	if !strings.Contains(out, "Gemini API:") || !strings.Contains(out, "[ERROR]") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	target := filepath.Join(home, "cfg", "config.toml")

	out, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "Wrote sample configuration") || !strings.Contains(out, config.APIKeyVariable) {
		t.Fatalf("unexpected init output %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file: %v", err)
	}

	if _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected refusal to overwrite")
	}
	if _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	out, err = runCLI(t, []string{"config", "validate"}, target)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, target) {
		t.Fatalf("unexpected validate output %q", out)
	}
}

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("gemini", statusError, "api key not configured", false)
	if got != "  gemini:              [ERROR] api key not configured" {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("gemini", statusOK, "", true)
	if !strings.HasPrefix(got, "\x1b[") || !strings.Contains(got, "[OK]") {
		t.Fatalf("expected colored line, got %q", got)
	}
}

func TestStageRowsMarksFailedStage(t *testing.T) {
	snap := pipeline.Snapshot{
		State:           pipeline.StateFailed,
		CompletedStages: pipeline.Stages()[:2],
	}
	rows := stageRows(snap)
	if len(rows) != pipeline.StageCount {
		t.Fatalf("expected %d rows, got %d", pipeline.StageCount, len(rows))
	}
	want := []string{"done", "done", "failed", "pending", "pending", "pending"}
	for i, row := range rows {
		if row[1] != want[i] {
			t.Errorf("row %d (%s): got %s want %s", i, row[0], row[1], want[i])
		}
	}
}

func TestTestNotifyDisabled(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	if !strings.Contains(out, "Notifications disabled") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestTestNotifySends(t *testing.T) {
	var title string
	ntfy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title = r.Header.Get("Title")
		w.WriteHeader(http.StatusOK)
	}))
	defer ntfy.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ntfy.URL
	configPath := testsupport.WriteConfigFile(t, cfg)

	out, err := runCLI(t, []string{"test-notify"}, configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	if !strings.Contains(out, "Test notification sent") || title != "trafficlens - Test" {
		t.Fatalf("unexpected result out=%q title=%q", out, title)
	}
}
