package api

import (
	"time"

	"trafficlens/internal/pipeline"
	"trafficlens/internal/result"
	"trafficlens/internal/runstore"
	"trafficlens/internal/stage"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// AnalyzeRequest is the body of POST /api/analyze. Frames are base64 encoded
// JPEG images; data URL prefixes are accepted.
type AnalyzeRequest struct {
	Frames   []string `json:"frames"`
	FileName string   `json:"fileName"`
	FileSize int64    `json:"fileSize"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	SetupLink string `json:"setupLink,omitempty"`
	Details   string `json:"details,omitempty"`
	Response  string `json:"response,omitempty"`
	RunID     string `json:"runId,omitempty"`
}

// StageView describes one completed stage.
type StageView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Run describes a pipeline run in a transport-friendly format.
type Run struct {
	ID              string                 `json:"id"`
	SourceLabel     string                 `json:"sourceLabel"`
	State           string                 `json:"state"`
	StateLabel      string                 `json:"stateLabel"`
	Progress        float64                `json:"progress"`
	CompletedStages []StageView            `json:"completedStages"`
	FrameCount      int                    `json:"frameCount"`
	ErrorKind       string                 `json:"errorKind,omitempty"`
	ErrorMessage    string                 `json:"errorMessage,omitempty"`
	Result          *result.AnalysisResult `json:"result,omitempty"`
	CreatedAt       string                 `json:"createdAt,omitempty"`
	UpdatedAt       string                 `json:"updatedAt,omitempty"`
}

// VideoResponse is the body of a successful POST /api/videos.
type VideoResponse struct {
	Run    Run                   `json:"run"`
	Result result.AnalysisResult `json:"result"`
}

// RunList is the body of GET /api/runs.
type RunList struct {
	Runs  []Run          `json:"runs"`
	Stats runstore.Stats `json:"stats"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string         `json:"status"`
	Checks []stage.Health `json:"checks"`
}

// FromSnapshot converts a run snapshot into its API form.
func FromSnapshot(snap pipeline.Snapshot) Run {
	stages := make([]StageView, 0, len(snap.CompletedStages))
	for _, st := range snap.CompletedStages {
		stages = append(stages, StageView{ID: st.String(), Name: st.Name(), Description: st.Description()})
	}
	return Run{
		ID:              snap.ID,
		SourceLabel:     snap.SourceLabel,
		State:           string(snap.State),
		StateLabel:      snap.State.Title(),
		Progress:        snap.Progress,
		CompletedStages: stages,
		FrameCount:      snap.FrameCount,
		ErrorKind:       snap.ErrorKind,
		ErrorMessage:    snap.ErrorMessage,
		Result:          snap.Result,
		CreatedAt:       formatTime(snap.CreatedAt),
		UpdatedAt:       formatTime(snap.UpdatedAt),
	}
}

// FromSnapshots converts a slice of snapshots.
func FromSnapshots(snaps []pipeline.Snapshot) []Run {
	out := make([]Run, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, FromSnapshot(snap))
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
