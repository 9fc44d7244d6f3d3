package main

import (
	"fmt"
	"strings"

	"trafficlens/internal/pipeline"
)

const runTimeLayout = "2006-01-02 15:04:05"

// stageRows lists every stage with its outcome. On a failed run the first
// incomplete stage is the one that failed.
func stageRows(snap pipeline.Snapshot) [][]string {
	done := make(map[pipeline.Stage]bool, len(snap.CompletedStages))
	for _, st := range snap.CompletedStages {
		done[st] = true
	}
	rows := make([][]string, 0, pipeline.StageCount)
	failedMarked := false
	for _, st := range pipeline.Stages() {
		status := "pending"
		switch {
		case done[st]:
			status = "done"
		case snap.State == pipeline.StateFailed && !failedMarked:
			status = "failed"
			failedMarked = true
		case snap.State == pipeline.StateRunning && !failedMarked:
			status = "running"
			failedMarked = true
		}
		rows = append(rows, []string{st.Name(), status, st.Description()})
	}
	return rows
}

func runListRows(snaps []pipeline.Snapshot) [][]string {
	rows := make([][]string, 0, len(snaps))
	for _, snap := range snaps {
		rows = append(rows, []string{
			shortID(snap.ID),
			snap.SourceLabel,
			snap.State.Title(),
			fmt.Sprintf("%.0f%%", snap.Progress),
			fmt.Sprintf("%d/%d", len(snap.CompletedStages), pipeline.StageCount),
			snap.CreatedAt.Local().Format(runTimeLayout),
		})
	}
	return rows
}

func describeRun(snap pipeline.Snapshot) []string {
	lines := []string{
		fmt.Sprintf("Run:      %s", snap.ID),
		fmt.Sprintf("Source:   %s", snap.SourceLabel),
		fmt.Sprintf("State:    %s (%.0f%%)", snap.State.Title(), snap.Progress),
		fmt.Sprintf("Frames:   %d", snap.FrameCount),
		fmt.Sprintf("Created:  %s", snap.CreatedAt.Local().Format(runTimeLayout)),
		fmt.Sprintf("Updated:  %s", snap.UpdatedAt.Local().Format(runTimeLayout)),
	}
	if snap.ErrorMessage != "" {
		lines = append(lines, fmt.Sprintf("Error:    %s (%s)", snap.ErrorMessage, snap.ErrorKind))
	}
	return lines
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
