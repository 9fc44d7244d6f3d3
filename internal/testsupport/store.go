package testsupport

import (
	"context"
	"testing"
	"time"

	"trafficlens/internal/config"
	"trafficlens/internal/pipeline"
	"trafficlens/internal/runstore"
)

// MustOpenStore opens a runstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *runstore.Store {
	t.Helper()

	store, err := runstore.Open(cfg)
	if err != nil {
		t.Fatalf("runstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// InsertRun stores a snapshot with the given state and completed stage count.
func InsertRun(t testing.TB, store *runstore.Store, id, label string, state pipeline.State, completed int) pipeline.Snapshot {
	t.Helper()

	now := time.Now().UTC()
	stages := pipeline.Stages()[:completed]
	snap := pipeline.Snapshot{
		ID:              id,
		SourceLabel:     label,
		State:           state,
		CompletedStages: stages,
		Progress:        100 * float64(completed) / float64(pipeline.StageCount),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := store.Create(context.Background(), snap); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return snap
}
