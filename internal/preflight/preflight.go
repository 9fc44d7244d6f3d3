package preflight

import (
	"context"

	"trafficlens/internal/config"
	"trafficlens/internal/stage"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Prober contacts the remote model without submitting work.
type Prober interface {
	Probe(ctx context.Context) error
}

// RunAll executes the local checks for cfg. When prober is non-nil the remote
// model is also contacted.
func RunAll(ctx context.Context, cfg *config.Config, prober Prober) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if prober != nil {
		results = append(results, CheckGemini(ctx, prober))
	}
	return results
}

// Health converts results into readiness records.
func Health(results []Result) []stage.Health {
	out := make([]stage.Health, 0, len(results))
	for _, r := range results {
		out = append(out, stage.Health{Name: r.Name, Ready: r.Passed, Detail: r.Detail})
	}
	return out
}
