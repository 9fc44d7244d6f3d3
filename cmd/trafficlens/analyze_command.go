package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"trafficlens/internal/analysis"
	"trafficlens/internal/api"
	"trafficlens/internal/daemonrun"
	"trafficlens/internal/pipeline"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var frameCount int
	var noDwell bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "analyze <video>",
		Short: "Sample a local video and analyze its traffic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if frameCount < 0 {
				return fmt.Errorf("--frames must be positive")
			}
			if frameCount > 0 {
				cfg.Sampler.FrameCount = frameCount
			}
			logger, err := ctx.commandLogger(verbose)
			if err != nil {
				return err
			}

			var opts []daemonrun.BuildOption
			if noDwell {
				opts = append(opts, daemonrun.WithDwell(pipeline.Dwell{}))
			}

			path := args[0]
			return ctx.withComponents(logger, func(c *daemonrun.Components) error {
				run, res, runErr := c.Service.AnalyzeVideo(cmd.Context(), path, filepath.Base(path))
				if jsonOutput {
					if runErr != nil {
						return runErr
					}
					return writeJSON(cmd, api.VideoResponse{Run: api.FromSnapshot(run.Snapshot()), Result: res})
				}

				out := cmd.OutOrStdout()
				if run != nil {
					fmt.Fprint(out, renderTable([]string{"Stage", "Status", "Description"}, stageRows(run.Snapshot()), nil))
				}
				if runErr != nil {
					return analyzeError(runErr)
				}
				fmt.Fprintf(out, "Run %s\n", run.ID())
				for _, line := range res.Summary() {
					fmt.Fprintln(out, line)
				}
				return nil
			}, opts...)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the run and result as JSON")
	cmd.Flags().IntVar(&frameCount, "frames", 0, "Frames to sample (defaults to sampler.frame_count)")
	cmd.Flags().BoolVar(&noDwell, "no-dwell", false, "Skip the stage pacing delays")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Mirror logs to stderr")
	return cmd
}

// analyzeError appends the credential setup link when the failure calls
// for one.
func analyzeError(err error) error {
	if link := analysis.SetupLink(err); link != "" {
		return fmt.Errorf("%w (get a key at %s)", err, link)
	}
	return err
}
