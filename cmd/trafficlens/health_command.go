package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"trafficlens/internal/api"
	"trafficlens/internal/daemonrun"
	"trafficlens/internal/preflight"
	"trafficlens/internal/stage"
)

var errUnhealthy = errors.New("one or more health checks failed")

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var live bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check directories, decoder binaries, and the Gemini credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.commandLogger(false)
			if err != nil {
				return err
			}
			return ctx.withComponents(logger, func(c *daemonrun.Components) error {
				checks := c.Health(cmd.Context())
				if live {
					checks = append(checks, preflight.Health([]preflight.Result{
						preflight.CheckGemini(cmd.Context(), c.Adapter),
					})...)
				}
				ready := stage.AllReady(checks)

				if jsonOutput {
					status := "ok"
					if !ready {
						status = "degraded"
					}
					if err := writeJSON(cmd, api.HealthResponse{Status: status, Checks: checks}); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					colorize := shouldColorize(out)
					for _, check := range checks {
						kind := statusOK
						if !check.Ready {
							kind = statusError
						}
						fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
					}
				}
				if !ready {
					return errUnhealthy
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "Also contact the Gemini API to verify the key")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON")
	return cmd
}
