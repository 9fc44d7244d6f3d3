package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"trafficlens/internal/api"
	"trafficlens/internal/runstore"
	"trafficlens/internal/services"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect analysis run history",
	}
	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *runstore.Store) error {
				snaps, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.RunList{Runs: api.FromSnapshots(snaps), Stats: stats})
				}

				out := cmd.OutOrStdout()
				if len(snaps) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				headers := []string{"ID", "Source", "State", "Progress", "Stages", "Created"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}
				fmt.Fprint(out, renderTable(headers, runListRows(snaps), aligns))
				fmt.Fprintf(out, "%d total: %d succeeded, %d failed, %d running\n",
					stats.Total, stats.Succeeded, stats.Failed, stats.Running)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its stages and result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *runstore.Store) error {
				snap, err := store.Get(cmd.Context(), args[0])
				if errors.Is(err, services.ErrNotFound) {
					return fmt.Errorf("run %s not found", args[0])
				}
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.FromSnapshot(*snap))
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range describeRun(*snap) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Outcome", stateKind(snap.State), snap.State.Title(), colorize))
				fmt.Fprint(out, renderTable([]string{"Stage", "Status", "Description"}, stageRows(*snap), nil))
				if snap.Result != nil {
					for _, line := range snap.Result.Summary() {
						fmt.Fprintln(out, line)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON")
	return cmd
}
