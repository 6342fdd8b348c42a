package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what the checkpoint holds",
		Long: `Loads the configured checkpoint without touching the network and prints
the collected total, word counts, the most recently saved books and, when
Postgres is configured, recent harvest runs.`,
		RunE: runStatusCommand,
	}
	cmd.Flags().Int("recent", 10, "number of recently saved books to list")
	cmd.Flags().Int("runs", 5, "number of recent runs to list when run history is available")
	return cmd
}

func runStatusCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	recent, _ := cmd.Flags().GetInt("recent")
	runLimit, _ := cmd.Flags().GetInt("runs")

	res := &resources{logger: a.logger}
	defer res.Close()

	pool, err := openPool(ctx, a.cfg, res)
	if err != nil {
		return err
	}
	cp, err := openCheckpoint(ctx, a.cfg, pool, a.logger)
	if err != nil {
		return err
	}
	res.add(cp.Close)

	out := cmd.OutOrStdout()
	renderCheckpoint(out, cp.Records(), a.cfg.Harvest.TargetBooks, recent)

	runs, err := openRunStore(ctx, a.cfg, pool)
	if err != nil {
		return err
	}
	if runs == nil || runLimit <= 0 {
		return nil
	}
	history, err := runs.ListRuns(ctx, runLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	renderRuns(out, history)
	return nil
}
