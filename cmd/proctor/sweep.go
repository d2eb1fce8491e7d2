package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Abandon stale in-progress interviews once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, *configPath)
		},
	}
}

func runSweep(cmd *cobra.Command, configPath string) error {
	ctx := context.Background()
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.sweeper.SweepAbandoned(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanned %d stale interviews: %d abandoned, %d claimed, %d raced\n",
		report.Scanned, len(report.Abandoned), report.SkippedClaimed, report.SkippedRaced)
	for _, id := range report.Abandoned {
		fmt.Fprintf(out, "  abandoned %s\n", id)
	}
	return nil
}
