package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/proctor/internal/apperr"
)

func newEvaluateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <interview-id>",
		Short: "Trigger the evaluation of a finished interview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd, *configPath, args[0])
		},
	}
}

func runEvaluate(cmd *cobra.Command, configPath, interviewID string) error {
	ctx := context.Background()
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.dispatcher.TriggerCompletion(ctx, interviewID)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeTimeout {
			fmt.Fprintf(cmd.ErrOrStderr(), "Evaluation is still running; check later with: proctor show %s\n", interviewID)
		}
		return err
	}
	return printResult(cmd.OutOrStdout(), res)
}
