package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/proctor/internal/apperr"
	"github.com/zulandar/proctor/internal/evaluation"
	"github.com/zulandar/proctor/internal/interview"
)

func newShowCmd(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <interview-id>",
		Short: "Show an interview and its evaluation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, *configPath, args[0], asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the evaluation as JSON")
	return cmd
}

func runShow(cmd *cobra.Command, configPath, interviewID string, asJSON bool) error {
	_, _, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}

	ctx := context.Background()
	iv, err := interview.NewStore(gormDB).Get(ctx, interviewID)
	if err != nil {
		return err
	}
	res, err := evaluation.NewStore(gormDB).Get(ctx, interviewID)
	if err != nil && apperr.CodeOf(err) != apperr.CodeNotFound {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(out, "Interview %s (%s)\n", iv.ID, iv.Status)
	fmt.Fprintf(out, "  join code:  %s\n", iv.JoinCode)
	fmt.Fprintf(out, "  candidate:  %s\n", iv.CandidateID)
	if iv.DurationSeconds != nil {
		fmt.Fprintf(out, "  recording:  %ds %s\n", *iv.DurationSeconds, iv.RecordingURL)
	}
	fmt.Fprintln(out)
	if res == nil {
		fmt.Fprintln(out, "No evaluation yet.")
		return nil
	}
	return printResult(out, res)
}

func printResult(out io.Writer, res *evaluation.Result) error {
	d := res.Decision
	status := ""
	if res.Degraded {
		status = " (degraded)"
	}
	fmt.Fprintf(out, "Recommendation: %s%s\n", d.Recommendation, status)
	fmt.Fprintf(out, "Overall score:  %.1f/10\n", d.OverallScore)
	if res.Technical != nil {
		fmt.Fprintf(out, "Technical:      %.1f/10\n", res.Technical.Score)
	}
	if res.Communication != nil {
		fmt.Fprintf(out, "Communication:  %.1f/10\n", res.Communication.Score)
	}
	fmt.Fprintf(out, "\n%s\n", d.Reasoning)
	if len(d.NextSteps) > 0 {
		fmt.Fprintf(out, "\nNext steps:\n  - %s\n", strings.Join(d.NextSteps, "\n  - "))
	}
	return nil
}
