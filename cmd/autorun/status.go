package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status <project-id>",
		Short: "Show the project's job state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			job, err := eng.Job(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				b, err := json.MarshalIndent(job, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal json: %w", err)
				}
				fmt.Println(string(b))
				return nil
			}

			fmt.Printf("Status    : %s\n", job.Status)
			fmt.Printf("Mode      : %s\n", job.Mode)
			fmt.Printf("Stage     : %s -> %s\n", job.CurrentDocument, job.TargetDocument)
			fmt.Printf("Steps     : %d/%d (stage loops %d/%d)\n",
				job.StepCount, job.MaxTotalSteps, job.StageLoopCount, job.MaxStageLoops)
			if job.LastAnalyzedVersionID != "" {
				fmt.Printf("Scores    : CI %d  GP %d  gap %d  readiness %d  confidence %d\n",
					job.LastCI, job.LastGP, job.LastGap, job.LastReadiness, job.LastConfidence)
			}
			if len(job.LastRiskFlags) > 0 {
				fmt.Printf("Risks     : %s\n", strings.Join(job.LastRiskFlags, ", "))
			}
			if job.PauseReason != "" {
				fmt.Printf("Paused    : %s\n", job.PauseReason)
			}
			if job.AwaitingApproval {
				fmt.Printf("Approval  : %s pending for %s\n", job.ApprovalType, job.PendingDocType)
			}
			if job.StopReason != "" {
				fmt.Printf("Reason    : %s\n", job.StopReason)
			}
			if job.Error != "" {
				fmt.Printf("Error     : %s\n", job.Error)
			}

			pending, err := eng.PendingDecisions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, d := range pending {
				fmt.Printf("Decision  : [%s] %s (%s)\n", d.Severity, d.Note, d.ID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the job as JSON")
	return cmd
}

func newStepsCmd() *cobra.Command {
	var jsonOutput bool
	var last int

	cmd := &cobra.Command{
		Use:   "steps <project-id>",
		Short: "Show the job's step log, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			steps, err := eng.Steps(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if last > 0 && len(steps) > last {
				steps = steps[len(steps)-last:]
			}

			if jsonOutput {
				b, err := json.MarshalIndent(steps, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal json: %w", err)
				}
				fmt.Println(string(b))
				return nil
			}

			for _, s := range steps {
				line := fmt.Sprintf("%3d  %-17s %-15s %s",
					s.StepIndex, s.Action, s.Document, s.Summary)
				if s.Readiness != nil {
					line += fmt.Sprintf("  [readiness %d]", *s.Readiness)
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output steps as JSON")
	cmd.Flags().IntVar(&last, "last", 0, "Show only the last N steps")
	return cmd
}
