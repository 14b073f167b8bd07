package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <project-id>",
		Short: "Pause a running job after its current step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			job, err := eng.Pause(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("job %s\n", job.Status)
			return nil
		},
	}
}

func newResumeCmd() *cobra.Command {
	var pinDocument string
	var pinVersion string

	cmd := &cobra.Command{
		Use:   "resume <project-id>",
		Short: "Resume a paused or stopped job",
		Long: `Resume a paused or stopped job. By default the job follows the
newest version of its current document. Use --document/--version to
pin an explicit resume source instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			if pinDocument != "" || pinVersion != "" {
				if pinDocument == "" || pinVersion == "" {
					return fmt.Errorf("--document and --version must be set together")
				}
				if _, err := eng.SetResumeSource(cmd.Context(), args[0], pinDocument, pinVersion); err != nil {
					return err
				}
			}
			job, err := eng.Resume(cmd.Context(), args[0], pinDocument == "")
			if err != nil {
				return err
			}
			fmt.Printf("job %s at %s\n", job.Status, job.CurrentDocument)
			return nil
		},
	}

	cmd.Flags().StringVar(&pinDocument, "document", "", "Pin the resume source document id")
	cmd.Flags().StringVar(&pinVersion, "version", "", "Pin the resume source version id")
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <project-id>",
		Short: "Stop a job; any in-flight step result is discarded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			job, err := eng.Stop(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("job %s\n", job.Status)
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear <project-id>",
		Short: "Delete a non-running job and its step log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("clear deletes the job and its history; re-run with --yes")
			}
			eng, err := openEngine()
			if err != nil {
				return err
			}
			if err := eng.Clear(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("cleared")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}

func newForcePromoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force-promote <project-id>",
		Short: "Skip the promotion gate once (clears hard gates, approves pending)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			job, err := eng.ForcePromote(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("job %s at %s\n", job.Status, job.CurrentDocument)
			return nil
		},
	}
}

func newSetStageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-stage <project-id> <stage>",
		Short: "Move the job to an arbitrary ladder stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			job, err := eng.SetStage(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("job %s at %s\n", job.Status, job.CurrentDocument)
			return nil
		},
	}
}
