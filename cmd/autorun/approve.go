package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/draftline/autorun"
)

func newApproveCmd() *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "approve <project-id> [approve|revise|stop]",
		Short: "Answer a pending promotion approval",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			decision := autorun.ApproveAccept
			if len(args) == 2 {
				decision = autorun.ApprovalDecision(args[1])
			}
			if decision == autorun.ApproveRevise && strings.TrimSpace(note) == "" {
				return fmt.Errorf("revise requires --note with the revision feedback")
			}

			eng, err := openEngine()
			if err != nil {
				return err
			}
			job, err := eng.ApproveNext(cmd.Context(), args[0], decision, note)
			if err != nil {
				return err
			}
			fmt.Printf("%s: job now %s\n", decision, job.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "Revision feedback (required for revise)")
	return cmd
}

func newDecideCmd() *cobra.Command {
	var optionID string
	var text string

	cmd := &cobra.Command{
		Use:   "decide <project-id> <decision-id>",
		Short: "Resolve a pending decision",
		Long: `Resolve a pending decision with one of its option ids, or with
--option other plus --text for a free-form resolution. Use "autorun
status" to list pending decisions and their ids.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if optionID == "" {
				return fmt.Errorf("--option is required")
			}
			eng, err := openEngine()
			if err != nil {
				return err
			}
			d, err := eng.ApproveDecision(cmd.Context(), args[0], args[1], optionID, text)
			if err != nil {
				return err
			}
			fmt.Printf("resolved %s -> %s\n", d.NoteID, d.Directive)
			return nil
		},
	}

	cmd.Flags().StringVar(&optionID, "option", "", "Option id, or \"other\"")
	cmd.Flags().StringVar(&text, "text", "", "Free-form resolution (with --option other)")
	return cmd
}

func newDriftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Inspect and resolve drift events",
		RunE:  func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newDriftListCmd())
	cmd.AddCommand(newDriftAckCmd())
	cmd.AddCommand(newDriftResolveCmd())
	return cmd
}

func newDriftListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List unresolved drift events",
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
			v, err := eng.Storage().LatestVersion(cmd.Context(), job.ProjectID, job.CurrentDocument)
			if err != nil {
				return err
			}
			if v == nil {
				return nil
			}
			events, err := eng.Storage().OpenDriftEvents(cmd.Context(), v.DocumentID)
			if err != nil {
				return err
			}
			for _, ev := range events {
				fmt.Printf("%s  %-5s %s\n", ev.ID, ev.Level, ev.DocumentID)
				for _, item := range ev.Items {
					fmt.Printf("      %-12s %3d  %q -> %q\n",
						item.Field, item.Similarity, item.Inherited, item.Current)
				}
			}
			return nil
		},
	}
}

func newDriftAckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ack <project-id> <event-id>",
		Short: "Acknowledge a drift event without resolving it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			return eng.AcknowledgeDrift(cmd.Context(), args[0], args[1])
		},
	}
}

func newDriftResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <project-id> <event-id> <accept_drift|intentional_pivot|reseed>",
		Short: "Resolve a drift event",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			ev, err := eng.ResolveDrift(cmd.Context(), args[0], args[1],
				autorun.DriftResolution(args[2]))
			if err != nil {
				return err
			}
			fmt.Printf("resolved %s as %s\n", ev.ID, ev.ResolutionType)
			return nil
		},
	}
}
