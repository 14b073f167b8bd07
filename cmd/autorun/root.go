// Command autorun is the operator console for pipeline jobs: inspect
// status and history, answer approvals, decisions and drift, and steer
// the lifecycle. It never advances jobs itself; that is the background
// runner's job inside the host process.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/draftline/autorun"
)

var dbPath string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "autorun",
		Short:         "Operator console for pipeline jobs",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", envOr("AUTORUN_DB", "autorun.db"),
		"path to the sqlite database")

	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStepsCmd())
	cmd.AddCommand(newApproveCmd())
	cmd.AddCommand(newDecideCmd())
	cmd.AddCommand(newDriftCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newForcePromoteCmd())
	cmd.AddCommand(newSetStageCmd())
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// openEngine opens the database and builds a read/steer engine. No
// collaborators are wired: the console answers humans, it does not
// generate documents.
func openEngine() (*autorun.Engine, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	store := autorun.NewGormStorage(db)
	eng := autorun.NewEngine(store,
		autorun.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		}))),
	)
	return eng, nil
}
