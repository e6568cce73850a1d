package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/punch-clock/internal/audit"
	"github.com/kozaktomas/punch-clock/internal/config"
	"github.com/kozaktomas/punch-clock/internal/database/postgres"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Create fallback audit records for time entries without one",
	Long: `Scan for time entries that have no linked audit record, which happens when
a process dies between storing an entry and linking its audit, and create a
pending fallback audit for each so that an admin reviews it.`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().Bool("quiet", false, "Do not show a progress bar")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()
	quiet := mustGetBool(cmd, "quiet")

	store, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer postgres.GetGlobalPool().Close()

	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if quiet {
			return
		}
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Reconciling"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetItsString("entries"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionFullWidth(),
			)
		}
		bar.ChangeMax(total)
		bar.Set(done)
	}

	count, err := audit.NewTrail(store).ReconcileOrphans(ctx, progress)
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	fmt.Printf("Created %d fallback audit record(s)\n", count)
	return nil
}
