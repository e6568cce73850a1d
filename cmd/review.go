package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/punch-clock/internal/audit"
	"github.com/kozaktomas/punch-clock/internal/config"
	"github.com/kozaktomas/punch-clock/internal/database"
	"github.com/kozaktomas/punch-clock/internal/database/postgres"
	"github.com/spf13/cobra"
)

var reviewCmd = &cobra.Command{
	Use:   "review <audit-id>",
	Short: "Approve or reject an audit record",
	Long: `Record an admin decision on an audit record. The linked time entry is not
changed; the decision only documents the review of the verification attempt.`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.Flags().String("decision", "", "approved or rejected")
	reviewCmd.Flags().String("reviewer", "", "ID of the reviewing admin")
	reviewCmd.Flags().Bool("json", false, "Output the reviewed record as JSON")
}

func runReview(cmd *cobra.Command, args []string) error {
	decision := database.AuditStatus(mustGetString(cmd, "decision"))
	reviewer := mustGetString(cmd, "reviewer")
	jsonOutput := mustGetBool(cmd, "json")
	if reviewer == "" {
		return errors.New("--reviewer is required")
	}

	cfg := config.Load()
	ctx := context.Background()
	store, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer postgres.GetGlobalPool().Close()

	trail := audit.NewTrail(store)
	if err := trail.Review(ctx, args[0], decision, reviewer); err != nil {
		return err
	}
	rec, err := trail.Get(ctx, args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	fmt.Printf("Audit %s marked %s by %s\n", rec.ID, rec.Status, reviewer)
	return nil
}
