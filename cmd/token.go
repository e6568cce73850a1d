package cmd

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/punch-clock/internal/config"
	"github.com/kozaktomas/punch-clock/internal/web/middleware"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token",
	Long: `Issue a signed bearer token for the API using WEB_TOKEN_SECRET. Tokens are
normally issued by the identity service; this command is for operations and
testing.`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("subject", "", "Employee or admin ID")
	tokenCmd.Flags().String("role", string(middleware.RoleEmployee), "employee or admin")
	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (default 12h)")
}

func runToken(cmd *cobra.Command, args []string) error {
	subject := mustGetString(cmd, "subject")
	role := middleware.Role(mustGetString(cmd, "role"))
	ttl, err := cmd.Flags().GetDuration("ttl")
	if err != nil {
		return err
	}
	if subject == "" {
		return errors.New("--subject is required")
	}

	cfg := config.Load()
	tm, err := middleware.NewTokenManager(cfg.Web.TokenSecret)
	if err != nil {
		return fmt.Errorf("WEB_TOKEN_SECRET: %w", err)
	}
	token, err := tm.Issue(subject, role, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
