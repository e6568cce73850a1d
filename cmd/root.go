package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kozaktomas/punch-clock/internal/config"
	"github.com/kozaktomas/punch-clock/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "punch-clock",
	Short: "Facial-verified time clock service",
	Long: `Punch Clock authorizes employee time punches. Every punch is checked
against the allowed work locations, verified with a face match against the
employee's enrolled references and recorded at most once per ledger slot,
together with an audit record of the verification attempt.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
	logging.Init(config.Load().Log)
}
