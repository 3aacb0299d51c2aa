package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "zenbot",
	Short: "Automated trading engine for Thai stocks, gold and forex",
	Long: `Zenbot executes portfolio suggestions automatically within per-user
risk limits.

It provides tools for:
  - Running the live trading engine (paper or MT5)
  - Backtesting the bot configuration against historical signals
  - Sweeping open positions once for stop-loss / take-profit checks`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		bootstrap()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		log.Error().Err(err).Msg("Command failed")
	}
	return err
}

// bootstrap loads .env and configures logging before any command runs.
func bootstrap() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
