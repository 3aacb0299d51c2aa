package cmd

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thirayume/thai-asset-zen-sub000/bot"
	"github.com/thirayume/thai-asset-zen-sub000/broker"
	"github.com/thirayume/thai-asset-zen-sub000/core"
	"github.com/thirayume/thai-asset-zen-sub000/feeds"
	"github.com/thirayume/thai-asset-zen-sub000/internal/config"
	"github.com/thirayume/thai-asset-zen-sub000/monitor"
	"github.com/thirayume/thai-asset-zen-sub000/storage"
)

var sweepWait time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Check open positions once for stop-loss and take-profit hits",
	Long: `Sweep connects the quote feed, waits briefly for fresh prices, and
runs a single monitor pass over every active position. Useful from cron when
the engine itself is not running.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().DurationVar(&sweepWait, "wait", 10*time.Second, "time to wait for quotes before the sweep")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	notifier, err := bot.NewNotifier(db, cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		return err
	}

	ctx := context.Background()
	symbols, err := core.Watchlist(ctx, db)
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		log.Info().Msg("No positions to sweep")
		return nil
	}

	quotes := feeds.NewQuoteFeed(cfg.QuoteWSURL, symbols)
	quotes.Start()
	defer quotes.Stop()

	log.Info().Int("symbols", len(symbols)).Dur("wait", sweepWait).Msg("Waiting for quotes...")
	time.Sleep(sweepWait)

	brokers := broker.NewFactory(cfg.MT5BridgeURL)
	mon := monitor.New(db, quotes, brokers, notifier)
	return mon.Sweep(ctx)
}
