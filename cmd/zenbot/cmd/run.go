package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thirayume/thai-asset-zen-sub000/bot"
	"github.com/thirayume/thai-asset-zen-sub000/broker"
	"github.com/thirayume/thai-asset-zen-sub000/core"
	"github.com/thirayume/thai-asset-zen-sub000/execution"
	"github.com/thirayume/thai-asset-zen-sub000/feeds"
	"github.com/thirayume/thai-asset-zen-sub000/internal/config"
	"github.com/thirayume/thai-asset-zen-sub000/monitor"
	"github.com/thirayume/thai-asset-zen-sub000/risk"
	"github.com/thirayume/thai-asset-zen-sub000/storage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the live trading engine until interrupted",
	RunE:  runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log.Info().Msg("═══════════════════════════════════════════════════════════════")
	log.Info().Msg("              ZENBOT - AUTO TRADING ENGINE")
	log.Info().Msg("═══════════════════════════════════════════════════════════════")

	// 1. Storage
	db, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info().Msg("✅ Storage layer initialized")

	// 2. Notifier (persist-only without a Telegram token)
	notifier, err := bot.NewNotifier(db, cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		return err
	}
	log.Info().Msg("✅ Notifier initialized")

	// 3. Quote feed; the engine fills the watchlist on start
	quotes := feeds.NewQuoteFeed(cfg.QuoteWSURL, nil)
	log.Info().Msg("✅ Quote feed initialized")

	// 4. Brokers
	brokers := broker.NewFactory(cfg.MT5BridgeURL)
	log.Info().Msg("✅ Broker factory initialized")

	// 5. Safety gate
	gate := risk.NewGate(db, notifier, nil)
	log.Info().Msg("✅ Safety gate initialized")

	// 6. Executor and monitor
	executor := execution.New(db, brokers, notifier, execution.DefaultConfig())
	mon := monitor.New(db, quotes, brokers, notifier)
	log.Info().Msg("✅ Execution layer initialized")

	// 7. Core engine
	engine := core.NewEngine(db, gate, executor, mon, quotes, cfg.SweepInterval, cfg.MonitorInterval)
	log.Info().Msg("✅ Core engine initialized")

	notifier.SetControlCallbacks(engine.Pause, engine.Resume, engine.Status)
	notifier.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.Start(ctx)

	log.Info().Msg("🚀 All systems running...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("🛑 Shutting down...")
	engine.Stop()
	notifier.Stop()

	log.Info().Msg("👋 Goodbye!")
	return nil
}
