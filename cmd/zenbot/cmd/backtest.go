package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/thirayume/thai-asset-zen-sub000/backtest"
	"github.com/thirayume/thai-asset-zen-sub000/feeds"
	"github.com/thirayume/thai-asset-zen-sub000/internal/config"
	"github.com/thirayume/thai-asset-zen-sub000/storage"
	"github.com/thirayume/thai-asset-zen-sub000/types"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical signals through a bot configuration",
	Long: `Backtest replays the stored signal history against daily closes and
reports what the bot configuration would have done.

Example:
  zenbot backtest --user u-123 --start 2026-01-01 --end 2026-06-30 --capital 100000`,
	RunE: runBacktestCmd,
}

var (
	btUserID    string
	btStart     string
	btEnd       string
	btCapital   float64
	btBenchmark string
	btJSON      bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btUserID, "user", "u", "", "user ID whose bot configuration to replay (required)")
	backtestCmd.Flags().StringVar(&btStart, "start", "", "first day, YYYY-MM-DD (required)")
	backtestCmd.Flags().StringVar(&btEnd, "end", "", "last day, YYYY-MM-DD (required)")
	backtestCmd.Flags().Float64VarP(&btCapital, "capital", "c", 100_000, "starting capital in baht")
	backtestCmd.Flags().StringVar(&btBenchmark, "benchmark", "", "buy-and-hold reference symbol (default from config)")
	backtestCmd.Flags().BoolVar(&btJSON, "json", false, "print the full result as JSON")

	backtestCmd.MarkFlagRequired("user")
	backtestCmd.MarkFlagRequired("start")
	backtestCmd.MarkFlagRequired("end")
}

func runBacktestCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if btBenchmark == "" {
		btBenchmark = cfg.BenchmarkSymbol
	}

	start, err := time.Parse(feeds.DateLayout, btStart)
	if err != nil {
		return fmt.Errorf("bad start date %q: %w", btStart, err)
	}
	end, err := time.Parse(feeds.DateLayout, btEnd)
	if err != nil {
		return fmt.Errorf("bad end date %q: %w", btEnd, err)
	}

	db, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	userBot, err := db.GetBot(ctx, btUserID)
	if err != nil {
		return fmt.Errorf("load bot config: %w", err)
	}
	botCfg := userBot.Config()

	rows, err := db.SignalsBetween(ctx, start, end.Add(24*time.Hour-time.Nanosecond))
	if err != nil {
		return fmt.Errorf("load signals: %w", err)
	}

	symbols := []string{btBenchmark}
	seen := map[string]bool{btBenchmark: true}

	domain := make([]types.Signal, 0, len(rows))
	for i := range rows {
		sig := rows[i].Domain()
		domain = append(domain, sig)
		if !seen[sig.Symbol] {
			seen[sig.Symbol] = true
			symbols = append(symbols, sig.Symbol)
		}
	}

	history := feeds.NewHistoryClient(cfg.QuoteAPIURL)
	prices, err := history.Closes(ctx, symbols, start, end)
	if err != nil {
		return fmt.Errorf("load price history: %w", err)
	}

	result, err := backtest.Run(backtest.Input{
		StartDate:       start,
		EndDate:         end,
		InitialCapital:  decimal.NewFromFloat(btCapital),
		Config:          botCfg,
		Signals:         domain,
		Prices:          prices,
		BenchmarkSymbol: btBenchmark,
	})
	if err != nil {
		return err
	}

	if btJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printSummary(result)
	return nil
}

func printSummary(r *backtest.Result) {
	fmt.Printf("\nBacktest Complete!\n")
	fmt.Printf("  Initial Capital: ฿%s\n", r.InitialCapital.StringFixed(2))
	fmt.Printf("  Final Value:     ฿%s\n", r.FinalValue.StringFixed(2))
	fmt.Printf("  Total Return:    %.2f%%\n", r.TotalReturn)
	fmt.Printf("  Benchmark:       %.2f%%\n", r.Benchmark)
	fmt.Printf("\n")
	fmt.Printf("  Trades:          %d (%d completed)\n", r.TotalTrades, r.CompletedTrades)
	fmt.Printf("  Win Rate:        %.1f%% (%d W / %d L)\n", r.WinRate, r.Wins, r.Losses)
	fmt.Printf("  Profit Factor:   %.2f\n", r.ProfitFactor)
	fmt.Printf("  Max Drawdown:    %.2f%%\n", r.MaxDrawdown)
	fmt.Printf("  Sharpe Ratio:    %.2f\n", r.SharpeRatio)
}
