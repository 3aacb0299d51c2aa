package core

import (
	"context"
	"sort"
	"time"

	"github.com/thirayume/thai-asset-zen-sub000/storage"
)

// Watchlist collects every symbol the engine needs live quotes for: open
// monitored positions plus pending signals. Sorted and de-duplicated.
func Watchlist(ctx context.Context, db *storage.Database) ([]string, error) {
	seen := make(map[string]bool)

	monitored, err := db.ActiveMonitored(ctx)
	if err != nil {
		return nil, err
	}
	for i := range monitored {
		seen[monitored[i].Symbol] = true
	}

	signals, err := db.PendingSignals(ctx, 0, time.Now())
	if err != nil {
		return nil, err
	}
	for i := range signals {
		seen[signals[i].Symbol] = true
	}

	symbols := make([]string, 0, len(seen))
	for s := range seen {
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}
