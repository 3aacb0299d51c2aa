package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// HISTORY CLIENT - Daily close prices for backtests
// ═══════════════════════════════════════════════════════════════════════════════

// DateLayout is the canonical key for one trading day.
const DateLayout = "2006-01-02"

// HistoryClient fetches historical daily closes from the quote bridge
type HistoryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHistoryClient creates a history client for the given API base URL
func NewHistoryClient(baseURL string) *HistoryClient {
	return &HistoryClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type closeBar struct {
	Date  string `json:"date"`
	Close string `json:"close"`
}

// Closes returns a symbol -> date -> close price map for the given range.
// Symbols the bridge has no data for are omitted rather than failing the call.
func (c *HistoryClient) Closes(ctx context.Context, symbols []string, from, to time.Time) (map[string]map[string]decimal.Decimal, error) {
	result := make(map[string]map[string]decimal.Decimal, len(symbols))

	for _, symbol := range symbols {
		bars, err := c.fetchSymbol(ctx, symbol, from, to)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("No history for symbol, skipping")
			continue
		}

		series := make(map[string]decimal.Decimal, len(bars))
		for _, bar := range bars {
			price, err := decimal.NewFromString(bar.Close)
			if err != nil || !price.IsPositive() {
				continue
			}
			series[bar.Date] = price
		}
		result[symbol] = series
	}

	return result, nil
}

func (c *HistoryClient) fetchSymbol(ctx context.Context, symbol string, from, to time.Time) ([]closeBar, error) {
	endpoint := fmt.Sprintf("%s/history?symbol=%s&from=%s&to=%s",
		c.baseURL,
		url.QueryEscape(symbol),
		from.Format(DateLayout),
		to.Format(DateLayout),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("history request for %s: status %d: %s", symbol, resp.StatusCode, body)
	}

	var bars []closeBar
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		return nil, err
	}

	return bars, nil
}
