package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClosesFetchesSeriesPerSymbol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbol") {
		case "XYZ":
			assert.Equal(t, "2026-01-01", r.URL.Query().Get("from"))
			assert.Equal(t, "2026-01-03", r.URL.Query().Get("to"))
			json.NewEncoder(w).Encode([]closeBar{
				{Date: "2026-01-01", Close: "50.25"},
				{Date: "2026-01-02", Close: "51.00"},
				{Date: "2026-01-03", Close: "bogus"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewHistoryClient(server.URL)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)

	prices, err := client.Closes(context.Background(), []string{"XYZ", "MISSING"}, from, to)
	require.NoError(t, err)

	// The unknown symbol is skipped, not fatal.
	require.Contains(t, prices, "XYZ")
	assert.NotContains(t, prices, "MISSING")

	series := prices["XYZ"]
	require.Len(t, series, 2, "unparseable closes are dropped")
	assert.True(t, series["2026-01-01"].Equal(decimal.RequireFromString("50.25")))
	assert.True(t, series["2026-01-02"].Equal(decimal.NewFromInt(51)))
}

func TestQuoteCacheFreshness(t *testing.T) {
	feed := NewQuoteFeed("ws://unused", nil)

	_, ok := feed.CurrentPrice("XYZ")
	assert.False(t, ok)

	feed.SetPrice("XYZ", decimal.NewFromInt(100))
	price, ok := feed.CurrentPrice("XYZ")
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.NewFromInt(100)))
}

func TestQuoteMessageParsing(t *testing.T) {
	feed := NewQuoteFeed("ws://unused", nil)

	feed.processMessage([]byte(`{"type":"quote","symbol":"PTT","price":"34.75"}`))
	price, ok := feed.CurrentPrice("PTT")
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("34.75")))

	// Garbage and non-quote frames are dropped silently.
	feed.processMessage([]byte(`not json`))
	feed.processMessage([]byte(`{"type":"heartbeat"}`))
	feed.processMessage([]byte(`{"type":"quote","symbol":"BAD","price":"-1"}`))
	_, ok = feed.CurrentPrice("BAD")
	assert.False(t, ok)
}

func TestConcurrentWatchAndPingWrites(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	feed := NewQuoteFeed("ws"+strings.TrimPrefix(server.URL, "http"), []string{"PTT"})
	feed.Start()
	defer feed.Stop()

	require.Eventually(t, func() bool {
		feed.mu.RLock()
		defer feed.mu.RUnlock()
		return feed.connected
	}, 2*time.Second, 10*time.Millisecond)

	// Every Watch adds a fresh symbol, each one a resubscribe frame racing
	// the others and the ping loop on the same connection.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			feed.Watch(fmt.Sprintf("SYM-%d", i))

			feed.mu.RLock()
			conn := feed.conn
			feed.mu.RUnlock()
			feed.writePing(conn)
		}(i)
	}
	wg.Wait()

	feed.mu.RLock()
	defer feed.mu.RUnlock()
	assert.Len(t, feed.symbols, 11)
}

func TestWatchAddsSymbolsOnce(t *testing.T) {
	feed := NewQuoteFeed("ws://unused", []string{"PTT"})

	feed.Watch("PTT", "AOT", "AOT", "")
	feed.mu.RLock()
	defer feed.mu.RUnlock()
	assert.Equal(t, []string{"PTT", "AOT"}, feed.symbols)
}
