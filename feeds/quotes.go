package feeds

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// QUOTE FEED - Real-time SET / gold / forex prices
// ═══════════════════════════════════════════════════════════════════════════════
//
// Streams last-trade prices from the quote bridge over WebSocket and keeps a
// per-symbol cache. The position monitor reads the cache; a symbol with no
// fresh quote is simply skipped for that cycle.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	reconnectDelay = 5 * time.Second
	pingInterval   = 30 * time.Second

	// Quotes older than this are treated as missing.
	maxQuoteAge = 15 * time.Minute
)

// QuoteUpdate is a single price tick
type QuoteUpdate struct {
	Symbol    string
	Price     decimal.Decimal
	Timestamp time.Time
}

type quoteEntry struct {
	price decimal.Decimal
	at    time.Time
}

// QuoteFeed maintains the streaming connection and last-price cache
type QuoteFeed struct {
	mu        sync.RWMutex
	writeMu   sync.Mutex // gorilla allows at most one concurrent writer
	wsURL     string
	conn      *websocket.Conn
	connected bool
	running   bool
	stopCh    chan struct{}

	symbols []string
	quotes  map[string]quoteEntry

	subscribers []chan QuoteUpdate
}

// NewQuoteFeed creates a feed for the given bridge URL and symbol watchlist
func NewQuoteFeed(wsURL string, symbols []string) *QuoteFeed {
	return &QuoteFeed{
		wsURL:   wsURL,
		symbols: symbols,
		stopCh:  make(chan struct{}),
		quotes:  make(map[string]quoteEntry),
	}
}

// Start begins the connection loop
func (f *QuoteFeed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.connectionLoop()
	log.Info().Str("url", f.wsURL).Int("symbols", len(f.symbols)).Msg("📈 Quote feed started")
}

// Stop closes the feed
func (f *QuoteFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)

	if f.conn != nil {
		f.conn.Close()
	}
	log.Info().Msg("Quote feed stopped")
}

// Subscribe returns a channel that receives price ticks
func (f *QuoteFeed) Subscribe() chan QuoteUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan QuoteUpdate, 100)
	f.subscribers = append(f.subscribers, ch)
	return ch
}

// CurrentPrice returns the latest fresh price for a symbol. The second return
// is false when no usable quote exists.
func (f *QuoteFeed) CurrentPrice(symbol string) (decimal.Decimal, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	q, ok := f.quotes[symbol]
	if !ok || time.Since(q.at) > maxQuoteAge {
		return decimal.Zero, false
	}
	return q.price, true
}

// Watch adds symbols to the watchlist and, when connected, resubscribes so
// the bridge starts streaming them. Already-watched symbols are ignored.
func (f *QuoteFeed) Watch(symbols ...string) {
	f.mu.Lock()
	known := make(map[string]bool, len(f.symbols))
	for _, s := range f.symbols {
		known[s] = true
	}
	added := false
	for _, s := range symbols {
		if s != "" && !known[s] {
			f.symbols = append(f.symbols, s)
			known[s] = true
			added = true
		}
	}
	conn := f.conn
	connected := f.connected
	watchlist := f.symbols
	f.mu.Unlock()

	if !added || !connected || conn == nil {
		return
	}
	sub := map[string]interface{}{
		"type":    "subscribe",
		"symbols": watchlist,
	}
	if err := f.writeJSON(conn, sub); err != nil {
		log.Warn().Err(err).Msg("Watchlist resubscribe failed")
	}
}

// writeJSON funnels every outbound frame through one mutex. The ping loop,
// Watch resubscribes and the connect handshake all share the connection.
func (f *QuoteFeed) writeJSON(conn *websocket.Conn, v interface{}) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (f *QuoteFeed) writePing(conn *websocket.Conn) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return conn.WriteMessage(websocket.PingMessage, nil)
}

// SetPrice seeds the cache directly. Used by replay tooling and tests.
func (f *QuoteFeed) SetPrice(symbol string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[symbol] = quoteEntry{price: price, at: time.Now()}
}

// connectionLoop maintains the WebSocket connection
func (f *QuoteFeed) connectionLoop() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		if err := f.connect(); err != nil {
			log.Error().Err(err).Msg("Quote connection failed, retrying...")
			time.Sleep(reconnectDelay)
			continue
		}

		f.readLoop()
		time.Sleep(reconnectDelay)
	}
}

// connect dials the bridge and subscribes the watchlist
func (f *QuoteFeed) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	f.mu.Unlock()

	log.Info().Msg("🔌 Quote WebSocket connected")

	sub := map[string]interface{}{
		"type":    "subscribe",
		"symbols": f.symbols,
	}
	if err := f.writeJSON(conn, sub); err != nil {
		return err
	}

	go f.pingLoop()
	return nil
}

// pingLoop keeps the connection alive
func (f *QuoteFeed) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.mu.RLock()
			conn := f.conn
			connected := f.connected
			f.mu.RUnlock()

			if connected && conn != nil {
				f.writePing(conn)
			}
		}
	}
}

// readLoop consumes ticks until the connection drops
func (f *QuoteFeed) readLoop() {
	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("Quote read error")
			f.mu.Lock()
			f.connected = false
			f.mu.Unlock()
			return
		}

		f.processMessage(message)
	}
}

// wsQuote is a tick message from the bridge
type wsQuote struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Time   int64  `json:"time"` // unix millis
}

func (f *QuoteFeed) processMessage(data []byte) {
	var msg wsQuote
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Type != "quote" || msg.Symbol == "" {
		return
	}

	price, err := decimal.NewFromString(msg.Price)
	if err != nil || !price.IsPositive() {
		return
	}

	at := time.Now()
	if msg.Time > 0 {
		at = time.UnixMilli(msg.Time)
	}

	f.mu.Lock()
	f.quotes[msg.Symbol] = quoteEntry{price: price, at: at}
	subs := f.subscribers
	f.mu.Unlock()

	update := QuoteUpdate{Symbol: msg.Symbol, Price: price, Timestamp: at}
	for _, ch := range subs {
		select {
		case ch <- update:
		default: // drop tick for slow subscribers
		}
	}
}
