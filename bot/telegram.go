package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/thirayume/thai-asset-zen-sub000/storage"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM NOTIFIER - Trading alerts & control
// ═══════════════════════════════════════════════════════════════════════════════
//
// Features:
//   🔔 Trade and exit notifications
//   🛑 Bot-disabled alerts with the denial reason
//   💼 Open position summaries
//   🎛️ Control commands (/status, /pause, /resume, /positions, /alerts)
//
// Every alert is persisted first; the Telegram send is fire-and-forget so a
// flaky network never blocks the trading path. Without a token the notifier
// runs in persist-only mode.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Notifier persists alerts and mirrors them to a Telegram chat.
type Notifier struct {
	mu      sync.RWMutex
	api     *tgbotapi.BotAPI
	chatID  int64
	db      *storage.Database
	running bool
	stopCh  chan struct{}

	// Control callbacks
	onPause  func()
	onResume func()
	status   func() string
}

// NewNotifier creates a notifier. An empty token yields a persist-only
// notifier that never touches Telegram.
func NewNotifier(db *storage.Database, token string, chatID int64) (*Notifier, error) {
	n := &Notifier{
		db:     db,
		chatID: chatID,
		stopCh: make(chan struct{}),
	}

	if token == "" {
		log.Warn().Msg("No Telegram token, alerts are persist-only")
		return n, nil
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	n.api = api

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram notifier initialized")
	return n, nil
}

// SetControlCallbacks sets the pause/resume handlers and the status line
// provider used by /status.
func (n *Notifier) SetControlCallbacks(onPause, onResume func(), status func() string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onPause = onPause
	n.onResume = onResume
	n.status = status
}

// Start begins listening for commands. No-op in persist-only mode.
func (n *Notifier) Start() {
	n.mu.Lock()
	if n.running || n.api == nil {
		n.mu.Unlock()
		return
	}
	n.running = true
	n.mu.Unlock()

	go n.commandLoop()
	log.Info().Msg("📱 Telegram notifier started")
}

// Stop stops the command loop.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return
	}

	n.running = false
	close(n.stopCh)
	log.Info().Msg("Telegram notifier stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// ALERTS
// ═══════════════════════════════════════════════════════════════════════════════

// RaiseAlert persists the alert and mirrors it to Telegram. Never returns an
// error; failures on either side are logged only.
func (n *Notifier) RaiseAlert(ctx context.Context, userID, kind, message string, fields map[string]string) {
	alert := &storage.Alert{
		UserID:    userID,
		Kind:      kind,
		Message:   message,
		CreatedAt: time.Now(),
	}
	if len(fields) > 0 {
		if raw, err := json.Marshal(fields); err == nil {
			alert.Context = string(raw)
		}
	}
	if err := n.db.SaveAlert(ctx, alert); err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("Failed to persist alert")
	}

	if n.api == nil {
		return
	}
	go n.sendMarkdown(fmt.Sprintf("%s *%s*\n\n%s", emojiFor(kind), strings.ToUpper(kind), message))
}

func emojiFor(kind string) string {
	switch kind {
	case "trade_executed":
		return "✅"
	case "position_exited":
		return "💰"
	case "bot_disabled":
		return "🛑"
	case "trade_failed", "exit_failed":
		return "❌"
	case "trade_rejected":
		return "🚫"
	case "order_pending":
		return "⏳"
	default:
		return "🔔"
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (n *Notifier) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := n.api.GetUpdatesChan(u)

	for {
		select {
		case <-n.stopCh:
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			// Only respond to the authorized chat
			if update.Message.Chat.ID != n.chatID {
				continue
			}

			n.handleCommand(update.Message)
		}
	}
}

func (n *Notifier) handleCommand(msg *tgbotapi.Message) {
	cmd := strings.ToLower(msg.Command())

	switch cmd {
	case "start", "help":
		n.cmdHelp()
	case "status":
		n.cmdStatus()
	case "positions":
		n.cmdPositions()
	case "alerts":
		n.cmdAlerts()
	case "pause":
		n.cmdPause()
	case "resume":
		n.cmdResume()
	case "ping":
		n.send("🏓 Pong!")
	default:
		n.send("❓ Unknown command. Use /help")
	}
}

func (n *Notifier) cmdHelp() {
	msg := `🤖 *ZENBOT COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Engine status
💼 /positions — Open positions
🔔 /alerts — Recent alerts
⏸️ /pause — Pause trading
▶️ /resume — Resume trading
🏓 /ping — Test connection`

	n.sendMarkdown(msg)
}

func (n *Notifier) cmdStatus() {
	n.mu.RLock()
	status := n.status
	n.mu.RUnlock()

	line := "🟢 RUNNING"
	if status != nil {
		line = status()
	}

	n.sendMarkdown(fmt.Sprintf("📊 *ENGINE STATUS*\n━━━━━━━━━━━━━━━━━━━━\n\n%s", line))
}

func (n *Notifier) cmdPositions() {
	positions, err := n.db.ActiveMonitored(context.Background())
	if err != nil {
		n.send("❌ Failed to fetch positions")
		return
	}

	if len(positions) == 0 {
		n.send("📭 No open positions")
		return
	}

	msg := "💼 *OPEN POSITIONS*\n━━━━━━━━━━━━━━━━━━━━\n\n"

	for i := range positions {
		pos := &positions[i]
		pnl := pos.CurrentPrice.Sub(pos.EntryPrice).Mul(decimal.NewFromInt(pos.Shares))
		sign := "+"
		if pnl.IsNegative() {
			sign = ""
		}

		stop := "—"
		if pos.StopLossPrice.Valid {
			stop = "฿" + pos.StopLossPrice.Decimal.StringFixed(2)
		}
		target := "—"
		if pos.TakeProfitPrice.Valid {
			target = "฿" + pos.TakeProfitPrice.Decimal.StringFixed(2)
		}

		msg += fmt.Sprintf(`📊 *%s* × %d
💵 Entry: ฿%s | Now: ฿%s (%s฿%s)
🛑 SL: %s | 🎯 TP: %s

`,
			pos.Symbol, pos.Shares,
			pos.EntryPrice.StringFixed(2),
			pos.CurrentPrice.StringFixed(2),
			sign, pnl.StringFixed(2),
			stop, target,
		)

		if i >= 9 {
			msg += fmt.Sprintf("_... and %d more_", len(positions)-10)
			break
		}
	}

	n.sendMarkdown(msg)
}

func (n *Notifier) cmdAlerts() {
	alerts, err := n.db.RecentAlerts(context.Background(), "", 10)
	if err != nil {
		n.send("❌ Failed to fetch alerts")
		return
	}

	if len(alerts) == 0 {
		n.send("📭 No alerts yet")
		return
	}

	msg := "🔔 *RECENT ALERTS*\n━━━━━━━━━━━━━━━━━━━━\n\n"
	for _, a := range alerts {
		msg += fmt.Sprintf("%s %s\n   _%s_\n\n",
			emojiFor(a.Kind), a.Message, a.CreatedAt.Format("Jan 2 15:04"))
	}

	n.sendMarkdown(msg)
}

func (n *Notifier) cmdPause() {
	n.mu.RLock()
	cb := n.onPause
	n.mu.RUnlock()

	if cb != nil {
		cb()
	}

	n.send("⏸️ Trading paused")
	log.Info().Msg("Trading paused via Telegram")
}

func (n *Notifier) cmdResume() {
	n.mu.RLock()
	cb := n.onResume
	n.mu.RUnlock()

	if cb != nil {
		cb()
	}

	n.send("▶️ Trading resumed")
	log.Info().Msg("Trading resumed via Telegram")
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func (n *Notifier) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := n.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}
