package core

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/thirayume/thai-asset-zen-sub000/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ROUTER - Fans engine events out to in-process subscribers
// ═══════════════════════════════════════════════════════════════════════════════

// EventType names a class of engine event
type EventType string

const (
	EventTradeExecuted  EventType = "tradeExecuted"
	EventPositionExited EventType = "positionExited"
	EventBotDisabled    EventType = "botDisabled"
)

// Event is a single engine occurrence
type Event struct {
	Type   EventType
	UserID string
	Symbol string
	Shares int64
	Price  decimal.Decimal
	Reason types.ExitReason
}

// Handler consumes one event
type Handler func(Event)

type Router struct {
	mu   sync.RWMutex
	subs map[EventType][]Handler
}

// NewRouter creates a new event router
func NewRouter() *Router {
	return &Router{
		subs: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for one event type
func (r *Router) Subscribe(t EventType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[t] = append(r.subs[t], h)
}

// SubscribeAll registers a handler for every event type
func (r *Router) SubscribeAll(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs["*"] = append(r.subs["*"], h)
}

// Publish delivers an event to its subscribers in registration order,
// synchronously on the caller's goroutine.
func (r *Router) Publish(e Event) {
	r.mu.RLock()
	handlers := append(r.subs[e.Type], r.subs["*"]...)
	r.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}
