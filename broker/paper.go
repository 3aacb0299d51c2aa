package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PAPER BROKER - Deterministic simulated fills
// ═══════════════════════════════════════════════════════════════════════════════

// PaperClient fills every order synchronously at its limit price
type PaperClient struct {
	mu     sync.Mutex
	cash   decimal.Decimal
	orders map[string]OrderResult
}

// NewPaperClient creates a paper broker with a large simulated balance
func NewPaperClient() *PaperClient {
	return &PaperClient{
		cash:   decimal.NewFromInt(10_000_000),
		orders: make(map[string]OrderResult),
	}
}

// SetCash overrides the simulated balance. Used by tests.
func (c *PaperClient) SetCash(cash decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cash = cash
}

func (c *PaperClient) Authenticate(ctx context.Context) error {
	return nil
}

func (c *PaperClient) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := OrderResult{
		OrderID:     "PAPER-" + uuid.NewString(),
		Status:      OrderFilled,
		FilledPrice: req.LimitPrice,
	}
	c.orders[result.OrderID] = result
	return result, nil
}

func (c *PaperClient) GetOrderStatus(ctx context.Context, orderID string) (OrderResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result, ok := c.orders[orderID]
	if !ok {
		return OrderResult{}, fmt.Errorf("unknown paper order %s", orderID)
	}
	return result, nil
}

func (c *PaperClient) GetAccountBalance(ctx context.Context) (AccountBalance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return AccountBalance{Cash: c.cash, TotalValue: c.cash}, nil
}

func (c *PaperClient) CancelOrder(ctx context.Context, orderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.orders, orderID)
	return nil
}
