package broker

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/thirayume/thai-asset-zen-sub000/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BROKER ABSTRACTION - Live order routing
// ═══════════════════════════════════════════════════════════════════════════════
//
// The executor talks to brokers only through this interface. Clients are
// selected by an enum-keyed factory, never by free-text dispatch.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Kind identifies a broker backend
type Kind string

const (
	KindPaper Kind = "paper"
	KindMT5   Kind = "mt5"
)

// OrderStatus is the broker-side state of an order
type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderFilled   OrderStatus = "filled"
	OrderRejected OrderStatus = "rejected"
)

// OrderRequest describes a limit day order
type OrderRequest struct {
	Symbol     string
	Side       types.SignalType
	Shares     int64
	LimitPrice decimal.Decimal
}

// OrderResult is the broker's view of an order
type OrderResult struct {
	OrderID     string
	Status      OrderStatus
	FilledPrice decimal.Decimal
}

// AccountBalance is a snapshot of broker-side funds
type AccountBalance struct {
	Cash       decimal.Decimal
	TotalValue decimal.Decimal
}

// Client is the capability set the executor needs from any broker
type Client interface {
	Authenticate(ctx context.Context) error
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	GetOrderStatus(ctx context.Context, orderID string) (OrderResult, error)
	GetAccountBalance(ctx context.Context) (AccountBalance, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Factory builds a broker client for a user's credentials
type Factory struct {
	bridgeURL string
}

// NewFactory creates a broker factory. bridgeURL is the MT5 REST gateway.
func NewFactory(bridgeURL string) *Factory {
	return &Factory{bridgeURL: bridgeURL}
}

// New returns a client for the given kind.
func (f *Factory) New(kind Kind, creds types.BrokerCredentials) (Client, error) {
	switch kind {
	case KindPaper:
		return NewPaperClient(), nil
	case KindMT5:
		if creds.Login == "" || creds.Password == "" {
			return nil, fmt.Errorf("missing MT5 credentials")
		}
		return NewMT5Client(f.bridgeURL, creds), nil
	default:
		return nil, fmt.Errorf("unknown broker kind: %q", kind)
	}
}
