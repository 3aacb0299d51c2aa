package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/thirayume/thai-asset-zen-sub000/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MT5 BRIDGE CLIENT
// ═══════════════════════════════════════════════════════════════════════════════
//
// Talks to the MetaTrader 5 REST gateway. Every call carries the per-call
// context and the HTTP client enforces a hard 30s cap so a stuck gateway
// cannot hang a batch run.
//
// ═══════════════════════════════════════════════════════════════════════════════

// MT5Client routes orders through the MT5 REST bridge
type MT5Client struct {
	baseURL    string
	creds      types.BrokerCredentials
	token      string
	httpClient *http.Client
}

// NewMT5Client creates an unauthenticated client for one user's account
func NewMT5Client(baseURL string, creds types.BrokerCredentials) *MT5Client {
	return &MT5Client{
		baseURL:    baseURL,
		creds:      creds,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type mt5AuthResponse struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

// Authenticate logs in to the bridge and stores the session token
func (c *MT5Client) Authenticate(ctx context.Context) error {
	payload := map[string]string{
		"login":    c.creds.Login,
		"password": c.creds.Password,
		"server":   c.creds.Server,
	}

	var resp mt5AuthResponse
	if err := c.post(ctx, "/auth", payload, &resp); err != nil {
		return fmt.Errorf("mt5 auth: %w", err)
	}
	if resp.Token == "" {
		if resp.Error != "" {
			return fmt.Errorf("mt5 auth rejected: %s", resp.Error)
		}
		return fmt.Errorf("mt5 auth: empty token")
	}

	c.token = resp.Token
	log.Debug().Str("server", c.creds.Server).Msg("MT5 session established")
	return nil
}

type mt5OrderResponse struct {
	OrderID     string `json:"order_id"`
	Status      string `json:"status"` // pending, filled, rejected
	FilledPrice string `json:"filled_price"`
	Error       string `json:"error"`
}

// PlaceOrder submits a LIMIT day order
func (c *MT5Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	payload := map[string]interface{}{
		"symbol":        req.Symbol,
		"side":          string(req.Side),
		"volume":        req.Shares,
		"price":         req.LimitPrice.String(),
		"type":          "LIMIT",
		"time_in_force": "DAY",
	}

	var resp mt5OrderResponse
	if err := c.post(ctx, "/orders", payload, &resp); err != nil {
		return OrderResult{}, fmt.Errorf("mt5 place order: %w", err)
	}
	if resp.Error != "" {
		return OrderResult{}, fmt.Errorf("mt5 order rejected: %s", resp.Error)
	}

	return resp.toResult()
}

// GetOrderStatus polls the bridge for an order's state
func (c *MT5Client) GetOrderStatus(ctx context.Context, orderID string) (OrderResult, error) {
	var resp mt5OrderResponse
	if err := c.get(ctx, "/orders/"+orderID, &resp); err != nil {
		return OrderResult{}, fmt.Errorf("mt5 order status: %w", err)
	}
	return resp.toResult()
}

type mt5BalanceResponse struct {
	Cash       string `json:"cash"`
	TotalValue string `json:"total_value"`
}

// GetAccountBalance returns cash and total account value
func (c *MT5Client) GetAccountBalance(ctx context.Context) (AccountBalance, error) {
	var resp mt5BalanceResponse
	if err := c.get(ctx, "/account", &resp); err != nil {
		return AccountBalance{}, fmt.Errorf("mt5 balance: %w", err)
	}

	cash, err := decimal.NewFromString(resp.Cash)
	if err != nil {
		return AccountBalance{}, fmt.Errorf("mt5 balance: bad cash %q", resp.Cash)
	}
	total, err := decimal.NewFromString(resp.TotalValue)
	if err != nil {
		total = cash
	}

	return AccountBalance{Cash: cash, TotalValue: total}, nil
}

// CancelOrder cancels a pending order
func (c *MT5Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.post(ctx, "/orders/"+orderID+"/cancel", nil, &struct{}{}); err != nil {
		return fmt.Errorf("mt5 cancel: %w", err)
	}
	return nil
}

func (r mt5OrderResponse) toResult() (OrderResult, error) {
	result := OrderResult{OrderID: r.OrderID}

	switch r.Status {
	case "filled":
		result.Status = OrderFilled
		price, err := decimal.NewFromString(r.FilledPrice)
		if err != nil || !price.IsPositive() {
			return result, fmt.Errorf("mt5 fill without price for order %s", r.OrderID)
		}
		result.FilledPrice = price
	case "rejected":
		result.Status = OrderRejected
	default:
		result.Status = OrderPending
	}

	return result, nil
}

// HTTP helpers

func (c *MT5Client) post(ctx context.Context, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *MT5Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *MT5Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, data)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
