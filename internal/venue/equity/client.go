// Package equity implements the BrokerClient capability set for a US
// equities brokerage REST API (Alpaca-shaped: account/positions/bars/
// orders endpoints, API-key-pair header auth, bracket orders native).
package equity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/venue"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config configures the equity adapter.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string // e.g. https://paper-api.alpaca.markets
	DataURL   string // e.g. https://data.alpaca.markets
	Timeout   time.Duration
}

// DefaultConfig returns paper-trading defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://paper-api.alpaca.markets",
		DataURL: "https://data.alpaca.markets",
		Timeout: 10 * time.Second,
	}
}

// Client implements venue.BrokerClient against an equity brokerage.
type Client struct {
	logger     *zap.Logger
	cfg        Config
	httpClient *http.Client
}

// New creates an equity client.
func New(logger *zap.Logger, cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		logger:     logger.Named("equity"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Name() string           { return "equity" }
func (c *Client) SupportsBrackets() bool { return true }

type accountResp struct {
	Equity        string `json:"equity"`
	BuyingPower   string `json:"buying_power"`
	Cash          string `json:"cash"`
	Status        string `json:"status"`
}

// Account fetches the equity account snapshot.
func (c *Client) Account(ctx context.Context) (venue.Account, error) {
	var resp accountResp
	if err := c.do(ctx, http.MethodGet, "/v2/account", nil, &resp); err != nil {
		return venue.Account{}, err
	}
	equity, _ := decimal.NewFromString(resp.Equity)
	bp, _ := decimal.NewFromString(resp.BuyingPower)
	cash, _ := decimal.NewFromString(resp.Cash)
	return venue.Account{Equity: equity, BuyingPower: bp, Cash: cash, Status: resp.Status}, nil
}

type positionResp struct {
	Symbol       string `json:"symbol"`
	Side         string `json:"side"`
	Qty          string `json:"qty"`
	AvgEntry     string `json:"avg_entry_price"`
	CurrentPrice string `json:"current_price"`
}

// Positions fetches all open equity positions.
func (c *Client) Positions(ctx context.Context) ([]venue.ExternalPosition, error) {
	var resp []positionResp
	if err := c.do(ctx, http.MethodGet, "/v2/positions", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]venue.ExternalPosition, 0, len(resp))
	for _, p := range resp {
		qty, _ := decimal.NewFromString(p.Qty)
		entry, _ := decimal.NewFromString(p.AvgEntry)
		cur, _ := decimal.NewFromString(p.CurrentPrice)
		side := venue.SideBuy
		if p.Side == "short" {
			side = venue.SideSell
		}
		out = append(out, venue.ExternalPosition{
			Symbol: p.Symbol, Side: side, Quantity: qty, EntryPrice: entry, CurrentPrice: cur,
		})
	}
	return out, nil
}

type barResp struct {
	Bars []struct {
		T string `json:"t"`
		O float64 `json:"o"`
		H float64 `json:"h"`
		L float64 `json:"l"`
		C float64 `json:"c"`
		V float64 `json:"v"`
	} `json:"bars"`
}

// LatestBar fetches the most recent minute bar for symbol.
func (c *Client) LatestBar(ctx context.Context, symbol string) (*venue.Bar, error) {
	bars, err := c.History(ctx, symbol, 1)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}
	return &bars[len(bars)-1], nil
}

// History fetches up to n most recent bars in chronological order.
func (c *Client) History(ctx context.Context, symbol string, n int) ([]venue.Bar, error) {
	path := fmt.Sprintf("/v2/stocks/%s/bars?timeframe=1Min&limit=%d", symbol, n)
	var resp barResp
	if err := c.doData(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]venue.Bar, 0, len(resp.Bars))
	for _, b := range resp.Bars {
		ts, _ := time.Parse(time.RFC3339, b.T)
		out = append(out, venue.Bar{
			OpenTime: ts,
			Open:     decimal.NewFromFloat(b.O),
			High:     decimal.NewFromFloat(b.H),
			Low:      decimal.NewFromFloat(b.L),
			Close:    decimal.NewFromFloat(b.C),
			Volume:   decimal.NewFromFloat(b.V),
		})
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

type orderReq struct {
	Symbol      string `json:"symbol"`
	Qty         string `json:"qty"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	TimeInForce string `json:"time_in_force"`
	LimitPrice  string `json:"limit_price,omitempty"`
	OrderClass  string `json:"order_class,omitempty"`
	TakeProfit  *priceField `json:"take_profit,omitempty"`
	StopLoss    *priceField `json:"stop_loss,omitempty"`
}

type priceField struct {
	LimitPrice string `json:"limit_price,omitempty"`
	StopPrice  string `json:"stop_price,omitempty"`
}

type orderResp struct {
	ID string `json:"id"`
}

// PlaceOrder submits a plain market/limit order.
func (c *Client) PlaceOrder(ctx context.Context, symbol string, qty decimal.Decimal, side venue.Side, typ venue.OrderType, tif venue.TimeInForce, limitPrice *decimal.Decimal) (string, error) {
	req := orderReq{
		Symbol: symbol, Qty: qty.String(), Side: string(side),
		Type: string(typ), TimeInForce: string(tif),
	}
	if limitPrice != nil {
		req.LimitPrice = limitPrice.String()
	}
	var resp orderResp
	if err := c.do(ctx, http.MethodPost, "/v2/orders", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// PlaceBracket submits an entry with venue-native attached take-profit and
// stop-loss legs, accepted atomically by the venue.
func (c *Client) PlaceBracket(ctx context.Context, symbol string, qty decimal.Decimal, side venue.Side, takeProfit, stopLoss decimal.Decimal, limitPrice *decimal.Decimal) (string, error) {
	typ := venue.OrderTypeMarket
	if limitPrice != nil {
		typ = venue.OrderTypeLimit
	}
	req := orderReq{
		Symbol: symbol, Qty: qty.String(), Side: string(side),
		Type: string(typ), TimeInForce: string(venue.TIFDay),
		OrderClass: "bracket",
		TakeProfit: &priceField{LimitPrice: takeProfit.String()},
		StopLoss:   &priceField{StopPrice: stopLoss.String()},
	}
	if limitPrice != nil {
		req.LimitPrice = limitPrice.String()
	}
	var resp orderResp
	if err := c.do(ctx, http.MethodPost, "/v2/orders", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

type listedOrder struct {
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Type      string `json:"type"`
	Qty       string `json:"qty"`
	LimitPx   string `json:"limit_price"`
	StopPx    string `json:"stop_price"`
	Status    string `json:"status"`
	FilledQty string `json:"filled_qty"`
	FilledAvg string `json:"filled_avg_price"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// OpenOrders lists open orders, optionally filtered by symbol.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]venue.Order, error) {
	path := "/v2/orders?status=open"
	if symbol != "" {
		path += "&symbols=" + symbol
	}
	var resp []listedOrder
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]venue.Order, 0, len(resp))
	for _, o := range resp {
		out = append(out, convertOrder(o))
	}
	return out, nil
}

func convertOrder(o listedOrder) venue.Order {
	qty, _ := decimal.NewFromString(o.Qty)
	limitPx, _ := decimal.NewFromString(o.LimitPx)
	stopPx, _ := decimal.NewFromString(o.StopPx)
	filled, _ := decimal.NewFromString(o.FilledQty)
	avg, _ := decimal.NewFromString(o.FilledAvg)
	created, _ := time.Parse(time.RFC3339, o.CreatedAt)
	updated, _ := time.Parse(time.RFC3339, o.UpdatedAt)
	side := venue.SideBuy
	if o.Side == "sell" {
		side = venue.SideSell
	}
	typ := venue.OrderTypeMarket
	if o.Type == "limit" {
		typ = venue.OrderTypeLimit
	}
	return venue.Order{
		ID: o.ID, Symbol: o.Symbol, Side: side, Type: typ,
		Quantity: qty, LimitPrice: limitPx, StopPrice: stopPx,
		Status: convertStatus(o.Status), FilledQty: filled, FilledAvg: avg,
		CreatedAt: created, UpdatedAt: updated,
	}
}

func convertStatus(s string) venue.OrderStatus {
	switch s {
	case "new", "accepted", "pending_new":
		return venue.OrderStatusNew
	case "filled":
		return venue.OrderStatusFilled
	case "partially_filled":
		return venue.OrderStatusPartial
	case "canceled":
		return venue.OrderStatusCanceled
	case "rejected":
		return venue.OrderStatusRejected
	default:
		return venue.OrderStatusOpen
	}
}

// ReplaceOrder modifies quantity/limit/stop of an open order.
func (c *Client) ReplaceOrder(ctx context.Context, id string, newQty, newLimit, newStop *decimal.Decimal) error {
	req := struct {
		Qty        string `json:"qty,omitempty"`
		LimitPrice string `json:"limit_price,omitempty"`
		StopPrice  string `json:"stop_price,omitempty"`
	}{}
	if newQty != nil {
		req.Qty = newQty.String()
	}
	if newLimit != nil {
		req.LimitPrice = newLimit.String()
	}
	if newStop != nil {
		req.StopPrice = newStop.String()
	}
	return c.do(ctx, http.MethodPatch, "/v2/orders/"+id, req, nil)
}

// CancelAll cancels open orders, optionally filtered by symbol.
func (c *Client) CancelAll(ctx context.Context, symbol string) error {
	orders, err := c.OpenOrders(ctx, symbol)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if err := c.do(ctx, http.MethodDelete, "/v2/orders/"+o.ID, nil, nil); err != nil {
			c.logger.Warn("cancel order failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	return nil
}

// CloseAll liquidates every open position at market. Emergency use only.
func (c *Client) CloseAll(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/v2/positions", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.request(ctx, c.cfg.BaseURL, method, path, body, out)
}

func (c *Client) doData(ctx context.Context, method, path string, body, out any) error {
	return c.request(ctx, c.cfg.DataURL, method, path, body, out)
}

func (c *Client) request(ctx context.Context, base, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return venue.NewError(venue.ErrUnknown, "marshal", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return venue.NewError(venue.ErrUnknown, path, err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.cfg.APIKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.cfg.APISecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return venue.NewError(venue.ErrNetwork, path, ctx.Err())
		}
		return venue.NewError(venue.ErrNetwork, path, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return venue.NewError(venue.ErrUnknown, path, err)
			}
		}
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return venue.NewError(venue.ErrAuth, path, fmt.Errorf("%s", respBody))
	case http.StatusTooManyRequests:
		return venue.NewError(venue.ErrRateLimited, path, fmt.Errorf("%s", respBody))
	case http.StatusUnprocessableEntity:
		return venue.NewError(venue.ErrInsufficientFunds, path, fmt.Errorf("%s", respBody))
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return venue.NewError(venue.ErrNetwork, path, fmt.Errorf("%s", respBody))
	default:
		return venue.NewError(venue.ErrUnknown, path, fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}
}
