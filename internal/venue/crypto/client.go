// Package crypto implements the BrokerClient capability set for a crypto
// exchange REST + private-WebSocket API (Kraken-shaped: nonce-signed POST
// bodies, no venue-native bracket orders, private feed requires a session
// token obtained over REST before the socket dial).
package crypto

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/venue"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config configures the crypto adapter.
type Config struct {
	APIKey     string
	APISecret  string // base64-encoded, Kraken-style
	BaseURL    string
	WSURL      string
	Timeout    time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.kraken.com",
		WSURL:   "wss://ws-auth.kraken.com/v2",
		Timeout: 10 * time.Second,
	}
}

// Client implements venue.BrokerClient against a crypto exchange.
type Client struct {
	logger     *zap.Logger
	cfg        Config
	httpClient *http.Client

	nonce int64 // monotonic millisecond nonce, bumped via CAS on collision

	mu      sync.RWMutex
	wsConn  *websocket.Conn
	tickers map[string]venue.Bar
}

// New creates a crypto client.
func New(logger *zap.Logger, cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		logger:     logger.Named("crypto"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		nonce:      time.Now().UnixMilli(),
		tickers:    make(map[string]venue.Bar),
	}
}

func (c *Client) Name() string           { return "crypto" }
func (c *Client) SupportsBrackets() bool { return false }

// nextNonce returns a strictly increasing millisecond nonce. Kraken rejects
// a request whose nonce does not exceed the previous one, so a collision
// (two calls within the same millisecond) is resolved with a CAS bump
// rather than a sleep.
func (c *Client) nextNonce() int64 {
	now := time.Now().UnixMilli()
	for {
		prev := atomic.LoadInt64(&c.nonce)
		next := now
		if next <= prev {
			next = prev + 1
		}
		if atomic.CompareAndSwapInt64(&c.nonce, prev, next) {
			return next
		}
	}
}

// sign implements Kraken's two-stage signature: HMAC-SHA512, keyed by the
// base64-decoded API secret, over (URI path || SHA256(nonce || POST body)).
func (c *Client) sign(path string, nonce int64, body url.Values) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(c.cfg.APISecret)
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}

	h256 := sha256.New()
	h256.Write([]byte(strconv.FormatInt(nonce, 10) + body.Encode()))
	digest := h256.Sum(nil)

	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(digest)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (c *Client) privateRequest(ctx context.Context, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	nonce := c.nextNonce()
	params.Set("nonce", strconv.FormatInt(nonce, 10))

	sig, err := c.sign(path, nonce, params)
	if err != nil {
		return venue.NewError(venue.ErrAuth, path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewBufferString(params.Encode()))
	if err != nil {
		return venue.NewError(venue.ErrUnknown, path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("API-Key", c.cfg.APIKey)
	req.Header.Set("API-Sign", sig)

	return c.do(req, path, out)
}

func (c *Client) publicRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	full := c.cfg.BaseURL + path
	if query != nil {
		full += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, venue.NewError(venue.ErrUnknown, path, err)
	}
	var raw json.RawMessage
	if err := c.do(req, path, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type krakenEnvelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return venue.NewError(venue.ErrNetwork, op, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return venue.NewError(venue.ErrRateLimited, op, fmt.Errorf("%s", raw))
	case http.StatusUnauthorized, http.StatusForbidden:
		return venue.NewError(venue.ErrAuth, op, fmt.Errorf("%s", raw))
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return venue.NewError(venue.ErrNetwork, op, fmt.Errorf("%s", raw))
	case http.StatusOK:
		// fallthrough to envelope parsing
	default:
		return venue.NewError(venue.ErrUnknown, op, fmt.Errorf("status %d: %s", resp.StatusCode, raw))
	}

	var env krakenEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return venue.NewError(venue.ErrUnknown, op, err)
	}
	if len(env.Error) > 0 {
		return venue.NewError(classifyKrakenError(env.Error[0]), op, fmt.Errorf("%v", env.Error))
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return venue.NewError(venue.ErrUnknown, op, err)
		}
	}
	return nil
}

func classifyKrakenError(msg string) venue.ErrorKind {
	switch {
	case containsAny(msg, "Insufficient funds"):
		return venue.ErrInsufficientFunds
	case containsAny(msg, "Invalid key", "Invalid signature", "Permission denied"):
		return venue.ErrAuth
	case containsAny(msg, "Rate limit", "Too many requests"):
		return venue.ErrRateLimited
	case containsAny(msg, "Market in cancel_only mode", "Service:Unavailable"):
		return venue.ErrMarketClosed
	default:
		return venue.ErrUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

type balanceResult map[string]string

// Account fetches the crypto account snapshot. Kraken has no single
// equity/buying-power endpoint, so Account synthesizes one from the
// balance sheet: equity, buying power and cash are all the USD (ZUSD)
// balance; balances held in other assets are not valued or included.
func (c *Client) Account(ctx context.Context) (venue.Account, error) {
	var bal balanceResult
	if err := c.privateRequest(ctx, "/0/private/Balance", nil, &bal); err != nil {
		return venue.Account{}, err
	}
	usd, _ := decimal.NewFromString(bal["ZUSD"])
	total := usd
	return venue.Account{Equity: total, BuyingPower: usd, Cash: usd, Status: "ACTIVE"}, nil
}

type openPosition struct {
	Pair  string `json:"pair"`
	Type  string `json:"type"`
	Vol   string `json:"vol"`
	Cost  string `json:"cost"`
	Value string `json:"value,omitempty"`
}

// Positions fetches open margin positions. Spot-only balances are not
// reported as positions by Kraken; the lifecycle layer tracks spot
// exposure itself via the journal.
func (c *Client) Positions(ctx context.Context) ([]venue.ExternalPosition, error) {
	var positions map[string]openPosition
	if err := c.privateRequest(ctx, "/0/private/OpenPositions", nil, &positions); err != nil {
		return nil, err
	}
	out := make([]venue.ExternalPosition, 0, len(positions))
	for _, p := range positions {
		vol, _ := decimal.NewFromString(p.Vol)
		cost, _ := decimal.NewFromString(p.Cost)
		entry := decimal.Zero
		if !vol.IsZero() {
			entry = cost.Div(vol)
		}
		side := venue.SideBuy
		if p.Type == "sell" {
			side = venue.SideSell
		}
		out = append(out, venue.ExternalPosition{Symbol: p.Pair, Side: side, Quantity: vol, EntryPrice: entry})
	}
	return out, nil
}

type ohlcResult map[string]json.RawMessage

// LatestBar fetches the most recent 1-minute bar for symbol.
func (c *Client) LatestBar(ctx context.Context, symbol string) (*venue.Bar, error) {
	bars, err := c.History(ctx, symbol, 1)
	if err != nil || len(bars) == 0 {
		return nil, err
	}
	return &bars[len(bars)-1], nil
}

// History fetches up to n most recent 1-minute bars in chronological order.
func (c *Client) History(ctx context.Context, symbol string, n int) ([]venue.Bar, error) {
	q := url.Values{"pair": {symbol}, "interval": {"1"}}
	raw, err := c.publicRequest(ctx, "/0/public/OHLC", q)
	if err != nil {
		return nil, err
	}
	var env ohlcResult
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, venue.NewError(venue.ErrUnknown, "OHLC", err)
	}
	rows, ok := env[symbol]
	if !ok {
		for k, v := range env {
			if k != "last" {
				rows = v
				break
			}
		}
	}
	var raw2 [][]json.RawMessage
	if err := json.Unmarshal(rows, &raw2); err != nil {
		return nil, venue.NewError(venue.ErrUnknown, "OHLC", err)
	}
	out := make([]venue.Bar, 0, len(raw2))
	for _, r := range raw2 {
		if len(r) < 7 {
			continue
		}
		var ts int64
		json.Unmarshal(r[0], &ts)
		open := decodeDecimal(r[1])
		high := decodeDecimal(r[2])
		low := decodeDecimal(r[3])
		closePx := decodeDecimal(r[4])
		vol := decodeDecimal(r[6])
		out = append(out, venue.Bar{
			OpenTime: time.Unix(ts, 0).UTC(),
			Open:     open, High: high, Low: low, Close: closePx, Volume: vol,
		})
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func decodeDecimal(raw json.RawMessage) decimal.Decimal {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		d, _ := decimal.NewFromString(s)
		return d
	}
	var f float64
	json.Unmarshal(raw, &f)
	return decimal.NewFromFloat(f)
}

type addOrderResult struct {
	TxID []string `json:"txid"`
}

// PlaceOrder submits a plain market/limit order.
func (c *Client) PlaceOrder(ctx context.Context, symbol string, qty decimal.Decimal, side venue.Side, typ venue.OrderType, tif venue.TimeInForce, limitPrice *decimal.Decimal) (string, error) {
	params := url.Values{
		"pair":      {symbol},
		"type":      {string(side)},
		"ordertype": {orderTypeString(typ)},
		"volume":    {qty.String()},
	}
	if limitPrice != nil {
		params.Set("price", limitPrice.String())
	}
	if tif == venue.TIFIOC {
		params.Set("timeinforce", "IOC")
	}
	var res addOrderResult
	if err := c.privateRequest(ctx, "/0/private/AddOrder", params, &res); err != nil {
		return "", err
	}
	if len(res.TxID) == 0 {
		return "", venue.NewError(venue.ErrUnknown, "AddOrder", fmt.Errorf("no txid returned"))
	}
	return res.TxID[0], nil
}

func orderTypeString(typ venue.OrderType) string {
	if typ == venue.OrderTypeLimit {
		return "limit"
	}
	return "market"
}

// PlaceBracket has no venue-native equivalent here (SupportsBrackets is
// false): it places the entry order only. The caller (PositionLifecycle)
// is responsible for tracking and placing the stop-loss/take-profit legs
// client-side.
func (c *Client) PlaceBracket(ctx context.Context, symbol string, qty decimal.Decimal, side venue.Side, takeProfit, stopLoss decimal.Decimal, limitPrice *decimal.Decimal) (string, error) {
	typ := venue.OrderTypeMarket
	if limitPrice != nil {
		typ = venue.OrderTypeLimit
	}
	return c.PlaceOrder(ctx, symbol, qty, side, typ, venue.TIFGTC, limitPrice)
}

type openOrdersResult struct {
	Open map[string]krakenOrder `json:"open"`
}

type krakenOrder struct {
	Status      string `json:"status"`
	OpenTm      float64 `json:"opentm"`
	Descr       struct {
		Pair  string `json:"pair"`
		Type  string `json:"type"`
		Order string `json:"ordertype"`
		Price string `json:"price"`
	} `json:"descr"`
	Vol       string `json:"vol"`
	VolExec   string `json:"vol_exec"`
	Price     string `json:"price"`
	StopPrice string `json:"stopprice"`
}

// OpenOrders lists open orders, optionally filtered by symbol.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]venue.Order, error) {
	var res openOrdersResult
	if err := c.privateRequest(ctx, "/0/private/OpenOrders", nil, &res); err != nil {
		return nil, err
	}
	out := make([]venue.Order, 0, len(res.Open))
	for id, o := range res.Open {
		if symbol != "" && o.Descr.Pair != symbol {
			continue
		}
		out = append(out, convertOrder(id, o))
	}
	return out, nil
}

func convertOrder(id string, o krakenOrder) venue.Order {
	vol, _ := decimal.NewFromString(o.Vol)
	volExec, _ := decimal.NewFromString(o.VolExec)
	price, _ := decimal.NewFromString(o.Descr.Price)
	stopPrice, _ := decimal.NewFromString(o.StopPrice)
	avgFill, _ := decimal.NewFromString(o.Price)
	side := venue.SideBuy
	if o.Descr.Type == "sell" {
		side = venue.SideSell
	}
	typ := venue.OrderTypeMarket
	if o.Descr.Order == "limit" {
		typ = venue.OrderTypeLimit
	}
	created := time.Unix(int64(o.OpenTm), 0).UTC()
	return venue.Order{
		ID: id, Symbol: o.Descr.Pair, Side: side, Type: typ,
		Quantity: vol, LimitPrice: price, StopPrice: stopPrice,
		Status: convertStatus(o.Status), FilledQty: volExec, FilledAvg: avgFill,
		CreatedAt: created, UpdatedAt: created,
	}
}

func convertStatus(s string) venue.OrderStatus {
	switch s {
	case "pending", "open":
		return venue.OrderStatusOpen
	case "closed":
		return venue.OrderStatusFilled
	case "canceled", "expired":
		return venue.OrderStatusCanceled
	default:
		return venue.OrderStatusNew
	}
}

// ReplaceOrder cancels and re-places, since Kraken's AddOrder amend
// endpoint requires fields this adapter does not track per-order (userref).
func (c *Client) ReplaceOrder(ctx context.Context, id string, newQty, newLimit, newStop *decimal.Decimal) error {
	orders, err := c.OpenOrders(ctx, "")
	if err != nil {
		return err
	}
	var target *venue.Order
	for i := range orders {
		if orders[i].ID == id {
			target = &orders[i]
			break
		}
	}
	if target == nil {
		return venue.NewError(venue.ErrUnknown, "ReplaceOrder", fmt.Errorf("order %s not found", id))
	}
	if _, err := c.privateRequest2(ctx, "/0/private/CancelOrder", url.Values{"txid": {id}}); err != nil {
		return err
	}
	qty := target.Quantity
	if newQty != nil {
		qty = *newQty
	}
	limit := target.LimitPrice
	if newLimit != nil {
		limit = *newLimit
	}
	_, err = c.PlaceOrder(ctx, target.Symbol, qty, target.Side, target.Type, venue.TIFGTC, &limit)
	return err
}

func (c *Client) privateRequest2(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.privateRequest(ctx, path, params, &raw)
	return raw, err
}

// CancelAll cancels every open order, optionally filtered by symbol.
func (c *Client) CancelAll(ctx context.Context, symbol string) error {
	orders, err := c.OpenOrders(ctx, symbol)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if _, err := c.privateRequest2(ctx, "/0/private/CancelOrder", url.Values{"txid": {o.ID}}); err != nil {
			c.logger.Warn("cancel order failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	return nil
}

// CloseAll cancels all open orders and flattens every open position at
// market. Emergency use only.
func (c *Client) CloseAll(ctx context.Context) error {
	if err := c.CancelAll(ctx, ""); err != nil {
		return err
	}
	positions, err := c.Positions(ctx)
	if err != nil {
		return err
	}
	for _, p := range positions {
		closeSide := venue.SideSell
		if p.Side == venue.SideSell {
			closeSide = venue.SideBuy
		}
		if _, err := c.PlaceOrder(ctx, p.Symbol, p.Quantity, closeSide, venue.OrderTypeMarket, venue.TIFIOC, nil); err != nil {
			c.logger.Error("flatten position failed", zap.String("symbol", p.Symbol), zap.Error(err))
		}
	}
	return nil
}

// --- private WebSocket feed ---

type wsTokenResult struct {
	Token string `json:"token"`
}

// ConnectPrivateFeed obtains a session token over REST, dials the
// private WebSocket, and subscribes over that persistent socket.
// Reconnection uses exponential backoff and idempotent resubscription:
// a dropped connection simply replays the subscribe message on redial.
func (c *Client) ConnectPrivateFeed(ctx context.Context, channels []string) error {
	var tok wsTokenResult
	if err := c.privateRequest(ctx, "/0/private/GetWebSocketsToken", nil, &tok); err != nil {
		return fmt.Errorf("get ws token: %w", err)
	}

	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.WSURL, nil)
		if err != nil {
			c.logger.Warn("private feed dial failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.mu.Lock()
		c.wsConn = conn
		c.mu.Unlock()
		backoff = time.Second

		sub := map[string]any{
			"method": "subscribe",
			"params": map[string]any{"channel": "executions", "token": tok.Token, "snapshot": true},
		}
		if err := conn.WriteJSON(sub); err != nil {
			c.logger.Warn("subscribe write failed", zap.Error(err))
			conn.Close()
			continue
		}

		c.readLoop(ctx, conn)

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.logger.Warn("private feed read error, reconnecting", zap.Error(err))
			return
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg []byte) {
	var env struct {
		Channel string          `json:"channel"`
		Type    string          `json:"type"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		return
	}
	c.logger.Debug("private feed message", zap.String("channel", env.Channel), zap.String("type", env.Type))
}
