package mt5

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tickbridge/tickbridge/internal/domain"
)

var _ domain.Provider = (*Client)(nil)

// gatewayTick is the gateway's wire shape for a tick. Time is unix seconds,
// the terminal's native representation.
type gatewayTick struct {
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	Volume float64 `json:"volume"`
	Time   int64   `json:"time"`
}

// Connect initializes the terminal session. An empty path uses the already
// running, already logged-in terminal.
func (c *Client) Connect(ctx context.Context, path string) error {
	payload := map[string]string{}
	if path != "" {
		payload["path"] = path
	}

	if _, err := c.doRequest(ctx, "connect", http.MethodPost, "/initialize", nil, payload); err != nil {
		return fmt.Errorf("terminal connect: %w", err)
	}

	c.connected.Store(true)
	c.logger.Info("Connected to terminal gateway", "url", c.baseURL)
	return nil
}

// Disconnect shuts the terminal session down.
func (c *Client) Disconnect(ctx context.Context) error {
	if !c.connected.CompareAndSwap(true, false) {
		return nil
	}
	if _, err := c.doRequest(ctx, "disconnect", http.MethodPost, "/shutdown", nil, nil); err != nil {
		return fmt.Errorf("terminal disconnect: %w", err)
	}
	c.logger.Info("Disconnected from terminal gateway")
	return nil
}

// Connected reports whether Connect succeeded and Disconnect has not run.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// LatestTick fetches the freshest tick for symbol. The returned Tick is
// built here so the spread is always derived from the fetched bid/ask.
func (c *Client) LatestTick(ctx context.Context, symbol string) (domain.Tick, error) {
	if !c.connected.Load() {
		return domain.Tick{}, domain.ErrNotConnected
	}

	body, err := c.doRequest(ctx, "latest_tick", http.MethodGet, "/ticks/"+url.PathEscape(symbol), nil, nil)
	if err != nil {
		return domain.Tick{}, notFoundAs(err, domain.ErrTickUnavailable)
	}

	raw, err := decode[gatewayTick](body)
	if err != nil {
		return domain.Tick{}, err
	}

	return domain.NewTick(symbol, raw.Bid, raw.Ask, raw.Last, raw.Volume, time.Unix(raw.Time, 0).UTC()), nil
}

// SymbolKnown reports whether the terminal can resolve the symbol.
func (c *Client) SymbolKnown(ctx context.Context, symbol string) (bool, error) {
	_, err := c.SymbolInfo(ctx, symbol)
	if errors.Is(err, domain.ErrSymbolNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SelectSymbol makes the symbol visible in the terminal's market watch.
// Required before the first tick fetch for a previously-unused symbol.
func (c *Client) SelectSymbol(ctx context.Context, symbol string) error {
	_, err := c.doRequest(ctx, "select_symbol", http.MethodPost, "/symbols/"+url.PathEscape(symbol)+"/select", nil, nil)
	if err != nil {
		return notFoundAs(err, domain.ErrSymbolNotFound)
	}
	return nil
}

// AccountInfo returns the current account snapshot.
func (c *Client) AccountInfo(ctx context.Context) (domain.AccountInfo, error) {
	if !c.connected.Load() {
		return domain.AccountInfo{}, domain.ErrNotConnected
	}
	body, err := c.doRequest(ctx, "account_info", http.MethodGet, "/account", nil, nil)
	if err != nil {
		return domain.AccountInfo{}, err
	}
	return decode[domain.AccountInfo](body)
}

// Symbols lists available instruments, optionally filtered by group.
func (c *Client) Symbols(ctx context.Context, group string) ([]domain.SymbolInfo, error) {
	query := url.Values{}
	if group != "" {
		query.Set("group", group)
	}
	body, err := c.doRequest(ctx, "symbols", http.MethodGet, "/symbols", query, nil)
	if err != nil {
		return nil, err
	}
	return decode[[]domain.SymbolInfo](body)
}

// SymbolInfo returns metadata for one instrument.
func (c *Client) SymbolInfo(ctx context.Context, symbol string) (domain.SymbolInfo, error) {
	body, err := c.doRequest(ctx, "symbol_info", http.MethodGet, "/symbols/"+url.PathEscape(symbol), nil, nil)
	if err != nil {
		return domain.SymbolInfo{}, notFoundAs(err, domain.ErrSymbolNotFound)
	}
	return decode[domain.SymbolInfo](body)
}

// Rates returns up to count historical bars for the symbol and timeframe.
func (c *Client) Rates(ctx context.Context, symbol, timeframe string, count int) ([]domain.Bar, error) {
	query := url.Values{}
	query.Set("timeframe", timeframe)
	query.Set("count", strconv.Itoa(count))

	body, err := c.doRequest(ctx, "rates", http.MethodGet, "/rates/"+url.PathEscape(symbol), query, nil)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrSymbolNotFound)
	}
	return decode[[]domain.Bar](body)
}

// Positions returns all open positions.
func (c *Client) Positions(ctx context.Context) ([]domain.Position, error) {
	body, err := c.doRequest(ctx, "positions", http.MethodGet, "/positions", nil, nil)
	if err != nil {
		return nil, err
	}
	return decode[[]domain.Position](body)
}

// Orders returns all pending orders.
func (c *Client) Orders(ctx context.Context) ([]domain.Order, error) {
	body, err := c.doRequest(ctx, "orders", http.MethodGet, "/orders", nil, nil)
	if err != nil {
		return nil, err
	}
	return decode[[]domain.Order](body)
}

// PlaceOrder submits a market order.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if !c.connected.Load() {
		return domain.OrderResult{}, domain.ErrNotConnected
	}
	body, err := c.doRequest(ctx, "place_order", http.MethodPost, "/orders", nil, req)
	if err != nil {
		return domain.OrderResult{}, notFoundAs(err, domain.ErrSymbolNotFound)
	}
	return decode[domain.OrderResult](body)
}

// ClosePosition closes an open position by ticket.
func (c *Client) ClosePosition(ctx context.Context, ticket int64) (domain.OrderResult, error) {
	path := "/positions/" + strconv.FormatInt(ticket, 10)
	body, err := c.doRequest(ctx, "close_position", http.MethodDelete, path, nil, nil)
	if err != nil {
		return domain.OrderResult{}, notFoundAs(err, domain.ErrPositionMissing)
	}
	return decode[domain.OrderResult](body)
}

// ModifyPosition updates a position's stop loss and take profit. Nil fields
// keep the current terminal values.
func (c *Client) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit *float64) error {
	payload := map[string]any{}
	if stopLoss != nil {
		payload["sl"] = *stopLoss
	}
	if takeProfit != nil {
		payload["tp"] = *takeProfit
	}

	path := "/positions/" + strconv.FormatInt(ticket, 10)
	if _, err := c.doRequest(ctx, "modify_position", http.MethodPatch, path, nil, payload); err != nil {
		return notFoundAs(err, domain.ErrPositionMissing)
	}
	return nil
}
