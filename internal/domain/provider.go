package domain

import (
	"context"
	"time"
)

// AccountInfo mirrors the terminal's account snapshot.
type AccountInfo struct {
	Login        int64   `json:"login"`
	Server       string  `json:"server"`
	Balance      float64 `json:"balance"`
	Equity       float64 `json:"equity"`
	Margin       float64 `json:"margin"`
	MarginFree   float64 `json:"margin_free"`
	MarginLevel  float64 `json:"margin_level"`
	Profit       float64 `json:"profit"`
	Currency     string  `json:"currency"`
	Leverage     int     `json:"leverage"`
	TradeAllowed bool    `json:"trade_allowed"`
}

// SymbolInfo describes a tradable instrument.
type SymbolInfo struct {
	Name         string  `json:"name"`
	Path         string  `json:"path"`
	Description  string  `json:"description"`
	Point        float64 `json:"point"`
	Digits       int     `json:"digits"`
	Spread       int     `json:"spread"`
	TickValue    float64 `json:"tick_value"`
	TickSize     float64 `json:"tick_size"`
	ContractSize float64 `json:"contract_size"`
	VolumeMin    float64 `json:"volume_min"`
	VolumeMax    float64 `json:"volume_max"`
	VolumeStep   float64 `json:"volume_step"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
}

// Bar is a single OHLC candle.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"tick_volume"`
}

// Position is an open position on the account.
type Position struct {
	Ticket       int64     `json:"ticket"`
	Time         time.Time `json:"time"`
	Symbol       string    `json:"symbol"`
	Type         string    `json:"type"`
	Volume       float64   `json:"volume"`
	PriceOpen    float64   `json:"price_open"`
	PriceCurrent float64   `json:"price_current"`
	Swap         float64   `json:"swap"`
	Profit       float64   `json:"profit"`
	StopLoss     float64   `json:"sl"`
	TakeProfit   float64   `json:"tp"`
	Comment      string    `json:"comment"`
	Magic        int       `json:"magic"`
}

// Order is a pending order on the account.
type Order struct {
	Ticket       int64     `json:"ticket"`
	TimeSetup    time.Time `json:"time_setup"`
	Symbol       string    `json:"symbol"`
	Type         string    `json:"type"`
	Volume       float64   `json:"volume"`
	PriceOpen    float64   `json:"price_open"`
	PriceCurrent float64   `json:"price_current"`
	StopLoss     float64   `json:"sl"`
	TakeProfit   float64   `json:"tp"`
	Comment      string    `json:"comment"`
	Magic        int       `json:"magic"`
}

// OrderRequest describes a market order to place. Price is optional;
// when zero the terminal fills at the current bid/ask. Deviation is the
// maximum price slippage in points the terminal may fill at.
type OrderRequest struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"order_type"`
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price,omitempty"`
	StopLoss   float64 `json:"sl,omitempty"`
	TakeProfit float64 `json:"tp,omitempty"`
	Comment    string  `json:"comment,omitempty"`
	Magic      int     `json:"magic,omitempty"`
	Deviation  int     `json:"deviation,omitempty"`
}

// OrderResult is the terminal's reply to a trade request.
type OrderResult struct {
	Order   int64   `json:"order"`
	Deal    int64   `json:"deal"`
	Volume  float64 `json:"volume"`
	Price   float64 `json:"price"`
	Comment string  `json:"comment,omitempty"`
}

// TickSource is the minimal provider surface the poller needs.
type TickSource interface {
	// LatestTick returns the freshest known tick for symbol, or
	// ErrTickUnavailable when the terminal has none.
	LatestTick(ctx context.Context, symbol string) (Tick, error)
}

// SymbolResolver activates symbols ahead of subscription. SelectSymbol is
// required before the first tick fetch for a previously-unused symbol.
type SymbolResolver interface {
	SymbolKnown(ctx context.Context, symbol string) (bool, error)
	SelectSymbol(ctx context.Context, symbol string) error
}

// Provider is the full boundary to the MT5 terminal gateway. Everything
// beyond TickSource and SymbolResolver is a plain pass-through used by the
// HTTP API.
type Provider interface {
	TickSource
	SymbolResolver

	Connect(ctx context.Context, path string) error
	Disconnect(ctx context.Context) error
	Connected() bool

	AccountInfo(ctx context.Context) (AccountInfo, error)
	Symbols(ctx context.Context, group string) ([]SymbolInfo, error)
	SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)
	Rates(ctx context.Context, symbol, timeframe string, count int) ([]Bar, error)

	Positions(ctx context.Context) ([]Position, error)
	Orders(ctx context.Context) ([]Order, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	ClosePosition(ctx context.Context, ticket int64) (OrderResult, error)
	ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit *float64) error
}
