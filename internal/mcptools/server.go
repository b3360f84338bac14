// Package mcptools exposes the terminal provider's operations as MCP tools
// so AI agents can drive the same surface the HTTP API serves. The server
// speaks the Model Context Protocol over stdio; every tool is a thin
// pass-through to domain.Provider, mirroring the HTTP handlers.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tickbridge/tickbridge/internal/config"
	"github.com/tickbridge/tickbridge/internal/domain"
	"github.com/tickbridge/tickbridge/internal/version"
)

const serverName = "mt5-trading-bot"

// Server registers the trading tool set on an MCP server.
type Server struct {
	provider domain.Provider
	config   *config.Config
	mcp      *server.MCPServer
}

func NewServer(cfg *config.Config, provider domain.Provider) *Server {
	s := &Server{
		provider: provider,
		config:   cfg,
		mcp:      server.NewMCPServer(serverName, version.Version, server.WithToolCapabilities(false)),
	}
	s.registerTools()
	return s
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("connect_mt5",
		mcp.WithDescription("Connect to the MT5 trading terminal"),
		mcp.WithString("path", mcp.Description("Terminal executable path; empty uses the running terminal")),
	), s.handleConnect)

	s.mcp.AddTool(mcp.NewTool("disconnect_mt5",
		mcp.WithDescription("Disconnect from the MT5 terminal"),
	), s.handleDisconnect)

	s.mcp.AddTool(mcp.NewTool("get_account_info",
		mcp.WithDescription("Get current account information"),
	), s.handleAccountInfo)

	s.mcp.AddTool(mcp.NewTool("get_symbols",
		mcp.WithDescription("Get available trading symbols"),
		mcp.WithString("group", mcp.Description("Optional group filter, e.g. *USD*")),
	), s.handleSymbols)

	s.mcp.AddTool(mcp.NewTool("get_tick",
		mcp.WithDescription("Get current tick data for a symbol"),
		mcp.WithString("symbol", mcp.Required(), mcp.Description("Instrument name")),
	), s.handleTick)

	s.mcp.AddTool(mcp.NewTool("get_rates",
		mcp.WithDescription("Get historical rate data. Timeframes: M1, M5, M15, M30, H1, H4, D1, W1, MN1"),
		mcp.WithString("symbol", mcp.Required(), mcp.Description("Instrument name")),
		mcp.WithString("timeframe", mcp.DefaultString("M1"), mcp.Description("Bar timeframe")),
		mcp.WithNumber("count", mcp.DefaultNumber(100), mcp.Description("Number of bars")),
	), s.handleRates)

	s.mcp.AddTool(mcp.NewTool("get_positions",
		mcp.WithDescription("Get all open positions"),
	), s.handlePositions)

	s.mcp.AddTool(mcp.NewTool("get_orders",
		mcp.WithDescription("Get all pending orders"),
	), s.handleOrders)

	s.mcp.AddTool(mcp.NewTool("place_order",
		mcp.WithDescription("Place a new market order"),
		mcp.WithString("symbol", mcp.Required(), mcp.Description("Instrument name")),
		mcp.WithString("order_type", mcp.Required(), mcp.Description("BUY or SELL")),
		mcp.WithNumber("volume", mcp.Required(), mcp.Description("Lot size, e.g. 0.01")),
		mcp.WithNumber("price", mcp.Description("Fill price; omit for market")),
		mcp.WithNumber("sl", mcp.Description("Stop loss price")),
		mcp.WithNumber("tp", mcp.Description("Take profit price")),
		mcp.WithString("comment", mcp.Description("Order comment")),
		mcp.WithNumber("magic", mcp.Description("Expert advisor magic number")),
	), s.handlePlaceOrder)

	s.mcp.AddTool(mcp.NewTool("close_position",
		mcp.WithDescription("Close an open position by ticket number"),
		mcp.WithNumber("ticket", mcp.Required(), mcp.Description("Position ticket")),
	), s.handleClosePosition)

	s.mcp.AddTool(mcp.NewTool("modify_position",
		mcp.WithDescription("Modify stop loss and/or take profit of a position"),
		mcp.WithNumber("ticket", mcp.Required(), mcp.Description("Position ticket")),
		mcp.WithNumber("sl", mcp.Description("New stop loss price")),
		mcp.WithNumber("tp", mcp.Description("New take profit price")),
	), s.handleModifyPosition)

	s.mcp.AddTool(mcp.NewTool("analyze_market",
		mcp.WithDescription("Analyze market conditions for a symbol"),
		mcp.WithString("symbol", mcp.Required(), mcp.Description("Instrument name")),
	), s.handleAnalyzeMarket)

	s.mcp.AddTool(mcp.NewTool("calculate_position_size",
		mcp.WithDescription("Calculate position size based on risk management"),
		mcp.WithNumber("balance", mcp.Required(), mcp.Description("Account balance")),
		mcp.WithNumber("risk_percentage", mcp.Required(), mcp.Description("Risk per trade in percent")),
		mcp.WithNumber("stop_loss_pips", mcp.Required(), mcp.Description("Stop loss distance in pips")),
		mcp.WithString("symbol", mcp.Required(), mcp.Description("Instrument name")),
	), s.handlePositionSize)
}

// toolResult marshals a reply into the text payload of a tool result.
func toolResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func toolError(message string) (*mcp.CallToolResult, error) {
	return toolResult(map[string]string{"status": "error", "message": message})
}

func (s *Server) handleConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", s.config.TerminalPath)

	if err := s.provider.Connect(ctx, path); err != nil {
		return toolResult(map[string]string{"status": "failed", "error": "Connection failed"})
	}

	account, err := s.provider.AccountInfo(ctx)
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(map[string]any{"status": "connected", "account": account})
}

func (s *Server) handleDisconnect(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.provider.Disconnect(ctx); err != nil {
		return toolError(err.Error())
	}
	return toolResult(map[string]string{"status": "disconnected"})
}

func (s *Server) handleAccountInfo(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	account, err := s.provider.AccountInfo(ctx)
	if err != nil {
		return toolError("Not connected to MT5")
	}
	return toolResult(map[string]any{"status": "success", "data": account})
}

func (s *Server) handleSymbols(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	symbols, err := s.provider.Symbols(ctx, req.GetString("group", ""))
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(map[string]any{"status": "success", "count": len(symbols), "symbols": symbols})
}

func (s *Server) handleTick(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	symbol, err := req.RequireString("symbol")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	tick, err := s.provider.LatestTick(ctx, symbol)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to get tick for %s", symbol))
	}
	return toolResult(map[string]any{"status": "success", "data": tick})
}

func (s *Server) handleRates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	symbol, err := req.RequireString("symbol")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	timeframe := req.GetString("timeframe", "M1")
	count := req.GetInt("count", 100)

	bars, err := s.provider.Rates(ctx, symbol, timeframe, count)
	if err != nil {
		return toolError(err.Error())
	}
	if len(bars) == 0 {
		return toolError("No data available")
	}

	return toolResult(map[string]any{
		"status":    "success",
		"symbol":    symbol,
		"timeframe": timeframe,
		"count":     len(bars),
		"data":      bars,
	})
}

func (s *Server) handlePositions(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	positions, err := s.provider.Positions(ctx)
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(map[string]any{"status": "success", "count": len(positions), "positions": positions})
}

func (s *Server) handleOrders(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	orders, err := s.provider.Orders(ctx)
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(map[string]any{"status": "success", "count": len(orders), "orders": orders})
}

func (s *Server) handlePlaceOrder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	symbol, err := req.RequireString("symbol")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	side, err := req.RequireString("order_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if side != "BUY" && side != "SELL" {
		return toolError("order_type must be BUY or SELL")
	}
	volume, err := req.RequireFloat("volume")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if volume <= 0 {
		return toolError("volume must be positive")
	}

	order := domain.OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Volume:     volume,
		Price:      req.GetFloat("price", 0),
		StopLoss:   req.GetFloat("sl", 0),
		TakeProfit: req.GetFloat("tp", 0),
		Comment:    req.GetString("comment", ""),
		Magic:      req.GetInt("magic", s.config.DefaultMagicNumber),
		Deviation:  s.config.DefaultDeviation,
	}

	result, err := s.provider.PlaceOrder(ctx, order)
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(map[string]any{"status": "success", "result": result})
}

func (s *Server) handleClosePosition(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ticket, err := req.RequireInt("ticket")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.provider.ClosePosition(ctx, int64(ticket))
	if err != nil {
		return toolError(err.Error())
	}
	return toolResult(map[string]any{"status": "success", "result": result})
}

func (s *Server) handleModifyPosition(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ticket, err := req.RequireInt("ticket")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args := req.GetArguments()
	var sl, tp *float64
	if _, ok := args["sl"]; ok {
		v := req.GetFloat("sl", 0)
		sl = &v
	}
	if _, ok := args["tp"]; ok {
		v := req.GetFloat("tp", 0)
		tp = &v
	}

	if err := s.provider.ModifyPosition(ctx, int64(ticket), sl, tp); err != nil {
		return toolError(err.Error())
	}
	return toolResult(map[string]string{"status": "modified"})
}

func (s *Server) handlePositionSize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	symbol, err := req.RequireString("symbol")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	balance, err := req.RequireFloat("balance")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	riskPct, err := req.RequireFloat("risk_percentage")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	slPips, err := req.RequireInt("stop_loss_pips")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if balance <= 0 || riskPct <= 0 || slPips <= 0 {
		return toolError("balance, risk_percentage and stop_loss_pips must be positive")
	}

	info, err := s.provider.SymbolInfo(ctx, symbol)
	if err != nil {
		return toolError(fmt.Sprintf("Symbol %s not found", symbol))
	}
	if info.TickValue <= 0 || info.VolumeStep <= 0 {
		return toolError("symbol has no usable tick value")
	}

	size, riskAmount := domain.PositionSize(balance, riskPct, slPips, info)
	return toolResult(map[string]any{
		"status":        "success",
		"position_size": size,
		"risk_amount":   riskAmount,
		"pip_value":     info.TickValue,
	})
}
