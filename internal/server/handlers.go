package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/tickbridge/tickbridge/internal/domain"
	apperrors "github.com/tickbridge/tickbridge/internal/errors"
)

var validTimeframes = map[string]bool{
	"M1": true, "M5": true, "M15": true, "M30": true,
	"H1": true, "H4": true, "D1": true, "W1": true, "MN1": true,
}

// respondError maps any error to the structured JSON error reply.
func respondError(c echo.Context, err error) error {
	structured := apperrors.AsStructuredError(err)
	return c.JSON(structured.HTTPStatus(), structured.ToResponse())
}

func (s *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message": "MT5 tick bridge",
		"status":  "online",
	})
}

func (s *Server) handleConnect(c echo.Context) error {
	var req struct {
		Path string `json:"path"`
	}
	// The body is optional; an empty body means the default terminal.
	_ = c.Bind(&req)

	path := req.Path
	if path == "" {
		path = s.config.TerminalPath
	}

	if err := s.provider.Connect(c.Request().Context(), path); err != nil {
		return respondError(c, apperrors.ExternalError("connection failed, make sure the terminal is running and logged in", err))
	}

	account, err := s.provider.AccountInfo(c.Request().Context())
	if err != nil {
		return respondError(c, apperrors.FromProvider(err))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":  "connected",
		"account": account,
	})
}

func (s *Server) handleDisconnect(c echo.Context) error {
	if err := s.provider.Disconnect(c.Request().Context()); err != nil {
		return respondError(c, apperrors.FromProvider(err))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "disconnected"})
}

func (s *Server) handleAccount(c echo.Context) error {
	account, err := s.provider.AccountInfo(c.Request().Context())
	if err != nil {
		return respondError(c, apperrors.FromProvider(err))
	}
	return c.JSON(http.StatusOK, account)
}

func (s *Server) handleSymbols(c echo.Context) error {
	symbols, err := s.provider.Symbols(c.Request().Context(), c.QueryParam("group"))
	if err != nil {
		return respondError(c, apperrors.FromProvider(err))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"count":   len(symbols),
		"symbols": symbols,
	})
}

func (s *Server) handleTick(c echo.Context) error {
	tick, err := s.provider.LatestTick(c.Request().Context(), c.Param("symbol"))
	if err != nil {
		return respondError(c, apperrors.FromProvider(err))
	}
	return c.JSON(http.StatusOK, tick)
}

func (s *Server) handleRates(c echo.Context) error {
	symbol := c.Param("symbol")

	timeframe := c.QueryParam("timeframe")
	if timeframe == "" {
		timeframe = "H1"
	}
	if !validTimeframes[timeframe] {
		return respondError(c, apperrors.ValidationError("invalid timeframe"))
	}

	count := 100
	if raw := c.QueryParam("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return respondError(c, apperrors.ValidationError("count must be a positive integer"))
		}
		count = parsed
	}

	bars, err := s.provider.Rates(c.Request().Context(), symbol, timeframe, count)
	if err != nil {
		return respondError(c, apperrors.FromProvider(err))
	}
	if len(bars) == 0 {
		return respondError(c, apperrors.NotFoundError("no data available"))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"symbol":    symbol,
		"timeframe": timeframe,
		"count":     len(bars),
		"data":      bars,
	})
}

func (s *Server) handlePositions(c echo.Context) error {
	positions, err := s.provider.Positions(c.Request().Context())
	if err != nil {
		return respondError(c, apperrors.FromProvider(err))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"count":     len(positions),
		"positions": positions,
	})
}

func (s *Server) handleOrders(c echo.Context) error {
	orders, err := s.provider.Orders(c.Request().Context())
	if err != nil {
		return respondError(c, apperrors.FromProvider(err))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"count":  len(orders),
		"orders": orders,
	})
}

func (s *Server) handlePlaceOrder(c echo.Context) error {
	var req domain.OrderRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apperrors.ValidationError("invalid order request"))
	}

	if req.Symbol == "" {
		return respondError(c, apperrors.ValidationError("symbol is required"))
	}
	if req.Side != "BUY" && req.Side != "SELL" {
		return respondError(c, apperrors.ValidationError("order_type must be BUY or SELL"))
	}
	if req.Volume <= 0 {
		return respondError(c, apperrors.ValidationError("volume must be positive"))
	}
	if req.Magic == 0 {
		req.Magic = s.config.DefaultMagicNumber
	}
	if req.Deviation == 0 {
		req.Deviation = s.config.DefaultDeviation
	}

	result, err := s.provider.PlaceOrder(c.Request().Context(), req)
	if err != nil {
		return respondError(c, apperrors.FromProvider(err))
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleClosePosition(c echo.Context) error {
	ticket, err := strconv.ParseInt(c.Param("ticket"), 10, 64)
	if err != nil {
		return respondError(c, apperrors.ValidationError("ticket must be an integer"))
	}

	result, err := s.provider.ClosePosition(c.Request().Context(), ticket)
	if err != nil {
		return respondError(c, apperrors.FromProvider(err))
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleModifyPosition(c echo.Context) error {
	var req struct {
		Ticket     int64    `json:"ticket"`
		StopLoss   *float64 `json:"sl"`
		TakeProfit *float64 `json:"tp"`
	}
	if err := c.Bind(&req); err != nil {
		return respondError(c, apperrors.ValidationError("invalid modify request"))
	}
	if req.Ticket == 0 {
		return respondError(c, apperrors.ValidationError("ticket is required"))
	}

	if err := s.provider.ModifyPosition(c.Request().Context(), req.Ticket, req.StopLoss, req.TakeProfit); err != nil {
		return respondError(c, apperrors.FromProvider(err))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "modified"})
}

func (s *Server) handlePositionSize(c echo.Context) error {
	var req struct {
		Balance        float64 `json:"balance"`
		RiskPercentage float64 `json:"risk_percentage"`
		StopLossPips   int     `json:"stop_loss_pips"`
		Symbol         string  `json:"symbol"`
	}
	if err := c.Bind(&req); err != nil {
		return respondError(c, apperrors.ValidationError("invalid request"))
	}
	if req.Symbol == "" {
		return respondError(c, apperrors.ValidationError("symbol is required"))
	}
	if req.Balance <= 0 || req.RiskPercentage <= 0 || req.StopLossPips <= 0 {
		return respondError(c, apperrors.ValidationError("balance, risk_percentage and stop_loss_pips must be positive"))
	}

	info, err := s.provider.SymbolInfo(c.Request().Context(), req.Symbol)
	if err != nil {
		return respondError(c, apperrors.FromProvider(err))
	}
	if info.TickValue <= 0 || info.VolumeStep <= 0 {
		return respondError(c, apperrors.ValidationError("symbol has no usable tick value"))
	}

	size, riskAmount := domain.PositionSize(req.Balance, req.RiskPercentage, req.StopLossPips, info)

	return c.JSON(http.StatusOK, map[string]any{
		"position_size": size,
		"risk_amount":   riskAmount,
		"pip_value":     info.TickValue,
		"min_lot":       info.VolumeMin,
		"max_lot":       info.VolumeMax,
		"lot_step":      info.VolumeStep,
	})
}
