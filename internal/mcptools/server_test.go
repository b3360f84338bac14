package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickbridge/tickbridge/internal/config"
	"github.com/tickbridge/tickbridge/internal/domain"
)

type stubProvider struct {
	err        error
	connected  bool
	account    domain.AccountInfo
	symbolInfo domain.SymbolInfo
	tick       domain.Tick
	bars       []domain.Bar

	placedOrder *domain.OrderRequest
	modifiedSL  *float64
	modifiedTP  *float64
}

func (p *stubProvider) Connect(context.Context, string) error { return p.err }
func (p *stubProvider) Disconnect(context.Context) error      { return p.err }
func (p *stubProvider) Connected() bool                       { return p.connected }

func (p *stubProvider) LatestTick(context.Context, string) (domain.Tick, error) {
	return p.tick, p.err
}

func (p *stubProvider) SymbolKnown(context.Context, string) (bool, error) { return p.err == nil, p.err }
func (p *stubProvider) SelectSymbol(context.Context, string) error        { return p.err }

func (p *stubProvider) AccountInfo(context.Context) (domain.AccountInfo, error) {
	return p.account, p.err
}

func (p *stubProvider) Symbols(context.Context, string) ([]domain.SymbolInfo, error) {
	return nil, p.err
}

func (p *stubProvider) SymbolInfo(context.Context, string) (domain.SymbolInfo, error) {
	return p.symbolInfo, p.err
}

func (p *stubProvider) Rates(context.Context, string, string, int) ([]domain.Bar, error) {
	return p.bars, p.err
}

func (p *stubProvider) Positions(context.Context) ([]domain.Position, error) { return nil, p.err }
func (p *stubProvider) Orders(context.Context) ([]domain.Order, error)       { return nil, p.err }

func (p *stubProvider) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	p.placedOrder = &req
	return domain.OrderResult{Order: 7}, p.err
}

func (p *stubProvider) ClosePosition(context.Context, int64) (domain.OrderResult, error) {
	return domain.OrderResult{}, p.err
}

func (p *stubProvider) ModifyPosition(_ context.Context, _ int64, sl, tp *float64) error {
	p.modifiedSL = sl
	p.modifiedTP = tp
	return p.err
}

func testTools(provider *stubProvider) *Server {
	cfg := &config.Config{
		DefaultMagicNumber: 12345,
		DefaultDeviation:   10,
	}
	return NewServer(cfg, provider)
}

func callReq(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &decoded))
	return decoded
}

func TestTools_GetTick(t *testing.T) {
	provider := &stubProvider{
		tick: domain.NewTick("EURUSD", 1.1000, 1.1002, 1.1001, 50, time.Now().UTC()),
	}
	s := testTools(provider)

	res, err := s.handleTick(context.Background(), callReq(map[string]any{"symbol": "EURUSD"}))
	require.NoError(t, err)

	body := decodeResult(t, res)
	assert.Equal(t, "success", body["status"])
	data := body["data"].(map[string]any)
	assert.Equal(t, 1.1000, data["bid"])
	assert.Equal(t, 2.0, data["spread"])
}

func TestTools_GetTickFailure(t *testing.T) {
	s := testTools(&stubProvider{err: errors.New("gateway down")})

	res, err := s.handleTick(context.Background(), callReq(map[string]any{"symbol": "EURUSD"}))
	require.NoError(t, err)

	body := decodeResult(t, res)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "Failed to get tick for EURUSD", body["message"])
}

func TestTools_GetTickRequiresSymbol(t *testing.T) {
	s := testTools(&stubProvider{})

	res, err := s.handleTick(context.Background(), callReq(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestTools_PlaceOrderAppliesDefaults(t *testing.T) {
	provider := &stubProvider{}
	s := testTools(provider)

	res, err := s.handlePlaceOrder(context.Background(), callReq(map[string]any{
		"symbol":     "EURUSD",
		"order_type": "BUY",
		"volume":     0.1,
	}))
	require.NoError(t, err)

	body := decodeResult(t, res)
	assert.Equal(t, "success", body["status"])
	require.NotNil(t, provider.placedOrder)
	assert.Equal(t, 12345, provider.placedOrder.Magic)
	assert.Equal(t, 10, provider.placedOrder.Deviation)
}

func TestTools_PlaceOrderValidatesSide(t *testing.T) {
	provider := &stubProvider{}
	s := testTools(provider)

	res, err := s.handlePlaceOrder(context.Background(), callReq(map[string]any{
		"symbol":     "EURUSD",
		"order_type": "HOLD",
		"volume":     0.1,
	}))
	require.NoError(t, err)

	body := decodeResult(t, res)
	assert.Equal(t, "error", body["status"])
	assert.Nil(t, provider.placedOrder)
}

func TestTools_ModifyPositionSendsOnlySetFields(t *testing.T) {
	provider := &stubProvider{}
	s := testTools(provider)

	res, err := s.handleModifyPosition(context.Background(), callReq(map[string]any{
		"ticket": 7,
		"sl":     1.0950,
	}))
	require.NoError(t, err)

	body := decodeResult(t, res)
	assert.Equal(t, "modified", body["status"])
	require.NotNil(t, provider.modifiedSL)
	assert.Equal(t, 1.0950, *provider.modifiedSL)
	assert.Nil(t, provider.modifiedTP)
}

func TestTools_CalculatePositionSize(t *testing.T) {
	provider := &stubProvider{symbolInfo: domain.SymbolInfo{
		Name:       "EURUSD",
		TickValue:  10,
		VolumeMin:  0.01,
		VolumeMax:  100,
		VolumeStep: 0.01,
	}}
	s := testTools(provider)

	res, err := s.handlePositionSize(context.Background(), callReq(map[string]any{
		"symbol":          "EURUSD",
		"balance":         10000,
		"risk_percentage": 1,
		"stop_loss_pips":  50,
	}))
	require.NoError(t, err)

	body := decodeResult(t, res)
	assert.Equal(t, "success", body["status"])
	assert.InDelta(t, 0.2, body["position_size"].(float64), 1e-9)
	assert.InDelta(t, 100.0, body["risk_amount"].(float64), 1e-9)
}

func TestTools_AnalyzeMarket(t *testing.T) {
	bars := make([]domain.Bar, 24)
	for i := range bars {
		// Steadily rising closes make the short average lead the long one.
		c := 1.1000 + float64(i)*0.01
		bars[i] = domain.Bar{High: c + 0.001, Low: c - 0.001, Close: c}
	}
	provider := &stubProvider{
		tick: domain.NewTick("EURUSD", 1.3300, 1.3302, 1.3301, 10, time.Now().UTC()),
		bars: bars,
	}
	s := testTools(provider)

	res, err := s.handleAnalyzeMarket(context.Background(), callReq(map[string]any{"symbol": "EURUSD"}))
	require.NoError(t, err)

	body := decodeResult(t, res)
	require.Equal(t, "success", body["status"])
	analysis := body["analysis"].(map[string]any)
	assert.Equal(t, "bullish", analysis["trend"])

	stats := analysis["24h_stats"].(map[string]any)
	assert.InDelta(t, 1.3310, stats["high"].(float64), 1e-9)
	assert.InDelta(t, 1.0990, stats["low"].(float64), 1e-9)

	price := analysis["current_price"].(map[string]any)
	assert.Equal(t, 1.3300, price["bid"])
}

func TestTools_AnalyzeMarketNoData(t *testing.T) {
	provider := &stubProvider{
		tick: domain.NewTick("EURUSD", 1.1, 1.1002, 1.1, 10, time.Now().UTC()),
	}
	s := testTools(provider)

	res, err := s.handleAnalyzeMarket(context.Background(), callReq(map[string]any{"symbol": "EURUSD"}))
	require.NoError(t, err)

	body := decodeResult(t, res)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "Unable to analyze market", body["message"])
}

func TestTrend(t *testing.T) {
	flat := make([]domain.Bar, 24)
	for i := range flat {
		flat[i] = domain.Bar{Close: 1.1}
	}
	assert.Equal(t, "neutral", trend(flat))

	falling := make([]domain.Bar, 24)
	for i := range falling {
		falling[i] = domain.Bar{Close: 1.5 - float64(i)*0.02}
	}
	assert.Equal(t, "bearish", trend(falling))

	assert.Equal(t, "unknown", trend(nil))
}
