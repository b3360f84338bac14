package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickbridge/tickbridge/internal/config"
	"github.com/tickbridge/tickbridge/internal/domain"
	"github.com/tickbridge/tickbridge/internal/hub"
	"github.com/tickbridge/tickbridge/internal/session"
)

// mockProvider returns canned values. Err, when set, is returned by every
// call so error mapping can be asserted per endpoint.
type mockProvider struct {
	err       error
	connected bool

	account    domain.AccountInfo
	symbols    []domain.SymbolInfo
	symbolInfo domain.SymbolInfo
	tick       domain.Tick
	bars       []domain.Bar
	positions  []domain.Position
	orders     []domain.Order
	result     domain.OrderResult

	placedOrder   *domain.OrderRequest
	ratesArgs     []any
	modifiedSL    *float64
	modifiedTP    *float64
	connectedPath string
}

func (m *mockProvider) Connect(_ context.Context, path string) error {
	if m.err != nil {
		return m.err
	}
	m.connected = true
	m.connectedPath = path
	return nil
}

func (m *mockProvider) Disconnect(context.Context) error {
	m.connected = false
	return m.err
}

func (m *mockProvider) Connected() bool { return m.connected }

func (m *mockProvider) LatestTick(context.Context, string) (domain.Tick, error) {
	return m.tick, m.err
}

func (m *mockProvider) SymbolKnown(context.Context, string) (bool, error) {
	return m.err == nil, m.err
}

func (m *mockProvider) SelectSymbol(context.Context, string) error { return m.err }

func (m *mockProvider) AccountInfo(context.Context) (domain.AccountInfo, error) {
	return m.account, m.err
}

func (m *mockProvider) Symbols(context.Context, string) ([]domain.SymbolInfo, error) {
	return m.symbols, m.err
}

func (m *mockProvider) SymbolInfo(context.Context, string) (domain.SymbolInfo, error) {
	return m.symbolInfo, m.err
}

func (m *mockProvider) Rates(_ context.Context, symbol, timeframe string, count int) ([]domain.Bar, error) {
	m.ratesArgs = []any{symbol, timeframe, count}
	return m.bars, m.err
}

func (m *mockProvider) Positions(context.Context) ([]domain.Position, error) {
	return m.positions, m.err
}

func (m *mockProvider) Orders(context.Context) ([]domain.Order, error) {
	return m.orders, m.err
}

func (m *mockProvider) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	m.placedOrder = &req
	return m.result, m.err
}

func (m *mockProvider) ClosePosition(context.Context, int64) (domain.OrderResult, error) {
	return m.result, m.err
}

func (m *mockProvider) ModifyPosition(_ context.Context, _ int64, sl, tp *float64) error {
	m.modifiedSL = sl
	m.modifiedTP = tp
	return m.err
}

func testServer(t *testing.T, provider *mockProvider) *Server {
	t.Helper()

	cfg := &config.Config{
		APIPort:             "8000",
		StreamPort:          "8765",
		MaxConnections:      10,
		MaxConnectionsPerIP: 5,
		DefaultMagicNumber:  12345,
		DefaultDeviation:    10,
	}

	h := hub.New(clockwork.NewRealClock())
	t.Cleanup(func() { h.Stop() })

	return NewServer(cfg, provider, session.NewHandler(h, provider, 100, 100))
}

func doRequest(t *testing.T, s *Server, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && json.Unmarshal(rec.Body.Bytes(), &decoded) != nil {
		decoded = nil
	}
	return rec, decoded
}

func TestHandleLiveness(t *testing.T) {
	s := testServer(t, &mockProvider{})

	rec, body := doRequest(t, s, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", body["status"])
}

func TestHandleReadiness(t *testing.T) {
	provider := &mockProvider{}
	s := testServer(t, provider)

	rec, body := doRequest(t, s, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "terminal not connected", body["reason"])

	provider.connected = true
	rec, body = doRequest(t, s, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])
}

func TestHandleRoot(t *testing.T) {
	s := testServer(t, &mockProvider{})

	rec, body := doRequest(t, s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "online", body["status"])
}

func TestHandleConnect_UsesConfiguredTerminalPath(t *testing.T) {
	provider := &mockProvider{account: domain.AccountInfo{Login: 12345}}
	s := testServer(t, provider)
	s.config.TerminalPath = "C:\\terminal64.exe"

	rec, body := doRequest(t, s, http.MethodPost, "/connect", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "connected", body["status"])
	assert.Equal(t, "C:\\terminal64.exe", provider.connectedPath)

	account := body["account"].(map[string]any)
	assert.Equal(t, float64(12345), account["login"])
}

func TestHandleAccount_NotConnectedMapsTo400(t *testing.T) {
	s := testServer(t, &mockProvider{err: domain.ErrNotConnected})

	rec, body := doRequest(t, s, http.MethodGet, "/account", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", body["type"])
}

func TestHandleTick_UnavailableMapsTo404(t *testing.T) {
	s := testServer(t, &mockProvider{err: domain.ErrTickUnavailable})

	rec, body := doRequest(t, s, http.MethodGet, "/tick/EURUSD", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no tick available", body["error"])
}

func TestHandleSymbols(t *testing.T) {
	provider := &mockProvider{symbols: []domain.SymbolInfo{{Name: "EURUSD"}, {Name: "GBPUSD"}}}
	s := testServer(t, provider)

	rec, body := doRequest(t, s, http.MethodGet, "/symbols", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["count"])
}

func TestHandleRates_Defaults(t *testing.T) {
	provider := &mockProvider{bars: []domain.Bar{{Open: 1.1, Close: 1.2}}}
	s := testServer(t, provider)

	rec, body := doRequest(t, s, http.MethodGet, "/rates/EURUSD", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "H1", body["timeframe"])
	assert.Equal(t, []any{"EURUSD", "H1", 100}, provider.ratesArgs)
}

func TestHandleRates_InvalidTimeframe(t *testing.T) {
	s := testServer(t, &mockProvider{})

	rec, body := doRequest(t, s, http.MethodGet, "/rates/EURUSD?timeframe=H7", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid timeframe", body["error"])
}

func TestHandleRates_NoData(t *testing.T) {
	s := testServer(t, &mockProvider{})

	rec, body := doRequest(t, s, http.MethodGet, "/rates/EURUSD", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no data available", body["error"])
}

func TestHandlePlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantMsg string
	}{
		{"missing symbol", `{"order_type":"BUY","volume":0.1}`, "symbol is required"},
		{"bad side", `{"symbol":"EURUSD","order_type":"HOLD","volume":0.1}`, "order_type must be BUY or SELL"},
		{"non-positive volume", `{"symbol":"EURUSD","order_type":"BUY","volume":0}`, "volume must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testServer(t, &mockProvider{})
			rec, body := doRequest(t, s, http.MethodPost, "/order", tt.payload)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantMsg, body["error"])
		})
	}
}

func TestHandlePlaceOrder_AppliesDefaults(t *testing.T) {
	provider := &mockProvider{result: domain.OrderResult{Order: 99}}
	s := testServer(t, provider)

	rec, _ := doRequest(t, s, http.MethodPost, "/order", `{"symbol":"EURUSD","order_type":"BUY","volume":0.1}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, provider.placedOrder)
	assert.Equal(t, 12345, provider.placedOrder.Magic)
	assert.Equal(t, 10, provider.placedOrder.Deviation)
}

func TestHandlePlaceOrder_KeepsExplicitDeviation(t *testing.T) {
	provider := &mockProvider{}
	s := testServer(t, provider)

	rec, _ := doRequest(t, s, http.MethodPost, "/order", `{"symbol":"EURUSD","order_type":"SELL","volume":0.1,"deviation":3}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, provider.placedOrder)
	assert.Equal(t, 3, provider.placedOrder.Deviation)
}

func TestHandleClosePosition(t *testing.T) {
	s := testServer(t, &mockProvider{err: domain.ErrPositionMissing})

	rec, _ := doRequest(t, s, http.MethodDelete, "/position/notanumber", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := doRequest(t, s, http.MethodDelete, "/position/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "position not found", body["error"])
}

func TestHandleModifyPosition(t *testing.T) {
	provider := &mockProvider{}
	s := testServer(t, provider)

	rec, body := doRequest(t, s, http.MethodPatch, "/position", `{"sl":1.09}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ticket is required", body["error"])

	rec, _ = doRequest(t, s, http.MethodPatch, "/position", `{"ticket":7,"sl":1.09}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, provider.modifiedSL)
	assert.Equal(t, 1.09, *provider.modifiedSL)
	assert.Nil(t, provider.modifiedTP)
}

func TestHandlePositionSize(t *testing.T) {
	provider := &mockProvider{symbolInfo: domain.SymbolInfo{
		Name:       "EURUSD",
		TickValue:  10,
		VolumeMin:  0.01,
		VolumeMax:  100,
		VolumeStep: 0.01,
	}}
	s := testServer(t, provider)

	payload := `{"symbol":"EURUSD","balance":10000,"risk_percentage":1,"stop_loss_pips":50}`
	rec, body := doRequest(t, s, http.MethodPost, "/calculate/position-size", payload)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 100.0, body["risk_amount"].(float64), 1e-9)
	assert.InDelta(t, 0.2, body["position_size"].(float64), 1e-9)
}

func TestHandlePositionSize_ClampsToMinimumLot(t *testing.T) {
	provider := &mockProvider{symbolInfo: domain.SymbolInfo{
		TickValue:  10,
		VolumeMin:  0.01,
		VolumeMax:  100,
		VolumeStep: 0.01,
	}}
	s := testServer(t, provider)

	// Tiny balance produces a size below the minimum lot.
	payload := `{"symbol":"EURUSD","balance":10,"risk_percentage":0.1,"stop_loss_pips":500}`
	rec, body := doRequest(t, s, http.MethodPost, "/calculate/position-size", payload)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.01, body["position_size"].(float64), 1e-9)
}

func TestHandleWebSocket_GlobalLimit(t *testing.T) {
	s := testServer(t, &mockProvider{})
	s.globalLimiter = NewGlobalConnectionLimiter(0)

	rec, _ := doRequest(t, s, http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleWebSocket_PerIPLimit(t *testing.T) {
	s := testServer(t, &mockProvider{})
	s.ipLimiter = NewIPConnectionLimiter(0)

	rec, _ := doRequest(t, s, http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
