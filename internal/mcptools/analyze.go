package mcptools

import (
	"context"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tickbridge/tickbridge/internal/domain"
)

const (
	analysisBars = 24
	smaShortSpan = 10
	smaLongSpan  = 20
)

// handleAnalyzeMarket summarizes the current price against the last 24 H1
// bars: range, mean, volatility and a moving-average trend call.
func (s *Server) handleAnalyzeMarket(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	symbol, err := req.RequireString("symbol")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	tick, err := s.provider.LatestTick(ctx, symbol)
	if err != nil {
		return toolError("Unable to analyze market")
	}
	bars, err := s.provider.Rates(ctx, symbol, "H1", analysisBars)
	if err != nil || len(bars) == 0 {
		return toolError("Unable to analyze market")
	}

	high, low := bars[0].High, bars[0].Low
	var sum float64
	for _, b := range bars {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
		sum += b.Close
	}
	mean := sum / float64(len(bars))

	var variance float64
	for _, b := range bars {
		variance += (b.Close - mean) * (b.Close - mean)
	}
	volatility := math.Sqrt(variance / float64(len(bars)))

	return toolResult(map[string]any{
		"status": "success",
		"analysis": map[string]any{
			"symbol": symbol,
			"current_price": map[string]any{
				"bid":    tick.Bid,
				"ask":    tick.Ask,
				"spread": tick.Spread,
			},
			"24h_stats": map[string]any{
				"high":       high,
				"low":        low,
				"average":    mean,
				"volatility": volatility,
			},
			"trend": trend(bars),
		},
	})
}

// trend compares a short and a long closing-price average over the most
// recent bars. A one percent band around parity reads as neutral.
func trend(bars []domain.Bar) string {
	if len(bars) == 0 {
		return "unknown"
	}

	smaShort := tailMean(bars, smaShortSpan)
	smaLong := tailMean(bars, smaLongSpan)

	switch {
	case smaShort > smaLong*1.01:
		return "bullish"
	case smaShort < smaLong*0.99:
		return "bearish"
	default:
		return "neutral"
	}
}

func tailMean(bars []domain.Bar, span int) float64 {
	if span > len(bars) {
		span = len(bars)
	}
	tail := bars[len(bars)-span:]

	var sum float64
	for _, b := range tail {
		sum += b.Close
	}
	return sum / float64(len(tail))
}
