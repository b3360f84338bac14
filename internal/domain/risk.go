package domain

import "math"

// PositionSize computes a risk-based lot size: the volume whose loss at
// stopLossPips equals riskPct percent of balance, snapped to the symbol's
// volume step and clamped to its bounds. Returns the size and the risked
// amount. Caller validates that info has usable tick value and step.
func PositionSize(balance, riskPct float64, stopLossPips int, info SymbolInfo) (size, riskAmount float64) {
	riskAmount = balance * (riskPct / 100)
	size = riskAmount / (float64(stopLossPips) * info.TickValue)

	size = math.Round(size/info.VolumeStep) * info.VolumeStep
	size = math.Max(info.VolumeMin, math.Min(size, info.VolumeMax))
	return size, riskAmount
}
