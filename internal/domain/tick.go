package domain

import (
	"math"
	"time"
)

// Tick is one point-in-time price quote for a symbol. Ticks are value
// objects: produced fresh on every poll and never mutated afterwards.
type Tick struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Last   float64   `json:"last"`
	Volume float64   `json:"volume"`
	Time   time.Time `json:"time"`
	Spread float64   `json:"spread"`
}

// NewTick builds a Tick and derives its spread in pips.
func NewTick(symbol string, bid, ask, last, volume float64, at time.Time) Tick {
	return Tick{
		Symbol: symbol,
		Bid:    bid,
		Ask:    ask,
		Last:   last,
		Volume: volume,
		Time:   at,
		Spread: SpreadPips(bid, ask),
	}
}

// SpreadPips converts a bid/ask difference to pips, rounded to two decimals.
func SpreadPips(bid, ask float64) float64 {
	return math.Round((ask-bid)*10000*100) / 100
}

// SamePrices reports whether two ticks carry identical bid and ask values.
// The poller uses this for coalescing; last, volume and time are ignored
// because consumers only care about price movement.
func (t Tick) SamePrices(other Tick) bool {
	return t.Bid == other.Bid && t.Ask == other.Ask
}
