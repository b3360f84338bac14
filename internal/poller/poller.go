// Package poller runs the change-detection loop that turns the terminal's
// pull-only tick API into a stream of change events. The terminal exposes no
// push mechanism, so polling at a short fixed cadence is the only way to
// observe new ticks.
package poller

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/tickbridge/tickbridge/internal/domain"
	"github.com/tickbridge/tickbridge/internal/metrics"
)

// SubscriptionView provides the per-cycle snapshot of symbols worth polling.
type SubscriptionView interface {
	Symbols() []string
}

// TickDispatcher receives every detected change for fan-out.
type TickDispatcher interface {
	BroadcastTick(symbol string, tick domain.Tick)
}

// Poller walks the subscribed symbols at a fixed cadence, fetches the
// current tick for each and dispatches only genuine bid/ask changes.
// lastSeen is owned exclusively by the Run goroutine.
type Poller struct {
	source       domain.TickSource
	view         SubscriptionView
	dispatcher   TickDispatcher
	clock        clockwork.Clock
	interval     time.Duration
	fetchTimeout time.Duration

	lastSeen map[string]domain.Tick
}

// New creates a poller. interval is the sleep between cycles; fetchTimeout
// bounds each individual provider call so one stalled symbol cannot delay
// polling of all others.
func New(source domain.TickSource, view SubscriptionView, dispatcher TickDispatcher, clock clockwork.Clock, interval, fetchTimeout time.Duration) *Poller {
	return &Poller{
		source:       source,
		view:         view,
		dispatcher:   dispatcher,
		clock:        clock,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		lastSeen:     make(map[string]domain.Tick),
	}
}

// Run executes poll cycles until ctx is cancelled. The stop signal is
// checked once per cycle; an in-flight fetch is bounded by fetchTimeout.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("Poller started", "interval", p.interval)
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Poller stopped")
			return
		case <-ticker.Chan():
			p.cycle(ctx)
		}
	}
}

// cycle runs one pass over the subscribed symbols. A panic inside a cycle
// is recovered so the loop survives any single symbol's failure.
func (p *Poller) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Poll cycle panic recovered", "panic", r)
			metrics.PollerPanicsTotal.Inc()
		}
	}()

	symbols := p.view.Symbols()
	for _, symbol := range symbols {
		p.pollSymbol(ctx, symbol)
	}

	p.prune(symbols)
	metrics.PollCyclesTotal.Inc()
}

func (p *Poller) pollSymbol(ctx context.Context, symbol string) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	tick, err := p.source.LatestTick(fetchCtx, symbol)
	cancel()

	if err != nil {
		// Never fatal: the symbol may have vanished or the terminal may be
		// reconnecting. Retry next cycle.
		metrics.TickFetchErrorsTotal.Inc()
		slog.Debug("Tick fetch failed", "symbol", symbol, "error", err)
		return
	}

	last, seen := p.lastSeen[symbol]
	if seen && last.SamePrices(tick) {
		metrics.TicksCoalescedTotal.Inc()
		return
	}

	p.lastSeen[symbol] = tick
	p.dispatcher.BroadcastTick(symbol, tick)
	metrics.TicksBroadcastTotal.WithLabelValues(symbol).Inc()
}

// prune drops change-detection state for symbols that lost their last
// subscriber, so a future resubscribe sees the first fetch as a change and
// receives the latest value immediately.
func (p *Poller) prune(active []string) {
	if len(p.lastSeen) == 0 {
		return
	}
	keep := make(map[string]struct{}, len(active))
	for _, symbol := range active {
		keep[symbol] = struct{}{}
	}
	for symbol := range p.lastSeen {
		if _, ok := keep[symbol]; !ok {
			delete(p.lastSeen, symbol)
		}
	}
}
