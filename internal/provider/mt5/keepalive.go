package mt5

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

const keepAliveProbeSymbol = "EURUSD"

// RunKeepAlive periodically touches a known symbol so the terminal session
// does not idle out. It blocks until ctx is cancelled. Probe failures are
// logged and retried on the next interval.
func (c *Client) RunKeepAlive(ctx context.Context, clock clockwork.Clock, interval time.Duration) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !c.connected.Load() {
				continue
			}
			probeCtx, cancel := context.WithTimeout(ctx, defaultHTTPTimeout)
			if _, err := c.SymbolInfo(probeCtx, keepAliveProbeSymbol); err != nil {
				c.logger.Debug("Keep-alive probe failed", "error", err)
			}
			cancel()
		}
	}
}
