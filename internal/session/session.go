// Package session handles one streaming connection from greeting to
// teardown. Both transports (the HTTP-upgraded channel and the dedicated
// streaming server) hand their upgraded connections to the same handler, so
// the control protocol behaves identically on either port.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tickbridge/tickbridge/internal/domain"
	"github.com/tickbridge/tickbridge/internal/hub"
	"github.com/tickbridge/tickbridge/internal/protocol"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const resolveTimeout = 5 * time.Second

// errResolverUnavailable marks a symbol lookup that failed because the
// terminal gateway could not be reached, as opposed to the symbol being
// unknown.
var errResolverUnavailable = errors.New("market data source unavailable")

// Handler serves streaming connections.
type Handler struct {
	hub      *hub.Hub
	resolver domain.SymbolResolver
	msgRate  rate.Limit
	msgBurst int

	// collapses concurrent resolutions of the same symbol into one
	// gateway round trip
	resolveGroup singleflight.Group
}

// NewHandler creates a session handler. msgsPerSecond and burst bound the
// inbound control-message rate per connection.
func NewHandler(h *hub.Hub, resolver domain.SymbolResolver, msgsPerSecond float64, burst int) *Handler {
	return &Handler{
		hub:      h,
		resolver: resolver,
		msgRate:  rate.Limit(msgsPerSecond),
		msgBurst: burst,
	}
}

// HandleConn runs the connection's read loop until the peer disconnects,
// then removes all of its subscriptions. It blocks for the connection's
// lifetime and must be called from the goroutine serving the upgrade.
func (h *Handler) HandleConn(conn *websocket.Conn) {
	client := h.hub.Attach(conn)
	defer h.hub.Detach(client)

	log := slog.With("connection_id", client.ID())
	log.Info("Client connected", "remote_addr", conn.RemoteAddr().String())

	h.send(client, protocol.NewConnectionAck())

	limiter := rate.NewLimiter(h.msgRate, h.msgBurst)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}

		if !limiter.Allow() {
			h.send(client, protocol.NewErrorReply("Message rate limit exceeded"))
			continue
		}

		h.dispatch(client, payload, log)
	}

	log.Info("Client disconnected")
}

// dispatch handles one inbound control message. Every failure is reported
// on the connection itself; the connection stays open.
func (h *Handler) dispatch(client *hub.Client, payload []byte, log *slog.Logger) {
	var req protocol.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		h.send(client, protocol.NewErrorReply("Invalid JSON message"))
		return
	}

	switch req.Type {
	case protocol.TypeSubscribe:
		h.handleSubscribe(client, req.Symbol, log)
	case protocol.TypeUnsubscribe:
		h.handleUnsubscribe(client, req.Symbol)
	case protocol.TypePing:
		h.send(client, protocol.PongReply{Type: protocol.TypePong})
	default:
		h.send(client, protocol.NewErrorReply(fmt.Sprintf("Unknown message type: %s", req.Type)))
	}
}

// handleSubscribe resolves and activates the symbol with the provider
// before touching the registry, so a failed resolution leaves no state
// behind. The subscription ack is enqueued by the hub to guarantee it
// precedes the first tick event.
func (h *Handler) handleSubscribe(client *hub.Client, symbol string, log *slog.Logger) {
	if symbol == "" {
		h.send(client, protocol.NewErrorReply("Missing symbol"))
		return
	}

	if err := h.resolveSymbol(symbol); err != nil {
		log.Warn("Symbol resolution failed", "symbol", symbol, "error", err)
		switch {
		case errors.Is(err, domain.ErrSymbolNotFound):
			h.send(client, protocol.NewErrorReply(fmt.Sprintf("Symbol %s not found", symbol)))
		case errors.Is(err, errResolverUnavailable):
			h.send(client, protocol.NewErrorReply("Market data source unavailable"))
		default:
			h.send(client, protocol.NewErrorReply(fmt.Sprintf("Failed to select symbol %s", symbol)))
		}
		return
	}

	ack, err := json.Marshal(protocol.NewSubscriptionReply(symbol, protocol.StatusSubscribed))
	if err != nil {
		log.Error("Failed to marshal subscription ack", "error", err)
		return
	}

	if err := h.hub.Subscribe(client, symbol, ack); err != nil {
		log.Warn("Subscribe failed", "symbol", symbol, "error", err)
		h.send(client, protocol.NewErrorReply("Subscription failed"))
		return
	}

	log.Info("Subscribed", "symbol", symbol)
}

// resolveSymbol checks the symbol against the terminal and activates it in
// market watch. Concurrent calls for the same symbol share one round trip.
func (h *Handler) resolveSymbol(symbol string) error {
	_, err, _ := h.resolveGroup.Do(symbol, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		defer cancel()

		known, err := h.resolver.SymbolKnown(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("%w: lookup %s: %v", errResolverUnavailable, symbol, err)
		}
		if !known {
			return nil, domain.ErrSymbolNotFound
		}
		return nil, h.resolver.SelectSymbol(ctx, symbol)
	})
	return err
}

// handleUnsubscribe always acknowledges, even when the pair was absent.
func (h *Handler) handleUnsubscribe(client *hub.Client, symbol string) {
	if symbol == "" {
		h.send(client, protocol.NewErrorReply("Missing symbol"))
		return
	}

	ack, err := json.Marshal(protocol.NewSubscriptionReply(symbol, protocol.StatusUnsubscribed))
	if err != nil {
		slog.Error("Failed to marshal unsubscription ack", "error", err)
		return
	}

	h.hub.Unsubscribe(client, symbol, ack)
}

func (h *Handler) send(client *hub.Client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal reply", "error", err)
		return
	}
	client.Send(data)
}
