// Package hub owns the subscription registry and fans tick events out to
// streaming clients.
//
// All registry state lives on a single goroutine reached through a command
// channel, so subscribe/unsubscribe from connection handlers and broadcasts
// from the poller never touch the maps concurrently. Each connection gets a
// dedicated writer goroutine that exclusively owns writes to its socket; the
// command channel plus the per-connection send channels form the bridge
// between the poller's goroutine and each connection's write loop.
package hub

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/tickbridge/tickbridge/internal/domain"
	"github.com/tickbridge/tickbridge/internal/metrics"
	"github.com/tickbridge/tickbridge/internal/protocol"
)

const (
	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
	cmdBufferSize  = 256
)

// Client is the subscriber handle for one open connection. Identity is the
// handle itself, never its content.
type Client struct {
	id     uuid.UUID
	conn   *websocket.Conn
	writer *clientWriter
}

// ID returns the connection's identifier for logging.
func (c *Client) ID() string {
	return c.id.String()
}

// Send enqueues a frame on the connection's writer without blocking.
// It reports false when the send buffer is full.
func (c *Client) Send(data []byte) bool {
	return c.writer.enqueue(data)
}

// --- Command types ---

type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type attachCmd struct {
	baseHubCmd
	conn    *websocket.Conn
	replyCh chan *Client
}

type detachCmd struct {
	baseHubCmd
	client *Client
}

type subscribeCmd struct {
	baseHubCmd
	client *Client
	symbol string
	ack    []byte
	errCh  chan error
}

type unsubscribeCmd struct {
	baseHubCmd
	client *Client
	symbol string
	ack    []byte
}

type broadcastCmd struct {
	baseHubCmd
	symbol string
	data   []byte
}

type symbolsCmd struct {
	baseHubCmd
	replyCh chan []string
}

type clientCountCmd struct {
	baseHubCmd
	symbol  string
	replyCh chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub is the actor owning all subscription state.
type Hub struct {
	cmdCh chan hubCmd
	clock clockwork.Clock

	// symbol -> subscribed clients; a key exists only while its set is
	// non-empty, so the poller never walks dead symbols.
	subs map[string]map[*Client]struct{}
	// reverse index for O(1) teardown on disconnect
	connSymbols map[*Client]map[string]struct{}

	done chan struct{}
}

// New creates a hub and starts its actor goroutine.
func New(clock clockwork.Clock) *Hub {
	h := &Hub{
		cmdCh:       make(chan hubCmd, cmdBufferSize),
		clock:       clock,
		subs:        make(map[string]map[*Client]struct{}),
		connSymbols: make(map[*Client]map[string]struct{}),
		done:        make(chan struct{}),
	}
	go h.run()
	return h
}

// Attach registers a freshly upgraded connection and returns its handle.
func (h *Hub) Attach(conn *websocket.Conn) *Client {
	replyCh := make(chan *Client, 1)
	h.cmdCh <- attachCmd{conn: conn, replyCh: replyCh}
	return <-replyCh
}

// Detach removes the connection from every symbol it subscribed to and
// stops its writer. Safe to call more than once.
func (h *Hub) Detach(client *Client) {
	h.cmdCh <- detachCmd{client: client}
}

// Subscribe adds the client to a symbol's subscriber set. Idempotent. The
// ack frame, when non-nil, is enqueued on the client's writer before any
// later broadcast for the symbol, so the acknowledgment is always observed
// first.
func (h *Hub) Subscribe(client *Client, symbol string, ack []byte) error {
	errCh := make(chan error, 1)
	h.cmdCh <- subscribeCmd{client: client, symbol: symbol, ack: ack, errCh: errCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("subscribe command timed out after %v", commandTimeout)
	}
}

// Unsubscribe removes the client from a symbol's subscriber set. Removing
// an absent pair is a no-op; the ack is enqueued either way.
func (h *Hub) Unsubscribe(client *Client, symbol string, ack []byte) {
	h.cmdCh <- unsubscribeCmd{client: client, symbol: symbol, ack: ack}
}

// BroadcastTick encodes the tick once and hands it to the actor for fan-out.
func (h *Hub) BroadcastTick(symbol string, tick domain.Tick) {
	data, err := protocol.EncodeTick(tick)
	if err != nil {
		slog.Error("Failed to encode tick", "symbol", symbol, "error", err)
		return
	}
	h.cmdCh <- broadcastCmd{symbol: symbol, data: data}
}

// Symbols returns a snapshot of symbols with at least one subscriber,
// consumed once per poll cycle.
func (h *Hub) Symbols() []string {
	replyCh := make(chan []string, 1)
	h.cmdCh <- symbolsCmd{replyCh: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case symbols := <-replyCh:
		return symbols
	case <-timer.Chan():
		slog.Warn("Symbols snapshot timed out", "timeout", commandTimeout)
		return nil
	}
}

// ClientCount returns the number of subscribers for a symbol.
// Returns -1 if the command times out.
func (h *Hub) ClientCount(symbol string) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- clientCountCmd{symbol: symbol, replyCh: replyCh}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts the hub down, closing all client connections. Blocks until the
// actor goroutine has exited or the stop timeout is reached.
func (h *Hub) Stop() {
	h.cmdCh <- stopCmd{}

	timer := h.clock.NewTimer(stopTimeout)
	defer timer.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timer.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
	}
}

func (h *Hub) run() {
	defer close(h.done)

	depthTicker := h.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			metrics.HubCommandChannelDepth.Set(float64(len(h.cmdCh)))
		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case attachCmd:
				h.handleAttach(c)
			case detachCmd:
				h.handleDetach(c.client)
			case subscribeCmd:
				h.handleSubscribe(c)
			case unsubscribeCmd:
				h.handleUnsubscribe(c)
			case broadcastCmd:
				h.handleBroadcast(c)
			case symbolsCmd:
				c.replyCh <- h.snapshotSymbols()
			case clientCountCmd:
				c.replyCh <- len(h.subs[c.symbol])
			case stopCmd:
				h.handleStop()
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (h *Hub) handleAttach(c attachCmd) {
	client := &Client{
		id:     uuid.New(),
		conn:   c.conn,
		writer: newClientWriter(c.conn, h.clock),
	}
	h.connSymbols[client] = make(map[string]struct{})

	metrics.HubConnectedClients.Inc()
	slog.Debug("Client attached", "connection_id", client.ID())
	c.replyCh <- client
}

func (h *Hub) handleDetach(client *Client) {
	symbols, exists := h.connSymbols[client]
	if !exists {
		return
	}

	for symbol := range symbols {
		h.removeFromSymbol(client, symbol)
	}
	delete(h.connSymbols, client)
	client.writer.stop()

	metrics.HubConnectedClients.Dec()
	slog.Debug("Client detached", "connection_id", client.ID())
}

func (h *Hub) handleSubscribe(c subscribeCmd) {
	if _, exists := h.connSymbols[c.client]; !exists {
		// Detached concurrently; nothing to register.
		c.errCh <- fmt.Errorf("connection already closed")
		return
	}

	clients, exists := h.subs[c.symbol]
	if !exists {
		clients = make(map[*Client]struct{})
		h.subs[c.symbol] = clients
		metrics.HubActiveSymbols.Set(float64(len(h.subs)))
	}

	clients[c.client] = struct{}{}
	h.connSymbols[c.client][c.symbol] = struct{}{}

	if c.ack != nil {
		c.client.Send(c.ack)
	}

	metrics.HubSubscriptionsTotal.WithLabelValues("subscribed").Inc()
	slog.Debug("Client subscribed", "connection_id", c.client.ID(), "symbol", c.symbol, "subscribers", len(clients))
	c.errCh <- nil
}

func (h *Hub) handleUnsubscribe(c unsubscribeCmd) {
	h.removeFromSymbol(c.client, c.symbol)
	if symbols, exists := h.connSymbols[c.client]; exists {
		delete(symbols, c.symbol)
	}

	if c.ack != nil {
		c.client.Send(c.ack)
	}
	metrics.HubSubscriptionsTotal.WithLabelValues("unsubscribed").Inc()
}

// removeFromSymbol drops the client from one symbol's set and removes the
// key once the set is empty.
func (h *Hub) removeFromSymbol(client *Client, symbol string) {
	clients, exists := h.subs[symbol]
	if !exists {
		return
	}
	if _, member := clients[client]; !member {
		return
	}

	delete(clients, client)
	if len(clients) == 0 {
		delete(h.subs, symbol)
		metrics.HubActiveSymbols.Set(float64(len(h.subs)))
		slog.Debug("Last subscriber left", "symbol", symbol)
	}
}

func (h *Hub) handleBroadcast(c broadcastCmd) {
	clients, exists := h.subs[c.symbol]
	if !exists {
		return
	}

	// Two phases: deliver to every client first, then tear down the ones
	// that failed, so the set is never mutated mid-iteration and one dead
	// consumer never blocks the rest.
	var failed []*Client
	for client := range clients {
		if !client.Send(c.data) {
			failed = append(failed, client)
		}
	}

	for _, client := range failed {
		slog.Warn("Disconnecting slow client", "connection_id", client.ID(), "symbol", c.symbol)
		metrics.HubSlowClientsEvicted.Inc()
		h.handleDetach(client)
	}
}

func (h *Hub) snapshotSymbols() []string {
	symbols := make([]string, 0, len(h.subs))
	for symbol := range h.subs {
		symbols = append(symbols, symbol)
	}
	return symbols
}

func (h *Hub) handleStop() {
	slog.Info("Hub shutting down", "symbols", len(h.subs), "clients", len(h.connSymbols))

	for client := range h.connSymbols {
		client.writer.stopGraceful("Server shutting down")
		delete(h.connSymbols, client)
	}
	for symbol := range h.subs {
		delete(h.subs, symbol)
	}

	metrics.HubConnectedClients.Set(0)
	metrics.HubActiveSymbols.Set(0)
}
