// Package protocol defines the JSON wire messages spoken on both streaming
// transports. The format is shared: every frame is an object with a "type"
// field.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/tickbridge/tickbridge/internal/domain"
)

// Inbound message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
)

// Outbound message types.
const (
	TypeConnection   = "connection"
	TypeSubscription = "subscription"
	TypePong         = "pong"
	TypeTick         = "tick"
	TypeError        = "error"
)

// Subscription status values.
const (
	StatusSubscribed   = "subscribed"
	StatusUnsubscribed = "unsubscribed"
)

// Request is a client control message.
type Request struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
}

// ConnectionAck greets a freshly connected client.
type ConnectionAck struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SubscriptionReply acknowledges a subscribe or unsubscribe.
type SubscriptionReply struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	Status string `json:"status"`
}

// ErrorReply reports a per-message failure; the connection stays open.
type ErrorReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PongReply answers a ping.
type PongReply struct {
	Type string `json:"type"`
}

// TickPayload is the wire shape of a tick. Time is ISO-8601.
type TickPayload struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	Volume float64 `json:"volume"`
	Time   string  `json:"time"`
	Spread float64 `json:"spread"`
}

// TickEvent is the outbound envelope for a price update.
type TickEvent struct {
	Type string      `json:"type"`
	Data TickPayload `json:"data"`
}

// NewConnectionAck builds the fixed greeting sent on connection open.
func NewConnectionAck() ConnectionAck {
	return ConnectionAck{
		Type:    TypeConnection,
		Status:  "connected",
		Message: "Connected to tick stream",
	}
}

// NewSubscriptionReply builds a subscription acknowledgment.
func NewSubscriptionReply(symbol, status string) SubscriptionReply {
	return SubscriptionReply{Type: TypeSubscription, Symbol: symbol, Status: status}
}

// NewErrorReply builds an error frame.
func NewErrorReply(message string) ErrorReply {
	return ErrorReply{Type: TypeError, Message: message}
}

// EncodeTick marshals a tick into its outbound event frame.
func EncodeTick(t domain.Tick) ([]byte, error) {
	return json.Marshal(TickEvent{
		Type: TypeTick,
		Data: TickPayload{
			Symbol: t.Symbol,
			Bid:    t.Bid,
			Ask:    t.Ask,
			Last:   t.Last,
			Volume: t.Volume,
			Time:   t.Time.Format(time.RFC3339Nano),
			Spread: t.Spread,
		},
	})
}
