package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Poller metrics
var (
	// PollCyclesTotal tracks completed poll cycles
	PollCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "poller_cycles_total",
			Help: "Total completed poll cycles",
		},
	)

	// TicksBroadcastTotal tracks ticks handed to the hub for fan-out
	TicksBroadcastTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poller_ticks_broadcast_total",
			Help: "Ticks dispatched for broadcast by symbol",
		},
		[]string{"symbol"},
	)

	// TicksCoalescedTotal tracks ticks dropped because bid/ask were unchanged
	TicksCoalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "poller_ticks_coalesced_total",
			Help: "Ticks dropped due to unchanged bid/ask",
		},
	)

	// TickFetchErrorsTotal tracks failed provider fetches
	TickFetchErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "poller_fetch_errors_total",
			Help: "Failed tick fetches from the provider",
		},
	)

	// PollerPanicsTotal tracks recovered panics inside poll cycles
	PollerPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "poller_panics_total",
			Help: "Recovered panics inside poll cycles",
		},
	)
)

// Hub metrics
var (
	// HubActiveSymbols tracks symbols with at least one subscriber
	HubActiveSymbols = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_active_symbols",
			Help: "Symbols with at least one subscriber",
		},
	)

	// HubConnectedClients tracks connected streaming clients
	HubConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connected_clients",
			Help: "Currently connected streaming clients",
		},
	)

	// HubSubscriptionsTotal tracks subscribe operations by outcome
	HubSubscriptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_subscriptions_total",
			Help: "Subscribe operations by outcome",
		},
		[]string{"outcome"},
	)

	// HubSlowClientsEvicted tracks clients dropped due to full send buffers
	HubSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_slow_clients_evicted_total",
			Help: "Clients dropped because their send buffer was full",
		},
	)

	// HubCommandChannelDepth tracks current command channel depth
	HubCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_command_channel_depth",
			Help: "Current hub command channel depth",
		},
	)
)

// WebSocket metrics
var (
	// WebSocketMessageSendDuration tracks frame write latency
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket frame write duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	// WebSocketPingFailures tracks failed keepalive pings
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Failed WebSocket keepalive pings",
		},
	)

	// ConnectionsRejectedTotal tracks upgrades refused by connection limits
	ConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "WebSocket upgrades refused by connection limits",
		},
		[]string{"reason"},
	)
)

// Provider metrics
var (
	// ProviderRequestDuration tracks gateway call latency by operation
	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Terminal gateway request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		},
		[]string{"operation"},
	)

	// ProviderRequestsTotal tracks gateway calls by operation and status
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Terminal gateway requests by operation and status",
		},
		[]string{"operation", "status"},
	)

	// CircuitBreakerState tracks the provider breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "provider_circuit_breaker_state",
			Help: "Provider circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// CircuitBreakerStateChanges tracks breaker transitions by new state
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_circuit_breaker_state_changes_total",
			Help: "Provider circuit breaker transitions by new state",
		},
		[]string{"state"},
	)
)
