// Package mt5 implements the tick source adapter over an MT5 terminal
// gateway. The gateway wraps the terminal's native API behind a small JSON
// HTTP surface; this client is the only component that talks to it.
package mt5

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/tickbridge/tickbridge/internal/metrics"
)

const defaultHTTPTimeout = 10 * time.Second

// GatewayError represents an error reply from the terminal gateway.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Message)
}

// Client talks to the MT5 terminal gateway. A single instance is shared by
// the poller, both streaming transports and the HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	cb         circuitbreaker.CircuitBreaker[[]byte]
	connected  atomic.Bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a gateway client with a circuit breaker guarding all
// calls: 60% failure rate over min 5 requests in a 10s window opens the
// circuit, 30s delay before half-open, one success closes it again.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
		logger: slog.Default(),
	}

	c.cb = circuitbreaker.NewBuilder[[]byte]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			c.logger.Warn("Gateway circuit breaker state changed",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			metrics.CircuitBreakerStateChanges.WithLabelValues(e.NewState.String()).Inc()
			metrics.CircuitBreakerState.Set(stateToFloat(e.NewState))
		}).
		Build()

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

func (c *Client) doRequest(ctx context.Context, operation, method, path string, query url.Values, payload any) ([]byte, error) {
	if !c.cb.TryAcquirePermit() {
		metrics.ProviderRequestsTotal.WithLabelValues(operation, "circuit_open").Inc()
		return nil, fmt.Errorf("gateway call rejected: %w", circuitbreaker.ErrOpen)
	}

	start := time.Now()
	body, err := c.send(ctx, method, path, query, payload)
	metrics.ProviderRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if err != nil {
		// 4xx replies are the gateway answering correctly, not the gateway
		// failing. Only transport errors and 5xx count against the breaker.
		var ge *GatewayError
		if isGatewayError(err, &ge) && ge.StatusCode < 500 {
			c.cb.RecordSuccess()
		} else {
			c.cb.RecordError(err)
		}
		metrics.ProviderRequestsTotal.WithLabelValues(operation, "error").Inc()
		return nil, err
	}

	c.cb.RecordSuccess()
	metrics.ProviderRequestsTotal.WithLabelValues(operation, "ok").Inc()
	return body, nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := http.StatusText(resp.StatusCode)
		var errReply struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errReply) == nil && errReply.Error != "" {
			msg = errReply.Error
		}
		return nil, &GatewayError{StatusCode: resp.StatusCode, Message: msg}
	}

	return body, nil
}

func isGatewayError(err error, target **GatewayError) bool {
	return errors.As(err, target)
}

func decode[T any](body []byte) (T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("decode gateway response: %w", err)
	}
	return v, nil
}

// notFoundAs rewrites gateway 404 replies into the given domain error.
func notFoundAs(err, sentinel error) error {
	var ge *GatewayError
	if isGatewayError(err, &ge) && ge.StatusCode == http.StatusNotFound {
		return sentinel
	}
	return err
}
