// Package client is the HTTP client for the venue's order API.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/ksred/klear-accumulate/internal/types"
)

// DefaultAuthHeader carries the API key on every request
const DefaultAuthHeader = "X-Starfighter-Authorization"

// Config holds everything needed to talk to a venue
type Config struct {
	BaseURL    string
	APIKey     string
	AuthHeader string
	Timeout    time.Duration
	// RequestsPerSecond throttles outgoing requests; 0 disables throttling
	RequestsPerSecond float64
}

// Client handles HTTP communication with the venue API
type Client struct {
	baseURL    string
	apiKey     string
	authHeader string
	client     *http.Client
	limiter    *rate.Limiter
	stats      *Stats
}

// New creates a venue client. The base URL must be absolute.
func New(cfg Config) (*Client, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid venue URL: %q", cfg.BaseURL)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("venue API key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	header := cfg.AuthHeader
	if header == "" {
		header = DefaultAuthHeader
	}

	c := &Client{
		baseURL:    strings.TrimRight(parsed.String(), "/"),
		apiKey:     cfg.APIKey,
		authHeader: header,
		client:     &http.Client{Timeout: timeout},
		stats:      newStats(),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return c, nil
}

// Stats returns the per-route latency statistics collected so far
func (c *Client) Stats() *Stats {
	return c.stats
}

func stockPath(venue, symbol string) string {
	return fmt.Sprintf("/venues/%s/stocks/%s", url.PathEscape(venue), url.PathEscape(symbol))
}

func orderPath(venue, symbol string, id int64) string {
	return fmt.Sprintf("%s/orders/%d", stockPath(venue, symbol), id)
}

// Heartbeat checks that the venue is up
func (c *Client) Heartbeat(ctx context.Context, venue string) error {
	var hb types.Heartbeat
	path := fmt.Sprintf("/venues/%s/heartbeat", url.PathEscape(venue))
	if err := c.do(ctx, RouteHeartbeat, http.MethodGet, path, nil, nil, &hb); err != nil {
		return err
	}
	if !hb.OK {
		return fmt.Errorf("venue %s is down: %s", venue, hb.Error)
	}
	return nil
}

// Quote fetches the current quote for a stock
func (c *Client) Quote(ctx context.Context, venue, symbol string) (*types.Quote, error) {
	var q types.Quote
	if err := c.do(ctx, RouteQuote, http.MethodGet, stockPath(venue, symbol)+"/quote", nil, nil, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// PlaceOrder submits an order. The acknowledgment is returned as-is; callers
// decide what an ok=false acknowledgment means.
func (c *Client) PlaceOrder(ctx context.Context, req types.OrderRequest, idempotencyKey string) (*types.Order, error) {
	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}

	var order types.Order
	if err := c.do(ctx, RoutePlace, http.MethodPost, stockPath(req.Venue, req.Stock)+"/orders", req, headers, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// OrderStatus retrieves the current state of an order
func (c *Client) OrderStatus(ctx context.Context, venue, symbol string, id int64) (*types.Order, error) {
	var order types.Order
	if err := c.do(ctx, RouteStatus, http.MethodGet, orderPath(venue, symbol, id), nil, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder cancels an order. The response carries the quantity filled
// before the cancellation took effect.
func (c *Client) CancelOrder(ctx context.Context, venue, symbol string, id int64) (*types.Order, error) {
	var order types.Order
	if err := c.do(ctx, RouteCancel, http.MethodDelete, orderPath(venue, symbol, id), nil, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) do(ctx context.Context, route, method, path string, body interface{}, headers map[string]string, out interface{}) (err error) {
	fullURL := c.baseURL + path

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	start := time.Now()
	defer func() {
		c.stats.record(route, time.Since(start), err != nil)
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", route, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", route, err)
	}

	req.Header.Set(c.authHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Method: method, URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: method, URL: fullURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	log.Debug().Str("route", route).Int("status", resp.StatusCode).Str("response", string(respBody)).Msg("venue response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{
			Method:     method,
			URL:        fullURL,
			StatusCode: resp.StatusCode,
			Message:    venueError(respBody),
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &TransportError{
			Method:     method,
			URL:        fullURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody)),
		}
	}

	return nil
}

// venueError extracts the error text of a venue envelope, falling back to the
// raw body
func venueError(body []byte) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return envelope.Error
	}
	return strings.TrimSpace(string(body))
}
