package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/klear-accumulate/internal/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/ob/api/", APIKey: "secret"})
	require.NoError(t, err)
	return c
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{BaseURL: "not a url", APIKey: "k"})
	require.Error(t, err)

	_, err = New(Config{BaseURL: "https://venue.example/ob/api"})
	require.Error(t, err)

	c, err := New(Config{BaseURL: "https://venue.example/ob/api/", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "https://venue.example/ob/api", c.baseURL)
	assert.Equal(t, DefaultAuthHeader, c.authHeader)
}

func TestQuoteSendsAuthHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/ob/api/venues/TESTEX/stocks/FOOBAR/quote", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get(DefaultAuthHeader))
		w.Write([]byte(`{"ok":true,"venue":"TESTEX","symbol":"FOOBAR","bid":5100,"last":5125}`))
	})

	q, err := c.Quote(context.Background(), "TESTEX", "FOOBAR")
	require.NoError(t, err)
	assert.Nil(t, q.Ask)
	require.NotNil(t, q.Bid)
	assert.Equal(t, int64(5100), *q.Bid)
	require.NotNil(t, q.Last)
	assert.Equal(t, int64(5125), *q.Last)
	assert.Equal(t, 1, c.Stats().Calls(RouteQuote))
}

func TestPlaceOrderBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ob/api/venues/TESTEX/stocks/FOOBAR/orders", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req types.OrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, types.OrderRequest{
			Account:   "EXB123456",
			Venue:     "TESTEX",
			Stock:     "FOOBAR",
			Price:     5500,
			Qty:       10,
			Direction: types.Buy,
			OrderType: types.Limit,
		}, req)

		w.Write([]byte(`{"ok":true,"id":42,"originalQty":10,"qty":10,"open":true,"totalFilled":0}`))
	})

	order, err := c.PlaceOrder(context.Background(), types.OrderRequest{
		Account:   "EXB123456",
		Venue:     "TESTEX",
		Stock:     "FOOBAR",
		Price:     5500,
		Qty:       10,
		Direction: types.Buy,
		OrderType: types.Limit,
	}, "key-1")
	require.NoError(t, err)
	assert.True(t, order.OK)
	assert.Equal(t, int64(42), order.ID)
	assert.True(t, order.Open)
	filled, present := order.Filled()
	assert.True(t, present)
	assert.Equal(t, int64(0), filled)
}

func TestStatusAndCancelPaths(t *testing.T) {
	var seen []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodDelete {
			w.Write([]byte(`{"ok":true,"id":7,"originalQty":10,"open":false,"totalFilled":4}`))
			return
		}
		w.Write([]byte(`{"ok":true,"id":7,"originalQty":10,"open":true,"totalFilled":4}`))
	})

	order, err := c.OrderStatus(context.Background(), "TESTEX", "FOOBAR", 7)
	require.NoError(t, err)
	assert.True(t, order.Open)

	order, err = c.CancelOrder(context.Background(), "TESTEX", "FOOBAR", 7)
	require.NoError(t, err)
	assert.False(t, order.Open)
	filled, _ := order.Filled()
	assert.Equal(t, int64(4), filled)

	assert.Equal(t, []string{
		"GET /ob/api/venues/TESTEX/stocks/FOOBAR/orders/7",
		"DELETE /ob/api/venues/TESTEX/stocks/FOOBAR/orders/7",
	}, seen)
}

func TestNonSuccessStatusIsTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"ok":false,"error":"No venue exists with the symbol NOPE"}`))
	})

	_, err := c.Quote(context.Background(), "NOPE", "FOOBAR")
	require.Error(t, err)

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusNotFound, terr.StatusCode)
	assert.Equal(t, "No venue exists with the symbol NOPE", terr.Message)
	assert.Contains(t, err.Error(), "404")

	summaries := c.Stats().Summaries()
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].Failures)
}

func TestConnectionFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: base, APIKey: "secret"})
	require.NoError(t, err)

	_, err = c.OrderStatus(context.Background(), "TESTEX", "FOOBAR", 1)
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Zero(t, terr.StatusCode)
	assert.NotNil(t, terr.Unwrap())
}

func TestMalformedBodyIsTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>bad gateway</html>`))
	})

	_, err := c.Quote(context.Background(), "TESTEX", "FOOBAR")
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusOK, terr.StatusCode)
}

func TestHeartbeat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/DOWNEX/heartbeat") {
			w.Write([]byte(`{"ok":false,"venue":"DOWNEX","error":"maintenance"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"venue":"TESTEX"}`))
	})

	require.NoError(t, c.Heartbeat(context.Background(), "TESTEX"))
	err := c.Heartbeat(context.Background(), "DOWNEX")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maintenance")
}

func TestStatsRender(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})
	for i := 0; i < 3; i++ {
		_, err := c.Quote(context.Background(), "TESTEX", "FOOBAR")
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	c.Stats().Render(&buf)
	out := buf.String()
	assert.Contains(t, out, "Quote")
	assert.Contains(t, out, "3")
}
