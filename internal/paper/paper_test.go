package paper_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/klear-accumulate/internal/auth"
	"github.com/ksred/klear-accumulate/internal/client"
	"github.com/ksred/klear-accumulate/internal/clock"
	"github.com/ksred/klear-accumulate/internal/database"
	"github.com/ksred/klear-accumulate/internal/exchange"
	"github.com/ksred/klear-accumulate/internal/paper"
	"github.com/ksred/klear-accumulate/internal/quote"
	"github.com/ksred/klear-accumulate/internal/strategy"
	"github.com/ksred/klear-accumulate/internal/trading"
	"github.com/ksred/klear-accumulate/internal/types"
	"github.com/ksred/klear-accumulate/pkg/middleware"
)

const (
	account    = "EXB123456"
	venue      = "TESTEX"
	symbol     = "FOOBAR"
	authHeader = client.DefaultAuthHeader
)

type testVenue struct {
	service *paper.Service
	router  *gin.Engine
	keys    *auth.Service
	key     string
}

func newTestVenue(t *testing.T) *testVenue {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewDatabase(database.MemoryDSN)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ex := exchange.New(exchange.Config{ID: venue, LiquidityFactor: 1, SuccessRate: 1, Spread: 10, Seed: 1})
	svc := paper.NewService(db, ex, node)
	require.NoError(t, svc.List(paper.Listing{Venue: venue, Symbol: symbol, Name: "Foreign Owned Occluded Bridge Architecture Resources", Price: 100}))

	keys := auth.NewService("test-secret", 0)
	keys.Register(account)
	keys.Register("EXB999999")
	key, err := keys.IssueKey(account)
	require.NoError(t, err)

	limiter := middleware.NewLimiter(middleware.Limits{Orders: 1000, Quotes: 1000, Burst: 1000})
	router := paper.NewRouter(paper.NewGinHandlers(svc), keys, limiter, authHeader)

	return &testVenue{service: svc, router: router, keys: keys, key: key}
}

func (v *testVenue) do(t *testing.T, method, path, key string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(authHeader, key)
	}
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	w := httptest.NewRecorder()
	v.router.ServeHTTP(w, req)
	return w
}

func (v *testVenue) place(t *testing.T, req types.OrderRequest, idemKey string) (*httptest.ResponseRecorder, types.Order) {
	t.Helper()
	w := v.do(t, http.MethodPost, "/venues/TESTEX/stocks/FOOBAR/orders", v.key, req, map[string]string{"Idempotency-Key": idemKey})
	var order types.Order
	_ = json.Unmarshal(w.Body.Bytes(), &order)
	return w, order
}

func buy(price, qty int64) types.OrderRequest {
	return types.OrderRequest{Account: account, Venue: venue, Stock: symbol, Price: price, Qty: qty, Direction: types.Buy, OrderType: types.Limit}
}

func TestHeartbeat(t *testing.T) {
	v := newTestVenue(t)

	w := v.do(t, http.MethodGet, "/venues/TESTEX/heartbeat", "", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"venue":"TESTEX"}`, w.Body.String())

	w = v.do(t, http.MethodGet, "/venues/NOPE/heartbeat", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"ok":false`)
}

func TestQuote(t *testing.T) {
	v := newTestVenue(t)

	w := v.do(t, http.MethodGet, "/venues/TESTEX/stocks/FOOBAR/quote", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var q types.Quote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &q))
	assert.True(t, q.OK)
	require.NotNil(t, q.Bid)
	require.NotNil(t, q.Ask)
	assert.Equal(t, int64(95), *q.Bid)
	assert.Equal(t, int64(105), *q.Ask)
	assert.Equal(t, int64(100), *q.Last)

	w = v.do(t, http.MethodGet, "/venues/TESTEX/stocks/NOPE/quote", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarketableOrderFillsImmediately(t *testing.T) {
	v := newTestVenue(t)

	w, order := v.place(t, buy(110, 10), "k1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, order.OK)
	assert.NotZero(t, order.ID)
	assert.False(t, order.Open)
	require.NotNil(t, order.TotalFilled)
	assert.Equal(t, int64(10), *order.TotalFilled)
	require.Len(t, order.Fills, 1)
	assert.Equal(t, int64(105), order.Fills[0].Price)
}

func TestRestingOrderCanBeCancelled(t *testing.T) {
	v := newTestVenue(t)

	_, order := v.place(t, buy(50, 10), "k1")
	assert.True(t, order.Open)
	assert.Equal(t, int64(0), *order.TotalFilled)

	path := "/venues/TESTEX/stocks/FOOBAR/orders/" + jsonID(order.ID)
	w := v.do(t, http.MethodGet, path, v.key, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = v.do(t, http.MethodDelete, path, v.key, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var cancelled types.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cancelled))
	assert.False(t, cancelled.Open)
	require.NotNil(t, cancelled.TotalFilled)
	assert.Equal(t, int64(0), *cancelled.TotalFilled)
}

func TestIdempotentReplayReturnsOriginalOrder(t *testing.T) {
	v := newTestVenue(t)

	_, first := v.place(t, buy(50, 10), "same-key")
	_, second := v.place(t, buy(50, 10), "same-key")
	assert.Equal(t, first.ID, second.ID)

	_, third := v.place(t, buy(50, 10), "other-key")
	assert.NotEqual(t, first.ID, third.ID)
}

func TestOrderRoutesRequireValidKey(t *testing.T) {
	v := newTestVenue(t)

	w := v.do(t, http.MethodPost, "/venues/TESTEX/stocks/FOOBAR/orders", "", buy(50, 10), map[string]string{"Idempotency-Key": "k"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = v.do(t, http.MethodPost, "/venues/TESTEX/stocks/FOOBAR/orders", "garbage", buy(50, 10), map[string]string{"Idempotency-Key": "k"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOrdersAreScopedToAccount(t *testing.T) {
	v := newTestVenue(t)

	req := buy(50, 10)
	req.Account = "EXB999999"
	w, _ := v.place(t, req, "k1")
	assert.Equal(t, http.StatusForbidden, w.Code)

	_, order := v.place(t, buy(50, 10), "k2")
	otherKey, err := v.keys.IssueKey("EXB999999")
	require.NoError(t, err)

	path := "/venues/TESTEX/stocks/FOOBAR/orders/" + jsonID(order.ID)
	assert.Equal(t, http.StatusForbidden, v.do(t, http.MethodGet, path, otherKey, nil, nil).Code)
	assert.Equal(t, http.StatusForbidden, v.do(t, http.MethodDelete, path, otherKey, nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, v.do(t, http.MethodGet, "/venues/TESTEX/stocks/FOOBAR/orders/42", v.key, nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, v.do(t, http.MethodGet, "/venues/TESTEX/stocks/FOOBAR/orders/abc", v.key, nil, nil).Code)
}

func TestOrderValidation(t *testing.T) {
	v := newTestVenue(t)

	cases := map[string]types.OrderRequest{
		"zero qty":       buy(50, 0),
		"zero price":     buy(0, 10),
		"bad direction":  {Account: account, Price: 50, Qty: 10, Direction: "hold", OrderType: types.Limit},
		"bad order type": {Account: account, Price: 50, Qty: 10, Direction: types.Buy, OrderType: "fill-or-kill"},
		"path mismatch":  {Account: account, Venue: venue, Stock: "OTHER", Price: 50, Qty: 10, Direction: types.Buy},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			w, _ := v.place(t, req, "key-"+name)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), `"ok":false`)
		})
	}

	w := v.do(t, http.MethodPost, "/venues/TESTEX/stocks/FOOBAR/orders", v.key, buy(50, 10), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "idempotency key is required")
}

func TestMarketOrderDoesNotRest(t *testing.T) {
	v := newTestVenue(t)

	req := buy(0, 10)
	req.OrderType = types.Market
	w, order := v.place(t, req, "k1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.False(t, order.Open)
	assert.Equal(t, int64(10), *order.TotalFilled)
}

func TestTickFillsRestingOrderWhenBookMoves(t *testing.T) {
	v := newTestVenue(t)

	_, order := v.place(t, buy(104, 10), "k1")
	require.True(t, order.Open)

	require.NoError(t, v.service.List(paper.Listing{Venue: venue, Symbol: symbol, Price: 99}))
	require.NoError(t, v.service.Tick())

	status, err := v.service.Order(account, venue, symbol, order.ID)
	require.NoError(t, err)
	assert.False(t, status.Open)
	assert.Equal(t, int64(10), *status.TotalFilled)

	q, err := v.service.Quote(venue, symbol)
	require.NoError(t, err)
	assert.Equal(t, int64(10), q.LastSize)
}

func TestStrategyAccumulatesAgainstPaperVenue(t *testing.T) {
	v := newTestVenue(t)
	srv := httptest.NewServer(v.router)
	defer srv.Close()

	c, err := client.New(client.Config{BaseURL: srv.URL, APIKey: v.key})
	require.NoError(t, err)
	require.NoError(t, c.Heartbeat(context.Background(), venue))

	clk := clock.NewFake(time.Now())
	params := strategy.DefaultParams()
	params.Venue = venue
	params.Symbol = symbol
	params.Target = 40
	journal := strategy.NewJournal()

	s, err := strategy.New(
		quote.NewSampler(c, clk),
		trading.NewGateway(c, account, venue, symbol),
		trading.NewMonitor(c, clk, time.Second, 5),
		clk,
		params,
		strategy.WithJournal(journal),
	)
	require.NoError(t, err)

	state, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, state.Net, int64(40))
	assert.Equal(t, int64(105), state.ReferencePrice)
	assert.Equal(t, 1, state.SellCycles)
	assert.NotEmpty(t, journal.Records())
	assert.Positive(t, c.Stats().Calls(client.RoutePlace))
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return strings.TrimSpace(string(b))
}
