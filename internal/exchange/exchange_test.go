package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ksred/klear-accumulate/internal/types"
)

func TestMarketable(t *testing.T) {
	book := Book{Bid: 95, Ask: 105, Last: 100}

	assert.True(t, Marketable(types.Buy, types.Limit, 105, book))
	assert.False(t, Marketable(types.Buy, types.Limit, 104, book))
	assert.True(t, Marketable(types.Sell, types.Limit, 95, book))
	assert.False(t, Marketable(types.Sell, types.Limit, 96, book))
	assert.True(t, Marketable(types.Buy, types.Market, 0, book))
	assert.False(t, Marketable(types.Buy, types.Limit, 1000, Book{Bid: 95}))
	assert.False(t, Marketable(types.Direction("hold"), types.Limit, 100, book))
}

func TestTryFillAlwaysFillsWithFullLiquidity(t *testing.T) {
	ex := New(Config{LiquidityFactor: 1, SuccessRate: 1, Spread: 10, Seed: 7})
	book := ex.NewBook(100)

	qty, price := ex.TryFill(types.Buy, types.Limit, 200, 10, book)
	assert.Equal(t, int64(10), qty)
	assert.Equal(t, book.Ask, price)

	qty, price = ex.TryFill(types.Sell, types.Limit, 1, 10, book)
	assert.Equal(t, int64(10), qty)
	assert.Equal(t, book.Bid, price)
}

func TestTryFillNeverCrossesWhenNotMarketable(t *testing.T) {
	ex := New(Config{LiquidityFactor: 1, SuccessRate: 1, Seed: 7})
	book := ex.NewBook(100)

	for i := 0; i < 50; i++ {
		qty, _ := ex.TryFill(types.Buy, types.Limit, 50, 10, book)
		assert.Zero(t, qty)
	}
}

func TestTryFillPartialNeverExceedsRemaining(t *testing.T) {
	ex := New(Config{LiquidityFactor: 0.3, SuccessRate: 1, Seed: 3})
	book := ex.NewBook(100)

	for i := 0; i < 100; i++ {
		qty, _ := ex.TryFill(types.Buy, types.Limit, 1000, 10, book)
		assert.GreaterOrEqual(t, qty, int64(1))
		assert.LessOrEqual(t, qty, int64(10))
	}
}

func TestDriftKeepsBookValid(t *testing.T) {
	ex := New(Config{Volatility: 0.05, Spread: 4, Seed: 11})
	book := ex.NewBook(20)

	for i := 0; i < 500; i++ {
		book = ex.Drift(book)
		assert.GreaterOrEqual(t, book.Bid, int64(1))
		assert.Equal(t, int64(4), book.Ask-book.Bid)
	}
}
