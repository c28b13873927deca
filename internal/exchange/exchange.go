// Package exchange is the probabilistic fill model behind the paper venue.
// It decides whether a resting order trades against the top of book; it does
// not keep an order book.
package exchange

import (
	"math"
	"math/rand"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ksred/klear-accumulate/internal/types"
)

// Config tunes the simulated venue
type Config struct {
	ID              string
	Name            string
	LiquidityFactor float64 // 0-1, share of remaining quantity available per attempt
	SuccessRate     float64 // 0-1, probability that a marketable order trades at all
	Volatility      float64 // relative standard deviation of a quote drift step
	Spread          int64   // ask minus bid, in minor units
	Seed            int64
}

// DefaultConfig mirrors a liquid primary exchange
func DefaultConfig() Config {
	return Config{
		ID:              "TESTEX",
		Name:            "Paper Exchange",
		LiquidityFactor: 0.7,
		SuccessRate:     0.9,
		Volatility:      0.002,
		Spread:          10,
		Seed:            1,
	}
}

// Book is the top of book for one stock. Zero means the side is empty.
type Book struct {
	Bid  int64
	Ask  int64
	Last int64
}

// Exchange simulates fills and quote movement
type Exchange struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates an exchange; out of range factors fall back to the defaults
func New(cfg Config) *Exchange {
	def := DefaultConfig()
	if cfg.LiquidityFactor <= 0 || cfg.LiquidityFactor > 1 {
		cfg.LiquidityFactor = def.LiquidityFactor
	}
	if cfg.SuccessRate <= 0 || cfg.SuccessRate > 1 {
		cfg.SuccessRate = def.SuccessRate
	}
	if cfg.Volatility < 0 {
		cfg.Volatility = def.Volatility
	}
	if cfg.Spread <= 0 {
		cfg.Spread = def.Spread
	}
	if cfg.ID == "" {
		cfg.ID = def.ID
	}
	return &Exchange{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// ID is the venue symbol this exchange serves
func (e *Exchange) ID() string {
	return e.cfg.ID
}

// NewBook centres a book on price with the configured spread
func (e *Exchange) NewBook(price int64) Book {
	half := e.cfg.Spread / 2
	bid := price - half
	if bid < 1 {
		bid = 1
	}
	return Book{Bid: bid, Ask: bid + e.cfg.Spread, Last: price}
}

// Marketable reports whether an order at price would cross the book
func Marketable(direction types.Direction, orderType types.OrderType, price int64, book Book) bool {
	switch direction {
	case types.Buy:
		if book.Ask <= 0 {
			return false
		}
		return orderType == types.Market || price >= book.Ask
	case types.Sell:
		if book.Bid <= 0 {
			return false
		}
		return orderType == types.Market || price <= book.Bid
	default:
		return false
	}
}

// TryFill attempts to trade part of remaining against the book. It returns the
// filled quantity (0 when nothing traded) and the execution price.
func (e *Exchange) TryFill(direction types.Direction, orderType types.OrderType, price, remaining int64, book Book) (int64, int64) {
	if remaining <= 0 || !Marketable(direction, orderType, price, book) {
		return 0, 0
	}

	logger := log.With().
		Str("exchange_id", e.cfg.ID).
		Str("direction", string(direction)).
		Int64("price", price).
		Int64("remaining", remaining).
		Logger()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rng.Float64() > e.cfg.SuccessRate {
		logger.Debug().Float64("success_rate", e.cfg.SuccessRate).Msg("no liquidity at this attempt")
		return 0, 0
	}

	qty := remaining
	if e.rng.Float64() > e.cfg.LiquidityFactor {
		qty = int64(math.Floor(float64(remaining) * e.cfg.LiquidityFactor))
		if qty < 1 {
			qty = 1
		}
		logger.Debug().Int64("fill_qty", qty).Msg("quantity adjusted due to liquidity")
	}

	execPrice := book.Ask
	if direction == types.Sell {
		execPrice = book.Bid
	}

	logger.Debug().Int64("fill_qty", qty).Int64("exec_price", execPrice).Msg("order traded")
	return qty, execPrice
}

// Drift random-walks the book around its mid price
func (e *Exchange) Drift(book Book) Book {
	mid := (book.Bid + book.Ask) / 2
	if mid <= 0 {
		mid = book.Last
	}
	if mid <= 0 {
		return book
	}

	e.mu.Lock()
	step := e.rng.NormFloat64() * e.cfg.Volatility * float64(mid)
	e.mu.Unlock()

	next := mid + int64(math.Round(step))
	if next < 1 {
		next = 1
	}
	drifted := e.NewBook(next)
	drifted.Last = book.Last
	return drifted
}
