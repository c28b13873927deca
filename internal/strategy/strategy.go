// Package strategy runs the accumulation loop: it buys in small lots at a
// premium to the reference price, periodically sells a smaller lot back, and
// stops once the net position reaches the target.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ksred/klear-accumulate/internal/clock"
	"github.com/ksred/klear-accumulate/internal/trading"
	"github.com/ksred/klear-accumulate/internal/types"
)

var ErrInvalidParams = errors.New("invalid strategy parameters")

// PriceSampler produces a representative price from live quotes
type PriceSampler interface {
	Sample(ctx context.Context, venue, symbol string, n int, delay time.Duration) (int64, error)
}

// OrderSubmitter places a limit order and returns the confirmed order
type OrderSubmitter interface {
	Submit(ctx context.Context, direction types.Direction, price, qty int64) (*types.Order, error)
}

// FillAwaiter waits for an order to close or cancels it
type FillAwaiter interface {
	Await(ctx context.Context, order *types.Order) (trading.Outcome, error)
}

// Params configures a run
type Params struct {
	Venue  string
	Symbol string

	Target        int64
	BuySize       int64
	SellSize      int64
	BuysPerSell   int
	CycleDuration time.Duration
	Markup        float64
	Markdown      float64

	SeedSamples int
	SampleDelay time.Duration
	// RepriceEvery re-samples the reference price after this many productive
	// buys. Zero keeps the seed price for the whole run.
	RepriceEvery int
}

// DefaultParams returns the stock accumulation profile
func DefaultParams() Params {
	return Params{
		Target:        100000,
		BuySize:       10,
		SellSize:      5,
		BuysPerSell:   3,
		CycleDuration: 5 * time.Second,
		Markup:        1.1,
		Markdown:      0.9,
		SeedSamples:   1,
		SampleDelay:   time.Second,
	}
}

// Validate checks the parameters before a run starts
func (p Params) Validate() error {
	switch {
	case p.Venue == "" || p.Symbol == "":
		return fmt.Errorf("%w: venue and symbol are required", ErrInvalidParams)
	case p.Target <= 0:
		return fmt.Errorf("%w: target must be positive", ErrInvalidParams)
	case p.BuySize <= 0:
		return fmt.Errorf("%w: buy size must be positive", ErrInvalidParams)
	case p.SellSize < 0:
		return fmt.Errorf("%w: sell size cannot be negative", ErrInvalidParams)
	case p.BuysPerSell < 0:
		return fmt.Errorf("%w: buys per sell cannot be negative", ErrInvalidParams)
	case p.CycleDuration < 0:
		return fmt.Errorf("%w: cycle duration cannot be negative", ErrInvalidParams)
	case p.Markup <= 0 || p.Markdown <= 0:
		return fmt.Errorf("%w: markup and markdown must be positive", ErrInvalidParams)
	case p.SeedSamples < 1:
		return fmt.Errorf("%w: at least one seed sample is required", ErrInvalidParams)
	case p.SampleDelay < 0:
		return fmt.Errorf("%w: sample delay cannot be negative", ErrInvalidParams)
	case p.RepriceEvery < 0:
		return fmt.Errorf("%w: reprice interval cannot be negative", ErrInvalidParams)
	case p.liquidates() && p.SellSize >= p.BuySize*int64(p.BuysPerSell):
		return fmt.Errorf("%w: sell size %d must be below %d buys of %d or the position never grows",
			ErrInvalidParams, p.SellSize, p.BuysPerSell, p.BuySize)
	}
	return nil
}

func (p Params) liquidates() bool {
	return p.BuysPerSell > 0 && p.SellSize > 0
}

// BuyPrice is the limit price for a buy given the reference price
func (p Params) BuyPrice(ref int64) int64 {
	return scalePrice(ref, p.Markup, math.Ceil)
}

// SellPrice is the limit price for a sell given the reference price, never
// below 1
func (p Params) SellPrice(ref int64) int64 {
	price := scalePrice(ref, p.Markdown, math.Floor)
	if price < 1 {
		price = 1
	}
	return price
}

// scalePrice multiplies ref by factor and rounds with round, treating products
// within float noise of an integer as that integer
func scalePrice(ref int64, factor float64, round func(float64) float64) int64 {
	v := float64(ref) * factor
	if r := math.Round(v); math.Abs(v-r) < 1e-9 {
		return int64(r)
	}
	return int64(round(v))
}

// State is the running position of a strategy
type State struct {
	Net            int64
	ProductiveBuys int
	SellCycles     int
	ZeroFillCycles int
	ReferencePrice int64
	GrossBought    int64
	GrossSold      int64
	CashSpent      int64
	CashReceived   int64
}

// Option customises a Strategy
type Option func(*Strategy)

// WithJournal records every cycle in j
func WithJournal(j *Journal) Option {
	return func(s *Strategy) {
		s.journal = j
	}
}

// Strategy drives buy and sell cycles until the target is reached
type Strategy struct {
	sampler   PriceSampler
	submitter OrderSubmitter
	awaiter   FillAwaiter
	clock     clock.Clock
	params    Params
	journal   *Journal
	logger    zerolog.Logger

	state State
	seq   int
}

// New validates params and builds a strategy
func New(sampler PriceSampler, submitter OrderSubmitter, awaiter FillAwaiter, clk clock.Clock, params Params, opts ...Option) (*Strategy, error) {
	if sampler == nil || submitter == nil || awaiter == nil || clk == nil {
		return nil, fmt.Errorf("%w: sampler, submitter, awaiter and clock are required", ErrInvalidParams)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	s := &Strategy{
		sampler:   sampler,
		submitter: submitter,
		awaiter:   awaiter,
		clock:     clk,
		params:    params,
		logger: log.With().
			Str("component", "strategy").
			Str("venue", params.Venue).
			Str("symbol", params.Symbol).
			Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the position reached so far
func (s *Strategy) State() State {
	return s.state
}

// Run accumulates until the net position reaches the target. Any collaborator
// error aborts the run and is returned with the state reached so far.
func (s *Strategy) Run(ctx context.Context) (State, error) {
	p := s.params

	ref, err := s.sampler.Sample(ctx, p.Venue, p.Symbol, p.SeedSamples, p.SampleDelay)
	if err != nil {
		return s.state, fmt.Errorf("failed to seed reference price: %w", err)
	}
	s.state.ReferencePrice = ref

	s.logger.Info().
		Int64("reference_price", ref).
		Int64("buy_price", p.BuyPrice(ref)).
		Int64("sell_price", p.SellPrice(ref)).
		Int64("target", p.Target).
		Msg("starting accumulation")

	for s.state.Net < p.Target {
		started := s.clock.Now()

		filled, err := s.cycle(ctx, types.Buy, p.BuyPrice(s.state.ReferencePrice), p.BuySize)
		if err != nil {
			return s.state, err
		}

		elapsed := s.clock.Now().Sub(started)
		if wait := p.CycleDuration - elapsed; wait > 0 {
			if err := s.clock.Sleep(ctx, wait); err != nil {
				return s.state, err
			}
		}

		if filled == 0 {
			s.state.ZeroFillCycles++
			continue
		}
		s.state.ProductiveBuys++

		if p.liquidates() && s.state.ProductiveBuys%p.BuysPerSell == 0 {
			if _, err := s.cycle(ctx, types.Sell, p.SellPrice(s.state.ReferencePrice), p.SellSize); err != nil {
				return s.state, err
			}
			s.state.SellCycles++
		}

		if p.RepriceEvery > 0 && s.state.ProductiveBuys%p.RepriceEvery == 0 && s.state.Net < p.Target {
			ref, err := s.sampler.Sample(ctx, p.Venue, p.Symbol, p.SeedSamples, p.SampleDelay)
			if err != nil {
				return s.state, fmt.Errorf("failed to refresh reference price: %w", err)
			}
			s.logger.Info().
				Int64("previous", s.state.ReferencePrice).
				Int64("reference_price", ref).
				Msg("reference price refreshed")
			s.state.ReferencePrice = ref
		}
	}

	s.logger.Info().
		Int64("net", s.state.Net).
		Int("productive_buys", s.state.ProductiveBuys).
		Int("sell_cycles", s.state.SellCycles).
		Int("zero_fill_cycles", s.state.ZeroFillCycles).
		Msg("target reached")

	return s.state, nil
}

// cycle submits one order, waits on it and applies the fill to the position
func (s *Strategy) cycle(ctx context.Context, direction types.Direction, price, qty int64) (int64, error) {
	started := s.clock.Now()

	order, err := s.submitter.Submit(ctx, direction, price, qty)
	if err != nil {
		return 0, fmt.Errorf("%s cycle: %w", direction, err)
	}

	outcome, err := s.awaiter.Await(ctx, order)
	if err != nil {
		return 0, fmt.Errorf("%s cycle: %w", direction, err)
	}

	filled := outcome.Filled
	cash := notional(outcome.Order, filled, price)
	if direction == types.Buy {
		s.state.Net += filled
		s.state.GrossBought += filled
		s.state.CashSpent += cash
	} else {
		s.state.Net -= filled
		s.state.GrossSold += filled
		s.state.CashReceived += cash
	}

	s.seq++
	now := s.clock.Now()
	elapsed := now.Sub(started)

	s.logger.Info().
		Int("seq", s.seq).
		Str("direction", string(direction)).
		Int64("price", price).
		Int64("requested", qty).
		Int64("filled", filled).
		Str("outcome", string(outcome.State)).
		Dur("elapsed", elapsed).
		Int64("net", s.state.Net).
		Msg("cycle complete")

	if s.journal != nil {
		s.journal.Add(CycleRecord{
			Seq:       s.seq,
			Direction: string(direction),
			OrderID:   order.ID,
			Price:     price,
			Requested: qty,
			Filled:    filled,
			Outcome:   string(outcome.State),
			Polls:     outcome.Polls,
			ElapsedMS: elapsed.Milliseconds(),
			NetAfter:  s.state.Net,
			At:        now.UTC().Format(time.RFC3339Nano),
		})
	}

	return filled, nil
}

// notional prices a fill from the venue's execution reports when they account
// for the whole quantity, and at the limit price otherwise
func notional(order *types.Order, filled, limit int64) int64 {
	if order != nil && len(order.Fills) > 0 {
		var qty, cash int64
		for _, f := range order.Fills {
			qty += f.Qty
			cash += f.Qty * f.Price
		}
		if qty == filled {
			return cash
		}
	}
	return filled * limit
}
