// Package quote reduces a series of venue quotes to a single reference price.
package quote

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ksred/klear-accumulate/internal/clock"
	"github.com/ksred/klear-accumulate/internal/types"
)

// FallbackPrice is used when a quote carries no price at all
const FallbackPrice int64 = 1

var (
	ErrNoSamples   = errors.New("sample count must be at least 1")
	ErrQuoteFailed = errors.New("venue reported quote failure")
)

// QuoteFetcher fetches a single quote
type QuoteFetcher interface {
	Quote(ctx context.Context, venue, symbol string) (*types.Quote, error)
}

// Sampler fetches successive quotes and averages them
type Sampler struct {
	fetcher QuoteFetcher
	clock   clock.Clock
	logger  zerolog.Logger
}

// NewSampler creates a sampler reading quotes from fetcher
func NewSampler(fetcher QuoteFetcher, clk clock.Clock) *Sampler {
	return &Sampler{
		fetcher: fetcher,
		clock:   clk,
		logger:  log.With().Str("component", "quote_sampler").Logger(),
	}
}

// RepresentativePrice picks the first present price in the order ask, bid,
// last. The returned field name is "none" when the fallback was used.
func RepresentativePrice(q *types.Quote) (int64, string) {
	switch {
	case q == nil:
		return FallbackPrice, "none"
	case q.Ask != nil:
		return *q.Ask, "ask"
	case q.Bid != nil:
		return *q.Bid, "bid"
	case q.Last != nil:
		return *q.Last, "last"
	default:
		return FallbackPrice, "none"
	}
}

// CeilMean is the arithmetic mean of prices rounded up, so a reference
// price is never truncated below the observed market.
func CeilMean(prices []int64) (int64, error) {
	data := make(stats.Float64Data, len(prices))
	for i, p := range prices {
		data[i] = float64(p)
	}
	mean, err := data.Mean()
	if err != nil {
		return 0, err
	}
	return int64(math.Ceil(mean)), nil
}

// Sample fetches n quotes, sleeping delay between them (not after the last),
// and returns the ceiling of the mean representative price. Any fetch error,
// or a quote whose ok flag is false, aborts sampling.
func (s *Sampler) Sample(ctx context.Context, venue, symbol string, n int, delay time.Duration) (int64, error) {
	if n < 1 {
		return 0, ErrNoSamples
	}

	prices := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		q, err := s.fetcher.Quote(ctx, venue, symbol)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch quote %d/%d for %s on %s: %w", i+1, n, symbol, venue, err)
		}
		if q != nil && !q.OK {
			return 0, fmt.Errorf("%w for %s on %s: %s", ErrQuoteFailed, symbol, venue, q.Error)
		}

		price, field := RepresentativePrice(q)
		s.logger.Debug().
			Str("venue", venue).
			Str("symbol", symbol).
			Int64("price", price).
			Str("field", field).
			Int("sample", i+1).
			Msg("got price quote")
		prices = append(prices, price)

		if i < n-1 {
			if err := s.clock.Sleep(ctx, delay); err != nil {
				return 0, err
			}
		}
	}

	return CeilMean(prices)
}
