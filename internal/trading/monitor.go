package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ksred/klear-accumulate/internal/clock"
	"github.com/ksred/klear-accumulate/internal/types"
)

// MonitorState is the terminal state of a fill wait
type MonitorState string

const (
	StatePending  MonitorState = "PENDING"
	StateFilled   MonitorState = "FILLED"
	StateTimedOut MonitorState = "TIMED_OUT"
)

// ErrVenueFailure marks a 2xx order response whose ok flag was false
var ErrVenueFailure = errors.New("venue reported failure")

// OrderTracker reads and cancels venue orders
type OrderTracker interface {
	OrderStatus(ctx context.Context, venue, symbol string, id int64) (*types.Order, error)
	CancelOrder(ctx context.Context, venue, symbol string, id int64) (*types.Order, error)
}

// Outcome is the result of waiting on one order
type Outcome struct {
	// Filled is the quantity now owned (or delivered) from the order
	Filled int64
	State  MonitorState
	Polls  int
	// Order is the last venue view of the order: the final status or the
	// cancellation response
	Order *types.Order
}

// Monitor polls an order on a fixed cadence for a bounded number of checks
// and cancels it if it is still open afterwards
type Monitor struct {
	tracker OrderTracker
	clock   clock.Clock
	poll    time.Duration
	checks  int
	logger  zerolog.Logger
}

// NewMonitor creates a fill monitor. checks below 1 become 1 and a negative
// poll interval becomes 0.
func NewMonitor(tracker OrderTracker, clk clock.Clock, poll time.Duration, checks int) *Monitor {
	if checks < 1 {
		checks = 1
	}
	if poll < 0 {
		poll = 0
	}
	return &Monitor{
		tracker: tracker,
		clock:   clk,
		poll:    poll,
		checks:  checks,
		logger:  log.With().Str("component", "fill_monitor").Logger(),
	}
}

// Await blocks until the order is seen closed or the checks run out, then
// returns the filled quantity. A response with ok false is an error. A closed order reports the venue's own
// totalFilled when present and the original quantity otherwise. A timed-out
// order is cancelled and the cancellation's totalFilled is authoritative.
func (m *Monitor) Await(ctx context.Context, order *types.Order) (Outcome, error) {
	logger := m.logger.With().
		Int64("order_id", order.ID).
		Str("direction", string(order.Side())).
		Int64("original_qty", order.Quantity()).
		Logger()
	venue, symbol := order.Route()

	outcome := Outcome{State: StatePending, Order: order}
	current := order

	for i := 0; i < m.checks; i++ {
		status, err := m.tracker.OrderStatus(ctx, venue, symbol, order.ID)
		outcome.Polls++
		if err != nil {
			return outcome, fmt.Errorf("failed to poll order %d: %w", order.ID, err)
		}
		if !status.OK {
			logger.Error().Str("error", status.Error).Msg("status poll refused by venue")
			return outcome, fmt.Errorf("%w: status of order %d: %s", ErrVenueFailure, order.ID, status.Error)
		}
		current = status
		outcome.Order = current

		if !current.Open {
			outcome.State = StateFilled
			outcome.Filled = closedQuantity(order, current, logger)
			logger.Info().
				Int("polls", outcome.Polls).
				Int64("filled", outcome.Filled).
				Msg("order closed")
			return outcome, nil
		}

		logger.Debug().
			Int("poll", i+1).
			Int("checks", m.checks).
			Msg("order still open")

		if i < m.checks-1 {
			if err := m.clock.Sleep(ctx, m.poll); err != nil {
				return outcome, err
			}
		}
	}

	logger.Info().Int("polls", outcome.Polls).Msg("order not filled in time, cancelling")

	cancelled, err := m.tracker.CancelOrder(ctx, venue, symbol, order.ID)
	if err != nil {
		return outcome, fmt.Errorf("failed to cancel order %d: %w", order.ID, err)
	}
	if !cancelled.OK {
		logger.Error().Str("error", cancelled.Error).Msg("cancellation refused by venue")
		return outcome, fmt.Errorf("%w: cancel of order %d: %s", ErrVenueFailure, order.ID, cancelled.Error)
	}

	filled, present := cancelled.Filled()
	if !present {
		logger.Warn().Int64("fills_sum", filled).Msg("cancellation carried no totalFilled, using fills")
	}

	outcome.State = StateTimedOut
	outcome.Filled = filled
	outcome.Order = cancelled

	logger.Info().Int64("filled", filled).Msg("order cancelled")
	return outcome, nil
}

// closedQuantity resolves how much of a closed order was filled. The response's
// own totalFilled wins over the assumption that closed means fully filled.
func closedQuantity(submitted, status *types.Order, logger zerolog.Logger) int64 {
	original := status.OriginalQty
	if original == 0 {
		original = submitted.Quantity()
	}

	if status.TotalFilled == nil {
		return original
	}

	filled := *status.TotalFilled
	if filled < original {
		logger.Warn().
			Int64("total_filled", filled).
			Int64("original_qty", original).
			Msg("order closed without a full fill")
	}
	return filled
}
