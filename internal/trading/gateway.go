// Package trading submits orders to the venue and monitors them until they
// fill or are cancelled.
package trading

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ksred/klear-accumulate/internal/types"
)

var (
	ErrOrderRejected    = errors.New("order rejected")
	ErrInvalidDirection = errors.New("invalid order direction")
	ErrInvalidQuantity  = errors.New("order quantity must be positive")
	ErrInvalidPrice     = errors.New("order price must be positive")
)

// OrderRejectedError is returned when the venue acknowledged a submission
// but flagged it as failed
type OrderRejectedError struct {
	Message string
}

func (e *OrderRejectedError) Error() string {
	if e.Message == "" {
		return ErrOrderRejected.Error()
	}
	return fmt.Sprintf("%s: %s", ErrOrderRejected, e.Message)
}

func (e *OrderRejectedError) Is(target error) bool {
	return target == ErrOrderRejected
}

// OrderPlacer submits orders to a venue
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req types.OrderRequest, idempotencyKey string) (*types.Order, error)
}

// Gateway submits limit orders for one account and stock
type Gateway struct {
	placer  OrderPlacer
	account string
	venue   string
	symbol  string
	logger  zerolog.Logger
}

// NewGateway creates a gateway bound to an account, venue and stock
func NewGateway(placer OrderPlacer, account, venue, symbol string) *Gateway {
	return &Gateway{
		placer:  placer,
		account: account,
		venue:   venue,
		symbol:  symbol,
		logger: log.With().
			Str("component", "order_gateway").
			Str("account", account).
			Str("venue", venue).
			Str("symbol", symbol).
			Logger(),
	}
}

// Submit places a limit order of qty shares at price per share and returns
// the venue-confirmed order with the submitted request attached. A rejected acknowledgment yields an
// *OrderRejectedError. Nothing is retried.
func (g *Gateway) Submit(ctx context.Context, direction types.Direction, price, qty int64) (*types.Order, error) {
	if !direction.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if price <= 0 {
		return nil, ErrInvalidPrice
	}

	req := types.OrderRequest{
		Account:   g.account,
		Venue:     g.venue,
		Stock:     g.symbol,
		Price:     price,
		Qty:       qty,
		Direction: direction,
		OrderType: types.Limit,
	}
	key := uuid.New().String()

	g.logger.Info().
		Str("direction", string(direction)).
		Int64("price", price).
		Int64("qty", qty).
		Str("idempotency_key", key).
		Msg("submitting order")

	order, err := g.placer.PlaceOrder(ctx, req, key)
	if err != nil {
		return nil, fmt.Errorf("failed to submit %s order: %w", direction, err)
	}

	if !order.OK {
		g.logger.Error().Str("error", order.Error).Msg("order rejected by venue")
		return nil, &OrderRejectedError{Message: order.Error}
	}
	if order.ID == 0 {
		return nil, &OrderRejectedError{Message: "acknowledgment carried no order id"}
	}

	order.Request = &req

	g.logger.Info().
		Int64("order_id", order.ID).
		Bool("open", order.Open).
		Msg("order accepted")

	return order, nil
}
