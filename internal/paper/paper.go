// Package paper is an in-process paper trading venue speaking the same HTTP
// API as the live venue. Orders rest until the fill model trades them against
// a drifting top of book.
package paper

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/ksred/klear-accumulate/internal/exchange"
	"github.com/ksred/klear-accumulate/internal/types"
)

// Error is a venue error with the HTTP status it is reported with
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string   { return e.Message }
func (e *Error) HTTPStatus() int { return e.Status }

var (
	ErrUnknownVenue  = &Error{Status: http.StatusNotFound, Message: "No venue exists with that symbol"}
	ErrUnknownStock  = &Error{Status: http.StatusNotFound, Message: "No stock with that symbol is traded on this venue"}
	ErrOrderNotFound = &Error{Status: http.StatusNotFound, Message: "Order not found"}
	ErrNotOwner      = &Error{Status: http.StatusForbidden, Message: "Not authorized to act on that account"}
)

func invalid(format string, args ...interface{}) error {
	return &Error{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Listing seeds a stock on the venue at an opening price
type Listing struct {
	Venue  string
	Symbol string
	Name   string
	Price  int64
	Depth  int64
}

// Service handles order entry and matching for the paper venue
type Service struct {
	db             *Database
	exchange       *exchange.Exchange
	ids            *snowflake.Node
	idempotencyTTL time.Duration

	// serialises order state changes between handlers and the processor
	mu sync.Mutex
}

// NewService creates a paper venue backed by gormDB
func NewService(gormDB *gorm.DB, ex *exchange.Exchange, ids *snowflake.Node) *Service {
	return &Service{
		db:             NewDatabase(gormDB),
		exchange:       ex,
		ids:            ids,
		idempotencyTTL: 24 * time.Hour,
	}
}

// List adds a stock to the venue, or resets its book if already listed
func (s *Service) List(l Listing) error {
	if l.Venue == "" || l.Symbol == "" || l.Price <= 0 {
		return fmt.Errorf("invalid listing %s/%s at %d", l.Venue, l.Symbol, l.Price)
	}
	if l.Depth <= 0 {
		l.Depth = 1000
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stock, err := s.db.GetStock(l.Venue, l.Symbol)
	if err != nil {
		return err
	}
	if stock == nil {
		stock = &Stock{Venue: l.Venue, Symbol: l.Symbol}
	}
	stock.Name = l.Name
	stock.BidSize, stock.AskSize = l.Depth, l.Depth
	stock.SetBook(s.exchange.NewBook(l.Price))

	log.Info().
		Str("venue", l.Venue).
		Str("symbol", l.Symbol).
		Int64("bid", stock.Bid).
		Int64("ask", stock.Ask).
		Msg("stock listed")

	return s.db.SaveStock(stock)
}

// Heartbeat reports whether the venue is open
func (s *Service) Heartbeat(venue string) error {
	exists, err := s.db.VenueExists(venue)
	if err != nil {
		return err
	}
	if !exists {
		return ErrUnknownVenue
	}
	return nil
}

// Quote returns the current top of book
func (s *Service) Quote(venue, symbol string) (*types.Quote, error) {
	stock, err := s.stock(venue, symbol)
	if err != nil {
		return nil, err
	}
	return stock.Quote(), nil
}

// PlaceOrder validates and books an order for account, then tries to trade it
// immediately. A replayed idempotency key returns the order it created.
func (s *Service) PlaceOrder(account, venue, symbol string, req types.OrderRequest, idempotencyKey string) (*types.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idempotencyKey == "" {
		return nil, invalid("Idempotency-Key header is required")
	}

	record, err := s.db.GetIdempotencyRecord(idempotencyKey)
	if err != nil {
		return nil, err
	}
	if record != nil && record.ExpiresAt.After(time.Now()) {
		existing, err := s.db.GetOrder(record.ResourceID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, ErrOrderNotFound
		}
		if existing.Account != account {
			return nil, ErrNotOwner
		}
		return existing.ToWire(), nil
	}

	if err := validateRequest(account, venue, symbol, &req); err != nil {
		return nil, err
	}

	stock, err := s.stock(venue, symbol)
	if err != nil {
		return nil, err
	}

	order := &Order{
		OrderID:     s.ids.Generate().Int64(),
		Account:     account,
		Venue:       venue,
		Symbol:      symbol,
		Direction:   string(req.Direction),
		OrderType:   string(req.OrderType),
		Price:       req.Price,
		OriginalQty: req.Qty,
		Open:        true,
	}

	if err := s.db.CreateOrderWithIdempotency(order, idempotencyKey, s.idempotencyTTL); err != nil {
		return nil, err
	}

	log.Info().
		Int64("order_id", order.OrderID).
		Str("account", account).
		Str("symbol", symbol).
		Str("direction", order.Direction).
		Int64("price", order.Price).
		Int64("qty", order.OriginalQty).
		Msg("order booked")

	if err := s.match(order, stock); err != nil {
		return nil, err
	}

	// market orders do not rest
	if order.OrderType == string(types.Market) && order.Open {
		order.Open = false
		if err := s.db.UpdateOrder(order); err != nil {
			return nil, err
		}
	}

	return order.ToWire(), nil
}

// validateRequest fills path defaults into req and checks it
func validateRequest(account, venue, symbol string, req *types.OrderRequest) error {
	if req.Account == "" {
		req.Account = account
	}
	if req.Account != account {
		return ErrNotOwner
	}
	if req.Venue == "" {
		req.Venue = venue
	}
	if req.Stock == "" {
		req.Stock = symbol
	}
	if req.Venue != venue || req.Stock != symbol {
		return invalid("Order venue and stock must match the request path")
	}
	if req.OrderType == "" {
		req.OrderType = types.Limit
	}

	switch {
	case !req.Direction.Valid():
		return invalid("Direction must be buy or sell, got %q", req.Direction)
	case req.OrderType != types.Limit && req.OrderType != types.Market:
		return invalid("Order type must be limit or market, got %q", req.OrderType)
	case req.Qty <= 0:
		return invalid("Quantity must be a positive integer")
	case req.OrderType == types.Limit && req.Price <= 0:
		return invalid("Price must be a positive integer")
	}
	return nil
}

// Order returns an order owned by account
func (s *Service) Order(account, venue, symbol string, id int64) (*types.Order, error) {
	order, err := s.owned(account, venue, symbol, id)
	if err != nil {
		return nil, err
	}
	return order.ToWire(), nil
}

// Cancel closes an order owned by account and reports what it filled
func (s *Service) Cancel(account, venue, symbol string, id int64) (*types.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := s.owned(account, venue, symbol, id)
	if err != nil {
		return nil, err
	}

	if order.Open {
		order.Open = false
		if err := s.db.UpdateOrder(order); err != nil {
			return nil, err
		}
		log.Info().
			Int64("order_id", order.OrderID).
			Int64("total_filled", order.TotalFilled).
			Msg("order cancelled")
	}

	return order.ToWire(), nil
}

// Tick drifts every book and retries every open order against it
func (s *Service) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stocks, err := s.db.Stocks()
	if err != nil {
		return err
	}

	var errs error
	for i := range stocks {
		stock := &stocks[i]
		stock.SetBook(s.exchange.Drift(stock.Book()))
		if err := s.db.SaveStock(stock); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		orders, err := s.db.OpenOrders(stock.Venue, stock.Symbol)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for j := range orders {
			errs = multierr.Append(errs, s.match(&orders[j], stock))
		}
	}
	return errs
}

// match tries one fill for order against stock; the caller holds mu
func (s *Service) match(order *Order, stock *Stock) error {
	qty, price := s.exchange.TryFill(
		types.Direction(order.Direction),
		types.OrderType(order.OrderType),
		order.Price,
		order.Remaining(),
		stock.Book(),
	)
	if qty == 0 {
		return nil
	}

	now := time.Now()
	fill := Fill{OrderID: order.OrderID, Price: price, Qty: qty, FilledAt: now}

	order.TotalFilled += qty
	if order.Remaining() == 0 {
		order.Open = false
	}
	stock.Last = price
	stock.LastSize = qty
	stock.LastTradeAt = &now

	if err := s.db.ApplyFill(order, &fill, stock); err != nil {
		return fmt.Errorf("failed to apply fill to order %d: %w", order.OrderID, err)
	}
	order.Fills = append(order.Fills, fill)

	log.Debug().
		Int64("order_id", order.OrderID).
		Int64("qty", qty).
		Int64("price", price).
		Int64("total_filled", order.TotalFilled).
		Bool("open", order.Open).
		Msg("order filled")

	return nil
}

func (s *Service) stock(venue, symbol string) (*Stock, error) {
	stock, err := s.db.GetStock(venue, symbol)
	if err != nil {
		return nil, err
	}
	if stock != nil {
		return stock, nil
	}
	if err := s.Heartbeat(venue); err != nil {
		return nil, err
	}
	return nil, ErrUnknownStock
}

func (s *Service) owned(account, venue, symbol string, id int64) (*Order, error) {
	order, err := s.db.GetOrder(id)
	if err != nil {
		return nil, err
	}
	if order == nil || order.Venue != venue || order.Symbol != symbol {
		return nil, ErrOrderNotFound
	}
	if order.Account != account {
		return nil, ErrNotOwner
	}
	return order, nil
}
