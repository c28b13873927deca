package paper

import (
	"time"

	"gorm.io/gorm"

	"github.com/ksred/klear-accumulate/internal/exchange"
	"github.com/ksred/klear-accumulate/internal/types"
)

type Order struct {
	gorm.Model
	OrderID     int64  `gorm:"uniqueIndex"`
	Account     string `gorm:"index"`
	Venue       string `gorm:"index:idx_orders_book"`
	Symbol      string `gorm:"index:idx_orders_book"`
	Direction   string // buy or sell
	OrderType   string // limit or market
	Price       int64
	OriginalQty int64
	TotalFilled int64
	Open        bool   `gorm:"index"`
	Fills       []Fill `gorm:"foreignKey:OrderID;references:OrderID"`
}

// Remaining is the unfilled quantity
func (o *Order) Remaining() int64 {
	return o.OriginalQty - o.TotalFilled
}

// ToWire converts the stored order to the venue response shape
func (o *Order) ToWire() *types.Order {
	total := o.TotalFilled
	fills := make([]types.Fill, 0, len(o.Fills))
	for _, f := range o.Fills {
		fills = append(fills, types.Fill{Price: f.Price, Qty: f.Qty, Ts: f.FilledAt})
	}
	return &types.Order{
		OK:          true,
		ID:          o.OrderID,
		Account:     o.Account,
		Venue:       o.Venue,
		Symbol:      o.Symbol,
		Direction:   types.Direction(o.Direction),
		OrderType:   types.OrderType(o.OrderType),
		Price:       o.Price,
		OriginalQty: o.OriginalQty,
		Qty:         o.Remaining(),
		TotalFilled: &total,
		Open:        o.Open,
		Fills:       fills,
		Ts:          o.CreatedAt,
	}
}

type Fill struct {
	gorm.Model
	OrderID  int64 `gorm:"index"`
	Price    int64
	Qty      int64
	FilledAt time.Time
}

// Stock is a listed instrument and its current top of book
type Stock struct {
	gorm.Model
	Venue       string `gorm:"uniqueIndex:idx_stocks_listing"`
	Symbol      string `gorm:"uniqueIndex:idx_stocks_listing"`
	Name        string
	Bid         int64
	Ask         int64
	Last        int64
	BidSize     int64
	AskSize     int64
	LastSize    int64
	LastTradeAt *time.Time
	QuotedAt    time.Time
}

func (s *Stock) Book() exchange.Book {
	return exchange.Book{Bid: s.Bid, Ask: s.Ask, Last: s.Last}
}

func (s *Stock) SetBook(b exchange.Book) {
	s.Bid, s.Ask, s.Last = b.Bid, b.Ask, b.Last
	s.QuotedAt = time.Now()
}

// Quote converts the book to the venue quote shape; empty sides are omitted
func (s *Stock) Quote() *types.Quote {
	price := func(v int64) *int64 {
		if v <= 0 {
			return nil
		}
		return &v
	}
	quotedAt := s.QuotedAt
	return &types.Quote{
		OK:        true,
		Venue:     s.Venue,
		Symbol:    s.Symbol,
		Bid:       price(s.Bid),
		Ask:       price(s.Ask),
		Last:      price(s.Last),
		BidSize:   s.BidSize,
		AskSize:   s.AskSize,
		LastSize:  s.LastSize,
		QuoteTime: &quotedAt,
	}
}

type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string `gorm:"uniqueIndex"`
	ResourceID     int64
	ResourceType   string
	ExpiresAt      time.Time
}
