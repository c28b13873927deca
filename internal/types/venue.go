package types

import "time"

// Direction is the side of an order
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// Valid reports whether d is one of the supported directions
func (d Direction) Valid() bool {
	return d == Buy || d == Sell
}

// OrderType is the venue order type
type OrderType string

const (
	Limit  OrderType = "limit"
	Market OrderType = "market"
)

// Quote is a point-in-time price observation for a stock on a venue.
// Prices are integer minor currency units (cents); any of them may be absent.
type Quote struct {
	OK        bool       `json:"ok"`
	Error     string     `json:"error,omitempty"`
	Venue     string     `json:"venue"`
	Symbol    string     `json:"symbol"`
	Bid       *int64     `json:"bid,omitempty"`
	Ask       *int64     `json:"ask,omitempty"`
	Last      *int64     `json:"last,omitempty"`
	BidSize   int64      `json:"bidSize"`
	AskSize   int64      `json:"askSize"`
	LastSize  int64      `json:"lastSize"`
	QuoteTime *time.Time `json:"quoteTime,omitempty"`
}

// OrderRequest is the body of an order submission.
// Price is the limit price per share, never the order notional.
type OrderRequest struct {
	Account   string    `json:"account"`
	Venue     string    `json:"venue"`
	Stock     string    `json:"stock"`
	Price     int64     `json:"price"`
	Qty       int64     `json:"qty"`
	Direction Direction `json:"direction"`
	OrderType OrderType `json:"orderType"`
}

// Fill is a single execution against an order
type Fill struct {
	Price int64     `json:"price"`
	Qty   int64     `json:"qty"`
	Ts    time.Time `json:"ts"`
}

// Order is the venue's view of an order. It is returned by submission,
// status and cancellation requests and is always replaced wholesale. The wire
// fields are never patched locally; Request carries what was submitted.
type Order struct {
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
	ID          int64     `json:"id"`
	Account     string    `json:"account"`
	Venue       string    `json:"venue"`
	Symbol      string    `json:"symbol"`
	Direction   Direction `json:"direction"`
	OrderType   OrderType `json:"orderType"`
	Price       int64     `json:"price"`
	OriginalQty int64     `json:"originalQty"`
	Qty         int64     `json:"qty"`
	TotalFilled *int64    `json:"totalFilled,omitempty"`
	Open        bool      `json:"open"`
	Fills       []Fill    `json:"fills,omitempty"`
	Ts          time.Time `json:"ts"`

	// Request is the submission this order answers, set by the sender
	Request *OrderRequest `json:"-"`
}

// Route returns the venue and stock of the order, falling back to the
// submitted request for fields the venue omitted
func (o *Order) Route() (venue, symbol string) {
	venue, symbol = o.Venue, o.Symbol
	if o.Request != nil {
		if venue == "" {
			venue = o.Request.Venue
		}
		if symbol == "" {
			symbol = o.Request.Stock
		}
	}
	return venue, symbol
}

// Quantity is the original order size, from the request when the venue
// omitted it
func (o *Order) Quantity() int64 {
	if o.OriginalQty == 0 && o.Request != nil {
		return o.Request.Qty
	}
	return o.OriginalQty
}

// Side is the order direction, from the request when the venue omitted it
func (o *Order) Side() Direction {
	if o.Direction == "" && o.Request != nil {
		return o.Request.Direction
	}
	return o.Direction
}

// Filled returns the filled quantity the venue reported and whether the
// totalFilled field was present. When it is absent the fills are summed.
func (o *Order) Filled() (int64, bool) {
	if o.TotalFilled != nil {
		return *o.TotalFilled, true
	}
	var sum int64
	for _, f := range o.Fills {
		sum += f.Qty
	}
	return sum, false
}

// Heartbeat is the venue liveness response
type Heartbeat struct {
	OK    bool   `json:"ok"`
	Venue string `json:"venue"`
	Error string `json:"error,omitempty"`
}
