package paper

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ksred/klear-accumulate/internal/types"
	"github.com/ksred/klear-accumulate/pkg/middleware"
	"github.com/ksred/klear-accumulate/pkg/response"
)

// GinHandlers contains HTTP handlers for the venue endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for the venue endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// APIHeartbeatHandler handles GET /heartbeat
func (h *GinHandlers) APIHeartbeatHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, response.Envelope{OK: true})
	}
}

// HeartbeatHandler handles GET /venues/:venue/heartbeat
func (h *GinHandlers) HeartbeatHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		venue := c.Param("venue")
		if err := h.service.Heartbeat(venue); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, types.Heartbeat{OK: true, Venue: venue})
	}
}

// QuoteHandler handles GET /venues/:venue/stocks/:stock/quote
func (h *GinHandlers) QuoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		quote, err := h.service.Quote(c.Param("venue"), c.Param("stock"))
		response.Handle(c, quote, err)
	}
}

// PlaceOrderHandler handles POST /venues/:venue/stocks/:stock/orders.
// Requires a valid API key and an Idempotency-Key header.
func (h *GinHandlers) PlaceOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.OrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.PlaceOrder(
			c.GetString(middleware.AccountKey),
			c.Param("venue"),
			c.Param("stock"),
			req,
			c.GetHeader("Idempotency-Key"),
		)
		response.Handle(c, order, err)
	}
}

// GetOrderHandler handles GET /venues/:venue/stocks/:stock/orders/:id
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}
		order, err := h.service.Order(c.GetString(middleware.AccountKey), c.Param("venue"), c.Param("stock"), id)
		response.Handle(c, order, err)
	}
}

// CancelOrderHandler handles DELETE /venues/:venue/stocks/:stock/orders/:id
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}
		order, err := h.service.Cancel(c.GetString(middleware.AccountKey), c.Param("venue"), c.Param("stock"), id)
		response.Handle(c, order, err)
	}
}

func orderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Order id must be a positive integer")
		return 0, false
	}
	return id, true
}
