package paper

import (
	"github.com/gin-gonic/gin"

	"github.com/ksred/klear-accumulate/internal/auth"
	"github.com/ksred/klear-accumulate/pkg/middleware"
)

// NewRouter wires the venue routes. Order routes require an API key in
// authHeader and are rate limited per account.
func NewRouter(handlers *GinHandlers, keys *auth.Service, limiter *middleware.Limiter, authHeader string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())

	router.GET("/heartbeat", handlers.APIHeartbeatHandler())

	venues := router.Group("/venues/:venue")
	{
		venues.GET("/heartbeat", handlers.HeartbeatHandler())

		stocks := venues.Group("/stocks/:stock")
		stocks.Use(middleware.RateLimit(limiter))
		{
			stocks.GET("/quote", handlers.QuoteHandler())
		}

		orders := venues.Group("/stocks/:stock/orders")
		orders.Use(middleware.APIKeyAuth(keys, authHeader), middleware.RateLimit(limiter))
		{
			orders.POST("", handlers.PlaceOrderHandler())
			orders.GET("/:id", handlers.GetOrderHandler())
			orders.DELETE("/:id", handlers.CancelOrderHandler())
		}
	}

	return router
}
