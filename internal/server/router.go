package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures every Gin route, mirroring the teacher's
// SetupRouter grouping convention but across the five resource groups
// spec.md §6.1 defines.
func SetupRouter(h *Handlers) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLoggerMiddleware)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")

	api.GET("/health", h.Health)
	api.GET("/events", h.GlobalEvents)

	users := api.Group("/users")
	{
		users.POST("/login", h.Login)
		users.GET("/me", RequireUser, h.Me)
		users.POST("/me/deposit", RequireUser, h.Deposit)
		users.GET("/me/wins", RequireUser, h.Wins)
		users.GET("/me/bids", RequireUser, h.MyBids)
	}

	auctions := api.Group("/auctions")
	{
		auctions.GET("", h.ListAuctions)
		auctions.POST("", h.CreateAuction)
		auctions.GET("/:id", h.GetAuction)
		auctions.GET("/:id/leaderboard", h.Leaderboard)
		auctions.GET("/:id/bids/count", h.BidsCount)
		auctions.GET("/:id/events", h.Events)
		auctions.POST("/:id/bid", RequireUser, h.PlaceBid)
		auctions.GET("/:id/my-bid", RequireUser, h.MyBid)
	}

	return router
}
