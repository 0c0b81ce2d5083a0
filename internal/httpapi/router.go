package httpapi

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/art-auction/internal/health"
)

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(h *Handler, hc *health.Handler, logger *slog.Logger, tp trace.TracerProvider) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(Tracing(tp))
	router.Use(RequestLogger(logger))

	router.GET("/healthz", hc.Liveness)
	router.GET("/readyz", hc.Readiness)

	auctions := router.Group("/auctions")
	{
		auctions.POST("", h.CreateAuction)
		auctions.GET("", h.ListAuctions)
		auctions.GET("/:id", h.GetAuction)
		auctions.DELETE("/:id", h.PurgeAuction)
		auctions.POST("/:id/extend", h.ExtendAuction)
		auctions.POST("/:id/close", h.CloseAuction)
		auctions.GET("/:id/winner", h.GetWinner)
		auctions.GET("/:id/events", h.AuctionHistory)
		auctions.GET("/:id/bids", h.ListBids)
		auctions.POST("/:id/bids", h.PlaceBid)
		auctions.GET("/:id/payment", h.GetPayment)
		auctions.POST("/:id/payment", h.AuthorizePayment)
	}

	artworks := router.Group("/artworks")
	{
		artworks.POST("", h.CreateArtwork)
		artworks.GET("/:id", h.GetArtwork)
		artworks.POST("/:id/approve", h.ApproveArtwork)
		artworks.POST("/:id/reject", h.RejectArtwork)
	}

	users := router.Group("/users")
	{
		users.POST("", h.CreateUser)
		users.GET("/:user_id/bids", h.ListBidderBids)
	}

	router.GET("/events", h.ListEvents)

	return router
}
