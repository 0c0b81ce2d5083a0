// Package httpapi exposes the auction services over HTTP with gin. Handlers
// only translate between JSON and service calls; every rule lives in the
// services.
package httpapi

//go:generate mockgen -source=handler.go -destination=mock_service_test.go -package=httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/art-auction/internal/auction"
	"github.com/jensholdgaard/art-auction/internal/event"
	"github.com/jensholdgaard/art-auction/internal/lifecycle"
	"github.com/jensholdgaard/art-auction/internal/store"
)

// AuctionService is implemented by lifecycle.Manager.
type AuctionService interface {
	Create(ctx context.Context, p lifecycle.CreateParams) (*auction.Auction, error)
	Get(ctx context.Context, id string) (*auction.Auction, error)
	List(ctx context.Context, f auction.Filter) ([]auction.Auction, error)
	Extend(ctx context.Context, id, requesterID string, hours int) (*auction.Auction, error)
	Close(ctx context.Context, id string) (*auction.Auction, error)
	Purge(ctx context.Context, id string) error
	History(ctx context.Context, id string) ([]event.Event, error)
	Events(ctx context.Context, typ event.Type) ([]event.Event, error)
}

// BiddingService is implemented by bidding.Service.
type BiddingService interface {
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*auction.Bid, error)
	ListBids(ctx context.Context, auctionID string) ([]auction.Bid, error)
	ListBidderBids(ctx context.Context, bidderID string) ([]auction.Bid, error)
}

// SettlementService is implemented by settlement.Service.
type SettlementService interface {
	DetermineWinner(ctx context.Context, auctionID string) (*auction.Bid, bool, error)
	AuthorizePayment(ctx context.Context, auctionID, payerID, method string) (*auction.Payment, error)
	GetPayment(ctx context.Context, auctionID string) (*auction.Payment, error)
}

// CatalogService is implemented by catalog.Service.
type CatalogService interface {
	CreateArtwork(ctx context.Context, artistID, title string) (*store.Artwork, error)
	GetArtwork(ctx context.Context, id string) (*store.Artwork, error)
	SetApproval(ctx context.Context, id string, approved bool) (*store.Artwork, error)
	CreateUser(ctx context.Context, name string) (*store.User, error)
}

// Handler serves the auction API.
type Handler struct {
	auctions   AuctionService
	bidding    BiddingService
	settlement SettlementService
	catalog    CatalogService
	logger     *slog.Logger
}

// NewHandler returns a Handler backed by the given services.
func NewHandler(auctions AuctionService, bidding BiddingService, settlement SettlementService, catalog CatalogService, logger *slog.Logger) *Handler {
	return &Handler{
		auctions:   auctions,
		bidding:    bidding,
		settlement: settlement,
		catalog:    catalog,
		logger:     logger,
	}
}

// CreateAuction handles POST /auctions.
func (h *Handler) CreateAuction(c *gin.Context) {
	var req CreateAuctionRequest
	if !h.bind(c, "CreateAuction", &req) {
		return
	}

	a, err := h.auctions.Create(c.Request.Context(), lifecycle.CreateParams{
		ArtworkID:   req.ArtworkID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		StartingBid: req.StartingBid,
	})
	if err != nil {
		h.fail(c, "CreateAuction", err)
		return
	}
	respond(c, http.StatusCreated, a, "auction created")
}

// ListAuctions handles GET /auctions?status=&artwork_id=.
func (h *Handler) ListAuctions(c *gin.Context) {
	var f auction.Filter
	if s := c.Query("status"); s != "" {
		status, err := auction.ParseStatus(s)
		if err != nil {
			h.fail(c, "ListAuctions", err)
			return
		}
		f.Status = status
	}
	f.ArtworkID = c.Query("artwork_id")

	auctions, err := h.auctions.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, "ListAuctions", err)
		return
	}
	if auctions == nil {
		auctions = []auction.Auction{}
	}
	respond(c, http.StatusOK, auctions, "auctions retrieved")
}

// GetAuction handles GET /auctions/:id.
func (h *Handler) GetAuction(c *gin.Context) {
	a, err := h.auctions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "GetAuction", err)
		return
	}
	respond(c, http.StatusOK, a, "auction retrieved")
}

// ExtendAuction handles POST /auctions/:id/extend.
func (h *Handler) ExtendAuction(c *gin.Context) {
	var req ExtendRequest
	if !h.bind(c, "ExtendAuction", &req) {
		return
	}

	a, err := h.auctions.Extend(c.Request.Context(), c.Param("id"), req.RequesterID, req.Hours)
	if err != nil {
		h.fail(c, "ExtendAuction", err)
		return
	}
	respond(c, http.StatusOK, a, "auction extended")
}

// CloseAuction handles POST /auctions/:id/close.
func (h *Handler) CloseAuction(c *gin.Context) {
	a, err := h.auctions.Close(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "CloseAuction", err)
		return
	}
	respond(c, http.StatusOK, a, "auction closed")
}

// PurgeAuction handles DELETE /auctions/:id.
func (h *Handler) PurgeAuction(c *gin.Context) {
	if err := h.auctions.Purge(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "PurgeAuction", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetWinner handles GET /auctions/:id/winner.
func (h *Handler) GetWinner(c *gin.Context) {
	id := c.Param("id")
	bid, ok, err := h.settlement.DetermineWinner(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "GetWinner", err)
		return
	}
	resp := WinnerResponse{AuctionID: id, HasWinner: ok}
	if ok {
		resp.Bid = bid
	}
	respond(c, http.StatusOK, resp, "winner determined")
}

// AuctionHistory handles GET /auctions/:id/events.
func (h *Handler) AuctionHistory(c *gin.Context) {
	events, err := h.auctions.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "AuctionHistory", err)
		return
	}
	if events == nil {
		events = []event.Event{}
	}
	respond(c, http.StatusOK, events, "history retrieved")
}

// ListEvents handles GET /events?type=.
func (h *Handler) ListEvents(c *gin.Context) {
	typ := c.Query("type")
	if typ == "" {
		h.badRequest(c, "ListEvents", "type query parameter is required")
		return
	}
	events, err := h.auctions.Events(c.Request.Context(), event.Type(typ))
	if err != nil {
		h.fail(c, "ListEvents", err)
		return
	}
	if events == nil {
		events = []event.Event{}
	}
	respond(c, http.StatusOK, events, "events retrieved")
}

// PlaceBid handles POST /auctions/:id/bids.
func (h *Handler) PlaceBid(c *gin.Context) {
	var req PlaceBidRequest
	if !h.bind(c, "PlaceBid", &req) {
		return
	}

	bid, err := h.bidding.PlaceBid(c.Request.Context(), c.Param("id"), req.BidderID, req.Amount)
	if err != nil {
		h.fail(c, "PlaceBid", err)
		return
	}
	respond(c, http.StatusCreated, bid, "bid placed")
}

// ListBids handles GET /auctions/:id/bids.
func (h *Handler) ListBids(c *gin.Context) {
	bids, err := h.bidding.ListBids(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "ListBids", err)
		return
	}
	if bids == nil {
		bids = []auction.Bid{}
	}
	respond(c, http.StatusOK, bids, "bids retrieved")
}

// ListBidderBids handles GET /users/:user_id/bids.
func (h *Handler) ListBidderBids(c *gin.Context) {
	bids, err := h.bidding.ListBidderBids(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		h.fail(c, "ListBidderBids", err)
		return
	}
	if bids == nil {
		bids = []auction.Bid{}
	}
	respond(c, http.StatusOK, bids, "bids retrieved")
}

// AuthorizePayment handles POST /auctions/:id/payment.
func (h *Handler) AuthorizePayment(c *gin.Context) {
	var req PaymentRequest
	if !h.bind(c, "AuthorizePayment", &req) {
		return
	}

	p, err := h.settlement.AuthorizePayment(c.Request.Context(), c.Param("id"), req.PayerID, req.Method)
	if err != nil {
		h.fail(c, "AuthorizePayment", err)
		return
	}
	respond(c, http.StatusCreated, p, "payment authorized")
}

// GetPayment handles GET /auctions/:id/payment.
func (h *Handler) GetPayment(c *gin.Context) {
	p, err := h.settlement.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "GetPayment", err)
		return
	}
	respond(c, http.StatusOK, p, "payment retrieved")
}

// CreateArtwork handles POST /artworks.
func (h *Handler) CreateArtwork(c *gin.Context) {
	var req CreateArtworkRequest
	if !h.bind(c, "CreateArtwork", &req) {
		return
	}

	a, err := h.catalog.CreateArtwork(c.Request.Context(), req.ArtistID, req.Title)
	if err != nil {
		h.fail(c, "CreateArtwork", err)
		return
	}
	respond(c, http.StatusCreated, a, "artwork registered")
}

// GetArtwork handles GET /artworks/:id.
func (h *Handler) GetArtwork(c *gin.Context) {
	a, err := h.catalog.GetArtwork(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "GetArtwork", err)
		return
	}
	respond(c, http.StatusOK, a, "artwork retrieved")
}

// ApproveArtwork handles POST /artworks/:id/approve.
func (h *Handler) ApproveArtwork(c *gin.Context) {
	h.setApproval(c, "ApproveArtwork", true)
}

// RejectArtwork handles POST /artworks/:id/reject.
func (h *Handler) RejectArtwork(c *gin.Context) {
	h.setApproval(c, "RejectArtwork", false)
}

func (h *Handler) setApproval(c *gin.Context, name string, approved bool) {
	a, err := h.catalog.SetApproval(c.Request.Context(), c.Param("id"), approved)
	if err != nil {
		h.fail(c, name, err)
		return
	}
	respond(c, http.StatusOK, a, "artwork moderated")
}

// CreateUser handles POST /users.
func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if !h.bind(c, "CreateUser", &req) {
		return
	}

	u, err := h.catalog.CreateUser(c.Request.Context(), req.Name)
	if err != nil {
		h.fail(c, "CreateUser", err)
		return
	}
	respond(c, http.StatusCreated, u, "user registered")
}
