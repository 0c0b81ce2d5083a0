package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/art-auction/internal/auction"
)

// Amounts are decoded into decimal.Decimal, which accepts both JSON numbers
// and strings, so they never pass through float64.

type CreateAuctionRequest struct {
	ArtworkID   string          `json:"artwork_id" binding:"required"`
	StartTime   time.Time       `json:"start_time" binding:"required"`
	EndTime     time.Time       `json:"end_time" binding:"required"`
	StartingBid decimal.Decimal `json:"starting_bid"`
}

type ExtendRequest struct {
	RequesterID string `json:"requester_id" binding:"required"`
	Hours       int    `json:"hours"`
}

type PlaceBidRequest struct {
	BidderID string          `json:"bidder_id" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

type PaymentRequest struct {
	PayerID string `json:"payer_id" binding:"required"`
	Method  string `json:"method" binding:"required"`
}

type CreateArtworkRequest struct {
	ArtistID string `json:"artist_id" binding:"required"`
	Title    string `json:"title" binding:"required"`
}

type CreateUserRequest struct {
	Name string `json:"name" binding:"required"`
}

// WinnerResponse is returned by GET /auctions/:id/winner. Bid is nil when the
// auction closed without bids.
type WinnerResponse struct {
	AuctionID string       `json:"auction_id"`
	HasWinner bool         `json:"has_winner"`
	Bid       *auction.Bid `json:"bid"`
}
