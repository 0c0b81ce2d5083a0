package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type identifies an event kind.
type Type string

const (
	AuctionCreated   Type = "auction.created"
	AuctionActivated Type = "auction.activated"
	AuctionExtended  Type = "auction.extended"
	AuctionEnded     Type = "auction.ended"
	AuctionClosed    Type = "auction.closed"

	BidPlaced Type = "bid.placed"

	PaymentAuthorized Type = "payment.authorized"
)

// Event represents a single audit record for an auction. Version is assigned
// by the store when the event commits alongside the auction it describes.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// New builds an event with a fresh ID and the JSON encoding of data.
func New(aggregateID string, typ Type, data any, at time.Time) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshaling %s payload: %w", typ, err)
	}
	return Event{
		ID:          uuid.NewString(),
		AggregateID: aggregateID,
		Type:        typ,
		Data:        raw,
		CreatedAt:   at.UTC(),
	}, nil
}

// AuctionCreatedData is the payload for AuctionCreated events.
type AuctionCreatedData struct {
	ArtworkID   string          `json:"artwork_id"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time"`
	StartingBid decimal.Decimal `json:"starting_bid"`
}

// AuctionExtendedData is the payload for AuctionExtended events.
type AuctionExtendedData struct {
	RequesterID string    `json:"requester_id"`
	Hours       int       `json:"hours"`
	EndTime     time.Time `json:"end_time"`
}

// AuctionEndedData is the payload for AuctionEnded events.
type AuctionEndedData struct {
	WinnerID string          `json:"winner_id"`
	Amount   decimal.Decimal `json:"amount"`
	BidCount int             `json:"bid_count"`
}

// AuctionClosedData is the payload for AuctionClosed events.
type AuctionClosedData struct {
	Reason string `json:"reason"`
}

// Close reasons.
const (
	CloseNoBids  = "no_bids"
	CloseSettled = "settled"
	CloseAdmin   = "admin"
	CloseLapsed  = "lapsed"
)

// BidPlacedData is the payload for BidPlaced events.
type BidPlacedData struct {
	BidID    string          `json:"bid_id"`
	BidderID string          `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// PaymentAuthorizedData is the payload for PaymentAuthorized events.
type PaymentAuthorizedData struct {
	PaymentID string          `json:"payment_id"`
	PayerID   string          `json:"payer_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
}
