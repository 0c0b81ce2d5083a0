package auction

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Bounds for a single extension request, in hours.
const (
	MinExtendHours = 1
	MaxExtendHours = 72
)

// resolution is the granularity at which timestamps are stored and bids are
// ordered. Postgres timestamps keep microseconds.
const resolution = time.Microsecond

// Stamp normalizes t to the stored UTC microsecond form.
func Stamp(t time.Time) time.Time {
	return t.UTC().Truncate(resolution)
}

// Auction is the aggregate root for the time-boxed sale of one artwork.
//
// Auction values carry no lock of their own. Callers mutate them only inside
// the per-auction unit provided by the store (see store.AuctionRepository).
type Auction struct {
	ID              string              `json:"id"`
	ArtworkID       string              `json:"artwork_id"`
	StartTime       time.Time           `json:"start_time"`
	EndTime         time.Time           `json:"end_time"`
	StartingBid     decimal.Decimal     `json:"starting_bid"`
	Status          Status              `json:"status"`
	HighestBid      decimal.NullDecimal `json:"highest_bid"`
	HighestBidderID string              `json:"highest_bidder_id,omitempty"`
	BidCount        int                 `json:"bid_count"`
	LastBidAt       time.Time           `json:"last_bid_at,omitempty"`
	Version         int                 `json:"version"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Bid is an immutable offer by one user against one auction.
type Bid struct {
	ID          string          `json:"id"`
	AuctionID   string          `json:"auction_id"`
	BidderID    string          `json:"bidder_id"`
	Amount      decimal.Decimal `json:"amount"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// Payment settles an ended auction. At most one exists per auction.
type Payment struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id"`
	PayerID   string          `json:"payer_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Status    PaymentStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Filter narrows ListAuctions. Zero fields match everything.
type Filter struct {
	Status    Status
	ArtworkID string
}

// Matches reports whether a satisfies the filter.
func (f Filter) Matches(a *Auction) bool {
	if f.Status != 0 && a.Status != f.Status {
		return false
	}
	if f.ArtworkID != "" && a.ArtworkID != f.ArtworkID {
		return false
	}
	return true
}

// Transition names the lifecycle edge taken by an operation.
type Transition uint8

const (
	TransitionNone Transition = iota
	TransitionActivated
	TransitionEnded
	TransitionClosed
)

func (t Transition) String() string {
	switch t {
	case TransitionNone:
		return "none"
	case TransitionActivated:
		return "activated"
	case TransitionEnded:
		return "ended"
	case TransitionClosed:
		return "closed"
	default:
		return fmt.Sprintf("Transition(%d)", uint8(t))
	}
}

// New validates the creation parameters and returns a pending auction.
func New(id, artworkID string, start, end time.Time, startingBid decimal.Decimal, now time.Time) (*Auction, error) {
	if strings.TrimSpace(artworkID) == "" {
		return nil, fmt.Errorf("artwork id: %w", ErrMissingField)
	}
	if !Stamp(end).After(Stamp(start)) {
		return nil, ErrInvalidTimeRange
	}
	if startingBid.IsNegative() {
		return nil, ErrNegativeStartingBid
	}
	now = Stamp(now)
	return &Auction{
		ID:          id,
		ArtworkID:   artworkID,
		StartTime:   Stamp(start),
		EndTime:     Stamp(end),
		StartingBid: startingBid,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CurrentPrice is the highest accepted bid, or the starting bid when there
// are none.
func (a *Auction) CurrentPrice() decimal.Decimal {
	if a.HighestBid.Valid {
		return a.HighestBid.Decimal
	}
	return a.StartingBid
}

// MinimumBid is the smallest amount the next bid may offer.
func (a *Auction) MinimumBid(p IncrementPolicy) decimal.Decimal {
	return p.Next(a.CurrentPrice())
}

// AcceptsBids reports whether a bid submitted at now falls inside the
// auction's active window.
func (a *Auction) AcceptsBids(now time.Time) bool {
	return a.Status == StatusActive && !now.Before(a.StartTime) && now.Before(a.EndTime)
}

// Activate moves a pending auction to active once its start time has passed
// and the artwork has been approved. Anything else is a no-op.
func (a *Auction) Activate(now time.Time, approved bool) Transition {
	if a.Status != StatusPending || now.Before(a.StartTime) || !approved {
		return TransitionNone
	}
	a.Status = StatusActive
	a.UpdatedAt = Stamp(now)
	return TransitionActivated
}

// Expire ends an active auction whose end time has passed. With a highest bid
// the auction becomes ended and the bid is snapshotted onto the record;
// without one it closes directly.
func (a *Auction) Expire(now time.Time, highest *Bid) Transition {
	if a.Status != StatusActive || now.Before(a.EndTime) {
		return TransitionNone
	}
	a.UpdatedAt = Stamp(now)
	if highest == nil {
		a.Status = StatusClosed
		return TransitionClosed
	}
	a.Status = StatusEnded
	a.HighestBid = decimal.NewNullDecimal(highest.Amount)
	a.HighestBidderID = highest.BidderID
	return TransitionEnded
}

// Lapse closes a pending auction whose end time passed before it could
// activate. No bid can exist on such an auction.
func (a *Auction) Lapse(now time.Time) Transition {
	if a.Status != StatusPending || now.Before(a.EndTime) {
		return TransitionNone
	}
	a.Status = StatusClosed
	a.UpdatedAt = Stamp(now)
	return TransitionClosed
}

// ApplyBid records b as accepted. The bid's SubmittedAt is assigned here so
// that bids are strictly ordered per auction even when the clock stalls.
// The cached highest bid only moves up.
func (a *Auction) ApplyBid(b *Bid, now time.Time) {
	submitted := Stamp(now)
	if !a.LastBidAt.IsZero() && !submitted.After(a.LastBidAt) {
		submitted = a.LastBidAt.Add(resolution)
	}
	b.AuctionID = a.ID
	b.SubmittedAt = submitted

	if !a.HighestBid.Valid || b.Amount.GreaterThan(a.HighestBid.Decimal) {
		a.HighestBid = decimal.NewNullDecimal(b.Amount)
		a.HighestBidderID = b.BidderID
	}
	a.BidCount++
	a.LastBidAt = submitted
	a.UpdatedAt = Stamp(now)
}

// Extend pushes the end time back by hours. Only the artwork's artist may do
// so, and only before the auction has finished.
func (a *Auction) Extend(now time.Time, hours int, requesterIsArtist bool) error {
	if hours < MinExtendHours || hours > MaxExtendHours {
		return ErrExtendHoursOutOfRange
	}
	if !requesterIsArtist {
		return ErrNotArtist
	}
	if a.Status != StatusPending && a.Status != StatusActive {
		return ErrNotExtendable
	}
	if !now.Before(a.EndTime) {
		return ErrNotExtendable
	}
	a.EndTime = a.EndTime.Add(time.Duration(hours) * time.Hour)
	a.UpdatedAt = Stamp(now)
	return nil
}

// Settle closes an ended auction after its payment has been recorded.
func (a *Auction) Settle(now time.Time) error {
	if a.Status != StatusEnded {
		return ErrAuctionNotSettleable
	}
	a.Status = StatusClosed
	a.UpdatedAt = Stamp(now)
	return nil
}

// CloseAdministratively withdraws a pending or active auction.
func (a *Auction) CloseAdministratively(now time.Time) error {
	if a.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	a.Status = StatusClosed
	a.UpdatedAt = Stamp(now)
	return nil
}
