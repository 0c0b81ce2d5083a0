package store

import (
	"context"
	"time"

	"github.com/jensholdgaard/art-auction/internal/auction"
	"github.com/jensholdgaard/art-auction/internal/event"
)

// Artwork is the slice of the catalogue the auction engine reads. Approval and
// sale flags are owned by moderation, outside this service.
type Artwork struct {
	ID        string    `db:"id" json:"id"`
	ArtistID  string    `db:"artist_id" json:"artist_id"`
	Title     string    `db:"title" json:"title"`
	Approved  bool      `db:"approved" json:"approved"`
	Sold      bool      `db:"sold" json:"sold"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// User is a registered account that may bid or pay.
type User struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AuctionRepository persists auctions.
//
// Update is the per-auction serialization point: every read-modify-write of
// an auction, its bids and its payment goes through fn, and no two calls for
// the same id overlap. Calls for different ids never block each other.
type AuctionRepository interface {
	// Create stores a new auction together with its opening events. The
	// auction's Version is set to the number of events.
	Create(ctx context.Context, a *auction.Auction, events ...event.Event) error
	GetByID(ctx context.Context, id string) (*auction.Auction, error)
	List(ctx context.Context, f auction.Filter) ([]auction.Auction, error)
	// ListDue returns ids of pending auctions whose start time has passed and
	// active auctions whose end time has passed.
	ListDue(ctx context.Context, now time.Time) ([]string, error)
	// Update runs fn in a transaction holding the auction's lock. When fn
	// returns nil and recorded events, the auction is saved with a version
	// compare-and-set and the events are appended; otherwise nothing is
	// written. A lost compare-and-set yields auction.ErrConcurrentUpdate.
	Update(ctx context.Context, id string, fn func(tx AuctionTx) error) error
	// Purge removes the auction with its bids, payment and events.
	Purge(ctx context.Context, id string) error
}

// AuctionTx is the view of one locked auction handed to Update callbacks.
type AuctionTx interface {
	// Auction returns the locked auction. Mutations to it are persisted on
	// commit.
	Auction() *auction.Auction
	// Bids returns the ledger contents, oldest first.
	Bids(ctx context.Context) ([]auction.Bid, error)
	AppendBid(ctx context.Context, b auction.Bid) error
	// Payment returns auction.ErrPaymentNotFound when none exists.
	Payment(ctx context.Context) (*auction.Payment, error)
	// InsertPayment relies on the storage uniqueness constraint and returns
	// auction.ErrAlreadyPaid when a payment already exists.
	InsertPayment(ctx context.Context, p auction.Payment) error
	// Artworks is the moderation view bound to this transaction.
	Artworks() auction.ArtworkModeration
	// Record queues audit events to commit with the auction.
	Record(events ...event.Event)
}

// BidRepository reads bid history outside of an auction transaction.
type BidRepository interface {
	// ListByAuction returns bids oldest first.
	ListByAuction(ctx context.Context, auctionID string) ([]auction.Bid, error)
	// ListByBidder returns a user's bids newest first.
	ListByBidder(ctx context.Context, bidderID string) ([]auction.Bid, error)
}

// PaymentRepository reads payments.
type PaymentRepository interface {
	GetByAuction(ctx context.Context, auctionID string) (*auction.Payment, error)
}

// ArtworkRepository stores artworks and serves the moderation view.
type ArtworkRepository interface {
	auction.ArtworkModeration
	Create(ctx context.Context, a *Artwork) error
	GetByID(ctx context.Context, id string) (*Artwork, error)
	SetApproved(ctx context.Context, id string, approved bool) error
}

// UserRepository stores users and serves the user directory.
type UserRepository interface {
	auction.UserDirectory
	Create(ctx context.Context, u *User) error
}

// StampVersions numbers events consecutively after base and returns the
// resulting aggregate version.
func StampVersions(base int, events []event.Event) int {
	for i := range events {
		events[i].Version = base + i + 1
	}
	return base + len(events)
}

// Record builds an event for the locked auction and queues it on tx.
func Record(tx AuctionTx, typ event.Type, data any, at time.Time) error {
	ev, err := event.New(tx.Auction().ID, typ, data, at)
	if err != nil {
		return err
	}
	tx.Record(ev)
	return nil
}
