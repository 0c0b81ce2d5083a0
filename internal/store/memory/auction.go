package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/jensholdgaard/art-auction/internal/auction"
	"github.com/jensholdgaard/art-auction/internal/event"
	"github.com/jensholdgaard/art-auction/internal/store"
)

// AuctionRepo implements store.AuctionRepository.
type AuctionRepo struct {
	db *DB
}

func (r *AuctionRepo) Create(_ context.Context, a *auction.Auction, events ...event.Event) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, exists := r.db.entries[a.ID]; exists {
		return fmt.Errorf("auction %s already exists: %w", a.ID, auction.ErrConflict)
	}
	a.Version = store.StampVersions(0, events)
	r.db.entries[a.ID] = &entry{
		created: a.CreatedAt,
		auction: *a,
		events:  append([]event.Event(nil), events...),
	}
	return nil
}

func (r *AuctionRepo) GetByID(_ context.Context, id string) (*auction.Auction, error) {
	e, ok := r.db.entry(id)
	if !ok {
		return nil, auction.ErrAuctionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, auction.ErrAuctionNotFound
	}
	a := e.auction
	return &a, nil
}

func (r *AuctionRepo) List(_ context.Context, f auction.Filter) ([]auction.Auction, error) {
	out := []auction.Auction{}
	r.db.each(func(e *entry) {
		if f.Matches(&e.auction) {
			out = append(out, e.auction)
		}
	})
	return out, nil
}

func (r *AuctionRepo) ListDue(_ context.Context, now time.Time) ([]string, error) {
	var ids []string
	r.db.each(func(e *entry) {
		a := &e.auction
		switch {
		case a.Status == auction.StatusPending && !now.Before(a.StartTime):
			ids = append(ids, a.ID)
		case a.Status == auction.StatusActive && !now.Before(a.EndTime):
			ids = append(ids, a.ID)
		}
	})
	return ids, nil
}

func (r *AuctionRepo) Update(ctx context.Context, id string, fn func(tx store.AuctionTx) error) error {
	e, ok := r.db.entry(id)
	if !ok {
		return auction.ErrAuctionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return auction.ErrAuctionNotFound
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	working := e.auction
	tx := &auctionTx{db: r.db, e: e, a: &working, base: working.Version}
	if err := fn(tx); err != nil {
		return err
	}
	if !tx.dirty() {
		return nil
	}
	return tx.commit()
}

func (r *AuctionRepo) Purge(_ context.Context, id string) error {
	r.db.mu.Lock()
	e, ok := r.db.entries[id]
	if ok {
		delete(r.db.entries, id)
	}
	r.db.mu.Unlock()
	if !ok {
		return auction.ErrAuctionNotFound
	}

	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()
	return nil
}

// auctionTx buffers writes until commit. It runs with e.mu held.
type auctionTx struct {
	db   *DB
	e    *entry
	a    *auction.Auction
	base int

	bids    []auction.Bid
	payment *auction.Payment
	sold    []string
	events  []event.Event
}

func (tx *auctionTx) Auction() *auction.Auction { return tx.a }

func (tx *auctionTx) Bids(context.Context) ([]auction.Bid, error) {
	out := make([]auction.Bid, 0, len(tx.e.bids)+len(tx.bids))
	out = append(out, tx.e.bids...)
	return append(out, tx.bids...), nil
}

func (tx *auctionTx) AppendBid(_ context.Context, b auction.Bid) error {
	if b.AuctionID != tx.a.ID {
		return fmt.Errorf("bid for auction %s appended to %s", b.AuctionID, tx.a.ID)
	}
	tx.bids = append(tx.bids, b)
	return nil
}

func (tx *auctionTx) Payment(context.Context) (*auction.Payment, error) {
	p := tx.payment
	if p == nil {
		p = tx.e.payment
	}
	if p == nil {
		return nil, auction.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (tx *auctionTx) InsertPayment(_ context.Context, p auction.Payment) error {
	if tx.e.payment != nil || tx.payment != nil {
		return auction.ErrAlreadyPaid
	}
	tx.payment = &p
	return nil
}

func (tx *auctionTx) Artworks() auction.ArtworkModeration {
	return &txArtworks{ArtworkRepo: ArtworkRepo{db: tx.db}, tx: tx}
}

func (tx *auctionTx) Record(events ...event.Event) {
	tx.events = append(tx.events, events...)
}

func (tx *auctionTx) dirty() bool {
	return len(tx.events) > 0 || len(tx.bids) > 0 || tx.payment != nil || len(tx.sold) > 0
}

func (tx *auctionTx) commit() error {
	if tx.e.auction.Version != tx.base {
		return auction.ErrConcurrentUpdate
	}
	tx.a.Version = store.StampVersions(tx.base, tx.events)

	tx.db.catalogMu.Lock()
	for _, id := range tx.sold {
		if art, ok := tx.db.artworks[id]; ok {
			art.Sold = true
		}
	}
	tx.db.catalogMu.Unlock()

	tx.e.auction = *tx.a
	tx.e.bids = append(tx.e.bids, tx.bids...)
	if tx.payment != nil {
		tx.e.payment = tx.payment
	}
	tx.e.events = append(tx.e.events, tx.events...)
	return nil
}

// txArtworks defers MarkSold to commit and reads pending marks back.
type txArtworks struct {
	ArtworkRepo
	tx *auctionTx
}

func (a *txArtworks) IsSold(ctx context.Context, artworkID string) (bool, error) {
	for _, id := range a.tx.sold {
		if id == artworkID {
			return true, nil
		}
	}
	return a.ArtworkRepo.IsSold(ctx, artworkID)
}

func (a *txArtworks) MarkSold(ctx context.Context, artworkID string) error {
	if _, err := a.ArtworkRepo.GetByID(ctx, artworkID); err != nil {
		return err
	}
	a.tx.sold = append(a.tx.sold, artworkID)
	return nil
}
