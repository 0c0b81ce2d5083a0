package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/jensholdgaard/art-auction/internal/auction"
	"github.com/jensholdgaard/art-auction/internal/event"
	"github.com/jensholdgaard/art-auction/internal/store"
)

// ArtworkRepo implements store.ArtworkRepository.
type ArtworkRepo struct {
	db *DB
}

func (r *ArtworkRepo) Create(_ context.Context, a *store.Artwork) error {
	r.db.catalogMu.Lock()
	defer r.db.catalogMu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, exists := r.db.artworks[a.ID]; exists {
		return fmt.Errorf("artwork %s already exists: %w", a.ID, auction.ErrConflict)
	}
	a.CreatedAt = r.db.clock.Now().UTC()
	cp := *a
	r.db.artworks[a.ID] = &cp
	return nil
}

func (r *ArtworkRepo) GetByID(_ context.Context, id string) (*store.Artwork, error) {
	r.db.catalogMu.RLock()
	defer r.db.catalogMu.RUnlock()

	a, ok := r.db.artworks[id]
	if !ok {
		return nil, auction.ErrArtworkNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *ArtworkRepo) SetApproved(_ context.Context, id string, approved bool) error {
	r.db.catalogMu.Lock()
	defer r.db.catalogMu.Unlock()

	a, ok := r.db.artworks[id]
	if !ok {
		return auction.ErrArtworkNotFound
	}
	a.Approved = approved
	return nil
}

func (r *ArtworkRepo) IsApproved(ctx context.Context, id string) (bool, error) {
	a, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return a.Approved, nil
}

func (r *ArtworkRepo) IsSold(ctx context.Context, id string) (bool, error) {
	a, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return a.Sold, nil
}

func (r *ArtworkRepo) ArtistID(ctx context.Context, id string) (string, error) {
	a, err := r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return a.ArtistID, nil
}

func (r *ArtworkRepo) MarkSold(_ context.Context, id string) error {
	r.db.catalogMu.Lock()
	defer r.db.catalogMu.Unlock()

	a, ok := r.db.artworks[id]
	if !ok {
		return auction.ErrArtworkNotFound
	}
	a.Sold = true
	return nil
}

// UserRepo implements store.UserRepository.
type UserRepo struct {
	db *DB
}

func (r *UserRepo) Create(_ context.Context, u *store.User) error {
	r.db.catalogMu.Lock()
	defer r.db.catalogMu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, exists := r.db.users[u.ID]; exists {
		return fmt.Errorf("user %s already exists: %w", u.ID, auction.ErrConflict)
	}
	u.CreatedAt = r.db.clock.Now().UTC()
	cp := *u
	r.db.users[u.ID] = &cp
	return nil
}

func (r *UserRepo) Exists(_ context.Context, id string) (bool, error) {
	r.db.catalogMu.RLock()
	defer r.db.catalogMu.RUnlock()
	_, ok := r.db.users[id]
	return ok, nil
}

// BidRepo implements store.BidRepository.
type BidRepo struct {
	db *DB
}

func (r *BidRepo) ListByAuction(_ context.Context, auctionID string) ([]auction.Bid, error) {
	e, ok := r.db.entry(auctionID)
	if !ok {
		return nil, auction.ErrAuctionNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, auction.ErrAuctionNotFound
	}
	return append([]auction.Bid{}, e.bids...), nil
}

func (r *BidRepo) ListByBidder(_ context.Context, bidderID string) ([]auction.Bid, error) {
	out := []auction.Bid{}
	r.db.each(func(e *entry) {
		for _, b := range e.bids {
			if b.BidderID == bidderID {
				out = append(out, b)
			}
		}
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}

// PaymentRepo implements store.PaymentRepository.
type PaymentRepo struct {
	db *DB
}

func (r *PaymentRepo) GetByAuction(_ context.Context, auctionID string) (*auction.Payment, error) {
	e, ok := r.db.entry(auctionID)
	if !ok {
		return nil, auction.ErrPaymentNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted || e.payment == nil {
		return nil, auction.ErrPaymentNotFound
	}
	p := *e.payment
	return &p, nil
}

// EventStore implements event.Store.
type EventStore struct {
	db *DB
}

func (s *EventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	e, ok := s.db.entry(aggregateID)
	if !ok {
		return []event.Event{}, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return []event.Event{}, nil
	}
	return append([]event.Event{}, e.events...), nil
}

func (s *EventStore) LoadByType(_ context.Context, eventType event.Type) ([]event.Event, error) {
	out := []event.Event{}
	s.db.each(func(e *entry) {
		for _, ev := range e.events {
			if ev.Type == eventType {
				out = append(out, ev)
			}
		}
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
