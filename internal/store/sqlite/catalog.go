package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/art-auction/internal/auction"
	"github.com/jensholdgaard/art-auction/internal/clock"
	"github.com/jensholdgaard/art-auction/internal/event"
	"github.com/jensholdgaard/art-auction/internal/store"
)

type artworkRow struct {
	ID        string `db:"id"`
	ArtistID  string `db:"artist_id"`
	Title     string `db:"title"`
	Approved  bool   `db:"approved"`
	Sold      bool   `db:"sold"`
	CreatedAt int64  `db:"created_at"`
}

type artworkQueries struct {
	q sqlx.ExtContext
}

func (a artworkQueries) get(ctx context.Context, id string) (*store.Artwork, error) {
	var row artworkRow
	err := sqlx.GetContext(ctx, a.q, &row,
		`SELECT id, artist_id, title, approved, sold, created_at FROM artworks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auction.ErrArtworkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting artwork: %w", err)
	}
	return &store.Artwork{
		ID:        row.ID,
		ArtistID:  row.ArtistID,
		Title:     row.Title,
		Approved:  row.Approved,
		Sold:      row.Sold,
		CreatedAt: fromMicros(row.CreatedAt),
	}, nil
}

func (a artworkQueries) IsApproved(ctx context.Context, id string) (bool, error) {
	art, err := a.get(ctx, id)
	if err != nil {
		return false, err
	}
	return art.Approved, nil
}

func (a artworkQueries) IsSold(ctx context.Context, id string) (bool, error) {
	art, err := a.get(ctx, id)
	if err != nil {
		return false, err
	}
	return art.Sold, nil
}

func (a artworkQueries) ArtistID(ctx context.Context, id string) (string, error) {
	art, err := a.get(ctx, id)
	if err != nil {
		return "", err
	}
	return art.ArtistID, nil
}

func (a artworkQueries) MarkSold(ctx context.Context, id string) error {
	return a.set(ctx, `UPDATE artworks SET sold = 1 WHERE id = ?`, id)
}

func (a artworkQueries) set(ctx context.Context, query string, args ...any) error {
	result, err := a.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating artwork: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return auction.ErrArtworkNotFound
	}
	return nil
}

// ArtworkRepo implements store.ArtworkRepository.
type ArtworkRepo struct {
	artworkQueries
	db    *sqlx.DB
	clock clock.Clock
}

func (r *ArtworkRepo) Create(ctx context.Context, a *store.Artwork) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = auction.Stamp(r.clock.Now())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO artworks (id, artist_id, title, approved, sold, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.ArtistID, a.Title, a.Approved, a.Sold, toMicros(a.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("artwork %s already exists: %w", a.ID, auction.ErrConflict)
		}
		return fmt.Errorf("inserting artwork: %w", err)
	}
	return nil
}

func (r *ArtworkRepo) GetByID(ctx context.Context, id string) (*store.Artwork, error) {
	return r.get(ctx, id)
}

func (r *ArtworkRepo) SetApproved(ctx context.Context, id string, approved bool) error {
	return r.set(ctx, `UPDATE artworks SET approved = ? WHERE id = ?`, approved, id)
}

// UserRepo implements store.UserRepository.
type UserRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

func (r *UserRepo) Create(ctx context.Context, u *store.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = auction.Stamp(r.clock.Now())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, created_at) VALUES (?, ?, ?)`,
		u.ID, u.Name, toMicros(u.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s already exists: %w", u.ID, auction.ErrConflict)
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (r *UserRepo) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(1) FROM users WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("checking user: %w", err)
	}
	return n > 0, nil
}

type bidRow struct {
	ID          string `db:"id"`
	AuctionID   string `db:"auction_id"`
	BidderID    string `db:"bidder_id"`
	Amount      string `db:"amount"`
	SubmittedAt int64  `db:"submitted_at"`
}

func selectBids(ctx context.Context, q sqlx.QueryerContext, where string, args ...any) ([]auction.Bid, error) {
	var rows []bidRow
	err := sqlx.SelectContext(ctx, q, &rows,
		`SELECT id, auction_id, bidder_id, amount, submitted_at FROM bids `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting bids: %w", err)
	}
	out := make([]auction.Bid, 0, len(rows))
	for _, r := range rows {
		amount, err := decimal.NewFromString(r.Amount)
		if err != nil {
			return nil, fmt.Errorf("decoding bid %s: %w", r.ID, err)
		}
		out = append(out, auction.Bid{
			ID:          r.ID,
			AuctionID:   r.AuctionID,
			BidderID:    r.BidderID,
			Amount:      amount,
			SubmittedAt: fromMicros(r.SubmittedAt),
		})
	}
	return out, nil
}

// BidRepo implements store.BidRepository.
type BidRepo struct {
	db *sqlx.DB
}

func (r *BidRepo) ListByAuction(ctx context.Context, auctionID string) ([]auction.Bid, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(1) FROM auctions WHERE id = ?`, auctionID); err != nil {
		return nil, fmt.Errorf("checking auction: %w", err)
	}
	if n == 0 {
		return nil, auction.ErrAuctionNotFound
	}
	return selectBids(ctx, r.db, `WHERE auction_id = ? ORDER BY submitted_at ASC`, auctionID)
}

func (r *BidRepo) ListByBidder(ctx context.Context, bidderID string) ([]auction.Bid, error) {
	return selectBids(ctx, r.db, `WHERE bidder_id = ? ORDER BY submitted_at DESC`, bidderID)
}

type paymentRow struct {
	ID        string `db:"id"`
	AuctionID string `db:"auction_id"`
	PayerID   string `db:"payer_id"`
	Amount    string `db:"amount"`
	Method    string `db:"method"`
	Status    string `db:"status"`
	CreatedAt int64  `db:"created_at"`
}

func getPayment(ctx context.Context, q sqlx.QueryerContext, auctionID string) (*auction.Payment, error) {
	var row paymentRow
	err := sqlx.GetContext(ctx, q, &row,
		`SELECT id, auction_id, payer_id, amount, method, status, created_at FROM payments WHERE auction_id = ?`,
		auctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auction.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting payment: %w", err)
	}
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return nil, fmt.Errorf("decoding payment %s: %w", row.ID, err)
	}
	return &auction.Payment{
		ID:        row.ID,
		AuctionID: row.AuctionID,
		PayerID:   row.PayerID,
		Amount:    amount,
		Method:    row.Method,
		Status:    auction.PaymentStatus(row.Status),
		CreatedAt: fromMicros(row.CreatedAt),
	}, nil
}

// PaymentRepo implements store.PaymentRepository.
type PaymentRepo struct {
	db *sqlx.DB
}

func (r *PaymentRepo) GetByAuction(ctx context.Context, auctionID string) (*auction.Payment, error) {
	return getPayment(ctx, r.db, auctionID)
}

type eventRow struct {
	ID          string `db:"id"`
	AggregateID string `db:"aggregate_id"`
	Type        string `db:"type"`
	Data        []byte `db:"data"`
	Version     int    `db:"version"`
	CreatedAt   int64  `db:"created_at"`
}

func appendEvents(ctx context.Context, tx *sqlx.Tx, events []event.Event) error {
	for _, e := range events {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (id, aggregate_id, type, data, version, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, e.AggregateID, string(e.Type), []byte(e.Data), e.Version, toMicros(e.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting event (aggregate=%s, version=%d): %w", e.AggregateID, e.Version, err)
		}
	}
	return nil
}

// EventStore implements event.Store.
type EventStore struct {
	db *sqlx.DB
}

func (s *EventStore) load(ctx context.Context, where string, arg any) ([]event.Event, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, aggregate_id, type, data, version, created_at FROM events `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	out := make([]event.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, event.Event{
			ID:          r.ID,
			AggregateID: r.AggregateID,
			Type:        event.Type(r.Type),
			Data:        r.Data,
			Version:     r.Version,
			CreatedAt:   fromMicros(r.CreatedAt),
		})
	}
	return out, nil
}

func (s *EventStore) Load(ctx context.Context, aggregateID string) ([]event.Event, error) {
	return s.load(ctx, `WHERE aggregate_id = ? ORDER BY version ASC`, aggregateID)
}

func (s *EventStore) LoadByType(ctx context.Context, eventType event.Type) ([]event.Event, error) {
	return s.load(ctx, `WHERE type = ? ORDER BY created_at ASC, version ASC`, string(eventType))
}
