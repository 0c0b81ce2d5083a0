package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/art-auction/internal/auction"
	"github.com/jensholdgaard/art-auction/internal/clock"
	"github.com/jensholdgaard/art-auction/internal/store"
)

// artworkQueries answers moderation reads against either the pool or an open
// transaction.
type artworkQueries struct {
	q sqlx.ExtContext
}

func (a artworkQueries) get(ctx context.Context, id string) (*store.Artwork, error) {
	var art store.Artwork
	err := sqlx.GetContext(ctx, a.q, &art,
		`SELECT id, artist_id, title, approved, sold, created_at FROM artworks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auction.ErrArtworkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting artwork: %w", err)
	}
	art.CreatedAt = art.CreatedAt.UTC()
	return &art, nil
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
	return a.set(ctx, id, `UPDATE artworks SET sold = TRUE WHERE id = $1`)
}

func (a artworkQueries) set(ctx context.Context, id, query string, args ...any) error {
	result, err := a.q.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("updating artwork: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return auction.ErrArtworkNotFound
	}
	return nil
}

// ArtworkRepo implements store.ArtworkRepository with sqlx.
type ArtworkRepo struct {
	artworkQueries
	db    *sqlx.DB
	clock clock.Clock
}

// NewArtworkRepo returns a new ArtworkRepo.
func NewArtworkRepo(db *sqlx.DB, clk clock.Clock) *ArtworkRepo {
	return &ArtworkRepo{artworkQueries: artworkQueries{q: db}, db: db, clock: clk}
}

func (r *ArtworkRepo) Create(ctx context.Context, a *store.Artwork) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = auction.Stamp(r.clock.Now())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO artworks (id, artist_id, title, approved, sold, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.ArtistID, a.Title, a.Approved, a.Sold, a.CreatedAt,
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
	return r.set(ctx, id, `UPDATE artworks SET approved = $2 WHERE id = $1`, approved)
}

// UserRepo implements store.UserRepository with sqlx.
type UserRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewUserRepo returns a new UserRepo.
func NewUserRepo(db *sqlx.DB, clk clock.Clock) *UserRepo {
	return &UserRepo{db: db, clock: clk}
}

func (r *UserRepo) Create(ctx context.Context, u *store.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = auction.Stamp(r.clock.Now())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, created_at) VALUES ($1, $2, $3)`,
		u.ID, u.Name, u.CreatedAt,
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
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id)
	if err != nil {
		return false, fmt.Errorf("checking user: %w", err)
	}
	return exists, nil
}

type bidRow struct {
	ID          string          `db:"id"`
	AuctionID   string          `db:"auction_id"`
	BidderID    string          `db:"bidder_id"`
	Amount      decimal.Decimal `db:"amount"`
	SubmittedAt time.Time       `db:"submitted_at"`
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
		out = append(out, auction.Bid{
			ID:          r.ID,
			AuctionID:   r.AuctionID,
			BidderID:    r.BidderID,
			Amount:      r.Amount,
			SubmittedAt: r.SubmittedAt.UTC(),
		})
	}
	return out, nil
}

// BidRepo implements store.BidRepository with sqlx.
type BidRepo struct {
	db *sqlx.DB
}

// NewBidRepo returns a new BidRepo.
func NewBidRepo(db *sqlx.DB) *BidRepo {
	return &BidRepo{db: db}
}

func (r *BidRepo) ListByAuction(ctx context.Context, auctionID string) ([]auction.Bid, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM auctions WHERE id = $1)`, auctionID); err != nil {
		return nil, fmt.Errorf("checking auction: %w", err)
	}
	if !exists {
		return nil, auction.ErrAuctionNotFound
	}
	return selectBids(ctx, r.db, `WHERE auction_id = $1 ORDER BY submitted_at ASC`, auctionID)
}

func (r *BidRepo) ListByBidder(ctx context.Context, bidderID string) ([]auction.Bid, error) {
	return selectBids(ctx, r.db, `WHERE bidder_id = $1 ORDER BY submitted_at DESC`, bidderID)
}

type paymentRow struct {
	ID        string          `db:"id"`
	AuctionID string          `db:"auction_id"`
	PayerID   string          `db:"payer_id"`
	Amount    decimal.Decimal `db:"amount"`
	Method    string          `db:"method"`
	Status    string          `db:"status"`
	CreatedAt time.Time       `db:"created_at"`
}

func getPayment(ctx context.Context, q sqlx.QueryerContext, auctionID string) (*auction.Payment, error) {
	var row paymentRow
	err := sqlx.GetContext(ctx, q, &row,
		`SELECT id, auction_id, payer_id, amount, method, status, created_at FROM payments WHERE auction_id = $1`,
		auctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auction.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting payment: %w", err)
	}
	return &auction.Payment{
		ID:        row.ID,
		AuctionID: row.AuctionID,
		PayerID:   row.PayerID,
		Amount:    row.Amount,
		Method:    row.Method,
		Status:    auction.PaymentStatus(row.Status),
		CreatedAt: row.CreatedAt.UTC(),
	}, nil
}

// PaymentRepo implements store.PaymentRepository with sqlx.
type PaymentRepo struct {
	db *sqlx.DB
}

// NewPaymentRepo returns a new PaymentRepo.
func NewPaymentRepo(db *sqlx.DB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

func (r *PaymentRepo) GetByAuction(ctx context.Context, auctionID string) (*auction.Payment, error) {
	return getPayment(ctx, r.db, auctionID)
}
