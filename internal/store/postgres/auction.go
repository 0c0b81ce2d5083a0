package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/art-auction/internal/auction"
	"github.com/jensholdgaard/art-auction/internal/event"
	"github.com/jensholdgaard/art-auction/internal/store"
)

const auctionColumns = `id, artwork_id, start_time, end_time, starting_bid, status,
	highest_bid, highest_bidder_id, bid_count, last_bid_at, version, created_at, updated_at`

type auctionRow struct {
	ID              string              `db:"id"`
	ArtworkID       string              `db:"artwork_id"`
	StartTime       time.Time           `db:"start_time"`
	EndTime         time.Time           `db:"end_time"`
	StartingBid     decimal.Decimal     `db:"starting_bid"`
	Status          auction.Status      `db:"status"`
	HighestBid      decimal.NullDecimal `db:"highest_bid"`
	HighestBidderID sql.NullString      `db:"highest_bidder_id"`
	BidCount        int                 `db:"bid_count"`
	LastBidAt       sql.NullTime        `db:"last_bid_at"`
	Version         int                 `db:"version"`
	CreatedAt       time.Time           `db:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at"`
}

func (r auctionRow) toAuction() auction.Auction {
	a := auction.Auction{
		ID:              r.ID,
		ArtworkID:       r.ArtworkID,
		StartTime:       r.StartTime.UTC(),
		EndTime:         r.EndTime.UTC(),
		StartingBid:     r.StartingBid,
		Status:          r.Status,
		HighestBid:      r.HighestBid,
		HighestBidderID: r.HighestBidderID.String,
		BidCount:        r.BidCount,
		Version:         r.Version,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
	if r.LastBidAt.Valid {
		a.LastBidAt = r.LastBidAt.Time.UTC()
	}
	return a
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// AuctionRepo implements store.AuctionRepository with sqlx.
type AuctionRepo struct {
	db *sqlx.DB
}

// NewAuctionRepo returns a new AuctionRepo.
func NewAuctionRepo(db *sqlx.DB) *AuctionRepo {
	return &AuctionRepo{db: db}
}

func (r *AuctionRepo) Create(ctx context.Context, a *auction.Auction, events ...event.Event) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	a.Version = store.StampVersions(0, events)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO auctions (`+auctionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.ArtworkID, a.StartTime, a.EndTime, a.StartingBid, a.Status,
		a.HighestBid, nullString(a.HighestBidderID), a.BidCount, nullTime(a.LastBidAt),
		a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("auction %s already exists: %w", a.ID, auction.ErrConflict)
		}
		return fmt.Errorf("inserting auction: %w", err)
	}
	if err := appendEvents(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *AuctionRepo) GetByID(ctx context.Context, id string) (*auction.Auction, error) {
	var row auctionRow
	err := r.db.GetContext(ctx, &row, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auction.ErrAuctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting auction: %w", err)
	}
	a := row.toAuction()
	return &a, nil
}

func (r *AuctionRepo) List(ctx context.Context, f auction.Filter) ([]auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE 1 = 1`
	var args []any
	if f.Status != 0 {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.ArtworkID != "" {
		args = append(args, f.ArtworkID)
		query += fmt.Sprintf(" AND artwork_id = $%d", len(args))
	}
	query += " ORDER BY created_at ASC, id ASC"

	var rows []auctionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing auctions: %w", err)
	}
	out := make([]auction.Auction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toAuction())
	}
	return out, nil
}

func (r *AuctionRepo) ListDue(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM auctions
		 WHERE (status = 'pending' AND start_time <= $1)
		    OR (status = 'active' AND end_time <= $1)
		 ORDER BY end_time ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("listing due auctions: %w", err)
	}
	return ids, nil
}

func (r *AuctionRepo) Update(ctx context.Context, id string, fn func(tx store.AuctionTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row auctionRow
	err = tx.GetContext(ctx, &row, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return auction.ErrAuctionNotFound
	}
	if err != nil {
		return fmt.Errorf("locking auction: %w", err)
	}

	a := row.toAuction()
	atx := &auctionTx{tx: tx, a: &a, base: a.Version}
	if err := fn(atx); err != nil {
		return err
	}
	if !atx.dirty() {
		return nil
	}
	if err := atx.save(ctx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing auction %s: %w", id, err)
	}
	return nil
}

func (r *AuctionRepo) Purge(ctx context.Context, id string) error {
	// bids, payments and events cascade.
	result, err := r.db.ExecContext(ctx, `DELETE FROM auctions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("purging auction: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return auction.ErrAuctionNotFound
	}
	return nil
}

// auctionTx writes through the open transaction as the callback runs; the
// auction row itself is saved once at the end.
type auctionTx struct {
	tx     *sqlx.Tx
	a      *auction.Auction
	base   int
	writes int
	events []event.Event
}

func (t *auctionTx) Auction() *auction.Auction { return t.a }

func (t *auctionTx) Bids(ctx context.Context) ([]auction.Bid, error) {
	return selectBids(ctx, t.tx, `WHERE auction_id = $1 ORDER BY submitted_at ASC`, t.a.ID)
}

func (t *auctionTx) AppendBid(ctx context.Context, b auction.Bid) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO bids (id, auction_id, bidder_id, amount, submitted_at) VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.AuctionID, b.BidderID, b.Amount, b.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting bid: %w", err)
	}
	t.writes++
	return nil
}

func (t *auctionTx) Payment(ctx context.Context) (*auction.Payment, error) {
	return getPayment(ctx, t.tx, t.a.ID)
}

func (t *auctionTx) InsertPayment(ctx context.Context, p auction.Payment) error {
	result, err := t.tx.ExecContext(ctx,
		`INSERT INTO payments (id, auction_id, payer_id, amount, method, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (auction_id) DO NOTHING`,
		p.ID, p.AuctionID, p.PayerID, p.Amount, p.Method, string(p.Status), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting payment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return auction.ErrAlreadyPaid
	}
	t.writes++
	return nil
}

func (t *auctionTx) Artworks() auction.ArtworkModeration {
	return &txArtworks{artworkQueries: artworkQueries{q: t.tx}, t: t}
}

func (t *auctionTx) Record(events ...event.Event) {
	t.events = append(t.events, events...)
}

func (t *auctionTx) dirty() bool {
	return t.writes > 0 || len(t.events) > 0
}

func (t *auctionTx) save(ctx context.Context) error {
	a := t.a
	next := store.StampVersions(t.base, t.events)
	result, err := t.tx.ExecContext(ctx,
		`UPDATE auctions SET end_time = $1, status = $2, highest_bid = $3, highest_bidder_id = $4,
		        bid_count = $5, last_bid_at = $6, version = $7, updated_at = $8
		 WHERE id = $9 AND version = $10`,
		a.EndTime, a.Status, a.HighestBid, nullString(a.HighestBidderID),
		a.BidCount, nullTime(a.LastBidAt), next, a.UpdatedAt,
		a.ID, t.base,
	)
	if err != nil {
		return fmt.Errorf("saving auction: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return auction.ErrConcurrentUpdate
	}
	if err := appendEvents(ctx, t.tx, t.events); err != nil {
		return err
	}
	a.Version = next
	return nil
}

// txArtworks counts MarkSold as a write of the enclosing transaction.
type txArtworks struct {
	artworkQueries
	t *auctionTx
}

func (a *txArtworks) MarkSold(ctx context.Context, id string) error {
	if err := a.artworkQueries.MarkSold(ctx, id); err != nil {
		return err
	}
	a.t.writes++
	return nil
}
