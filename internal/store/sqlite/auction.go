package sqlite

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
	ID              string         `db:"id"`
	ArtworkID       string         `db:"artwork_id"`
	StartTime       int64          `db:"start_time"`
	EndTime         int64          `db:"end_time"`
	StartingBid     string         `db:"starting_bid"`
	Status          auction.Status `db:"status"`
	HighestBid      sql.NullString `db:"highest_bid"`
	HighestBidderID sql.NullString `db:"highest_bidder_id"`
	BidCount        int            `db:"bid_count"`
	LastBidAt       sql.NullInt64  `db:"last_bid_at"`
	Version         int            `db:"version"`
	CreatedAt       int64          `db:"created_at"`
	UpdatedAt       int64          `db:"updated_at"`
}

func (r auctionRow) toAuction() (auction.Auction, error) {
	starting, err := decimal.NewFromString(r.StartingBid)
	if err != nil {
		return auction.Auction{}, fmt.Errorf("decoding starting bid of %s: %w", r.ID, err)
	}
	a := auction.Auction{
		ID:              r.ID,
		ArtworkID:       r.ArtworkID,
		StartTime:       fromMicros(r.StartTime),
		EndTime:         fromMicros(r.EndTime),
		StartingBid:     starting,
		Status:          r.Status,
		HighestBidderID: r.HighestBidderID.String,
		BidCount:        r.BidCount,
		Version:         r.Version,
		CreatedAt:       fromMicros(r.CreatedAt),
		UpdatedAt:       fromMicros(r.UpdatedAt),
	}
	if r.HighestBid.Valid {
		highest, err := decimal.NewFromString(r.HighestBid.String)
		if err != nil {
			return auction.Auction{}, fmt.Errorf("decoding highest bid of %s: %w", r.ID, err)
		}
		a.HighestBid = decimal.NewNullDecimal(highest)
	}
	if r.LastBidAt.Valid {
		a.LastBidAt = fromMicros(r.LastBidAt.Int64)
	}
	return a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func nullMicros(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMicros(t), Valid: true}
}

func getAuction(ctx context.Context, q sqlx.QueryerContext, id string) (*auction.Auction, error) {
	var row auctionRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+auctionColumns+` FROM auctions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auction.ErrAuctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting auction: %w", err)
	}
	a, err := row.toAuction()
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AuctionRepo implements store.AuctionRepository.
type AuctionRepo struct {
	db *sqlx.DB
}

func (r *AuctionRepo) Create(ctx context.Context, a *auction.Auction, events ...event.Event) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	a.Version = store.StampVersions(0, events)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO auctions (`+auctionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ArtworkID, toMicros(a.StartTime), toMicros(a.EndTime), a.StartingBid.String(), a.Status,
		nullDecimal(a.HighestBid), nullString(a.HighestBidderID), a.BidCount, nullMicros(a.LastBidAt),
		a.Version, toMicros(a.CreatedAt), toMicros(a.UpdatedAt),
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
	return getAuction(ctx, r.db, id)
}

func (r *AuctionRepo) List(ctx context.Context, f auction.Filter) ([]auction.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE 1 = 1`
	var args []any
	if f.Status != 0 {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.ArtworkID != "" {
		query += ` AND artwork_id = ?`
		args = append(args, f.ArtworkID)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	var rows []auctionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing auctions: %w", err)
	}
	out := make([]auction.Auction, 0, len(rows))
	for _, row := range rows {
		a, err := row.toAuction()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *AuctionRepo) ListDue(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	at := toMicros(now)
	err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM auctions
		 WHERE (status = 'pending' AND start_time <= ?)
		    OR (status = 'active' AND end_time <= ?)
		 ORDER BY end_time ASC`, at, at)
	if err != nil {
		return nil, fmt.Errorf("listing due auctions: %w", err)
	}
	return ids, nil
}

func (r *AuctionRepo) Update(ctx context.Context, id string, fn func(tx store.AuctionTx) error) error {
	// BEGIN IMMEDIATE takes the write lock up front, so the read below is
	// already serialized against other writers.
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	a, err := getAuction(ctx, tx, id)
	if err != nil {
		return err
	}

	atx := &auctionTx{tx: tx, a: a, base: a.Version}
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
	result, err := r.db.ExecContext(ctx, `DELETE FROM auctions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("purging auction: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return auction.ErrAuctionNotFound
	}
	return nil
}

type auctionTx struct {
	tx     *sqlx.Tx
	a      *auction.Auction
	base   int
	writes int
	events []event.Event
}

func (t *auctionTx) Auction() *auction.Auction { return t.a }

func (t *auctionTx) Bids(ctx context.Context) ([]auction.Bid, error) {
	return selectBids(ctx, t.tx, `WHERE auction_id = ? ORDER BY submitted_at ASC`, t.a.ID)
}

func (t *auctionTx) AppendBid(ctx context.Context, b auction.Bid) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO bids (id, auction_id, bidder_id, amount, submitted_at) VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.AuctionID, b.BidderID, b.Amount.String(), toMicros(b.SubmittedAt),
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
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (auction_id) DO NOTHING`,
		p.ID, p.AuctionID, p.PayerID, p.Amount.String(), p.Method, string(p.Status), toMicros(p.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return auction.ErrAlreadyPaid
		}
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
		`UPDATE auctions SET end_time = ?, status = ?, highest_bid = ?, highest_bidder_id = ?,
		        bid_count = ?, last_bid_at = ?, version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		toMicros(a.EndTime), a.Status, nullDecimal(a.HighestBid), nullString(a.HighestBidderID),
		a.BidCount, nullMicros(a.LastBidAt), next, toMicros(a.UpdatedAt),
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
