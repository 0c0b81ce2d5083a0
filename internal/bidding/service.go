// Package bidding accepts and lists bids.
package bidding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/art-auction/internal/auction"
	"github.com/jensholdgaard/art-auction/internal/clock"
	"github.com/jensholdgaard/art-auction/internal/event"
	"github.com/jensholdgaard/art-auction/internal/lifecycle"
	"github.com/jensholdgaard/art-auction/internal/store"
)

const instrumentation = "github.com/jensholdgaard/art-auction/internal/bidding"

// Service places bids against auctions.
type Service struct {
	auctions store.AuctionRepository
	bids     store.BidRepository
	users    auction.UserDirectory
	policy   auction.IncrementPolicy
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock

	accepted metric.Int64Counter
	rejected metric.Int64Counter
}

// NewService returns a bidding Service enforcing policy.
func NewService(auctions store.AuctionRepository, bids store.BidRepository, users auction.UserDirectory, policy auction.IncrementPolicy, logger *slog.Logger, tp trace.TracerProvider, mp metric.MeterProvider, clk clock.Clock) (*Service, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	meter := mp.Meter(instrumentation)
	accepted, err := meter.Int64Counter("auction.bids.accepted",
		metric.WithDescription("Bids accepted."))
	if err != nil {
		return nil, fmt.Errorf("creating accepted counter: %w", err)
	}
	rejected, err := meter.Int64Counter("auction.bids.rejected",
		metric.WithDescription("Bids rejected, by reason."))
	if err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}
	return &Service{
		auctions: auctions,
		bids:     bids,
		users:    users,
		policy:   policy,
		logger:   logger,
		tracer:   tp.Tracer(instrumentation),
		clock:    clk,
		accepted: accepted,
		rejected: rejected,
	}, nil
}

// PlaceBid records a bid of amount by bidderID. Serializes on the auction.
//
// Due lifecycle transitions are applied first, under the same lock, so a bid
// can never reach an auction whose end time has passed. A transition applied
// this way is kept even when the bid itself is rejected.
func (s *Service) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*auction.Bid, error) {
	ctx, span := s.tracer.Start(ctx, "Service.PlaceBid",
		trace.WithAttributes(
			attribute.String("auction.id", auctionID),
			attribute.String("bidder.id", bidderID),
			attribute.String("amount", amount.String()),
		),
	)
	defer span.End()

	b, err := s.placeBid(ctx, auctionID, bidderID, amount)
	if err != nil {
		reason := auction.Code(err)
		s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
		span.SetStatus(codes.Error, reason)
		s.logger.DebugContext(ctx, "bid rejected",
			slog.String("auction_id", auctionID),
			slog.String("bidder_id", bidderID),
			slog.String("amount", amount.String()),
			slog.String("reason", reason),
		)
		return nil, err
	}

	s.accepted.Add(ctx, 1)
	s.logger.InfoContext(ctx, "bid placed",
		slog.String("auction_id", auctionID),
		slog.String("bid_id", b.ID),
		slog.String("bidder_id", bidderID),
		slog.String("amount", amount.String()),
	)
	return b, nil
}

func (s *Service) placeBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*auction.Bid, error) {
	if _, err := s.auctions.GetByID(ctx, auctionID); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, auction.ErrInvalidAmount
	}
	ok, err := s.users.Exists(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("looking up bidder: %w", err)
	}
	if !ok {
		return nil, auction.ErrUserNotFound
	}

	var (
		placed   auction.Bid
		rejected error
	)
	err = s.auctions.Update(ctx, auctionID, func(tx store.AuctionTx) error {
		now := s.clock.Now()
		if _, err := lifecycle.ApplyDue(ctx, tx, now); err != nil {
			return err
		}

		a := tx.Auction()
		if !a.AcceptsBids(now) {
			rejected = auction.ErrAuctionNotActive
			return nil
		}
		sold, err := tx.Artworks().IsSold(ctx, a.ArtworkID)
		if err != nil {
			return fmt.Errorf("checking artwork: %w", err)
		}
		if sold {
			rejected = auction.ErrArtworkUnavailable
			return nil
		}
		if minimum := a.MinimumBid(s.policy); amount.LessThan(minimum) {
			rejected = &auction.BidTooLowError{Minimum: minimum}
			return nil
		}

		bids, err := tx.Bids(ctx)
		if err != nil {
			return fmt.Errorf("loading bids: %w", err)
		}
		ledger := auction.NewLedger(bids)

		placed = auction.Bid{ID: uuid.NewString(), BidderID: bidderID, Amount: amount}
		a.ApplyBid(&placed, now)
		if err := ledger.Append(placed); err != nil {
			return fmt.Errorf("appending bid to ledger: %w", err)
		}
		if !ledger.Matches(a) {
			return fmt.Errorf("highest bid of auction %s disagrees with its bids: %w", a.ID, auction.ErrLedgerInconsistent)
		}
		if err := tx.AppendBid(ctx, placed); err != nil {
			return fmt.Errorf("appending bid: %w", err)
		}
		return store.Record(tx, event.BidPlaced, event.BidPlacedData{
			BidID:    placed.ID,
			BidderID: bidderID,
			Amount:   amount,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		return nil, rejected
	}
	return &placed, nil
}

// ListBids returns an auction's bids, newest first.
func (s *Service) ListBids(ctx context.Context, auctionID string) ([]auction.Bid, error) {
	ctx, span := s.tracer.Start(ctx, "Service.ListBids",
		trace.WithAttributes(attribute.String("auction.id", auctionID)),
	)
	defer span.End()

	if _, err := s.auctions.GetByID(ctx, auctionID); err != nil {
		return nil, err
	}
	bids, err := s.bids.ListByAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return auction.NewLedger(bids).Newest(), nil
}

// ListBidderBids returns every bid a user has placed, newest first.
func (s *Service) ListBidderBids(ctx context.Context, bidderID string) ([]auction.Bid, error) {
	ctx, span := s.tracer.Start(ctx, "Service.ListBidderBids",
		trace.WithAttributes(attribute.String("bidder.id", bidderID)),
	)
	defer span.End()

	ok, err := s.users.Exists(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("looking up bidder: %w", err)
	}
	if !ok {
		return nil, auction.ErrUserNotFound
	}
	return s.bids.ListByBidder(ctx, bidderID)
}
