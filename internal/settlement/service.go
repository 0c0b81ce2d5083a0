// Package settlement determines auction winners and records their payment.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/art-auction/internal/auction"
	"github.com/jensholdgaard/art-auction/internal/clock"
	"github.com/jensholdgaard/art-auction/internal/event"
	"github.com/jensholdgaard/art-auction/internal/lifecycle"
	"github.com/jensholdgaard/art-auction/internal/store"
)

const instrumentation = "github.com/jensholdgaard/art-auction/internal/settlement"

// MaxMethodLength bounds the payment method label.
const MaxMethodLength = 255

// Service is the source of truth for auction outcomes.
type Service struct {
	auctions store.AuctionRepository
	bids     store.BidRepository
	payments store.PaymentRepository
	users    auction.UserDirectory
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock

	authorized metric.Int64Counter
}

// NewService returns a settlement Service.
func NewService(auctions store.AuctionRepository, bids store.BidRepository, payments store.PaymentRepository, users auction.UserDirectory, logger *slog.Logger, tp trace.TracerProvider, mp metric.MeterProvider, clk clock.Clock) (*Service, error) {
	authorized, err := mp.Meter(instrumentation).Int64Counter("auction.payments.authorized",
		metric.WithDescription("Payments recorded for won auctions."))
	if err != nil {
		return nil, fmt.Errorf("creating payments counter: %w", err)
	}
	return &Service{
		auctions:   auctions,
		bids:       bids,
		payments:   payments,
		users:      users,
		logger:     logger,
		tracer:     tp.Tracer(instrumentation),
		clock:      clk,
		authorized: authorized,
	}, nil
}

// DetermineWinner returns the winning bid of an ended or closed auction. The
// boolean is false when the auction closed without bids. It only reads, so
// repeated calls give the same answer.
func (s *Service) DetermineWinner(ctx context.Context, auctionID string) (*auction.Bid, bool, error) {
	ctx, span := s.tracer.Start(ctx, "Service.DetermineWinner",
		trace.WithAttributes(attribute.String("auction.id", auctionID)),
	)
	defer span.End()

	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return nil, false, err
	}
	if !a.Status.Terminal() {
		return nil, false, auction.ErrAuctionNotSettleable
	}
	bids, err := s.bids.ListByAuction(ctx, auctionID)
	if err != nil {
		return nil, false, err
	}
	winner, ok := auction.NewLedger(bids).Highest()
	if !ok {
		return nil, false, nil
	}
	return &winner, true, nil
}

// AuthorizePayment records payment for an ended auction by its winner, closes
// the auction and marks the artwork sold, all in one unit serialized on the
// auction. An active auction whose end time has passed is ended first.
func (s *Service) AuthorizePayment(ctx context.Context, auctionID, payerID, method string) (*auction.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "Service.AuthorizePayment",
		trace.WithAttributes(
			attribute.String("auction.id", auctionID),
			attribute.String("payer.id", payerID),
		),
	)
	defer span.End()

	method = strings.TrimSpace(method)
	if method == "" {
		return nil, fmt.Errorf("payment method: %w", auction.ErrMissingField)
	}
	if len(method) > MaxMethodLength {
		return nil, fmt.Errorf("payment method longer than %d characters: %w", MaxMethodLength, auction.ErrValidation)
	}
	if _, err := s.auctions.GetByID(ctx, auctionID); err != nil {
		return nil, err
	}
	ok, err := s.users.Exists(ctx, payerID)
	if err != nil {
		return nil, fmt.Errorf("looking up payer: %w", err)
	}
	if !ok {
		return nil, auction.ErrUserNotFound
	}

	var (
		paid     auction.Payment
		rejected error
	)
	err = s.auctions.Update(ctx, auctionID, func(tx store.AuctionTx) error {
		now := s.clock.Now()
		if _, err := lifecycle.ApplyDue(ctx, tx, now); err != nil {
			return err
		}

		a := tx.Auction()
		if a.Status == auction.StatusClosed {
			_, err := tx.Payment(ctx)
			switch {
			case err == nil:
				rejected = auction.ErrAlreadyPaid
			case errors.Is(err, auction.ErrPaymentNotFound):
				rejected = auction.ErrAuctionNotSettleable
			default:
				return fmt.Errorf("loading payment: %w", err)
			}
			return nil
		}
		if a.Status != auction.StatusEnded {
			rejected = auction.ErrAuctionNotSettleable
			return nil
		}

		bids, err := tx.Bids(ctx)
		if err != nil {
			return fmt.Errorf("loading bids: %w", err)
		}
		ledger := auction.NewLedger(bids)
		if ledger.Len() == 0 {
			rejected = auction.ErrNoBids
			return nil
		}
		if !ledger.Matches(a) {
			return fmt.Errorf("recorded winner of auction %s disagrees with its bids: %w", a.ID, auction.ErrLedgerInconsistent)
		}
		if a.HighestBidderID != payerID {
			rejected = auction.ErrNotWinner
			return nil
		}

		paid = auction.Payment{
			ID:        uuid.NewString(),
			AuctionID: a.ID,
			PayerID:   payerID,
			Amount:    a.HighestBid.Decimal,
			Method:    method,
			Status:    auction.PaymentPaid,
			CreatedAt: auction.Stamp(now),
		}
		if err := tx.InsertPayment(ctx, paid); err != nil {
			return err
		}
		if err := tx.Artworks().MarkSold(ctx, a.ArtworkID); err != nil {
			return fmt.Errorf("marking artwork sold: %w", err)
		}
		if err := a.Settle(now); err != nil {
			return err
		}

		if err := store.Record(tx, event.PaymentAuthorized, event.PaymentAuthorizedData{
			PaymentID: paid.ID,
			PayerID:   payerID,
			Amount:    paid.Amount,
			Method:    method,
		}, now); err != nil {
			return err
		}
		return store.Record(tx, event.AuctionClosed, event.AuctionClosedData{Reason: event.CloseSettled}, now)
	})
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		return nil, rejected
	}

	s.authorized.Add(ctx, 1)
	s.logger.InfoContext(ctx, "payment authorized",
		slog.String("auction_id", auctionID),
		slog.String("payment_id", paid.ID),
		slog.String("payer_id", payerID),
		slog.String("amount", paid.Amount.String()),
	)
	return &paid, nil
}

// GetPayment returns the payment recorded for an auction.
func (s *Service) GetPayment(ctx context.Context, auctionID string) (*auction.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "Service.GetPayment",
		trace.WithAttributes(attribute.String("auction.id", auctionID)),
	)
	defer span.End()

	if _, err := s.auctions.GetByID(ctx, auctionID); err != nil {
		return nil, err
	}
	return s.payments.GetByAuction(ctx, auctionID)
}
