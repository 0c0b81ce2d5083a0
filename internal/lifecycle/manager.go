package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/art-auction/internal/auction"
	"github.com/jensholdgaard/art-auction/internal/clock"
	"github.com/jensholdgaard/art-auction/internal/event"
	"github.com/jensholdgaard/art-auction/internal/store"
)

// CreateParams describes a new auction.
type CreateParams struct {
	ArtworkID   string
	StartTime   time.Time
	EndTime     time.Time
	StartingBid decimal.Decimal
}

// Manager creates auctions and drives them through their lifecycle.
type Manager struct {
	auctions store.AuctionRepository
	artworks auction.ArtworkModeration
	events   event.Store
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
}

// NewManager creates a new lifecycle Manager.
func NewManager(auctions store.AuctionRepository, artworks auction.ArtworkModeration, events event.Store, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Manager {
	return &Manager{
		auctions: auctions,
		artworks: artworks,
		events:   events,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/art-auction/internal/lifecycle"),
		clock:    clk,
	}
}

// Create validates p and stores a pending auction. If the artwork is already
// approved and the start time has passed, the auction is activated before it
// is stored.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*auction.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Create",
		trace.WithAttributes(attribute.String("artwork.id", p.ArtworkID)),
	)
	defer span.End()

	now := m.clock.Now()
	a, err := auction.New(uuid.NewString(), p.ArtworkID, p.StartTime, p.EndTime, p.StartingBid, now)
	if err != nil {
		return nil, err
	}
	if !a.EndTime.After(now) {
		return nil, fmt.Errorf("end time is in the past: %w", auction.ErrInvalidTimeRange)
	}

	approved, err := m.artworks.IsApproved(ctx, a.ArtworkID)
	if err != nil {
		return nil, err
	}
	sold, err := m.artworks.IsSold(ctx, a.ArtworkID)
	if err != nil {
		return nil, err
	}
	if sold {
		return nil, auction.ErrArtworkUnavailable
	}

	created, err := event.New(a.ID, event.AuctionCreated, event.AuctionCreatedData{
		ArtworkID:   a.ArtworkID,
		StartTime:   a.StartTime,
		EndTime:     a.EndTime,
		StartingBid: a.StartingBid,
	}, now)
	if err != nil {
		return nil, err
	}
	events := []event.Event{created}
	if a.Activate(now, approved) == auction.TransitionActivated {
		activated, err := event.New(a.ID, event.AuctionActivated, struct{}{}, now)
		if err != nil {
			return nil, err
		}
		events = append(events, activated)
	}

	if err := m.auctions.Create(ctx, a, events...); err != nil {
		return nil, fmt.Errorf("creating auction: %w", err)
	}

	m.logger.InfoContext(ctx, "auction created",
		slog.String("auction_id", a.ID),
		slog.String("artwork_id", a.ArtworkID),
		slog.String("status", a.Status.String()),
	)
	return a, nil
}

// Get returns the stored auction. It never applies due transitions.
func (m *Manager) Get(ctx context.Context, id string) (*auction.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Get",
		trace.WithAttributes(attribute.String("auction.id", id)),
	)
	defer span.End()

	return m.auctions.GetByID(ctx, id)
}

// List returns stored auctions matching f.
func (m *Manager) List(ctx context.Context, f auction.Filter) ([]auction.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.List")
	defer span.End()

	return m.auctions.List(ctx, f)
}

// Extend moves the end time of a pending or active auction back by hours.
// Only the artwork's artist may extend. Serializes on the auction.
func (m *Manager) Extend(ctx context.Context, id, requesterID string, hours int) (*auction.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Extend",
		trace.WithAttributes(
			attribute.String("auction.id", id),
			attribute.String("requester.id", requesterID),
			attribute.Int("hours", hours),
		),
	)
	defer span.End()

	var (
		out      auction.Auction
		rejected error
	)
	err := m.auctions.Update(ctx, id, func(tx store.AuctionTx) error {
		now := m.clock.Now()
		if _, err := ApplyDue(ctx, tx, now); err != nil {
			return err
		}
		a := tx.Auction()
		artistID, err := tx.Artworks().ArtistID(ctx, a.ArtworkID)
		if err != nil {
			return err
		}
		if err := a.Extend(now, hours, artistID == requesterID); err != nil {
			rejected = err
			return nil
		}
		out = *a
		return store.Record(tx, event.AuctionExtended, event.AuctionExtendedData{
			RequesterID: requesterID,
			Hours:       hours,
			EndTime:     a.EndTime,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		return nil, rejected
	}

	m.logger.InfoContext(ctx, "auction extended",
		slog.String("auction_id", id),
		slog.Int("hours", hours),
		slog.Time("end_time", out.EndTime),
	)
	return &out, nil
}

// Close withdraws a pending or active auction. No winner is determined.
func (m *Manager) Close(ctx context.Context, id string) (*auction.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Close",
		trace.WithAttributes(attribute.String("auction.id", id)),
	)
	defer span.End()

	var out auction.Auction
	err := m.auctions.Update(ctx, id, func(tx store.AuctionTx) error {
		now := m.clock.Now()
		a := tx.Auction()
		if err := a.CloseAdministratively(now); err != nil {
			return err
		}
		out = *a
		return store.Record(tx, event.AuctionClosed, event.AuctionClosedData{Reason: event.CloseAdmin}, now)
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "auction closed by admin", slog.String("auction_id", id))
	return &out, nil
}

// Purge deletes the auction with its bids, payment and history.
func (m *Manager) Purge(ctx context.Context, id string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Purge",
		trace.WithAttributes(attribute.String("auction.id", id)),
	)
	defer span.End()

	if err := m.auctions.Purge(ctx, id); err != nil {
		return err
	}
	m.logger.WarnContext(ctx, "auction purged", slog.String("auction_id", id))
	return nil
}

// Advance applies whatever transition is due for one auction and reports it.
// Calling it again on an unchanged auction returns TransitionNone.
func (m *Manager) Advance(ctx context.Context, id string) (auction.Transition, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Advance",
		trace.WithAttributes(attribute.String("auction.id", id)),
	)
	defer span.End()

	var taken auction.Transition
	err := m.auctions.Update(ctx, id, func(tx store.AuctionTx) error {
		var err error
		taken, err = ApplyDue(ctx, tx, m.clock.Now())
		return err
	})
	if err != nil {
		return auction.TransitionNone, err
	}

	span.SetAttributes(attribute.String("transition", taken.String()))
	if taken != auction.TransitionNone {
		m.logger.InfoContext(ctx, "auction advanced",
			slog.String("auction_id", id),
			slog.String("transition", taken.String()),
		)
	}
	return taken, nil
}

// History returns the audit trail of one auction, oldest first.
func (m *Manager) History(ctx context.Context, id string) ([]event.Event, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.History",
		trace.WithAttributes(attribute.String("auction.id", id)),
	)
	defer span.End()

	if _, err := m.auctions.GetByID(ctx, id); err != nil {
		return nil, err
	}
	events, err := m.events.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	return events, nil
}

// Events returns all recorded events of one type across auctions.
func (m *Manager) Events(ctx context.Context, typ event.Type) ([]event.Event, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Events",
		trace.WithAttributes(attribute.String("event.type", string(typ))),
	)
	defer span.End()

	events, err := m.events.LoadByType(ctx, typ)
	if err != nil {
		return nil, fmt.Errorf("loading %s events: %w", typ, err)
	}
	return events, nil
}
