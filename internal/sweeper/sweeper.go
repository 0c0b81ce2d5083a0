// Package sweeper periodically applies due lifecycle transitions so auctions
// activate and end even when nobody touches them.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/art-auction/internal/auction"
	"github.com/jensholdgaard/art-auction/internal/clock"
)

const instrumentation = "github.com/jensholdgaard/art-auction/internal/sweeper"

// DueLister finds auctions with a pending transition.
type DueLister interface {
	ListDue(ctx context.Context, now time.Time) ([]string, error)
}

// Advancer applies the due transition of one auction.
type Advancer interface {
	Advance(ctx context.Context, id string) (auction.Transition, error)
}

// Stats summarizes one sweep.
type Stats struct {
	Due       int
	Activated int
	Ended     int
	Closed    int
	Failed    int
	// Skipped is set when another sweep was still running.
	Skipped bool
}

// Sweeper runs sweeps on a fixed interval.
type Sweeper struct {
	due      DueLister
	advancer Advancer
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer

	transitions metric.Int64Counter

	running sync.Mutex
}

// New returns a Sweeper that runs every interval.
func New(due DueLister, advancer Advancer, interval time.Duration, logger *slog.Logger, tp trace.TracerProvider, mp metric.MeterProvider, clk clock.Clock) (*Sweeper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	transitions, err := mp.Meter(instrumentation).Int64Counter("auction.sweep.transitions",
		metric.WithDescription("Lifecycle transitions applied by the sweeper."))
	if err != nil {
		return nil, fmt.Errorf("creating transitions counter: %w", err)
	}
	return &Sweeper{
		due:         due,
		advancer:    advancer,
		interval:    interval,
		clock:       clk,
		logger:      logger,
		tracer:      tp.Tracer(instrumentation),
		transitions: transitions,
	}, nil
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.InfoContext(ctx, "sweeper started", slog.Duration("interval", s.interval))
	defer s.logger.InfoContext(ctx, "sweeper stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "sweep failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep advances every due auction once. If a previous sweep in this process
// is still running it returns immediately with Stats.Skipped set. A failure
// on one auction is logged and does not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) (Stats, error) {
	if !s.running.TryLock() {
		s.logger.DebugContext(ctx, "previous sweep still running, skipping")
		return Stats{Skipped: true}, nil
	}
	defer s.running.Unlock()

	ctx, span := s.tracer.Start(ctx, "Sweeper.Sweep")
	defer span.End()

	ids, err := s.due.ListDue(ctx, s.clock.Now())
	if err != nil {
		return Stats{}, fmt.Errorf("listing due auctions: %w", err)
	}

	stats := Stats{Due: len(ids)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		taken, err := s.advancer.Advance(ctx, id)
		if err != nil {
			if errors.Is(err, auction.ErrAuctionNotFound) {
				continue
			}
			stats.Failed++
			s.logger.WarnContext(ctx, "advancing auction failed",
				slog.String("auction_id", id),
				slog.Any("error", err),
			)
			continue
		}
		switch taken {
		case auction.TransitionActivated:
			stats.Activated++
		case auction.TransitionEnded:
			stats.Ended++
		case auction.TransitionClosed:
			stats.Closed++
		default:
			continue
		}
		s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("transition", taken.String())))
	}

	span.SetAttributes(
		attribute.Int("due", stats.Due),
		attribute.Int("failed", stats.Failed),
	)
	if stats.Due > 0 {
		s.logger.InfoContext(ctx, "sweep complete",
			slog.Int("due", stats.Due),
			slog.Int("activated", stats.Activated),
			slog.Int("ended", stats.Ended),
			slog.Int("closed", stats.Closed),
			slog.Int("failed", stats.Failed),
		)
	}
	return stats, nil
}
