package bidding_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/art-auction/internal/auction"
	"github.com/jensholdgaard/art-auction/internal/bidding"
	"github.com/jensholdgaard/art-auction/internal/clock"
	"github.com/jensholdgaard/art-auction/internal/event"
	"github.com/jensholdgaard/art-auction/internal/lifecycle"
	"github.com/jensholdgaard/art-auction/internal/store"
	"github.com/jensholdgaard/art-auction/internal/store/memory"
	"github.com/jensholdgaard/art-auction/internal/store/sqlite"
	"github.com/jensholdgaard/art-auction/internal/store/storetest"
)

var base = storetest.Base

type fixture struct {
	repos *store.Repositories
	clock *clock.Fake
	mgr   *lifecycle.Manager
	svc   *bidding.Service
}

type opener func(t *testing.T, clk clock.Clock) *store.Repositories

func openMemory(_ *testing.T, clk clock.Clock) *store.Repositories {
	return memory.New(clk).Repositories()
}

var drivers = map[string]opener{
	"memory": openMemory,
	"sqlite": func(t *testing.T, clk clock.Clock) *store.Repositories {
		db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "auction.db"))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		return sqlite.NewRepositories(db, clk)
	},
}

func newFixture(t *testing.T, mp metric.MeterProvider) *fixture {
	t.Helper()
	return newDriverFixture(t, openMemory, auction.DefaultPolicy(), mp)
}

func newDriverFixture(t *testing.T, open opener, policy auction.IncrementPolicy, mp metric.MeterProvider) *fixture {
	t.Helper()
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	clk := clock.NewFake(base)
	repos := open(t, clk)
	tp := noop.NewTracerProvider()

	svc, err := bidding.NewService(repos.Auctions, repos.Bids, repos.Users, policy,
		slog.Default(), tp, mp, clk)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return &fixture{
		repos: repos,
		clock: clk,
		mgr:   lifecycle.NewManager(repos.Auctions, repos.Artworks, repos.Events, slog.Default(), tp, clk),
		svc:   svc,
	}
}

// open creates an approved artwork and an auction that is active from base
// for one day.
func (f *fixture) open(t *testing.T) *auction.Auction {
	t.Helper()
	art := storetest.SeedArtwork(t, f.repos, "artist-1")
	a, err := f.mgr.Create(context.Background(), lifecycle.CreateParams{
		ArtworkID:   art.ID,
		StartTime:   base,
		EndTime:     base.Add(24 * time.Hour),
		StartingBid: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return a
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPlaceBid_IncrementScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.open(t)
	alice := storetest.SeedUser(t, f.repos, "alice")
	bob := storetest.SeedUser(t, f.repos, "bob")

	if _, err := f.svc.PlaceBid(ctx, a.ID, alice, dec("110")); err != nil {
		t.Fatalf("bid 110: %v", err)
	}

	_, err := f.svc.PlaceBid(ctx, a.ID, bob, dec("115"))
	var tooLow *auction.BidTooLowError
	if !errors.As(err, &tooLow) {
		t.Fatalf("bid 115 error = %v, want BidTooLowError", err)
	}
	if !tooLow.Minimum.Equal(dec("120")) {
		t.Errorf("Minimum = %s, want 120", tooLow.Minimum)
	}
	if !errors.Is(err, auction.ErrValidation) {
		t.Errorf("bid 115 error does not wrap ErrValidation")
	}

	b, err := f.svc.PlaceBid(ctx, a.ID, bob, dec("200"))
	if err != nil {
		t.Fatalf("bid 200: %v", err)
	}
	if b.AuctionID != a.ID || b.BidderID != bob || !b.Amount.Equal(dec("200")) {
		t.Errorf("returned bid = %+v", b)
	}

	got, _ := f.repos.Auctions.GetByID(ctx, a.ID)
	if !got.HighestBid.Decimal.Equal(dec("200")) || got.HighestBidderID != bob {
		t.Errorf("highest = %s by %q, want 200 by bob", got.HighestBid.Decimal, got.HighestBidderID)
	}
	if got.BidCount != 2 {
		t.Errorf("BidCount = %d, want 2", got.BidCount)
	}
}

func TestPlaceBid_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, f *fixture) (auctionID, bidderID string)
		amount  string
		wantErr error
	}{
		{
			name: "zero amount",
			setup: func(t *testing.T, f *fixture) (string, string) {
				return f.open(t).ID, storetest.SeedUser(t, f.repos, "u")
			},
			amount:  "0",
			wantErr: auction.ErrInvalidAmount,
		},
		{
			name: "missing auction reported before amount",
			setup: func(t *testing.T, f *fixture) (string, string) {
				return "missing", "missing"
			},
			amount:  "0",
			wantErr: auction.ErrAuctionNotFound,
		},
		{
			name: "negative amount before unknown bidder",
			setup: func(t *testing.T, f *fixture) (string, string) {
				return f.open(t).ID, "ghost"
			},
			amount:  "-1",
			wantErr: auction.ErrInvalidAmount,
		},
		{
			name: "unknown auction",
			setup: func(t *testing.T, f *fixture) (string, string) {
				return "missing", storetest.SeedUser(t, f.repos, "u")
			},
			amount:  "500",
			wantErr: auction.ErrAuctionNotFound,
		},
		{
			name: "unknown bidder",
			setup: func(t *testing.T, f *fixture) (string, string) {
				return f.open(t).ID, "ghost"
			},
			amount:  "500",
			wantErr: auction.ErrUserNotFound,
		},
		{
			name: "not started",
			setup: func(t *testing.T, f *fixture) (string, string) {
				art := storetest.SeedArtwork(t, f.repos, "artist-1")
				a, err := f.mgr.Create(context.Background(), lifecycle.CreateParams{
					ArtworkID: art.ID, StartTime: base.Add(time.Hour), EndTime: base.Add(2 * time.Hour),
				})
				if err != nil {
					t.Fatal(err)
				}
				return a.ID, storetest.SeedUser(t, f.repos, "u")
			},
			amount:  "500",
			wantErr: auction.ErrAuctionNotActive,
		},
		{
			name: "past end time",
			setup: func(t *testing.T, f *fixture) (string, string) {
				id := f.open(t).ID
				f.clock.Advance(24 * time.Hour)
				return id, storetest.SeedUser(t, f.repos, "u")
			},
			amount:  "500",
			wantErr: auction.ErrAuctionNotActive,
		},
		{
			name: "artwork sold elsewhere",
			setup: func(t *testing.T, f *fixture) (string, string) {
				a := f.open(t)
				if err := f.repos.Artworks.MarkSold(context.Background(), a.ArtworkID); err != nil {
					t.Fatal(err)
				}
				return a.ID, storetest.SeedUser(t, f.repos, "u")
			},
			amount:  "500",
			wantErr: auction.ErrArtworkUnavailable,
		},
		{
			name: "below starting minimum",
			setup: func(t *testing.T, f *fixture) (string, string) {
				return f.open(t).ID, storetest.SeedUser(t, f.repos, "u")
			},
			amount:  "109.99",
			wantErr: auction.ErrBidTooLow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			auctionID, bidderID := tt.setup(t, f)
			b, err := f.svc.PlaceBid(context.Background(), auctionID, bidderID, dec(tt.amount))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("PlaceBid() error = %v, want %v", err, tt.wantErr)
			}
			if b != nil {
				t.Errorf("PlaceBid() returned bid %+v on error", b)
			}
		})
	}
}

func TestPlaceBid_PastEndCommitsTransition(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.open(t)
	alice := storetest.SeedUser(t, f.repos, "alice")
	if _, err := f.svc.PlaceBid(ctx, a.ID, alice, dec("150")); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(24 * time.Hour)
	if _, err := f.svc.PlaceBid(ctx, a.ID, alice, dec("300")); !errors.Is(err, auction.ErrAuctionNotActive) {
		t.Fatalf("late bid error = %v, want ErrAuctionNotActive", err)
	}

	got, _ := f.repos.Auctions.GetByID(ctx, a.ID)
	if got.Status != auction.StatusEnded {
		t.Errorf("Status = %s, want ended", got.Status)
	}
	if !got.HighestBid.Decimal.Equal(dec("150")) {
		t.Errorf("HighestBid = %s, want 150", got.HighestBid.Decimal)
	}
}

func TestPlaceBid_NoBidAfterSweep(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.open(t)
	alice := storetest.SeedUser(t, f.repos, "alice")

	f.clock.Advance(24 * time.Hour)
	if got, err := f.mgr.Advance(ctx, a.ID); err != nil || got != auction.TransitionClosed {
		t.Fatalf("Advance = %s, %v; want closed", got, err)
	}

	// A clock that lags behind the sweeper still cannot reopen the auction.
	f.clock.Set(base.Add(23 * time.Hour))
	if _, err := f.svc.PlaceBid(ctx, a.ID, alice, dec("500")); !errors.Is(err, auction.ErrAuctionNotActive) {
		t.Errorf("PlaceBid() error = %v, want ErrAuctionNotActive", err)
	}
	bids, err := f.svc.ListBids(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(bids) != 0 {
		t.Errorf("ListBids() = %d bids, want 0", len(bids))
	}
}

func TestPlaceBid_RacesSweep(t *testing.T) {
	iterations := map[string]int{"memory": 50, "sqlite": 5}
	for name, open := range drivers {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < iterations[name]; i++ {
				raceBidsAgainstSweep(t, open)
			}
		})
	}
}

// raceBidsAgainstSweep lets 20 bidders race a sweeper that moves the clock
// onto the end time and advances the auction.
func raceBidsAgainstSweep(t *testing.T, open opener) {
	t.Helper()
	f := newDriverFixture(t, open, auction.DefaultPolicy(), nil)
	ctx := context.Background()

	art := storetest.SeedArtwork(t, f.repos, "artist-1")
	a, err := f.mgr.Create(ctx, lifecycle.CreateParams{
		ArtworkID:   art.ID,
		StartTime:   base,
		EndTime:     base.Add(time.Hour),
		StartingBid: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	f.clock.Set(a.EndTime.Add(-time.Second))

	const n = 20
	users := make([]string, n)
	for i := range users {
		users[i] = storetest.SeedUser(t, f.repos, "bidder")
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted = map[string]decimal.Decimal{}
		start    = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			amount := decimal.NewFromInt(int64(110 + 10*i))
			b, err := f.svc.PlaceBid(ctx, a.ID, users[i], amount)
			switch {
			case err == nil:
				mu.Lock()
				accepted[b.ID] = amount
				mu.Unlock()
			case errors.Is(err, auction.ErrBidTooLow), errors.Is(err, auction.ErrAuctionNotActive):
			default:
				t.Errorf("PlaceBid() unexpected error: %v", err)
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		f.clock.Set(a.EndTime)
		if _, err := f.mgr.Advance(ctx, a.ID); err != nil {
			t.Errorf("Advance() error = %v", err)
		}
	}()
	close(start)
	wg.Wait()

	if _, err := f.mgr.Advance(ctx, a.ID); err != nil {
		t.Fatalf("final Advance() error = %v", err)
	}
	got, err := f.repos.Auctions.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := f.repos.Bids.ListByAuction(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != len(accepted) {
		t.Fatalf("stored %d bids, accepted %d", len(stored), len(accepted))
	}

	if len(accepted) == 0 {
		if got.Status != auction.StatusClosed {
			t.Errorf("Status = %s, want closed without bids", got.Status)
		}
		return
	}

	var best auction.Bid
	for _, b := range stored {
		if _, ok := accepted[b.ID]; !ok {
			t.Errorf("stored bid %s was never reported as accepted", b.ID)
		}
		if !b.SubmittedAt.Before(got.EndTime) {
			t.Errorf("bid %s submitted at %v, not before end %v", b.ID, b.SubmittedAt, got.EndTime)
		}
		if b.Amount.GreaterThan(best.Amount) {
			best = b
		}
	}
	if got.Status != auction.StatusEnded {
		t.Fatalf("Status = %s, want ended", got.Status)
	}
	if !got.HighestBid.Valid || !got.HighestBid.Decimal.Equal(best.Amount) || got.HighestBidderID != best.BidderID {
		t.Errorf("snapshot = %s by %q, want %s by %q", got.HighestBid.Decimal, got.HighestBidderID, best.Amount, best.BidderID)
	}
}

func TestPlaceBid_EqualBidKeepsEarliest(t *testing.T) {
	flat := auction.IncrementPolicy{Mode: auction.IncrementAbsolute, Amount: decimal.Zero}
	f := newDriverFixture(t, openMemory, flat, nil)
	ctx := context.Background()
	a := f.open(t)
	alice := storetest.SeedUser(t, f.repos, "alice")
	bob := storetest.SeedUser(t, f.repos, "bob")

	if _, err := f.svc.PlaceBid(ctx, a.ID, alice, dec("150")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.PlaceBid(ctx, a.ID, bob, dec("150")); err != nil {
		t.Fatalf("equal bid under a zero increment: %v", err)
	}

	got, _ := f.repos.Auctions.GetByID(ctx, a.ID)
	if got.HighestBidderID != alice {
		t.Errorf("HighestBidderID = %q, want the earlier bidder %q", got.HighestBidderID, alice)
	}
}

func TestPlaceBid_LedgerDisagreement(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(a *auction.Auction)
		amount string
	}{
		{
			name: "cached highest has no stored bid",
			tamper: func(a *auction.Auction) {
				a.HighestBid = decimal.NewNullDecimal(dec("500"))
				a.HighestBidderID = "ghost"
			},
			amount: "500",
		},
		{
			name:   "last bid time behind stored bids",
			tamper: func(a *auction.Auction) { a.LastBidAt = time.Time{} },
			amount: "200",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flat := auction.IncrementPolicy{Mode: auction.IncrementAbsolute, Amount: decimal.Zero}
			f := newDriverFixture(t, openMemory, flat, nil)
			ctx := context.Background()
			a := f.open(t)
			alice := storetest.SeedUser(t, f.repos, "alice")
			bob := storetest.SeedUser(t, f.repos, "bob")

			if _, err := f.svc.PlaceBid(ctx, a.ID, alice, dec("110")); err != nil {
				t.Fatal(err)
			}
			err := f.repos.Auctions.Update(ctx, a.ID, func(tx store.AuctionTx) error {
				tt.tamper(tx.Auction())
				return store.Record(tx, event.AuctionActivated, struct{}{}, f.clock.Now())
			})
			if err != nil {
				t.Fatal(err)
			}

			_, err = f.svc.PlaceBid(ctx, a.ID, bob, dec(tt.amount))
			if !errors.Is(err, auction.ErrLedgerInconsistent) {
				t.Fatalf("PlaceBid() error = %v, want ErrLedgerInconsistent", err)
			}
			if code := auction.Code(err); code != "internal" {
				t.Errorf("Code() = %q, want internal", code)
			}
			bids, _ := f.svc.ListBids(ctx, a.ID)
			if len(bids) != 1 {
				t.Errorf("ListBids() = %d bids, want the rejected bid rolled back", len(bids))
			}
		})
	}
}

func TestPlaceBid_Concurrent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.open(t)

	const n = 50
	users := make([]string, n)
	for i := range users {
		users[i] = storetest.SeedUser(t, f.repos, "bidder")
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []decimal.Decimal
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := decimal.NewFromInt(int64(110 + 10*i))
			if _, err := f.svc.PlaceBid(ctx, a.ID, users[i], amount); err == nil {
				mu.Lock()
				accepted = append(accepted, amount)
				mu.Unlock()
			} else if !errors.Is(err, auction.ErrBidTooLow) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if len(accepted) == 0 {
		t.Fatal("no bid was accepted")
	}
	highest := accepted[0]
	for _, amt := range accepted[1:] {
		if amt.GreaterThan(highest) {
			highest = amt
		}
	}

	got, _ := f.repos.Auctions.GetByID(ctx, a.ID)
	if !got.HighestBid.Decimal.Equal(highest) {
		t.Errorf("HighestBid = %s, want %s", got.HighestBid.Decimal, highest)
	}
	if got.BidCount != len(accepted) {
		t.Errorf("BidCount = %d, want %d", got.BidCount, len(accepted))
	}

	bids, _ := f.svc.ListBids(ctx, a.ID)
	for i := 1; i < len(bids); i++ {
		if !bids[i-1].SubmittedAt.After(bids[i].SubmittedAt) {
			t.Errorf("bids[%d] at %v not after bids[%d] at %v", i-1, bids[i-1].SubmittedAt, i, bids[i].SubmittedAt)
		}
		if !bids[i-1].Amount.GreaterThan(bids[i].Amount) {
			t.Errorf("accepted amounts are not strictly increasing: %s then %s", bids[i].Amount, bids[i-1].Amount)
		}
	}
}

func TestListBids(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.open(t)
	other := f.open(t)
	alice := storetest.SeedUser(t, f.repos, "alice")
	bob := storetest.SeedUser(t, f.repos, "bob")

	for _, step := range []struct {
		auction, bidder, amount string
	}{
		{a.ID, alice, "110"},
		{a.ID, bob, "130"},
		{other.ID, alice, "500"},
		{a.ID, alice, "140"},
	} {
		if _, err := f.svc.PlaceBid(ctx, step.auction, step.bidder, dec(step.amount)); err != nil {
			t.Fatalf("bid %s: %v", step.amount, err)
		}
		f.clock.Advance(time.Second)
	}

	bids, err := f.svc.ListBids(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListBids() error = %v", err)
	}
	want := []string{"140", "130", "110"}
	if len(bids) != len(want) {
		t.Fatalf("ListBids() = %d bids, want %d", len(bids), len(want))
	}
	for i, w := range want {
		if !bids[i].Amount.Equal(dec(w)) {
			t.Errorf("bids[%d] = %s, want %s", i, bids[i].Amount, w)
		}
	}

	mine, err := f.svc.ListBidderBids(ctx, alice)
	if err != nil {
		t.Fatalf("ListBidderBids() error = %v", err)
	}
	wantMine := []string{"140", "500", "110"}
	if len(mine) != len(wantMine) {
		t.Fatalf("ListBidderBids() = %d bids, want %d", len(mine), len(wantMine))
	}
	for i, w := range wantMine {
		if !mine[i].Amount.Equal(dec(w)) {
			t.Errorf("mine[%d] = %s, want %s", i, mine[i].Amount, w)
		}
	}

	if _, err := f.svc.ListBids(ctx, "missing"); !errors.Is(err, auction.ErrNotFound) {
		t.Errorf("ListBids(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.ListBidderBids(ctx, "ghost"); !errors.Is(err, auction.ErrUserNotFound) {
		t.Errorf("ListBidderBids(ghost) error = %v, want ErrUserNotFound", err)
	}
}

func TestPlaceBid_Metrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	f := newFixture(t, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	ctx := context.Background()
	a := f.open(t)
	alice := storetest.SeedUser(t, f.repos, "alice")

	if _, err := f.svc.PlaceBid(ctx, a.ID, alice, dec("110")); err != nil {
		t.Fatal(err)
	}
	_, _ = f.svc.PlaceBid(ctx, a.ID, alice, dec("111"))
	_, _ = f.svc.PlaceBid(ctx, a.ID, alice, dec("112"))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				key := m.Name
				if v, ok := dp.Attributes.Value(attribute.Key("reason")); ok {
					key += "/" + v.AsString()
				}
				counts[key] += dp.Value
			}
		}
	}

	if counts["auction.bids.accepted"] != 1 {
		t.Errorf("accepted = %d, want 1", counts["auction.bids.accepted"])
	}
	if counts["auction.bids.rejected/bid_too_low"] != 2 {
		t.Errorf("rejected/bid_too_low = %d, want 2 (all: %v)", counts["auction.bids.rejected/bid_too_low"], counts)
	}
}
