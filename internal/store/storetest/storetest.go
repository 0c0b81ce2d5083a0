// Package storetest holds behaviour every store driver must share. Driver
// packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/art-auction/internal/auction"
	"github.com/jensholdgaard/art-auction/internal/event"
	"github.com/jensholdgaard/art-auction/internal/store"
)

// Opener returns a fresh, empty set of repositories for one subtest.
type Opener func(t *testing.T) *store.Repositories

// Base is the reference time used by every fixture.
var Base = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// Run executes the shared suite against open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, repos *store.Repositories)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"CreateDuplicate", testCreateDuplicate},
		{"GetMissing", testGetMissing},
		{"ListFilter", testListFilter},
		{"ListDue", testListDue},
		{"UpdateCommits", testUpdateCommits},
		{"UpdateRollsBackOnError", testUpdateRollsBack},
		{"UpdateWithoutChangesKeepsVersion", testUpdateNoop},
		{"UpdateMissing", testUpdateMissing},
		{"PaymentUnique", testPaymentUnique},
		{"ConcurrentPayments", testConcurrentPayments},
		{"ConcurrentBids", testConcurrentBids},
		{"MarkSoldCommitsWithTransaction", testMarkSold},
		{"BidsByBidder", testBidsByBidder},
		{"EventsByType", testEventsByType},
		{"PurgeCascades", testPurge},
		{"Users", testUsers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

// SeedArtwork stores an approved artwork by artistID.
func SeedArtwork(t *testing.T, repos *store.Repositories, artistID string) *store.Artwork {
	t.Helper()
	art := &store.Artwork{ArtistID: artistID, Title: "Untitled", Approved: true}
	if err := repos.Artworks.Create(context.Background(), art); err != nil {
		t.Fatalf("creating artwork: %v", err)
	}
	return art
}

// SeedUser stores a user and returns its id.
func SeedUser(t *testing.T, repos *store.Repositories, name string) string {
	t.Helper()
	u := &store.User{Name: name}
	if err := repos.Users.Create(context.Background(), u); err != nil {
		t.Fatalf("creating user: %v", err)
	}
	return u.ID
}

// SeedAuction stores an auction on artworkID running from start to end.
func SeedAuction(t *testing.T, repos *store.Repositories, artworkID string, start, end time.Time, status auction.Status) *auction.Auction {
	t.Helper()
	a, err := auction.New(uuid.NewString(), artworkID, start, end, decimal.NewFromInt(100), Base)
	if err != nil {
		t.Fatalf("auction.New: %v", err)
	}
	a.Status = status
	ev, err := event.New(a.ID, event.AuctionCreated, event.AuctionCreatedData{ArtworkID: artworkID}, Base)
	if err != nil {
		t.Fatal(err)
	}
	if err := repos.Auctions.Create(context.Background(), a, ev); err != nil {
		t.Fatalf("creating auction: %v", err)
	}
	return a
}

func mustEvent(t *testing.T, id string, typ event.Type, at time.Time) event.Event {
	t.Helper()
	ev, err := event.New(id, typ, struct{}{}, at)
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func activeAuction(t *testing.T, repos *store.Repositories) (*auction.Auction, *store.Artwork) {
	t.Helper()
	art := SeedArtwork(t, repos, "artist-1")
	a := SeedAuction(t, repos, art.ID, Base.Add(-time.Hour), Base.Add(time.Hour), auction.StatusActive)
	return a, art
}

// placeBid appends a bid through Update the way the bidding service does.
func placeBid(ctx context.Context, repos *store.Repositories, auctionID, bidderID string, amount decimal.Decimal, now time.Time) error {
	return repos.Auctions.Update(ctx, auctionID, func(tx store.AuctionTx) error {
		a := tx.Auction()
		b := auction.Bid{ID: uuid.NewString(), BidderID: bidderID, Amount: amount}
		a.ApplyBid(&b, now)
		if err := tx.AppendBid(ctx, b); err != nil {
			return err
		}
		ev, err := event.New(a.ID, event.BidPlaced, event.BidPlacedData{BidID: b.ID, BidderID: bidderID, Amount: amount}, now)
		if err != nil {
			return err
		}
		tx.Record(ev)
		return nil
	})
}

func testCreateAndGet(t *testing.T, repos *store.Repositories) {
	ctx := context.Background()
	art := SeedArtwork(t, repos, "artist-1")
	a := SeedAuction(t, repos, art.ID, Base, Base.Add(24*time.Hour), auction.StatusPending)

	if a.Version != 1 {
		t.Errorf("Version after Create = %d, want 1", a.Version)
	}

	got, err := repos.Auctions.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ArtworkID != art.ID {
		t.Errorf("ArtworkID = %q, want %q", got.ArtworkID, art.ID)
	}
	if !got.StartTime.Equal(Base) || !got.EndTime.Equal(Base.Add(24*time.Hour)) {
		t.Errorf("window = [%v, %v), want [%v, %v)", got.StartTime, got.EndTime, Base, Base.Add(24*time.Hour))
	}
	if !got.StartingBid.Equal(decimal.NewFromInt(100)) {
		t.Errorf("StartingBid = %s, want 100", got.StartingBid)
	}
	if got.Status != auction.StatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}
	if got.HighestBid.Valid || got.HighestBidderID != "" {
		t.Errorf("expected no highest bid, got %v by %q", got.HighestBid, got.HighestBidderID)
	}
	if got.Version != 1 {
		t.Errorf("stored Version = %d, want 1", got.Version)
	}

	events, err := repos.Events.Load(ctx, a.ID)
	if err != nil {
		t.Fatalf("Load events: %v", err)
	}
	if len(events) != 1 || events[0].Type != event.AuctionCreated || events[0].Version != 1 {
		t.Errorf("events = %+v, want one auction.created at version 1", events)
	}
}

func testCreateDuplicate(t *testing.T, repos *store.Repositories) {
	art := SeedArtwork(t, repos, "artist-1")
	a := SeedAuction(t, repos, art.ID, Base, Base.Add(time.Hour), auction.StatusPending)

	dup := *a
	dup.Version = 0
	err := repos.Auctions.Create(context.Background(), &dup)
	if !errors.Is(err, auction.ErrConflict) {
		t.Errorf("duplicate Create error = %v, want ErrConflict", err)
	}
}

func testGetMissing(t *testing.T, repos *store.Repositories) {
	_, err := repos.Auctions.GetByID(context.Background(), uuid.NewString())
	if !errors.Is(err, auction.ErrAuctionNotFound) {
		t.Errorf("GetByID error = %v, want ErrAuctionNotFound", err)
	}
	_, err = repos.Bids.ListByAuction(context.Background(), uuid.NewString())
	if !errors.Is(err, auction.ErrNotFound) {
		t.Errorf("ListByAuction error = %v, want ErrNotFound", err)
	}
	_, err = repos.Payments.GetByAuction(context.Background(), uuid.NewString())
	if !errors.Is(err, auction.ErrPaymentNotFound) {
		t.Errorf("GetByAuction error = %v, want ErrPaymentNotFound", err)
	}
	_, err = repos.Artworks.IsApproved(context.Background(), uuid.NewString())
	if !errors.Is(err, auction.ErrArtworkNotFound) {
		t.Errorf("IsApproved error = %v, want ErrArtworkNotFound", err)
	}
}

func testListFilter(t *testing.T, repos *store.Repositories) {
	ctx := context.Background()
	art1 := SeedArtwork(t, repos, "artist-1")
	art2 := SeedArtwork(t, repos, "artist-2")
	SeedAuction(t, repos, art1.ID, Base, Base.Add(time.Hour), auction.StatusPending)
	SeedAuction(t, repos, art1.ID, Base, Base.Add(time.Hour), auction.StatusActive)
	SeedAuction(t, repos, art2.ID, Base, Base.Add(time.Hour), auction.StatusActive)

	tests := []struct {
		name   string
		filter auction.Filter
		want   int
	}{
		{"all", auction.Filter{}, 3},
		{"by status", auction.Filter{Status: auction.StatusActive}, 2},
		{"by artwork", auction.Filter{ArtworkID: art1.ID}, 2},
		{"by both", auction.Filter{Status: auction.StatusPending, ArtworkID: art1.ID}, 1},
		{"none", auction.Filter{Status: auction.StatusClosed}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repos.Auctions.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("List(%+v) returned %d, want %d", tt.filter, len(got), tt.want)
			}
		})
	}
}

func testListDue(t *testing.T, repos *store.Repositories) {
	art := SeedArtwork(t, repos, "artist-1")
	startDue := SeedAuction(t, repos, art.ID, Base.Add(-time.Minute), Base.Add(time.Hour), auction.StatusPending)
	SeedAuction(t, repos, art.ID, Base.Add(time.Minute), Base.Add(time.Hour), auction.StatusPending)
	endDue := SeedAuction(t, repos, art.ID, Base.Add(-2*time.Hour), Base, auction.StatusActive)
	SeedAuction(t, repos, art.ID, Base.Add(-2*time.Hour), Base.Add(time.Second), auction.StatusActive)
	SeedAuction(t, repos, art.ID, Base.Add(-2*time.Hour), Base.Add(-time.Hour), auction.StatusClosed)

	ids, err := repos.Auctions.ListDue(context.Background(), Base)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	got := map[string]bool{}
	for _, id := range ids {
		got[id] = true
	}
	if len(ids) != 2 || !got[startDue.ID] || !got[endDue.ID] {
		t.Errorf("ListDue = %v, want [%s %s]", ids, startDue.ID, endDue.ID)
	}
}

func testUpdateCommits(t *testing.T, repos *store.Repositories) {
	ctx := context.Background()
	a, _ := activeAuction(t, repos)
	bidder := SeedUser(t, repos, "bidder")

	if err := placeBid(ctx, repos, a.ID, bidder, decimal.NewFromInt(150), Base); err != nil {
		t.Fatalf("placeBid: %v", err)
	}

	got, err := repos.Auctions.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.HighestBid.Valid || !got.HighestBid.Decimal.Equal(decimal.NewFromInt(150)) {
		t.Errorf("HighestBid = %v, want 150", got.HighestBid)
	}
	if got.HighestBidderID != bidder || got.BidCount != 1 {
		t.Errorf("HighestBidderID = %q BidCount = %d, want %q 1", got.HighestBidderID, got.BidCount, bidder)
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}
	if !got.LastBidAt.Equal(Base) {
		t.Errorf("LastBidAt = %v, want %v", got.LastBidAt, Base)
	}

	bids, err := repos.Bids.ListByAuction(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListByAuction: %v", err)
	}
	if len(bids) != 1 || !bids[0].Amount.Equal(decimal.NewFromInt(150)) || !bids[0].SubmittedAt.Equal(Base) {
		t.Errorf("bids = %+v, want one bid of 150 at %v", bids, Base)
	}

	events, err := repos.Events.Load(ctx, a.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(events) != 2 || events[1].Type != event.BidPlaced || events[1].Version != 2 {
		t.Errorf("events = %+v, want bid.placed at version 2", events)
	}
}

func testUpdateRollsBack(t *testing.T, repos *store.Repositories) {
	ctx := context.Background()
	a, _ := activeAuction(t, repos)
	boom := errors.New("boom")

	err := repos.Auctions.Update(ctx, a.ID, func(tx store.AuctionTx) error {
		cur := tx.Auction()
		b := auction.Bid{ID: uuid.NewString(), BidderID: "u1", Amount: decimal.NewFromInt(500)}
		cur.ApplyBid(&b, Base)
		if err := tx.AppendBid(ctx, b); err != nil {
			return err
		}
		tx.Record(mustEvent(t, a.ID, event.BidPlaced, Base))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update error = %v, want boom", err)
	}

	got, _ := repos.Auctions.GetByID(ctx, a.ID)
	if got.HighestBid.Valid || got.BidCount != 0 || got.Version != 1 {
		t.Errorf("auction changed after rollback: %+v", got)
	}
	bids, _ := repos.Bids.ListByAuction(ctx, a.ID)
	if len(bids) != 0 {
		t.Errorf("bids after rollback = %d, want 0", len(bids))
	}
}

func testUpdateNoop(t *testing.T, repos *store.Repositories) {
	ctx := context.Background()
	a, _ := activeAuction(t, repos)

	err := repos.Auctions.Update(ctx, a.ID, func(tx store.AuctionTx) error {
		if tx.Auction().ID != a.ID {
			return fmt.Errorf("wrong auction %s", tx.Auction().ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := repos.Auctions.GetByID(ctx, a.ID)
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}
}

func testUpdateMissing(t *testing.T, repos *store.Repositories) {
	called := false
	err := repos.Auctions.Update(context.Background(), uuid.NewString(), func(store.AuctionTx) error {
		called = true
		return nil
	})
	if !errors.Is(err, auction.ErrAuctionNotFound) {
		t.Errorf("Update error = %v, want ErrAuctionNotFound", err)
	}
	if called {
		t.Error("callback ran for a missing auction")
	}
}

func payment(auctionID, payerID string) auction.Payment {
	return auction.Payment{
		ID:        uuid.NewString(),
		AuctionID: auctionID,
		PayerID:   payerID,
		Amount:    decimal.NewFromInt(150),
		Method:    "card",
		Status:    auction.PaymentPaid,
		CreatedAt: Base,
	}
}

func testPaymentUnique(t *testing.T, repos *store.Repositories) {
	ctx := context.Background()
	a, _ := activeAuction(t, repos)

	insert := func() error {
		return repos.Auctions.Update(ctx, a.ID, func(tx store.AuctionTx) error {
			if err := tx.InsertPayment(ctx, payment(a.ID, "winner")); err != nil {
				return err
			}
			tx.Record(mustEvent(t, a.ID, event.PaymentAuthorized, Base))
			return nil
		})
	}
	if err := insert(); err != nil {
		t.Fatalf("first InsertPayment: %v", err)
	}
	if err := insert(); !errors.Is(err, auction.ErrAlreadyPaid) {
		t.Errorf("second InsertPayment error = %v, want ErrAlreadyPaid", err)
	}

	p, err := repos.Payments.GetByAuction(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByAuction: %v", err)
	}
	if p.PayerID != "winner" || !p.Amount.Equal(decimal.NewFromInt(150)) || p.Status != auction.PaymentPaid {
		t.Errorf("payment = %+v", p)
	}
}

func testConcurrentPayments(t *testing.T, repos *store.Repositories) {
	ctx := context.Background()
	a, _ := activeAuction(t, repos)

	const n = 50
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
		other    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repos.Auctions.Update(ctx, a.ID, func(tx store.AuctionTx) error {
				if _, err := tx.Payment(ctx); err == nil {
					return auction.ErrAlreadyPaid
				}
				if err := tx.InsertPayment(ctx, payment(a.ID, "winner")); err != nil {
					return err
				}
				tx.Record(mustEvent(t, a.ID, event.PaymentAuthorized, Base))
				return nil
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, auction.ErrConflict):
				rejected++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 || rejected != n-1 || len(other) != 0 {
		t.Errorf("ok = %d rejected = %d other = %v, want 1, %d, none", ok, rejected, other, n-1)
	}
}

func testConcurrentBids(t *testing.T, repos *store.Repositories) {
	ctx := context.Background()
	a, _ := activeAuction(t, repos)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Same timestamp for everyone: ordering must still be strict.
			errs <- placeBid(ctx, repos, a.ID, fmt.Sprintf("bidder-%d", i), decimal.NewFromInt(int64(200+i)), Base)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("placeBid: %v", err)
		}
	}

	got, _ := repos.Auctions.GetByID(ctx, a.ID)
	if got.BidCount != n || got.Version != n+1 {
		t.Errorf("BidCount = %d Version = %d, want %d %d", got.BidCount, got.Version, n, n+1)
	}
	if !got.HighestBid.Decimal.Equal(decimal.NewFromInt(200+n-1)) || got.HighestBidderID != fmt.Sprintf("bidder-%d", n-1) {
		t.Errorf("highest = %s by %q", got.HighestBid.Decimal, got.HighestBidderID)
	}

	bids, _ := repos.Bids.ListByAuction(ctx, a.ID)
	if len(bids) != n {
		t.Fatalf("ListByAuction returned %d, want %d", len(bids), n)
	}
	for i := 1; i < len(bids); i++ {
		if !bids[i].SubmittedAt.After(bids[i-1].SubmittedAt) {
			t.Errorf("bid %d at %v not after bid %d at %v", i, bids[i].SubmittedAt, i-1, bids[i-1].SubmittedAt)
		}
	}
	if l := auction.NewLedger(bids); l.Len() != n {
		t.Errorf("ledger length = %d, want %d", l.Len(), n)
	}
}

func testMarkSold(t *testing.T, repos *store.Repositories) {
	ctx := context.Background()
	a, art := activeAuction(t, repos)

	// Rolled back: the artwork stays unsold.
	_ = repos.Auctions.Update(ctx, a.ID, func(tx store.AuctionTx) error {
		if err := tx.Artworks().MarkSold(ctx, art.ID); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if sold, _ := repos.Artworks.IsSold(ctx, art.ID); sold {
		t.Fatal("artwork marked sold by a rolled back transaction")
	}

	err := repos.Auctions.Update(ctx, a.ID, func(tx store.AuctionTx) error {
		if err := tx.Artworks().MarkSold(ctx, art.ID); err != nil {
			return err
		}
		sold, err := tx.Artworks().IsSold(ctx, art.ID)
		if err != nil {
			return err
		}
		if !sold {
			return errors.New("transaction does not see its own MarkSold")
		}
		tx.Record(mustEvent(t, a.ID, event.AuctionClosed, Base))
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if sold, _ := repos.Artworks.IsSold(ctx, art.ID); !sold {
		t.Error("artwork not sold after commit")
	}
}

func testBidsByBidder(t *testing.T, repos *store.Repositories) {
	ctx := context.Background()
	a1, _ := activeAuction(t, repos)
	a2, _ := activeAuction(t, repos)

	steps := []struct {
		auctionID string
		bidder    string
		amount    int64
		at        time.Duration
	}{
		{a1.ID, "alice", 110, 1 * time.Minute},
		{a2.ID, "alice", 120, 2 * time.Minute},
		{a1.ID, "bob", 130, 3 * time.Minute},
		{a1.ID, "alice", 140, 4 * time.Minute},
	}
	for _, s := range steps {
		if err := placeBid(ctx, repos, s.auctionID, s.bidder, decimal.NewFromInt(s.amount), Base.Add(s.at)); err != nil {
			t.Fatalf("placeBid: %v", err)
		}
	}

	bids, err := repos.Bids.ListByBidder(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByBidder: %v", err)
	}
	var amounts []string
	for _, b := range bids {
		amounts = append(amounts, b.Amount.String())
	}
	if fmt.Sprint(amounts) != "[140 120 110]" {
		t.Errorf("alice's bids newest first = %v, want [140 120 110]", amounts)
	}

	none, err := repos.Bids.ListByBidder(ctx, "nobody")
	if err != nil || len(none) != 0 {
		t.Errorf("ListByBidder(nobody) = %v, %v; want empty", none, err)
	}
}

func testEventsByType(t *testing.T, repos *store.Repositories) {
	ctx := context.Background()
	a1, _ := activeAuction(t, repos)
	a2, _ := activeAuction(t, repos)
	if err := placeBid(ctx, repos, a1.ID, "u1", decimal.NewFromInt(110), Base); err != nil {
		t.Fatal(err)
	}
	if err := placeBid(ctx, repos, a2.ID, "u1", decimal.NewFromInt(110), Base.Add(time.Second)); err != nil {
		t.Fatal(err)
	}

	created, err := repos.Events.LoadByType(ctx, event.AuctionCreated)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	if len(created) != 2 {
		t.Errorf("LoadByType(created) = %d, want 2", len(created))
	}
	bids, err := repos.Events.LoadByType(ctx, event.BidPlaced)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	if len(bids) != 2 || bids[0].AggregateID != a1.ID || bids[1].AggregateID != a2.ID {
		t.Errorf("bid events = %+v, want a1 then a2", bids)
	}
}

func testPurge(t *testing.T, repos *store.Repositories) {
	ctx := context.Background()
	a, _ := activeAuction(t, repos)
	if err := placeBid(ctx, repos, a.ID, "u1", decimal.NewFromInt(150), Base); err != nil {
		t.Fatal(err)
	}
	err := repos.Auctions.Update(ctx, a.ID, func(tx store.AuctionTx) error {
		if err := tx.InsertPayment(ctx, payment(a.ID, "u1")); err != nil {
			return err
		}
		tx.Record(mustEvent(t, a.ID, event.PaymentAuthorized, Base))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := repos.Auctions.Purge(ctx, a.ID); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, err := repos.Auctions.GetByID(ctx, a.ID); !errors.Is(err, auction.ErrAuctionNotFound) {
		t.Errorf("GetByID after purge error = %v", err)
	}
	if _, err := repos.Payments.GetByAuction(ctx, a.ID); !errors.Is(err, auction.ErrPaymentNotFound) {
		t.Errorf("payment after purge error = %v", err)
	}
	if bids, _ := repos.Bids.ListByBidder(ctx, "u1"); len(bids) != 0 {
		t.Errorf("bids after purge = %d, want 0", len(bids))
	}
	if events, _ := repos.Events.Load(ctx, a.ID); len(events) != 0 {
		t.Errorf("events after purge = %d, want 0", len(events))
	}
	if err := repos.Auctions.Purge(ctx, a.ID); !errors.Is(err, auction.ErrAuctionNotFound) {
		t.Errorf("second Purge error = %v, want ErrAuctionNotFound", err)
	}
}

func testUsers(t *testing.T, repos *store.Repositories) {
	ctx := context.Background()
	id := SeedUser(t, repos, "alice")

	ok, err := repos.Users.Exists(ctx, id)
	if err != nil || !ok {
		t.Errorf("Exists(%s) = %v, %v; want true", id, ok, err)
	}
	ok, err = repos.Users.Exists(ctx, "missing")
	if err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v; want false", ok, err)
	}
	if err := repos.Users.Create(ctx, &store.User{ID: id, Name: "again"}); !errors.Is(err, auction.ErrConflict) {
		t.Errorf("duplicate user error = %v, want ErrConflict", err)
	}
}
