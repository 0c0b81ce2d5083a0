package auction_test

import (
	"errors"
	"testing"
	"time"

	"github.com/jensholdgaard/art-auction/internal/auction"
)

func bid(id, bidder, amount string, at time.Duration) auction.Bid {
	return auction.Bid{ID: id, AuctionID: "a1", BidderID: bidder, Amount: dec(amount), SubmittedAt: t0.Add(at)}
}

func TestLedger_Highest(t *testing.T) {
	tests := []struct {
		name       string
		bids       []auction.Bid
		wantOK     bool
		wantBidder string
		wantAmount string
	}{
		{
			name:   "empty",
			bids:   nil,
			wantOK: false,
		},
		{
			name:       "single",
			bids:       []auction.Bid{bid("b1", "u1", "110", 0)},
			wantOK:     true,
			wantBidder: "u1",
			wantAmount: "110",
		},
		{
			name: "max amount wins regardless of order",
			bids: []auction.Bid{
				bid("b1", "u1", "110", 0),
				bid("b2", "u2", "300", time.Second),
				bid("b3", "u3", "200", 2*time.Second),
			},
			wantOK:     true,
			wantBidder: "u2",
			wantAmount: "300",
		},
		{
			name: "tie goes to earliest",
			bids: []auction.Bid{
				bid("b2", "late", "500", 2*time.Second),
				bid("b1", "early", "500", time.Second),
			},
			wantOK:     true,
			wantBidder: "early",
			wantAmount: "500",
		},
		{
			name: "decimal precision",
			bids: []auction.Bid{
				bid("b1", "u1", "100.10", 0),
				bid("b2", "u2", "100.09", time.Second),
			},
			wantOK:     true,
			wantBidder: "u1",
			wantAmount: "100.1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := auction.NewLedger(tt.bids).Highest()
			if ok != tt.wantOK {
				t.Fatalf("Highest() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.BidderID != tt.wantBidder || !got.Amount.Equal(dec(tt.wantAmount)) {
				t.Errorf("Highest() = %s by %q, want %s by %q", got.Amount, got.BidderID, tt.wantAmount, tt.wantBidder)
			}
		})
	}
}

func TestLedger_Append(t *testing.T) {
	l := auction.NewLedger(nil)

	if err := l.Append(bid("b1", "u1", "110", 0)); err != nil {
		t.Fatalf("Append first: %v", err)
	}
	if err := l.Append(bid("b2", "u2", "120", 0)); !errors.Is(err, auction.ErrLedgerInconsistent) {
		t.Errorf("same instant error = %v, want ErrLedgerInconsistent", err)
	}
	if err := l.Append(bid("b3", "u2", "100", time.Second)); !errors.Is(err, auction.ErrLedgerInconsistent) {
		t.Errorf("lower amount error = %v, want ErrLedgerInconsistent", err)
	}
	if err := l.Append(bid("b4", "u2", "0", time.Second)); !errors.Is(err, auction.ErrInvalidAmount) {
		t.Errorf("zero amount error = %v, want ErrInvalidAmount", err)
	}
	if err := l.Append(bid("b5", "u2", "110", time.Second)); err != nil {
		t.Fatalf("Append equal amount: %v", err)
	}
	if err := l.Append(bid("b6", "u3", "115", 2*time.Second)); err != nil {
		t.Fatalf("Append higher: %v", err)
	}
	if l.Len() != 3 {
		t.Errorf("Len() = %d, want 3", l.Len())
	}

	newest := l.Newest()
	if newest[0].ID != "b6" || newest[1].ID != "b5" || newest[2].ID != "b1" {
		t.Errorf("Newest() order = [%s %s %s], want [b6 b5 b1]", newest[0].ID, newest[1].ID, newest[2].ID)
	}
}

func TestLedger_AppendTieKeepsEarliest(t *testing.T) {
	l := auction.NewLedger(nil)
	for _, b := range []auction.Bid{bid("b1", "early", "110", 0), bid("b2", "late", "110", time.Second)} {
		if err := l.Append(b); err != nil {
			t.Fatalf("Append %s: %v", b.ID, err)
		}
	}
	if got, _ := l.Highest(); got.BidderID != "early" {
		t.Errorf("Highest() bidder = %q, want early", got.BidderID)
	}
}

func TestLedger_Matches(t *testing.T) {
	a := newAuction(t, auction.StatusActive)
	l := auction.NewLedger(nil)
	if !l.Matches(a) {
		t.Error("empty ledger should match an auction without bids")
	}

	b := auction.Bid{ID: "b1", BidderID: "u1", Amount: dec("110")}
	a.ApplyBid(&b, t0)
	if l.Matches(a) {
		t.Error("empty ledger should not match an auction with a highest bid")
	}
	if err := l.Append(b); err != nil {
		t.Fatal(err)
	}
	if !l.Matches(a) {
		t.Errorf("ledger should match after appending the applied bid")
	}

	a.HighestBidderID = "someone-else"
	if l.Matches(a) {
		t.Error("ledger should not match a different highest bidder")
	}
}

func TestNewLedger_SortsBySubmission(t *testing.T) {
	l := auction.NewLedger([]auction.Bid{
		bid("b3", "u3", "130", 3*time.Second),
		bid("b1", "u1", "110", time.Second),
		bid("b2", "u2", "120", 2*time.Second),
	})
	got := l.Newest()
	for i, want := range []string{"b3", "b2", "b1"} {
		if got[i].ID != want {
			t.Errorf("Newest()[%d] = %s, want %s", i, got[i].ID, want)
		}
	}
}

// The documented scenario: starting bid 100, increments of 10.
func TestScenario_MinimumIncrement(t *testing.T) {
	a := newAuction(t, auction.StatusActive)
	now := t0.Add(time.Minute)

	steps := []struct {
		amount  string
		wantErr bool
	}{
		{"110", false},
		{"115", true},
		{"200", false},
	}
	for _, s := range steps {
		min := a.MinimumBid(policy)
		if dec(s.amount).LessThan(min) != s.wantErr {
			t.Fatalf("bid %s against minimum %s: rejected = %v, want %v", s.amount, min, !s.wantErr, s.wantErr)
		}
		if s.wantErr {
			continue
		}
		b := auction.Bid{ID: s.amount, BidderID: "u-" + s.amount, Amount: dec(s.amount)}
		a.ApplyBid(&b, now)
	}
	if !a.HighestBid.Decimal.Equal(dec("200")) || a.HighestBidderID != "u-200" {
		t.Errorf("highest = %s by %q, want 200 by u-200", a.HighestBid.Decimal, a.HighestBidderID)
	}
}
