package auction

import (
	"fmt"
	"sort"
)

// Ledger is the ordered, append-only bid history of a single auction.
// It is not safe for concurrent use; owners guard it with the auction's lock.
type Ledger struct {
	bids []Bid
}

// NewLedger builds a ledger from stored bids, ordering them by submission
// time.
func NewLedger(bids []Bid) *Ledger {
	sorted := append([]Bid(nil), bids...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SubmittedAt.Before(sorted[j].SubmittedAt)
	})
	return &Ledger{bids: sorted}
}

// Append adds b to the end of the ledger. Bids must arrive in submission
// order and may never lower the highest amount; an equal amount is kept
// behind the earlier bid.
func (l *Ledger) Append(b Bid) error {
	if !b.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if n := len(l.bids); n > 0 {
		last := l.bids[n-1]
		if !b.SubmittedAt.After(last.SubmittedAt) {
			return fmt.Errorf("bid %s submitted at %s is not after %s: %w", b.ID, b.SubmittedAt, last.SubmittedAt, ErrLedgerInconsistent)
		}
	}
	if highest, ok := l.Highest(); ok && b.Amount.LessThan(highest.Amount) {
		return fmt.Errorf("bid %s of %s is below %s: %w", b.ID, b.Amount, highest.Amount, ErrLedgerInconsistent)
	}
	l.bids = append(l.bids, b)
	return nil
}

// Matches reports whether the auction's cached highest bid agrees with the
// ledger.
func (l *Ledger) Matches(a *Auction) bool {
	highest, ok := l.Highest()
	if !ok {
		return !a.HighestBid.Valid && a.HighestBidderID == ""
	}
	return a.HighestBid.Valid && a.HighestBid.Decimal.Equal(highest.Amount) && a.HighestBidderID == highest.BidderID
}

// Highest returns the bid with the largest amount. Ties go to the earliest
// submission.
func (l *Ledger) Highest() (Bid, bool) {
	if len(l.bids) == 0 {
		return Bid{}, false
	}
	best := l.bids[0]
	for _, b := range l.bids[1:] {
		if b.Amount.GreaterThan(best.Amount) ||
			(b.Amount.Equal(best.Amount) && b.SubmittedAt.Before(best.SubmittedAt)) {
			best = b
		}
	}
	return best, true
}

// Len returns the number of bids.
func (l *Ledger) Len() int { return len(l.bids) }

// Newest returns a copy of the history, newest first.
func (l *Ledger) Newest() []Bid {
	out := make([]Bid, len(l.bids))
	for i, b := range l.bids {
		out[len(l.bids)-1-i] = b
	}
	return out
}
