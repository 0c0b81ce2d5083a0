// Package lifecycle owns auction creation and the time-driven state machine:
// pending auctions activate, active auctions end or close.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/jensholdgaard/art-auction/internal/auction"
	"github.com/jensholdgaard/art-auction/internal/event"
	"github.com/jensholdgaard/art-auction/internal/store"
)

// ApplyDue applies every transition that is due at now to the auction locked
// by tx and records the matching events. It must run inside
// store.AuctionRepository.Update. The last transition taken is returned, so a
// pending auction whose whole window has passed reports ended or closed.
func ApplyDue(ctx context.Context, tx store.AuctionTx, now time.Time) (auction.Transition, error) {
	a := tx.Auction()
	taken := auction.TransitionNone

	if a.Status == auction.StatusPending && !now.Before(a.StartTime) {
		approved, err := tx.Artworks().IsApproved(ctx, a.ArtworkID)
		if err != nil {
			return taken, fmt.Errorf("checking artwork approval: %w", err)
		}
		if a.Activate(now, approved) == auction.TransitionActivated {
			if err := store.Record(tx, event.AuctionActivated, struct{}{}, now); err != nil {
				return taken, err
			}
			taken = auction.TransitionActivated
		}
	}

	if a.Lapse(now) == auction.TransitionClosed {
		return auction.TransitionClosed, store.Record(tx, event.AuctionClosed, event.AuctionClosedData{Reason: event.CloseLapsed}, now)
	}

	if a.Status != auction.StatusActive || now.Before(a.EndTime) {
		return taken, nil
	}

	bids, err := tx.Bids(ctx)
	if err != nil {
		return taken, fmt.Errorf("loading bids: %w", err)
	}
	ledger := auction.NewLedger(bids)
	var highest *auction.Bid
	if b, ok := ledger.Highest(); ok {
		highest = &b
	}

	switch a.Expire(now, highest) {
	case auction.TransitionEnded:
		err = store.Record(tx, event.AuctionEnded, event.AuctionEndedData{
			WinnerID: highest.BidderID,
			Amount:   highest.Amount,
			BidCount: ledger.Len(),
		}, now)
		taken = auction.TransitionEnded
	case auction.TransitionClosed:
		err = store.Record(tx, event.AuctionClosed, event.AuctionClosedData{Reason: event.CloseNoBids}, now)
		taken = auction.TransitionClosed
	}
	return taken, err
}
