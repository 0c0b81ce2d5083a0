package auction

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error kinds. Every error returned by the auction services wraps exactly one
// of these so callers can classify failures with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
)

// Errors returned by auction operations.
var (
	ErrAuctionNotFound = fmt.Errorf("auction %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrPaymentNotFound = fmt.Errorf("payment %w", ErrNotFound)
	ErrArtworkNotFound = fmt.Errorf("artwork %w", ErrNotFound)

	ErrAuctionNotActive     = fmt.Errorf("auction is not accepting bids: %w", ErrInvalidState)
	ErrAuctionNotSettleable = fmt.Errorf("auction cannot be settled in its current state: %w", ErrInvalidState)
	ErrArtworkUnavailable   = fmt.Errorf("artwork is no longer available: %w", ErrInvalidState)
	ErrNotExtendable        = fmt.Errorf("auction can no longer be extended: %w", ErrInvalidState)
	ErrNoBids               = fmt.Errorf("auction has no bids: %w", ErrInvalidState)
	ErrAlreadyTerminal      = fmt.Errorf("auction has already finished: %w", ErrInvalidState)

	ErrBidTooLow             = fmt.Errorf("bid is below minimum: %w", ErrValidation)
	ErrInvalidAmount         = fmt.Errorf("amount must be positive: %w", ErrValidation)
	ErrNegativeStartingBid   = fmt.Errorf("starting bid must not be negative: %w", ErrValidation)
	ErrInvalidTimeRange      = fmt.Errorf("end time must be after start time: %w", ErrValidation)
	ErrExtendHoursOutOfRange = fmt.Errorf("extension must be between %d and %d hours: %w", MinExtendHours, MaxExtendHours, ErrValidation)
	ErrMissingField          = fmt.Errorf("required field missing: %w", ErrValidation)

	ErrNotWinner = fmt.Errorf("payer is not the winning bidder: %w", ErrUnauthorized)
	ErrNotArtist = fmt.Errorf("requester is not the artwork's artist: %w", ErrUnauthorized)

	ErrAlreadyPaid      = fmt.Errorf("auction has already been paid: %w", ErrConflict)
	ErrConcurrentUpdate = fmt.Errorf("auction was modified concurrently: %w", ErrConflict)
)

// ErrLedgerInconsistent means stored bids and the auction record disagree.
// It wraps no kind, so callers treat it as an internal failure.
var ErrLedgerInconsistent = errors.New("bid ledger inconsistent")

// BidTooLowError reports the minimum acceptable bid at the time of rejection.
type BidTooLowError struct {
	Minimum decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid is below minimum of %s", e.Minimum.StringFixed(2))
}

func (e *BidTooLowError) Unwrap() error { return ErrBidTooLow }

var codes = []struct {
	err  error
	code string
}{
	{ErrAuctionNotFound, "auction_not_found"},
	{ErrUserNotFound, "user_not_found"},
	{ErrPaymentNotFound, "payment_not_found"},
	{ErrArtworkNotFound, "artwork_not_found"},
	{ErrAuctionNotActive, "auction_not_active"},
	{ErrAuctionNotSettleable, "auction_not_settleable"},
	{ErrArtworkUnavailable, "artwork_unavailable"},
	{ErrNotExtendable, "not_extendable"},
	{ErrNoBids, "no_bids"},
	{ErrAlreadyTerminal, "already_terminal"},
	{ErrBidTooLow, "bid_too_low"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrNegativeStartingBid, "negative_starting_bid"},
	{ErrInvalidTimeRange, "invalid_time_range"},
	{ErrExtendHoursOutOfRange, "extend_hours_out_of_range"},
	{ErrMissingField, "missing_field"},
	{ErrNotWinner, "not_winner"},
	{ErrNotArtist, "not_artist"},
	{ErrAlreadyPaid, "already_paid"},
	{ErrConcurrentUpdate, "concurrent_update"},
	{ErrNotFound, "not_found"},
	{ErrInvalidState, "invalid_state"},
	{ErrValidation, "validation_failed"},
	{ErrUnauthorized, "unauthorized"},
	{ErrConflict, "conflict"},
}

// Code returns a stable snake_case name for err, used in API responses and
// metric attributes. Errors outside this package map to "internal".
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
