package auction

import "context"

// ArtworkModeration is the view the engine needs of the artwork catalogue.
// Moderation itself happens elsewhere.
type ArtworkModeration interface {
	IsApproved(ctx context.Context, artworkID string) (bool, error)
	IsSold(ctx context.Context, artworkID string) (bool, error)
	ArtistID(ctx context.Context, artworkID string) (string, error)
	// MarkSold flags the artwork as sold. Settlement calls it on the
	// transaction-scoped view so the flag commits with the payment.
	MarkSold(ctx context.Context, artworkID string) error
}

// UserDirectory answers whether a user account exists.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
}
