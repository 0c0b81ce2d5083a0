package event

import "context"

// Store reads the audit trail. Events are written only together with the
// auction change they describe, inside the store's per-auction transaction.
type Store interface {
	// Load returns all events for an aggregate, ordered by version.
	Load(ctx context.Context, aggregateID string) ([]Event, error)
	// LoadByType returns events filtered by type, oldest first.
	LoadByType(ctx context.Context, eventType Type) ([]Event, error)
}
