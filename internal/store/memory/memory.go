// Package memory provides a store.Driver that keeps everything in process
// memory. Each auction has its own mutex, so work on different auctions never
// contends. Data is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jensholdgaard/art-auction/internal/auction"
	"github.com/jensholdgaard/art-auction/internal/clock"
	"github.com/jensholdgaard/art-auction/internal/config"
	"github.com/jensholdgaard/art-auction/internal/event"
	"github.com/jensholdgaard/art-auction/internal/store"
)

func init() {
	store.Register("memory", openMemory)
}

func openMemory(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	return New(clk).Repositories(), nil
}

// entry holds one auction and everything it owns.
type entry struct {
	created time.Time

	mu      sync.Mutex
	deleted bool
	auction auction.Auction
	bids    []auction.Bid
	payment *auction.Payment
	events  []event.Event
}

// DB is the shared state behind all memory repositories.
type DB struct {
	clock clock.Clock

	mu      sync.RWMutex
	entries map[string]*entry

	catalogMu sync.RWMutex
	artworks  map[string]*store.Artwork
	users     map[string]*store.User
}

// New returns an empty DB.
func New(clk clock.Clock) *DB {
	return &DB{
		clock:    clk,
		entries:  make(map[string]*entry),
		artworks: make(map[string]*store.Artwork),
		users:    make(map[string]*store.User),
	}
}

// Repositories exposes db through the store interfaces.
func (db *DB) Repositories() *store.Repositories {
	return &store.Repositories{
		Auctions: &AuctionRepo{db: db},
		Bids:     &BidRepo{db: db},
		Payments: &PaymentRepo{db: db},
		Artworks: &ArtworkRepo{db: db},
		Users:    &UserRepo{db: db},
		Events:   &EventStore{db: db},
		Ping:     func(context.Context) error { return nil },
	}
}

func (db *DB) entry(id string) (*entry, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	e, ok := db.entries[id]
	return e, ok
}

// snapshot returns the live entries in creation order.
func (db *DB) snapshot() []*entry {
	db.mu.RLock()
	out := make([]*entry, 0, len(db.entries))
	for _, e := range db.entries {
		out = append(out, e)
	}
	db.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].created.Before(out[j].created)
	})
	return out
}

// each calls fn for every live entry while holding that entry's lock.
func (db *DB) each(fn func(e *entry)) {
	for _, e := range db.snapshot() {
		e.mu.Lock()
		if !e.deleted {
			fn(e)
		}
		e.mu.Unlock()
	}
}
