// Package postgres provides the store.Driver backed by Postgres through sqlx
// and lib/pq. Per-auction serialization uses SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/jensholdgaard/art-auction/internal/clock"
	"github.com/jensholdgaard/art-auction/internal/config"
	"github.com/jensholdgaard/art-auction/internal/store"
	"github.com/jensholdgaard/art-auction/internal/store/migrate"
	"github.com/jensholdgaard/art-auction/internal/store/postgres/migrations"
)

func init() {
	store.Register("postgres", openPostgres)
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return NewRepositories(db, clk), nil
}

// NewRepositories wires every repository onto db.
func NewRepositories(db *sqlx.DB, clk clock.Clock) *store.Repositories {
	return &store.Repositories{
		Auctions: NewAuctionRepo(db),
		Bids:     NewBidRepo(db),
		Payments: NewPaymentRepo(db),
		Artworks: NewArtworkRepo(db, clk),
		Users:    NewUserRepo(db, clk),
		Events:   NewEventStore(db),
		Closer:   db,
		Ping:     db.PingContext,
	}
}

// Connect opens and verifies a Postgres connection with OTEL instrumentation.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	sqlDB, err := otelsql.Open("postgres", cfg.DSN(),
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// sqlx needs the real driver name to pick the $N bindvar.
	db := sqlx.NewDb(sqlDB, "postgres")
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return db, nil
}

// Migrate applies the embedded schema.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if err := migrate.Apply(ctx, db, migrations.FS); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
