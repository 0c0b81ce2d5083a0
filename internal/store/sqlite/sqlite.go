// Package sqlite provides a single-file store.Driver on modernc.org/sqlite.
//
// The pool holds one connection and every transaction begins IMMEDIATE, so
// writers are serialized database-wide: a bid on one auction waits for a
// write on any other. Timestamps are stored as unix
// microseconds and amounts as decimal strings.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/jmoiron/sqlx"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/jensholdgaard/art-auction/internal/clock"
	"github.com/jensholdgaard/art-auction/internal/config"
	"github.com/jensholdgaard/art-auction/internal/store"
	"github.com/jensholdgaard/art-auction/internal/store/migrate"
	"github.com/jensholdgaard/art-auction/internal/store/sqlite/migrations"
)

func init() {
	store.Register("sqlite", openSQLite)
}

func openSQLite(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	db, err := Connect(ctx, cfg.Path)
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
		Auctions: &AuctionRepo{db: db},
		Bids:     &BidRepo{db: db},
		Payments: &PaymentRepo{db: db},
		Artworks: &ArtworkRepo{artworkQueries: artworkQueries{q: db}, db: db, clock: clk},
		Users:    &UserRepo{db: db, clock: clk},
		Events:   &EventStore{db: db},
		Closer:   db,
		Ping:     db.PingContext,
	}
}

// Open opens the database file at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	db, err := Connect(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Connect opens the database file at path without touching the schema.
func Connect(ctx context.Context, path string) (*sqlx.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate"

	sqlDB, err := otelsql.Open("sqlite", dsn,
		otelsql.WithAttributes(semconv.DBSystemSqlite),
	)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	db := sqlx.NewDb(sqlDB, "sqlite3")
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
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

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
