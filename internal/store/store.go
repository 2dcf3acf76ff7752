package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id                    TEXT PRIMARY KEY,
		product_id            TEXT NOT NULL,
		seller_id             TEXT NOT NULL,
		buyer_id              TEXT NOT NULL,
		state                 TEXT NOT NULL DEFAULT 'AWAITING_PAYMENT',
		cancelled_at          TIMESTAMPTZ,
		shipping_address      TEXT NOT NULL DEFAULT '',
		payment_proof         TEXT NOT NULL DEFAULT '',
		buyer_note            TEXT NOT NULL DEFAULT '',
		shipping_proof        TEXT NOT NULL DEFAULT '',
		seller_note           TEXT NOT NULL DEFAULT '',
		payment_confirmed     BOOLEAN NOT NULL DEFAULT FALSE,
		shipped               BOOLEAN NOT NULL DEFAULT FALSE,
		buyer_rating_score    SMALLINT,
		buyer_rating_comment  TEXT NOT NULL DEFAULT '',
		buyer_rating_at       TIMESTAMPTZ,
		seller_rating_score   SMALLINT,
		seller_rating_comment TEXT NOT NULL DEFAULT '',
		seller_rating_at      TIMESTAMPTZ,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// one order per completed auction
	`CREATE UNIQUE INDEX IF NOT EXISTS orders_auction_uniq
		ON orders (product_id, buyer_id, seller_id)`,
	`CREATE INDEX IF NOT EXISTS orders_buyer_idx ON orders (buyer_id)`,
	`CREATE INDEX IF NOT EXISTS orders_seller_idx ON orders (seller_id)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id         TEXT PRIMARY KEY,
		order_id   TEXT NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
		sender_id  TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL,
		is_admin   BOOLEAN NOT NULL DEFAULT FALSE,
		seq        BIGSERIAL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS chat_messages_order_idx ON chat_messages (order_id, seq)`,
	`CREATE TABLE IF NOT EXISTS reputation_entries (
		order_id      TEXT NOT NULL,
		rated_user_id TEXT NOT NULL,
		score         SMALLINT NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (order_id, rated_user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS reputation_entries_user_idx ON reputation_entries (rated_user_id)`,
	`CREATE TABLE IF NOT EXISTS processed_events (
		event_id     TEXT PRIMARY KEY,
		event_type   TEXT NOT NULL,
		processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// IsEventProcessed checks if a broker event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks a broker event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
