package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/susu3304/coffeebot/internal/coffee"
)

type DB struct {
	pool *pgxpool.Pool
}

var _ coffee.Store = (*DB)(nil)

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// RunMigrations creates the schema if it does not exist yet.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS people (
	id UUID PRIMARY KEY,
	external_id TEXT UNIQUE,
	display_name TEXT NOT NULL UNIQUE,
	disabled BOOLEAN NOT NULL DEFAULT FALSE,
	archived BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS cards (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	total_units INTEGER NOT NULL CHECK (total_units > 0),
	remaining_units INTEGER NOT NULL CHECK (remaining_units >= 0 AND remaining_units <= total_units),
	unit_cost BIGINT NOT NULL CHECK (unit_cost > 0),
	purchaser_id UUID NOT NULL REFERENCES people(id),
	active BOOLEAN NOT NULL DEFAULT TRUE,
	consumer_stats JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_cards_active ON cards(active, created_at);

CREATE TABLE IF NOT EXISTS sessions (
	id UUID PRIMARY KEY,
	initiator_id UUID NOT NULL,
	participants UUID[] NOT NULL DEFAULT '{}',
	card_snapshot UUID[] NOT NULL DEFAULT '{}',
	group_state JSONB NOT NULL,
	status TEXT NOT NULL,
	submitted_by UUID,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_single_active ON sessions((status)) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS orders (
	id UUID PRIMARY KEY,
	consumer_id UUID NOT NULL,
	initiator_id UUID NOT NULL,
	session_id UUID REFERENCES sessions(id),
	cards_used JSONB NOT NULL,
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	from_session BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_consumer ON orders(consumer_id);

CREATE TABLE IF NOT EXISTS debts (
	id UUID PRIMARY KEY,
	debtor_id UUID NOT NULL,
	creditor_id UUID NOT NULL,
	card_id UUID NOT NULL REFERENCES cards(id),
	total_units INTEGER NOT NULL,
	unit_cost BIGINT NOT NULL,
	total_amount BIGINT NOT NULL,
	paid_amount BIGINT NOT NULL DEFAULT 0 CHECK (paid_amount >= 0),
	settled BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	settled_at TIMESTAMPTZ,
	UNIQUE (debtor_id, card_id)
);
CREATE INDEX IF NOT EXISTS idx_debts_pair ON debts(debtor_id, creditor_id) WHERE NOT settled;

CREATE TABLE IF NOT EXISTS payments (
	id UUID PRIMARY KEY,
	payer_id UUID NOT NULL,
	recipient_id UUID NOT NULL,
	amount BIGINT NOT NULL CHECK (amount > 0),
	method TEXT NOT NULL,
	debt_ids UUID[] NOT NULL DEFAULT '{}',
	description TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
`

// notFound maps pgx's missing-row error onto the domain sentinel.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, coffee.ErrNotFound)
	}
	return err
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
