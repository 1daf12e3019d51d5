// Package sqlite is the transactional store of the admission engine. Every table is
// scoped by tenant_id. Quantities and money are decimal TEXT; arithmetic happens in Go
// and writes to inventory rows are conditional on the row version.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Pure-Go driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS ingredients (
    id              TEXT PRIMARY KEY,
    tenant_id       TEXT NOT NULL,
    name            TEXT NOT NULL,
    normalized_name TEXT NOT NULL,
    created_at      TEXT NOT NULL,
    UNIQUE (tenant_id, normalized_name)
);

CREATE TABLE IF NOT EXISTS inventory_items (
    id                TEXT PRIMARY KEY,
    tenant_id         TEXT    NOT NULL,
    outlet_id         TEXT    NOT NULL,
    ingredient_id     TEXT    NOT NULL REFERENCES ingredients(id),
    unit              TEXT    NOT NULL DEFAULT '',
    current_stock     TEXT    NOT NULL DEFAULT '0',
    minimum_stock     TEXT    NOT NULL DEFAULT '0',
    maximum_stock     TEXT    NOT NULL DEFAULT '0',
    unit_cost         TEXT    NOT NULL DEFAULT '0',
    last_restocked_at TEXT,
    -- Bumped on every stock write; writers update WHERE version = the value they read.
    version           INTEGER NOT NULL DEFAULT 1,
    UNIQUE (tenant_id, outlet_id, ingredient_id)
);

CREATE INDEX IF NOT EXISTS idx_inventory_items_outlet ON inventory_items(tenant_id, outlet_id);

CREATE TABLE IF NOT EXISTS menu_items (
    tenant_id  TEXT NOT NULL,
    id         TEXT NOT NULL,
    name       TEXT NOT NULL,
    price      TEXT NOT NULL,
    -- JSON array; empty means every outlet of the tenant.
    outlet_ids TEXT NOT NULL DEFAULT '[]',
    updated_at TEXT NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS recipe_lines (
    tenant_id         TEXT    NOT NULL,
    menu_item_id      TEXT    NOT NULL,
    ingredient_id     TEXT    NOT NULL REFERENCES ingredients(id),
    quantity_per_unit TEXT    NOT NULL,
    position          INTEGER NOT NULL,
    PRIMARY KEY (tenant_id, menu_item_id, ingredient_id)
);

CREATE TABLE IF NOT EXISTS menu_availability (
    tenant_id           TEXT    NOT NULL,
    outlet_id           TEXT    NOT NULL,
    menu_item_id        TEXT    NOT NULL,
    inventory_available INTEGER NOT NULL,
    time_available      INTEGER NOT NULL,
    is_available        INTEGER NOT NULL,
    updated_at          TEXT    NOT NULL,
    PRIMARY KEY (tenant_id, outlet_id, menu_item_id)
);

CREATE TABLE IF NOT EXISTS orders (
    id                TEXT PRIMARY KEY,
    tenant_id         TEXT    NOT NULL,
    outlet_id         TEXT    NOT NULL,
    customer_id       TEXT    NOT NULL DEFAULT '',
    order_type        TEXT    NOT NULL,
    status            TEXT    NOT NULL,
    sequence          INTEGER NOT NULL,
    promotion_code    TEXT    NOT NULL DEFAULT '',
    subtotal          TEXT    NOT NULL,
    discount          TEXT    NOT NULL,
    total             TEXT    NOT NULL,
    idempotency_key   TEXT    NOT NULL DEFAULT '',
    scheduled_at      TEXT,
    stock_consumed_at TEXT,
    created_at        TEXT    NOT NULL,
    updated_at        TEXT    NOT NULL,
    UNIQUE (tenant_id, outlet_id, sequence)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_idempotency
    ON orders(tenant_id, idempotency_key) WHERE idempotency_key <> '';

CREATE INDEX IF NOT EXISTS idx_orders_queue ON orders(tenant_id, outlet_id, status, sequence);

CREATE TABLE IF NOT EXISTS order_items (
    order_id     TEXT    NOT NULL REFERENCES orders(id),
    line         INTEGER NOT NULL,
    menu_item_id TEXT    NOT NULL,
    name         TEXT    NOT NULL,
    quantity     INTEGER NOT NULL,
    unit_price   TEXT    NOT NULL,
    PRIMARY KEY (order_id, line)
);

CREATE TABLE IF NOT EXISTS promotion_redemptions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id   TEXT NOT NULL,
    code        TEXT NOT NULL,
    customer_id TEXT NOT NULL DEFAULT '',
    order_id    TEXT NOT NULL,
    redeemed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_promotion_redemptions_code
    ON promotion_redemptions(tenant_id, code, customer_id);
`

// Store implements the ledger, queue, availability and catalog repositories.
type Store struct {
	db *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// Open opens (or creates) the database at path with WAL enabled and applies the schema.
//
//	store, err := sqlite.Open("./data/admission.db")
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// One connection serializes writers inside this process; the version column
	// guards against writers in other processes sharing the file.
	db.SetMaxOpenConns(1)

	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New applies the schema to an already opened database.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the handle so other adapters (status log) can share the file.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction. Queries inside fn must go through tx: the pool holds a
// single connection.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
