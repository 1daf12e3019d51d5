// Package sqlite stores the order status history in SQLite. It can share the admission
// store's database handle or open its own file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
	"github.com/jcmexdev/kitchen-admission/internal/admission/statuslog"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS order_status_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant_id   TEXT NOT NULL,
    order_id    TEXT NOT NULL,
    outlet_id   TEXT NOT NULL,
    from_status TEXT NOT NULL DEFAULT '',
    to_status   TEXT NOT NULL,
    reason      TEXT NOT NULL DEFAULT '',
    trace_id    TEXT NOT NULL DEFAULT '',
    span_id     TEXT NOT NULL DEFAULT '',
    at          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_status_log_order ON order_status_log(tenant_id, order_id, id);
CREATE INDEX IF NOT EXISTS idx_order_status_log_trace ON order_status_log(trace_id);
`

const timeFormat = "2006-01-02T15:04:05.000000000Z"

type Repository struct {
	db    *sql.DB
	owned bool
}

// Open opens (or creates) a dedicated database file.
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	r, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	r.owned = true
	return r, nil
}

// New applies the schema on an existing handle. Close does not close a shared handle.
func New(db *sql.DB) (*Repository, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("sqlite: apply status log schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if !r.owned {
		return nil
	}
	return r.db.Close()
}

// Save appends an entry. It is safe to call concurrently.
func (r *Repository) Save(ctx context.Context, e *statuslog.Entry) error {
	const q = `
		INSERT INTO order_status_log
			(tenant_id, order_id, outlet_id, from_status, to_status, reason, trace_id, span_id, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		e.TenantID, e.OrderID, e.OutletID, string(e.From), string(e.To), e.Reason,
		e.TraceID, e.SpanID, e.At.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save status log for %q: %w", e.OrderID, err)
	}
	return nil
}

// History returns the entries of one order, oldest first.
func (r *Repository) History(ctx context.Context, tenantID, orderID string) ([]statuslog.Entry, error) {
	const q = `
		SELECT order_id, tenant_id, outlet_id, from_status, to_status, reason, trace_id, span_id, at
		FROM   order_status_log
		WHERE  tenant_id = ? AND order_id = ?
		ORDER  BY id`
	rows, err := r.db.QueryContext(ctx, q, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: history of %q: %w", orderID, err)
	}
	defer rows.Close()

	entries := []statuslog.Entry{}
	for rows.Next() {
		var (
			e        statuslog.Entry
			from, to string
			at       string
		)
		if err := rows.Scan(&e.OrderID, &e.TenantID, &e.OutletID, &from, &to, &e.Reason,
			&e.TraceID, &e.SpanID, &at); err != nil {
			return nil, fmt.Errorf("sqlite: scan status log: %w", err)
		}
		e.From, e.To = domain.OrderStatus(from), domain.OrderStatus(to)
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("sqlite: parse time %q: %w", at, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
