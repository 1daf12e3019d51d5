package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
)

const orderSelect = `
	SELECT id, tenant_id, outlet_id, customer_id, order_type, status, sequence, promotion_code,
	       subtotal, discount, total, idempotency_key, scheduled_at, stock_consumed_at,
	       created_at, updated_at
	FROM   orders`

const activeStatuses = `('PENDING', 'CONFIRMED', 'PREPARING', 'READY_FOR_PICKUP', 'OUT_FOR_DELIVERY')`

func scanOrder(row scanner) (*domain.Order, error) {
	var (
		o                    domain.Order
		scheduled, consumed  sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&o.ID, &o.TenantID, &o.OutletID, &o.CustomerID, &o.Type, &o.Status, &o.Sequence,
		&o.PromotionCode, &o.Subtotal, &o.Discount, &o.Total, &o.IdempotencyKey,
		&scheduled, &consumed, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if o.ScheduledAt, err = parseNullTime(scheduled); err != nil {
		return nil, err
	}
	if o.StockConsumedAt, err = parseNullTime(consumed); err != nil {
		return nil, err
	}
	if o.CreatedAt, err = parseRFC3339(createdAt); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = parseRFC3339(updatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func loadOrderItems(ctx context.Context, q queryer, o *domain.Order) error {
	rows, err := q.QueryContext(ctx,
		`SELECT menu_item_id, name, quantity, unit_price FROM order_items WHERE order_id = ? ORDER BY line`, o.ID)
	if err != nil {
		return fmt.Errorf("sqlite: load items of order %q: %w", o.ID, err)
	}
	defer rows.Close()

	o.Items = o.Items[:0]
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.MenuItemID, &it.Name, &it.Quantity, &it.UnitPrice); err != nil {
			return fmt.Errorf("sqlite: scan item of order %q: %w", o.ID, err)
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func getOrder(ctx context.Context, q queryer, where string, args ...any) (*domain.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, orderSelect+" WHERE "+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get order: %w", err)
	}
	if err := loadOrderItems(ctx, q, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Order returns one order with its items.
func (s *Store) Order(ctx context.Context, tenantID, orderID string) (*domain.Order, error) {
	o, err := getOrder(ctx, s.db, "tenant_id = ? AND id = ?", tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, domain.NotFound("order", orderID)
	}
	return o, nil
}

// OrderByIdempotencyKey returns the order admitted under key, or nil.
func (s *Store) OrderByIdempotencyKey(ctx context.Context, tenantID, key string) (*domain.Order, error) {
	if key == "" {
		return nil, nil
	}
	return getOrder(ctx, s.db, "tenant_id = ? AND idempotency_key = ?", tenantID, key)
}

// Admit consumes the whole demand, inserts the order as the outlet's newest sequence and
// records the redemption, all in one transaction. When stock is short nothing is written
// and the shortages are returned in the outcome.
func (s *Store) Admit(ctx context.Context, a domain.Admission) (domain.AdmitOutcome, error) {
	var out domain.AdmitOutcome
	o := a.Order

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if o.IdempotencyKey != "" {
			existing, err := getOrder(ctx, tx, "tenant_id = ? AND idempotency_key = ?", o.TenantID, o.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				if err := domain.CheckReplay(existing, o.OutletID); err != nil {
					return err
				}
				out = domain.AdmitOutcome{Order: existing, Existing: true}
				return nil
			}
		}

		if a.Promotion != nil {
			usage, err := promotionUsage(ctx, tx, o.TenantID, a.Promotion.Code, o.CustomerID)
			if err != nil {
				return err
			}
			if issue := a.Promotion.LimitIssue(usage, o.CustomerID); issue != nil {
				return &domain.ValidationError{Result: domain.ValidationResult{Errors: []domain.Issue{*issue}}}
			}
		}

		res, err := consume(ctx, tx, o.TenantID, o.OutletID, a.Demand)
		if err != nil {
			return err
		}
		out.Consumption = res
		if !res.Consumed {
			return nil
		}

		var seq int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sequence), 0) + 1 FROM orders WHERE tenant_id = ? AND outlet_id = ?`,
			o.TenantID, o.OutletID,
		).Scan(&seq); err != nil {
			return fmt.Errorf("sqlite: next sequence for %q: %w", o.OutletID, err)
		}
		o.Sequence = seq
		consumedAt := o.CreatedAt
		o.StockConsumedAt = &consumedAt

		if err := insertOrder(ctx, tx, o); err != nil {
			return err
		}
		if a.Redemption != nil {
			r := *a.Redemption
			r.OrderID = o.ID
			if err := insertRedemption(ctx, tx, r); err != nil {
				return err
			}
		}
		out.Order = o
		return nil
	})
	return out, err
}

func insertOrder(ctx context.Context, tx *sql.Tx, o *domain.Order) error {
	const stmt = `
		INSERT INTO orders
			(id, tenant_id, outlet_id, customer_id, order_type, status, sequence, promotion_code,
			 subtotal, discount, total, idempotency_key, scheduled_at, stock_consumed_at,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, stmt,
		o.ID, o.TenantID, o.OutletID, o.CustomerID, string(o.Type), string(o.Status), o.Sequence,
		o.PromotionCode, o.Subtotal.String(), o.Discount.String(), o.Total.String(), o.IdempotencyKey,
		nullableTime(o.ScheduledAt), nullableTime(o.StockConsumedAt),
		formatTime(o.CreatedAt), formatTime(o.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert order %q: %w", o.ID, err)
	}

	const line = `
		INSERT INTO order_items (order_id, line, menu_item_id, name, quantity, unit_price)
		VALUES (?, ?, ?, ?, ?, ?)`
	for i, it := range o.Items {
		if _, err := tx.ExecContext(ctx, line, o.ID, i, it.MenuItemID, it.Name, it.Quantity, it.UnitPrice.String()); err != nil {
			return fmt.Errorf("sqlite: insert line %d of order %q: %w", i, o.ID, err)
		}
	}
	return nil
}

// QueuePosition is the 1-based rank of sequence among the outlet's non-terminal orders.
func (s *Store) QueuePosition(ctx context.Context, tenantID, outletID string, sequence int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM orders
		WHERE  tenant_id = ? AND outlet_id = ? AND sequence <= ? AND status IN `+activeStatuses,
		tenantID, outletID, sequence,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: queue position in %q: %w", outletID, err)
	}
	return n, nil
}

// ActiveOrders lists the outlet's non-terminal orders oldest first with positions filled in.
func (s *Store) ActiveOrders(ctx context.Context, tenantID, outletID string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, orderSelect+`
	WHERE  tenant_id = ? AND outlet_id = ? AND status IN `+activeStatuses+`
	ORDER  BY sequence`, tenantID, outletID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list active orders of %q: %w", outletID, err)
	}

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scan order: %w", err)
		}
		o.QueuePosition = len(orders) + 1
		orders = append(orders, *o)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		if err := loadOrderItems(ctx, s.db, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// ClaimNext moves the oldest PENDING or CONFIRMED order of the outlet to PREPARING and
// returns it with the status it had before. It returns a nil order when none is waiting.
func (s *Store) ClaimNext(ctx context.Context, tenantID, outletID string, at time.Time) (*domain.Order, domain.OrderStatus, error) {
	var (
		claimed *domain.Order
		from    domain.OrderStatus
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		o, err := getOrder(ctx, tx,
			`tenant_id = ? AND outlet_id = ? AND status IN ('PENDING', 'CONFIRMED') ORDER BY sequence LIMIT 1`,
			tenantID, outletID)
		if err != nil || o == nil {
			return err
		}
		if err := updateStatus(ctx, tx, tenantID, o.ID, o.Status, domain.StatusPreparing, at); err != nil {
			return err
		}
		from = o.Status
		o.Status = domain.StatusPreparing
		o.UpdatedAt = at
		claimed = o
		return nil
	})
	return claimed, from, err
}

// UpdateStatus changes the status only if the order is still in from. A lost race returns
// an error wrapping domain.ErrConflict.
func (s *Store) UpdateStatus(ctx context.Context, tenantID, orderID string, from, to domain.OrderStatus, at time.Time) error {
	return updateStatus(ctx, s.db, tenantID, orderID, from, to, at)
}

func updateStatus(ctx context.Context, q queryer, tenantID, orderID string, from, to domain.OrderStatus, at time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE tenant_id = ? AND id = ? AND status = ?`,
		string(to), formatTime(at), tenantID, orderID, string(from),
	)
	if err != nil {
		return fmt.Errorf("sqlite: update status of %q: %w", orderID, err)
	}
	return expectOneRow(res, orderID)
}
