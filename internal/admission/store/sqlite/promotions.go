package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
)

// PromotionUsage counts the persisted redemptions of code, overall and for customerID.
func (s *Store) PromotionUsage(ctx context.Context, tenantID, code, customerID string) (domain.PromotionUsage, error) {
	return promotionUsage(ctx, s.db, tenantID, code, customerID)
}

func promotionUsage(ctx context.Context, q queryer, tenantID, code, customerID string) (domain.PromotionUsage, error) {
	const stmt = `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN customer_id <> '' AND customer_id = ? THEN 1 ELSE 0 END), 0)
		FROM   promotion_redemptions
		WHERE  tenant_id = ? AND code = ?`
	var u domain.PromotionUsage
	if err := q.QueryRowContext(ctx, stmt, customerID, tenantID, strings.ToUpper(code)).Scan(&u.Total, &u.Customer); err != nil {
		return u, fmt.Errorf("sqlite: count redemptions of %q: %w", code, err)
	}
	return u, nil
}

func insertRedemption(ctx context.Context, tx *sql.Tx, r domain.Redemption) error {
	const stmt = `
		INSERT INTO promotion_redemptions (tenant_id, code, customer_id, order_id, redeemed_at)
		VALUES (?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, stmt,
		r.TenantID, strings.ToUpper(r.Code), r.CustomerID, r.OrderID, formatTime(r.At),
	); err != nil {
		return fmt.Errorf("sqlite: record redemption of %q: %w", r.Code, err)
	}
	return nil
}
