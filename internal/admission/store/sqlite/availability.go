package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
)

// AvailabilityForOutlet returns the stored availability rows of one outlet keyed by menu item.
func (s *Store) AvailabilityForOutlet(ctx context.Context, tenantID, outletID string) (map[string]domain.MenuAvailability, error) {
	const q = `
		SELECT tenant_id, outlet_id, menu_item_id, inventory_available, time_available,
		       is_available, updated_at
		FROM   menu_availability
		WHERE  tenant_id = ? AND outlet_id = ?`
	rows, err := s.db.QueryContext(ctx, q, tenantID, outletID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list availability of %q: %w", outletID, err)
	}
	defer rows.Close()

	out := make(map[string]domain.MenuAvailability)
	for rows.Next() {
		var (
			a         domain.MenuAvailability
			updatedAt string
		)
		if err := rows.Scan(&a.TenantID, &a.OutletID, &a.MenuItemID,
			&a.InventoryAvailable, &a.TimeAvailable, &a.IsAvailable, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan availability: %w", err)
		}
		if a.UpdatedAt, err = parseRFC3339(updatedAt); err != nil {
			return nil, err
		}
		out[a.MenuItemID] = a
	}
	return out, rows.Err()
}

// SaveAvailability upserts availability rows in one transaction.
func (s *Store) SaveAvailability(ctx context.Context, rows []domain.MenuAvailability) error {
	if len(rows) == 0 {
		return nil
	}
	const stmt = `
		INSERT INTO menu_availability
			(tenant_id, outlet_id, menu_item_id, inventory_available, time_available, is_available, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, outlet_id, menu_item_id) DO UPDATE SET
			inventory_available = excluded.inventory_available,
			time_available      = excluded.time_available,
			is_available        = excluded.is_available,
			updated_at          = excluded.updated_at`
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, a := range rows {
			if _, err := tx.ExecContext(ctx, stmt,
				a.TenantID, a.OutletID, a.MenuItemID,
				boolInt(a.InventoryAvailable), boolInt(a.TimeAvailable), boolInt(a.IsAvailable),
				formatTime(a.UpdatedAt),
			); err != nil {
				return fmt.Errorf("sqlite: save availability of %q at %q: %w", a.MenuItemID, a.OutletID, err)
			}
		}
		return nil
	})
}
