package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
)

// UpsertMenuItem replaces a menu item and its recipe. Every recipe line must already carry
// an ingredient id.
func (s *Store) UpsertMenuItem(ctx context.Context, item domain.MenuItem) error {
	outlets, err := json.Marshal(nonNil(item.OutletIDs))
	if err != nil {
		return fmt.Errorf("sqlite: encode outlets of %q: %w", item.ID, err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		const upsert = `
			INSERT INTO menu_items (tenant_id, id, name, price, outlet_ids, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (tenant_id, id) DO UPDATE SET
				name = excluded.name, price = excluded.price,
				outlet_ids = excluded.outlet_ids, updated_at = excluded.updated_at`
		if _, err := tx.ExecContext(ctx, upsert,
			item.TenantID, item.ID, item.Name, item.Price.String(), string(outlets), formatTime(time.Now()),
		); err != nil {
			return fmt.Errorf("sqlite: upsert menu item %q: %w", item.ID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM recipe_lines WHERE tenant_id = ? AND menu_item_id = ?`, item.TenantID, item.ID,
		); err != nil {
			return fmt.Errorf("sqlite: clear recipe of %q: %w", item.ID, err)
		}

		const insertLine = `
			INSERT INTO recipe_lines (tenant_id, menu_item_id, ingredient_id, quantity_per_unit, position)
			VALUES (?, ?, ?, ?, ?)`
		for i, line := range item.Recipe {
			if line.IngredientID == "" {
				return fmt.Errorf("sqlite: recipe line %q of %q is not bound to an ingredient", line.Name, item.ID)
			}
			if _, err := tx.ExecContext(ctx, insertLine,
				item.TenantID, item.ID, line.IngredientID, line.QuantityPerUnit.String(), i,
			); err != nil {
				return fmt.Errorf("sqlite: insert recipe line %q of %q: %w", line.Name, item.ID, err)
			}
		}
		return nil
	})
}

// MenuItem returns one item with its recipe.
func (s *Store) MenuItem(ctx context.Context, tenantID, menuItemID string) (*domain.MenuItem, error) {
	items, err := s.menuItems(ctx, tenantID, menuItemID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.NotFound("menu item", menuItemID)
	}
	return &items[0], nil
}

// MenuItems lists every item of the tenant.
func (s *Store) MenuItems(ctx context.Context, tenantID string) ([]domain.MenuItem, error) {
	return s.menuItems(ctx, tenantID, "")
}

// MenuItemsForOutlet lists the items sold at the outlet, including unscoped ones.
func (s *Store) MenuItemsForOutlet(ctx context.Context, tenantID, outletID string) ([]domain.MenuItem, error) {
	all, err := s.menuItems(ctx, tenantID, "")
	if err != nil {
		return nil, err
	}
	offered := make([]domain.MenuItem, 0, len(all))
	for _, item := range all {
		if item.OfferedAt(outletID) {
			offered = append(offered, item)
		}
	}
	return offered, nil
}

func (s *Store) menuItems(ctx context.Context, tenantID, menuItemID string) ([]domain.MenuItem, error) {
	const q = `
		SELECT id, tenant_id, name, price, outlet_ids
		FROM   menu_items
		WHERE  tenant_id = ? AND (? = '' OR id = ?)
		ORDER  BY name, id`
	rows, err := s.db.QueryContext(ctx, q, tenantID, menuItemID, menuItemID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list menu items: %w", err)
	}

	var (
		items []domain.MenuItem
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			item    domain.MenuItem
			outlets string
		)
		if err := rows.Scan(&item.ID, &item.TenantID, &item.Name, &item.Price, &outlets); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scan menu item: %w", err)
		}
		if err := json.Unmarshal([]byte(outlets), &item.OutletIDs); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: decode outlets of %q: %w", item.ID, err)
		}
		index[item.ID] = len(items)
		items = append(items, item)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	// Rows must be closed before the next query: the pool has one connection.
	lines, err := s.recipeLines(ctx, tenantID, menuItemID)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		if i, ok := index[line.MenuItemID]; ok {
			items[i].Recipe = append(items[i].Recipe, line)
		}
	}
	return items, nil
}

func (s *Store) recipeLines(ctx context.Context, tenantID, menuItemID string) ([]domain.RecipeLine, error) {
	const q = `
		SELECT r.menu_item_id, r.ingredient_id, g.name, r.quantity_per_unit
		FROM   recipe_lines r
		JOIN   ingredients g ON g.id = r.ingredient_id
		WHERE  r.tenant_id = ? AND (? = '' OR r.menu_item_id = ?)
		ORDER  BY r.menu_item_id, r.position`
	rows, err := s.db.QueryContext(ctx, q, tenantID, menuItemID, menuItemID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list recipe lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.RecipeLine
	for rows.Next() {
		var line domain.RecipeLine
		if err := rows.Scan(&line.MenuItemID, &line.IngredientID, &line.Name, &line.QuantityPerUnit); err != nil {
			return nil, fmt.Errorf("sqlite: scan recipe line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
