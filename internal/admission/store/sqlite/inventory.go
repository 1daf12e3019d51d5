package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
)

const itemSelect = `
	SELECT i.id, i.tenant_id, i.outlet_id, i.ingredient_id, g.name, i.unit,
	       i.current_stock, i.minimum_stock, i.maximum_stock, i.unit_cost,
	       i.last_restocked_at, i.version
	FROM   inventory_items i
	JOIN   ingredients g ON g.id = i.ingredient_id`

func scanItem(row scanner) (domain.InventoryItem, error) {
	var (
		item      domain.InventoryItem
		restocked sql.NullString
	)
	err := row.Scan(
		&item.ID, &item.TenantID, &item.OutletID, &item.IngredientID, &item.Name, &item.Unit,
		&item.CurrentStock, &item.MinimumStock, &item.MaximumStock, &item.UnitCost,
		&restocked, &item.Version,
	)
	if err != nil {
		return item, err
	}
	item.LastRestockedAt, err = parseNullTime(restocked)
	return item, err
}

func findIngredient(ctx context.Context, q queryer, tenantID, name string) (*domain.Ingredient, error) {
	const stmt = `SELECT id, tenant_id, name FROM ingredients WHERE tenant_id = ? AND normalized_name = ?`

	var ing domain.Ingredient
	err := q.QueryRowContext(ctx, stmt, tenantID, domain.NormalizeName(name)).Scan(&ing.ID, &ing.TenantID, &ing.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find ingredient %q: %w", name, err)
	}
	return &ing, nil
}

func ensureIngredient(ctx context.Context, q queryer, tenantID, name string) (domain.Ingredient, error) {
	ing, err := findIngredient(ctx, q, tenantID, name)
	if err != nil {
		return domain.Ingredient{}, err
	}
	if ing != nil {
		return *ing, nil
	}

	created := domain.Ingredient{ID: uuid.NewString(), TenantID: tenantID, Name: name}
	const stmt = `
		INSERT INTO ingredients (id, tenant_id, name, normalized_name, created_at)
		VALUES (?, ?, ?, ?, ?)`
	if _, err := q.ExecContext(ctx, stmt, created.ID, tenantID, name, domain.NormalizeName(name), formatTime(time.Now())); err != nil {
		return domain.Ingredient{}, fmt.Errorf("sqlite: create ingredient %q: %w", name, err)
	}
	return created, nil
}

// EnsureIngredient finds the tenant ingredient with the same normalized name or creates it.
func (s *Store) EnsureIngredient(ctx context.Context, tenantID, name string) (domain.Ingredient, error) {
	var ing domain.Ingredient
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		ing, err = ensureIngredient(ctx, tx, tenantID, name)
		return err
	})
	return ing, err
}

func findItem(ctx context.Context, q queryer, tenantID, outletID, ingredientID string) (*domain.InventoryItem, error) {
	row := q.QueryRowContext(ctx, itemSelect+`
	WHERE  i.tenant_id = ? AND i.outlet_id = ? AND i.ingredient_id = ?`, tenantID, outletID, ingredientID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find inventory item %q at %q: %w", ingredientID, outletID, err)
	}
	return &item, nil
}

// FindItemByName returns the outlet's record for the named ingredient, or nil when the
// outlet has never received it.
func (s *Store) FindItemByName(ctx context.Context, tenantID, outletID, name string) (*domain.InventoryItem, error) {
	row := s.db.QueryRowContext(ctx, itemSelect+`
	WHERE  i.tenant_id = ? AND i.outlet_id = ? AND g.normalized_name = ?`, tenantID, outletID, domain.NormalizeName(name))
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: find inventory item %q at %q: %w", name, outletID, err)
	}
	return &item, nil
}

// ListItems returns the inventory of one outlet, or of every outlet of the tenant when
// outletID is empty.
func (s *Store) ListItems(ctx context.Context, tenantID, outletID string) ([]domain.InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx, itemSelect+`
	WHERE  i.tenant_id = ? AND (? = '' OR i.outlet_id = ?)
	ORDER  BY i.outlet_id, g.normalized_name`, tenantID, outletID, outletID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list inventory: %w", err)
	}
	defer rows.Close()

	var items []domain.InventoryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan inventory item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ReceiveLine applies one receipt line in its own transaction: find-or-create the
// ingredient and the outlet's item, then add the quantity.
func (s *Store) ReceiveLine(ctx context.Context, tenantID, outletID string, line domain.ReceiptLine, at time.Time) (domain.InventoryItem, error) {
	var out domain.InventoryItem
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		ing, err := ensureIngredient(ctx, tx, tenantID, line.Name)
		if err != nil {
			return err
		}
		item, err := findItem(ctx, tx, tenantID, outletID, ing.ID)
		if err != nil {
			return err
		}
		if item == nil {
			out, err = createItem(ctx, tx, tenantID, outletID, ing, line, at)
			return err
		}
		out, err = restockItem(ctx, tx, *item, line, at)
		return err
	})
	return out, err
}

func createItem(ctx context.Context, tx *sql.Tx, tenantID, outletID string, ing domain.Ingredient, line domain.ReceiptLine, at time.Time) (domain.InventoryItem, error) {
	item := domain.InventoryItem{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		OutletID:        outletID,
		IngredientID:    ing.ID,
		Name:            ing.Name,
		Unit:            line.Unit,
		CurrentStock:    line.Quantity,
		UnitCost:        line.UnitCost,
		LastRestockedAt: &at,
		Version:         1,
	}
	if line.MinimumStock != nil {
		item.MinimumStock = *line.MinimumStock
	}
	if line.MaximumStock != nil {
		item.MaximumStock = *line.MaximumStock
	}
	if err := checkBounds(item); err != nil {
		return item, err
	}

	const stmt = `
		INSERT INTO inventory_items
			(id, tenant_id, outlet_id, ingredient_id, unit, current_stock, minimum_stock,
			 maximum_stock, unit_cost, last_restocked_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, stmt,
		item.ID, tenantID, outletID, ing.ID, item.Unit,
		item.CurrentStock.String(), item.MinimumStock.String(), item.MaximumStock.String(),
		item.UnitCost.String(), formatTime(at), item.Version,
	)
	if err != nil {
		return item, fmt.Errorf("sqlite: create inventory item %q at %q: %w", ing.Name, outletID, err)
	}
	return item, nil
}

func restockItem(ctx context.Context, tx *sql.Tx, item domain.InventoryItem, line domain.ReceiptLine, at time.Time) (domain.InventoryItem, error) {
	next := item
	next.CurrentStock = item.CurrentStock.Add(line.Quantity)
	next.UnitCost = line.UnitCost
	next.LastRestockedAt = &at
	next.Version = item.Version + 1
	if line.Unit != "" {
		next.Unit = line.Unit
	}
	if line.MinimumStock != nil {
		next.MinimumStock = *line.MinimumStock
	}
	if line.MaximumStock != nil {
		next.MaximumStock = *line.MaximumStock
	}
	if err := checkBounds(next); err != nil {
		return item, err
	}

	const stmt = `
		UPDATE inventory_items
		SET    current_stock = ?, unit_cost = ?, unit = ?, minimum_stock = ?, maximum_stock = ?,
		       last_restocked_at = ?, version = version + 1
		WHERE  id = ? AND version = ?`
	res, err := tx.ExecContext(ctx, stmt,
		next.CurrentStock.String(), next.UnitCost.String(), next.Unit,
		next.MinimumStock.String(), next.MaximumStock.String(), formatTime(at),
		item.ID, item.Version,
	)
	if err != nil {
		return item, fmt.Errorf("sqlite: restock %q: %w", item.Name, err)
	}
	if err := expectOneRow(res, item.Name); err != nil {
		return item, err
	}
	return next, nil
}

// checkBounds enforces minimumStock <= maximumStock when a maximum is configured.
func checkBounds(item domain.InventoryItem) error {
	if item.MaximumStock.IsPositive() && item.MinimumStock.GreaterThan(item.MaximumStock) {
		return &domain.InvalidQuantityError{
			Field:  "minimumStock",
			Reason: fmt.Sprintf("%s exceeds maximumStock %s", item.MinimumStock, item.MaximumStock),
		}
	}
	return nil
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected for %q: %w", what, err)
	}
	if n != 1 {
		return fmt.Errorf("sqlite: stale write to %q: %w", what, domain.ErrConflict)
	}
	return nil
}

// Consume performs the check-and-deduct for reqs in a single transaction.
func (s *Store) Consume(ctx context.Context, tenantID, outletID string, reqs []domain.Requirement) (domain.ConsumeResult, error) {
	var res domain.ConsumeResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		res, err = consume(ctx, tx, tenantID, outletID, reqs)
		return err
	})
	return res, err
}

// consume binds names to ingredient ids, merges duplicates, plans the deduction and, when
// every line is covered, writes each row conditionally on the version it was read at.
func consume(ctx context.Context, tx *sql.Tx, tenantID, outletID string, reqs []domain.Requirement) (domain.ConsumeResult, error) {
	bound := make([]domain.Requirement, 0, len(reqs))
	for _, r := range reqs {
		if r.IngredientID == "" {
			ing, err := findIngredient(ctx, tx, tenantID, r.Name)
			if err != nil {
				return domain.ConsumeResult{}, err
			}
			if ing != nil {
				r.IngredientID = ing.ID
			}
		}
		bound = append(bound, r)
	}
	bound = domain.MergeRequirements(bound)

	stock := make(map[string]domain.InventoryItem, len(bound))
	for _, r := range bound {
		if r.IngredientID == "" {
			continue
		}
		item, err := findItem(ctx, tx, tenantID, outletID, r.IngredientID)
		if err != nil {
			return domain.ConsumeResult{}, err
		}
		if item != nil {
			stock[r.Key()] = *item
		}
	}

	res := domain.PlanConsumption(bound, stock)
	if !res.Consumed {
		return res, nil
	}

	const stmt = `
		UPDATE inventory_items
		SET    current_stock = ?, version = version + 1
		WHERE  id = ? AND tenant_id = ? AND version = ?`
	for i, r := range bound {
		item := stock[r.Key()]
		remaining := res.Lines[i].Remaining
		if remaining.LessThan(decimal.Zero) {
			return domain.ConsumeResult{}, fmt.Errorf("sqlite: negative stock for %q", item.Name)
		}
		out, err := tx.ExecContext(ctx, stmt, remaining.String(), item.ID, tenantID, item.Version)
		if err != nil {
			return domain.ConsumeResult{}, fmt.Errorf("sqlite: deduct %q: %w", item.Name, err)
		}
		if err := expectOneRow(out, item.Name); err != nil {
			return domain.ConsumeResult{}, err
		}
	}
	return res, nil
}
