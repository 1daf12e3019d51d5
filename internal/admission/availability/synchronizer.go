// Package availability derives per-outlet menu availability from the stock ledger and
// the outlet's opening hours, and serves the cached outlet menu.
package availability

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
	"github.com/jcmexdev/kitchen-admission/internal/admission/ports"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/cache"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/keymutex"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/metrics"
)

const menuTTL = 5 * time.Minute

var tracer = otel.Tracer("kitchen-admission/availability")

// Repository persists one availability row per (tenant, outlet, menu item).
type Repository interface {
	AvailabilityForOutlet(ctx context.Context, tenantID, outletID string) (map[string]domain.MenuAvailability, error)
	SaveAvailability(ctx context.Context, rows []domain.MenuAvailability) error
}

// StockChecker is the read side of the ledger.
type StockChecker interface {
	CheckAvailability(ctx context.Context, tenantID, outletID, name string, required decimal.Decimal) (domain.Availability, error)
}

type Synchronizer struct {
	repo    Repository
	menu    ports.MenuCatalog
	stock   StockChecker
	outlets ports.OutletDirectory
	cache   cache.Cache
	metrics *metrics.Metrics
	locks   *keymutex.KeyMutex
	now     func() time.Time
}

// New builds a synchronizer. c may be nil to disable the menu cache.
func New(repo Repository, menu ports.MenuCatalog, stock StockChecker, outlets ports.OutletDirectory, c cache.Cache, m *metrics.Metrics) *Synchronizer {
	return &Synchronizer{
		repo:    repo,
		menu:    menu,
		stock:   stock,
		outlets: outlets,
		cache:   c,
		metrics: m,
		locks:   keymutex.New(),
		now:     time.Now,
	}
}

// RecomputeForOutlet re-evaluates the inventory gate of every item sold at the outlet and
// returns the items whose combined availability changed. An item is unavailable when any
// of its ingredients is at or below its minimum or cannot cover one unit.
func (s *Synchronizer) RecomputeForOutlet(ctx context.Context, tenantID, outletID string) ([]domain.MenuAvailability, error) {
	ctx, span := tracer.Start(ctx, "availability.RecomputeForOutlet")
	defer span.End()
	span.SetAttributes(attribute.String("tenant.id", tenantID), attribute.String("outlet.id", outletID))

	if _, err := s.outlets.Outlet(ctx, tenantID, outletID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(tenantID + "/" + outletID)
	defer unlock()

	items, err := s.menu.MenuItemsForOutlet(ctx, tenantID, outletID)
	if err != nil {
		return nil, err
	}

	// Ingredients shared by several items are checked once per pass.
	verdicts := map[string]bool{}
	inventoryGate := func(item domain.MenuItem) (bool, error) {
		for _, req := range domain.MergeRequirements(item.Requirements(1)) {
			key := req.Key() + "@" + req.Quantity.String()
			ok, seen := verdicts[key]
			if !seen {
				a, err := s.stock.CheckAvailability(ctx, tenantID, outletID, req.Name, req.Quantity)
				if err != nil {
					return false, err
				}
				ok = a.Available && a.CurrentStock.GreaterThan(a.MinimumStock)
				verdicts[key] = ok
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}

	changed, err := s.update(ctx, tenantID, outletID, items, func(item domain.MenuItem, row *domain.MenuAvailability) error {
		ok, err := inventoryGate(item)
		row.InventoryAvailable = ok
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AvailabilityChanged("inventory", len(changed))
	span.SetAttributes(attribute.Int("availability.changed", len(changed)))
	return changed, nil
}

// ApplyTimeWindow sets the time gate of every item sold at the outlet from the outlet's
// opening hours at the current instant and returns the items whose combined availability
// changed. Items reopen only when their inventory gate is also open.
func (s *Synchronizer) ApplyTimeWindow(ctx context.Context, tenantID, outletID string) ([]domain.MenuAvailability, error) {
	ctx, span := tracer.Start(ctx, "availability.ApplyTimeWindow")
	defer span.End()

	outlet, err := s.outlets.Outlet(ctx, tenantID, outletID)
	if err != nil {
		return nil, err
	}
	open := outlet.IsOpen(s.now())
	span.SetAttributes(attribute.String("outlet.id", outletID), attribute.Bool("outlet.open", open))

	unlock := s.locks.Lock(tenantID + "/" + outletID)
	defer unlock()

	items, err := s.menu.MenuItemsForOutlet(ctx, tenantID, outletID)
	if err != nil {
		return nil, err
	}

	changed, err := s.update(ctx, tenantID, outletID, items, func(_ domain.MenuItem, row *domain.MenuAvailability) error {
		row.TimeAvailable = open
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AvailabilityChanged("time_window", len(changed))
	return changed, nil
}

// update applies gate to the stored row of every item, persists the rows and reports the
// ones whose combined flag flipped. Items without a row start fully available.
func (s *Synchronizer) update(
	ctx context.Context,
	tenantID, outletID string,
	items []domain.MenuItem,
	gate func(domain.MenuItem, *domain.MenuAvailability) error,
) ([]domain.MenuAvailability, error) {
	current, err := s.repo.AvailabilityForOutlet(ctx, tenantID, outletID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rows := make([]domain.MenuAvailability, 0, len(items))
	var changed []domain.MenuAvailability
	for _, item := range items {
		prev, existed := current[item.ID]
		if !existed {
			prev = domain.MenuAvailability{InventoryAvailable: true, TimeAvailable: true, IsAvailable: true}
		}
		row := prev
		row.TenantID, row.OutletID, row.MenuItemID = tenantID, outletID, item.ID
		row.Name, row.Price = item.Name, item.Price.StringFixed(2)
		if err := gate(item, &row); err != nil {
			return nil, err
		}
		row.IsAvailable = row.InventoryAvailable && row.TimeAvailable
		row.UpdatedAt = now
		rows = append(rows, row)
		if row.IsAvailable != prev.IsAvailable {
			changed = append(changed, row)
		}
	}

	if err := s.repo.SaveAvailability(ctx, rows); err != nil {
		return nil, err
	}
	s.invalidate(ctx, tenantID, outletID)

	if len(changed) > 0 {
		slog.InfoContext(ctx, "menu availability changed",
			"tenant_id", tenantID, "outlet_id", outletID, "changed", len(changed))
	}
	return changed, nil
}

// Availability returns the stored rows of one outlet keyed by menu item.
func (s *Synchronizer) Availability(ctx context.Context, tenantID, outletID string) (map[string]domain.MenuAvailability, error) {
	return s.repo.AvailabilityForOutlet(ctx, tenantID, outletID)
}

// Menu lists the outlet's items with their availability, served from the cache when
// possible. Items never evaluated trigger a recompute first.
func (s *Synchronizer) Menu(ctx context.Context, tenantID, outletID string) ([]domain.MenuAvailability, error) {
	if _, err := s.outlets.Outlet(ctx, tenantID, outletID); err != nil {
		return nil, err
	}
	if menu, ok := s.cached(ctx, tenantID, outletID); ok {
		return menu, nil
	}

	unlock := s.locks.Lock("menu:" + tenantID + "/" + outletID)
	defer unlock()

	// Another goroutine may have filled the cache while we waited.
	if menu, ok := s.cached(ctx, tenantID, outletID); ok {
		return menu, nil
	}

	menu, err := s.loadMenu(ctx, tenantID, outletID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if b, err := json.Marshal(menu); err == nil {
			if err := s.cache.Set(ctx, s.menuKey(tenantID, outletID), string(b), menuTTL); err != nil {
				slog.WarnContext(ctx, "failed to cache menu", "outlet_id", outletID, "error", err)
			}
		}
	}
	return menu, nil
}

func (s *Synchronizer) loadMenu(ctx context.Context, tenantID, outletID string) ([]domain.MenuAvailability, error) {
	items, err := s.menu.MenuItemsForOutlet(ctx, tenantID, outletID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.AvailabilityForOutlet(ctx, tenantID, outletID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if _, ok := rows[item.ID]; !ok {
			if _, err := s.RecomputeForOutlet(ctx, tenantID, outletID); err != nil {
				return nil, err
			}
			if rows, err = s.repo.AvailabilityForOutlet(ctx, tenantID, outletID); err != nil {
				return nil, err
			}
			break
		}
	}

	menu := make([]domain.MenuAvailability, 0, len(items))
	for _, item := range items {
		row := rows[item.ID]
		row.Name, row.Price = item.Name, item.Price.StringFixed(2)
		menu = append(menu, row)
	}
	return menu, nil
}

func (s *Synchronizer) cached(ctx context.Context, tenantID, outletID string) ([]domain.MenuAvailability, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, s.menuKey(tenantID, outletID))
	if err != nil {
		slog.WarnContext(ctx, "menu cache read failed", "outlet_id", outletID, "error", err)
		return nil, false
	}
	if raw == "" {
		return nil, false
	}
	var menu []domain.MenuAvailability
	if err := json.Unmarshal([]byte(raw), &menu); err != nil {
		return nil, false
	}
	return menu, true
}

func (s *Synchronizer) invalidate(ctx context.Context, tenantID, outletID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.menuKey(tenantID, outletID)); err != nil {
		slog.WarnContext(ctx, "failed to invalidate menu cache", "outlet_id", outletID, "error", err)
	}
}

func (s *Synchronizer) menuKey(tenantID, outletID string) string {
	return s.cache.Key("menu", tenantID, outletID)
}
