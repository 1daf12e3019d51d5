// Package catalog edits menu items. Recipe ingredient names are resolved to stable
// ingredient ids once, when the item is saved.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
	"github.com/jcmexdev/kitchen-admission/internal/admission/events"
	"github.com/jcmexdev/kitchen-admission/internal/admission/ports"
)

type Repository interface {
	EnsureIngredient(ctx context.Context, tenantID, name string) (domain.Ingredient, error)
	UpsertMenuItem(ctx context.Context, item domain.MenuItem) error
	MenuItem(ctx context.Context, tenantID, menuItemID string) (*domain.MenuItem, error)
}

type Catalog struct {
	repo    Repository
	outlets ports.OutletDirectory
	pub     events.Publisher
}

// New builds a catalog. pub may be nil.
func New(repo Repository, outlets ports.OutletDirectory, pub events.Publisher) *Catalog {
	return &Catalog{repo: repo, outlets: outlets, pub: pub}
}

// UpsertMenuItem validates the item, binds every recipe line to an ingredient id and
// stores it. An empty ID gets a fresh one. Outlets selling the item are notified so their
// availability is recomputed.
func (c *Catalog) UpsertMenuItem(ctx context.Context, item domain.MenuItem) (*domain.MenuItem, error) {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return nil, &domain.InvalidQuantityError{Field: "name", Reason: "is required"}
	}
	if item.Price.IsNegative() {
		return nil, &domain.InvalidQuantityError{Field: "price", Reason: "must not be negative"}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	for _, id := range item.OutletIDs {
		if _, err := c.outlets.Outlet(ctx, item.TenantID, id); err != nil {
			return nil, err
		}
	}

	recipe := make([]domain.RecipeLine, 0, len(item.Recipe))
	for _, line := range item.Recipe {
		if !line.QuantityPerUnit.IsPositive() {
			return nil, &domain.InvalidQuantityError{
				Field:  "quantityPerUnit",
				Reason: fmt.Sprintf("%s must be greater than zero", line.Name),
			}
		}
		if line.IngredientID == "" {
			if strings.TrimSpace(line.Name) == "" {
				return nil, &domain.InvalidQuantityError{Field: "ingredient", Reason: "name or id is required"}
			}
			ing, err := c.repo.EnsureIngredient(ctx, item.TenantID, line.Name)
			if err != nil {
				return nil, err
			}
			line.IngredientID, line.Name = ing.ID, ing.Name
		}
		line.MenuItemID = item.ID
		recipe = append(recipe, line)
	}
	item.Recipe = recipe

	if err := c.repo.UpsertMenuItem(ctx, item); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "menu item saved",
		"tenant_id", item.TenantID, "menu_item_id", item.ID, "recipe_lines", len(item.Recipe))

	c.notify(ctx, item)
	return c.repo.MenuItem(ctx, item.TenantID, item.ID)
}

func (c *Catalog) notify(ctx context.Context, item domain.MenuItem) {
	if c.pub == nil {
		return
	}
	outletIDs := item.OutletIDs
	if len(outletIDs) == 0 {
		all, err := c.outlets.Outlets(ctx, item.TenantID)
		if err != nil {
			slog.WarnContext(ctx, "cannot list outlets for catalog change", "tenant_id", item.TenantID, "error", err)
			return
		}
		for _, o := range all {
			outletIDs = append(outletIDs, o.ID)
		}
	}

	ids := make([]string, 0, len(item.Recipe))
	for _, line := range item.Recipe {
		ids = append(ids, line.IngredientID)
	}
	for _, outletID := range outletIDs {
		ev := events.StockChanged{
			TenantID:      item.TenantID,
			OutletID:      outletID,
			IngredientIDs: ids,
			Reason:        events.ReasonCatalog,
			At:            time.Now().UTC(),
		}
		if err := c.pub.Publish(ctx, ev); err != nil {
			slog.ErrorContext(ctx, "failed to publish catalog change", "outlet_id", outletID, "error", err)
		}
	}
}

type seedDoc struct {
	Tenants []struct {
		ID        string `yaml:"id"`
		MenuItems []struct {
			ID      string            `yaml:"id"`
			Name    string            `yaml:"name"`
			Price   string            `yaml:"price"`
			Outlets []string          `yaml:"outlets"`
			Recipe  map[string]string `yaml:"recipe"`
		} `yaml:"menu_items"`
	} `yaml:"tenants"`
}

// LoadFile seeds the catalog from a YAML file of the form
//
//	tenants:
//	  - id: t1
//	    menu_items:
//	      - id: margherita
//	        name: Margherita
//	        price: "120.00"
//	        outlets: [downtown]
//	        recipe: {flour: "0.25", tomato: "0.1"}
func (c *Catalog) LoadFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("catalog: read %q: %w", path, err)
	}
	var doc seedDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("catalog: decode %q: %w", path, err)
	}

	n := 0
	for _, t := range doc.Tenants {
		for _, mi := range t.MenuItems {
			price, err := decimal.NewFromString(mi.Price)
			if err != nil {
				return n, fmt.Errorf("catalog: price of %q: %w", mi.Name, err)
			}
			item := domain.MenuItem{ID: mi.ID, TenantID: t.ID, Name: mi.Name, Price: price, OutletIDs: mi.Outlets}
			names := make([]string, 0, len(mi.Recipe))
			for name := range mi.Recipe {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				q, err := decimal.NewFromString(mi.Recipe[name])
				if err != nil {
					return n, fmt.Errorf("catalog: recipe %q of %q: %w", name, mi.Name, err)
				}
				item.Recipe = append(item.Recipe, domain.RecipeLine{Name: name, QuantityPerUnit: q})
			}
			if _, err := c.UpsertMenuItem(ctx, item); err != nil {
				return n, fmt.Errorf("catalog: %q: %w", mi.Name, err)
			}
			n++
		}
	}
	return n, nil
}
