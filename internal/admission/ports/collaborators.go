// Package ports declares the read-only collaborators the admission engine consumes:
// the outlet directory, the promotion catalog and the menu catalog.
package ports

import (
	"context"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
)

// OutletDirectory resolves outlets of a tenant. An unknown pair returns an error
// wrapping domain.ErrNotFound.
type OutletDirectory interface {
	Outlet(ctx context.Context, tenantID, outletID string) (*domain.Outlet, error)
	Outlets(ctx context.Context, tenantID string) ([]domain.Outlet, error)
}

// PromotionCatalog looks promotions up by code.
type PromotionCatalog interface {
	Promotion(ctx context.Context, tenantID, code string) (*domain.Promotion, error)
}

// MenuCatalog exposes menu items together with their resolved recipe lines.
type MenuCatalog interface {
	MenuItem(ctx context.Context, tenantID, menuItemID string) (*domain.MenuItem, error)
	MenuItemsForOutlet(ctx context.Context, tenantID, outletID string) ([]domain.MenuItem, error)
}
