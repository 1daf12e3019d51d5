package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecipeLine binds a menu item to an ingredient by stable id. Name is kept for display
// and for the name-based ledger operations.
type RecipeLine struct {
	MenuItemID      string
	IngredientID    string
	Name            string
	QuantityPerUnit decimal.Decimal
}

// MenuItem is a catalog entry. An empty OutletIDs set means the item is sold at every outlet.
type MenuItem struct {
	ID        string
	TenantID  string
	Name      string
	Price     decimal.Decimal
	Recipe    []RecipeLine
	OutletIDs []string
}

// OfferedAt reports whether the item is sold at the outlet.
func (m *MenuItem) OfferedAt(outletID string) bool {
	if len(m.OutletIDs) == 0 {
		return true
	}
	for _, id := range m.OutletIDs {
		if id == outletID {
			return true
		}
	}
	return false
}

// Requirements scales the recipe by quantity.
func (m *MenuItem) Requirements(quantity int) []Requirement {
	reqs := make([]Requirement, 0, len(m.Recipe))
	q := decimal.NewFromInt(int64(quantity))
	for _, line := range m.Recipe {
		reqs = append(reqs, Requirement{
			IngredientID: line.IngredientID,
			Name:         line.Name,
			Quantity:     line.QuantityPerUnit.Mul(q),
		})
	}
	return reqs
}

// MenuAvailability is the derived per-outlet availability of one menu item.
type MenuAvailability struct {
	TenantID           string    `json:"tenantId"`
	OutletID           string    `json:"outletId"`
	MenuItemID         string    `json:"menuItemId"`
	Name               string    `json:"name"`
	Price              string    `json:"price"`
	InventoryAvailable bool      `json:"inventoryAvailable"`
	TimeAvailable      bool      `json:"timeAvailable"`
	IsAvailable        bool      `json:"isAvailable"`
	UpdatedAt          time.Time `json:"updatedAt"`
}
