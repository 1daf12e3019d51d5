package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/kitchen-admission/internal/admission/catalog"
	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
	"github.com/jcmexdev/kitchen-admission/internal/admission/events"
	"github.com/jcmexdev/kitchen-admission/internal/admission/store/sqlite"
	tk "github.com/jcmexdev/kitchen-admission/internal/admission/testkit"
)

func newCatalog(t *testing.T) (*catalog.Catalog, *sqlite.Store, *events.Bus) {
	t.Helper()
	store := tk.Store(t)
	bus := events.NewBus(16)
	t.Cleanup(func() { _ = bus.Close() })
	dir := tk.Directory([]domain.Outlet{tk.AlwaysOpen("O1"), tk.AlwaysOpen("O2")})
	return catalog.New(store, dir, bus), store, bus
}

func receive(t *testing.T, bus *events.Bus) events.StockChanged {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := bus.Receive(ctx)
	require.NoError(t, err)
	return ev
}

func TestUpsertBindsIngredientsByNormalizedName(t *testing.T) {
	c, _, _ := newCatalog(t)
	ctx := context.Background()

	burger, err := c.UpsertMenuItem(ctx, domain.MenuItem{
		TenantID: tk.Tenant, Name: "  Burger ", Price: tk.Dec("85.50"),
		Recipe: []domain.RecipeLine{
			{Name: "Brioche Bun", QuantityPerUnit: tk.Dec("1")},
			{Name: "Patty", QuantityPerUnit: tk.Dec("0.15")},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, burger.ID)
	assert.Equal(t, "Burger", burger.Name)
	require.Len(t, burger.Recipe, 2)
	assert.Equal(t, "Brioche Bun", burger.Recipe[0].Name)

	slider, err := c.UpsertMenuItem(ctx, domain.MenuItem{
		ID: "slider", TenantID: tk.Tenant, Name: "Slider", Price: tk.Dec("40"),
		Recipe: []domain.RecipeLine{{Name: "brioche   BUN", QuantityPerUnit: tk.Dec("1")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "slider", slider.ID)
	require.Len(t, slider.Recipe, 1)
	assert.Equal(t, burger.Recipe[0].IngredientID, slider.Recipe[0].IngredientID)
}

func TestUpsertRejectsInvalidItems(t *testing.T) {
	c, _, _ := newCatalog(t)
	ctx := context.Background()

	tests := []struct {
		name string
		item domain.MenuItem
		want error
	}{
		{"missing name", domain.MenuItem{TenantID: tk.Tenant, Price: tk.Dec("1")}, domain.ErrInvalidQuantity},
		{"negative price", domain.MenuItem{TenantID: tk.Tenant, Name: "x", Price: tk.Dec("-1")}, domain.ErrInvalidQuantity},
		{"zero recipe quantity", domain.MenuItem{
			TenantID: tk.Tenant, Name: "x", Price: tk.Dec("1"),
			Recipe: []domain.RecipeLine{{Name: "salt", QuantityPerUnit: tk.Dec("0")}},
		}, domain.ErrInvalidQuantity},
		{"unnamed ingredient", domain.MenuItem{
			TenantID: tk.Tenant, Name: "x", Price: tk.Dec("1"),
			Recipe: []domain.RecipeLine{{QuantityPerUnit: tk.Dec("1")}},
		}, domain.ErrInvalidQuantity},
		{"unknown outlet", domain.MenuItem{
			TenantID: tk.Tenant, Name: "x", Price: tk.Dec("1"), OutletIDs: []string{"O9"},
		}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.UpsertMenuItem(ctx, tt.item)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpsertNotifiesSellingOutlets(t *testing.T) {
	c, _, bus := newCatalog(t)
	ctx := context.Background()

	item, err := c.UpsertMenuItem(ctx, domain.MenuItem{
		TenantID: tk.Tenant, Name: "Fries", Price: tk.Dec("30"),
		Recipe: []domain.RecipeLine{{Name: "potato", QuantityPerUnit: tk.Dec("0.2")}},
	})
	require.NoError(t, err)

	first, second := receive(t, bus), receive(t, bus)
	assert.Equal(t, []string{"O1", "O2"}, []string{first.OutletID, second.OutletID})
	assert.Equal(t, events.ReasonCatalog, first.Reason)
	assert.Equal(t, []string{item.Recipe[0].IngredientID}, first.IngredientIDs)

	_, err = c.UpsertMenuItem(ctx, domain.MenuItem{
		TenantID: tk.Tenant, Name: "Soda", Price: tk.Dec("20"), OutletIDs: []string{"O2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "O2", receive(t, bus).OutletID)
}

func TestLoadFile(t *testing.T) {
	c, store, _ := newCatalog(t)
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tenants:
  - id: tenant-1
    menu_items:
      - id: margherita
        name: Margherita
        price: "120.00"
        outlets: [O1]
        recipe: {tomato: "0.1", flour: "0.25"}
      - id: water
        name: Water
        price: "15"
`), 0o600))

	n, err := c.LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	item, err := store.MenuItem(context.Background(), tk.Tenant, "margherita")
	require.NoError(t, err)
	assert.Equal(t, "120", item.Price.String())
	assert.Equal(t, []string{"O1"}, item.OutletIDs)
	require.Len(t, item.Recipe, 2)
	assert.Equal(t, "flour", item.Recipe[0].Name)
	assert.Equal(t, "tomato", item.Recipe[1].Name)
}

func TestLoadFileErrors(t *testing.T) {
	c, _, _ := newCatalog(t)
	dir := t.TempDir()

	_, err := c.LoadFile(context.Background(), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
tenants:
  - id: tenant-1
    menu_items:
      - id: a
        name: A
        price: "abc"
`), 0o600))
	n, err := c.LoadFile(context.Background(), bad)
	assert.Error(t, err)
	assert.Zero(t, n)
}
