package validation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/kitchen-admission/internal/admission/catalog"
	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
	"github.com/jcmexdev/kitchen-admission/internal/admission/ledger"
	"github.com/jcmexdev/kitchen-admission/internal/admission/store/sqlite"
	tk "github.com/jcmexdev/kitchen-admission/internal/admission/testkit"
	"github.com/jcmexdev/kitchen-admission/internal/admission/validation"
)

// Monday 2024-01-01, noon UTC.
var noon = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type usageStub struct {
	usage domain.PromotionUsage
	err   error
}

func (u usageStub) PromotionUsage(context.Context, string, string, string) (domain.PromotionUsage, error) {
	return u.usage, u.err
}

type brokenStock struct{}

func (brokenStock) CheckAvailability(context.Context, string, string, string, decimal.Decimal) (domain.Availability, error) {
	return domain.Availability{}, errors.New("database is locked")
}

type env struct {
	store    *sqlite.Store
	ledger   *ledger.Ledger
	pipeline *validation.Pipeline
	usage    *usageStub
}

func downtown() domain.Outlet {
	o := tk.AlwaysOpen("O1")
	o.Hours = map[time.Weekday]domain.Window{
		time.Monday:  {Open: 9 * 60, Close: 22 * 60},
		time.Tuesday: {Open: 9 * 60, Close: 22 * 60},
	}
	o.DeliveryZones = []domain.DeliveryZone{
		{Name: "centro", PostalCodes: []string{"06000"}},
		{Name: "nearby", Center: &domain.GeoPoint{Lat: 19.4326, Lng: -99.1332}, RadiusKm: 3},
	}
	o.MinimumOrder = map[domain.OrderType]decimal.Decimal{domain.OrderTypeDelivery: tk.Dec("150")}
	return o
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := tk.Store(t)
	dir := tk.Directory(
		[]domain.Outlet{downtown(), tk.AlwaysOpen("O2")},
		domain.Promotion{
			Code: "WELCOME10", TenantID: tk.Tenant, Kind: domain.DiscountPercent, Value: tk.Dec("10"),
			MinOrderAmount: tk.Dec("100"), Active: true, PerCustomerLimit: 1,
		},
		domain.Promotion{Code: "EXPIRED", TenantID: tk.Tenant, Kind: domain.DiscountFixed, Value: tk.Dec("5"), Active: false},
	)
	l := ledger.New(store, dir, nil, nil)
	cat := catalog.New(store, dir, nil)
	for _, item := range []domain.MenuItem{
		{ID: "pizza", Name: "Pizza", Price: tk.Dec("120"), OutletIDs: []string{"O1"},
			Recipe: []domain.RecipeLine{{Name: "flour", QuantityPerUnit: tk.Dec("1")}}},
		{ID: "calzone", Name: "Calzone", Price: tk.Dec("90"),
			Recipe: []domain.RecipeLine{{Name: "flour", QuantityPerUnit: tk.Dec("1")}}},
		{ID: "soda", Name: "Soda", Price: tk.Dec("20"),
			Recipe: []domain.RecipeLine{{Name: "cola", QuantityPerUnit: tk.Dec("1")}}},
		{ID: "special", Name: "Special", Price: tk.Dec("200"), OutletIDs: []string{"O2"},
			Recipe: []domain.RecipeLine{{Name: "truffle", QuantityPerUnit: tk.Dec("1")}}},
	} {
		item.TenantID = tk.Tenant
		_, err := cat.UpsertMenuItem(ctx, item)
		require.NoError(t, err)
	}

	usage := &usageStub{}
	p := validation.New(dir, store, l, dir, usage,
		validation.WithAvailability(store),
		validation.WithClock(func() time.Time { return noon }))
	return &env{store: store, ledger: l, pipeline: p, usage: usage}
}

func (e *env) stock(t *testing.T, name, qty, minimum string) {
	t.Helper()
	floor := tk.Dec(minimum)
	res, err := e.ledger.Receive(context.Background(), tk.Tenant, "O1", []domain.ReceiptLine{
		{Name: name, Quantity: tk.Dec(qty), UnitCost: tk.Dec("1"), MinimumStock: &floor},
	})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
}

func order(items ...domain.OrderRequestItem) domain.OrderRequest {
	return domain.OrderRequest{
		TenantID: tk.Tenant,
		OutletID: "O1",
		Type:     domain.OrderTypeDineIn,
		Items:    items,
	}
}

func line(id string, qty int) domain.OrderRequestItem {
	return domain.OrderRequestItem{MenuItemID: id, Quantity: qty}
}

func codes(issues []domain.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Check+"/"+i.Code)
	}
	return out
}

func TestValidOrder(t *testing.T) {
	e := newEnv(t)
	e.stock(t, "flour", "10", "2")
	e.stock(t, "cola", "10", "0")

	res, err := e.pipeline.Validate(context.Background(), order(line("pizza", 2), line("soda", 1)))
	require.NoError(t, err)
	assert.True(t, res.IsValid, "errors: %v", codes(res.Errors))
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "260", res.Subtotal.String())
	assert.True(t, res.Discount.IsZero())
	assert.Equal(t, "260", res.Total.String())
	require.Len(t, res.Items, 2)
	assert.True(t, res.Items[0].Available)
	assert.True(t, res.Items[1].Available)
}

func TestScheduledAfterClosingStillRunsOtherChecks(t *testing.T) {
	e := newEnv(t)
	late := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	req := order(line("pizza", 1))
	req.ScheduledAt = &late

	res, err := e.pipeline.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.True(t, res.HasError(domain.CheckStoreHours))
	assert.Contains(t, res.Errors[0].Message, "closes at 22:00")
	assert.True(t, res.HasError(domain.CheckInventory), "inventory was checked too")
	assert.Contains(t, codes(res.Errors), "inventory_availability/out_of_stock")
}

func TestSchedulingBounds(t *testing.T) {
	e := newEnv(t)
	e.stock(t, "flour", "10", "0")

	past := noon.Add(-time.Hour)
	req := order(line("pizza", 1))
	req.ScheduledAt = &past
	res, err := e.pipeline.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"store_hours/scheduled_in_past"}, codes(res.Errors))

	far := noon.Add(8 * 24 * time.Hour)
	req.ScheduledAt = &far
	res, err = e.pipeline.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"store_hours/beyond_horizon"}, codes(res.Errors))

	// Tuesday lunch is inside the horizon and the window.
	tuesday := noon.Add(24 * time.Hour)
	req.ScheduledAt = &tuesday
	res, err = e.pipeline.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.IsValid, "errors: %v", codes(res.Errors))

	// Wednesday has no window at all.
	wednesday := noon.Add(48 * time.Hour)
	req.ScheduledAt = &wednesday
	res, err = e.pipeline.Validate(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, []string{"store_hours/outlet_closed"}, codes(res.Errors))
	assert.Contains(t, res.Errors[0].Message, "is closed on Wednesday")
}

func TestInventoryDistinguishesOutOfStockShortAndLow(t *testing.T) {
	e := newEnv(t)
	e.stock(t, "flour", "3", "2")

	res, err := e.pipeline.Validate(context.Background(), order(line("pizza", 1), line("soda", 1)))
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, []string{"inventory_availability/out_of_stock"}, codes(res.Errors))
	assert.Equal(t, "soda", res.Errors[0].MenuItemID)
	assert.Equal(t, []string{"inventory_availability/low_stock"}, codes(res.Warnings))

	res, err = e.pipeline.Validate(context.Background(), order(line("pizza", 5)))
	require.NoError(t, err)
	assert.Equal(t, []string{"inventory_availability/insufficient_stock"}, codes(res.Errors))
	require.Len(t, res.Items, 1)
	require.Len(t, res.Items[0].Shortages, 1)
	s := res.Items[0].Shortages[0]
	assert.Equal(t, "5", s.Required.String())
	assert.Equal(t, "3", s.Available.String())
	assert.Equal(t, "2", s.Shortage.String())
}

func TestInventoryChecksAggregatedDemand(t *testing.T) {
	e := newEnv(t)
	e.stock(t, "flour", "1.5", "0")

	res, err := e.pipeline.Validate(context.Background(), order(line("pizza", 1), line("calzone", 1)))
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	require.Equal(t, []string{"inventory_availability/insufficient_stock"}, codes(res.Errors))
	assert.Empty(t, res.Errors[0].MenuItemID)
	assert.Contains(t, res.Errors[0].Message, "in total")
}

func TestStructuralProblemsAreInventoryErrors(t *testing.T) {
	e := newEnv(t)

	res, err := e.pipeline.Validate(context.Background(), order())
	require.NoError(t, err)
	assert.Contains(t, codes(res.Errors), "inventory_availability/empty_order")

	res, err = e.pipeline.Validate(context.Background(), order(line("ghost", 1), line("special", 1), line("pizza", 0)))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"inventory_availability/invalid_quantity",
		"inventory_availability/unknown_menu_item",
		"inventory_availability/not_offered",
	}, codes(res.Errors))
}

func TestPromotion(t *testing.T) {
	e := newEnv(t)
	e.stock(t, "flour", "10", "0")
	e.stock(t, "cola", "10", "0")
	ctx := context.Background()

	req := order(line("pizza", 1))
	req.CustomerID = "c-1"
	req.PromotionCode = "welcome10"
	res, err := e.pipeline.Validate(ctx, req)
	require.NoError(t, err)
	require.True(t, res.IsValid, "errors: %v", codes(res.Errors))
	assert.Equal(t, "12", res.Discount.String())
	assert.Equal(t, "108", res.Total.String())

	req.Items = []domain.OrderRequestItem{line("soda", 1)}
	res, err = e.pipeline.Validate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"promotion/minimum_not_met"}, codes(res.Errors))

	req.Items = []domain.OrderRequestItem{line("pizza", 1)}
	req.PromotionCode = "NOPE"
	res, err = e.pipeline.Validate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"promotion/unknown_promotion"}, codes(res.Errors))

	req.PromotionCode = "EXPIRED"
	res, err = e.pipeline.Validate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"promotion/promotion_inactive"}, codes(res.Errors))

	req.PromotionCode = "WELCOME10"
	e.usage.usage = domain.PromotionUsage{Total: 3, Customer: 1}
	res, err = e.pipeline.Validate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"promotion/customer_limit_reached"}, codes(res.Errors))
	assert.True(t, res.Discount.IsZero())

	e.usage.err = errors.New("store unavailable")
	_, err = e.pipeline.Validate(ctx, req)
	assert.Error(t, err)
}

func TestDeliveryArea(t *testing.T) {
	e := newEnv(t)
	e.stock(t, "flour", "10", "0")
	ctx := context.Background()

	req := order(line("pizza", 2))
	req.Type = domain.OrderTypeDelivery
	res, err := e.pipeline.Validate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"delivery_area/address_required"}, codes(res.Errors))

	req.Address = &domain.Address{Line1: "Av. Juarez 1", PostalCode: "06000"}
	res, err = e.pipeline.Validate(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.IsValid, "errors: %v", codes(res.Errors))

	req.Address = &domain.Address{PostalCode: "99999", Location: &domain.GeoPoint{Lat: 19.44, Lng: -99.14}}
	res, err = e.pipeline.Validate(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.IsValid, "inside the radius zone: %v", codes(res.Errors))

	req.Address = &domain.Address{PostalCode: "99999", Location: &domain.GeoPoint{Lat: 20.67, Lng: -103.35}}
	res, err = e.pipeline.Validate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"delivery_area/outside_delivery_area"}, codes(res.Errors))

	req.OutletID = "O2"
	req.Items = []domain.OrderRequestItem{line("special", 1)}
	res, err = e.pipeline.Validate(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, codes(res.Errors), "delivery_area/no_delivery_zones")
}

func TestMinimumOrderAmount(t *testing.T) {
	e := newEnv(t)
	e.stock(t, "flour", "10", "0")

	req := order(line("pizza", 1))
	req.Type = domain.OrderTypeDelivery
	req.Address = &domain.Address{PostalCode: "06000"}
	res, err := e.pipeline.Validate(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, []string{"minimum_order_amount/below_minimum"}, codes(res.Errors))
	assert.Contains(t, res.Errors[0].Message, "150.00")

	req.Type = "drive_through"
	res, err = e.pipeline.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"minimum_order_amount/unknown_order_type"}, codes(res.Errors))
}

func TestWarnsWhenAvailabilityFlagDisagreesWithStock(t *testing.T) {
	e := newEnv(t)
	e.stock(t, "flour", "10", "0")
	require.NoError(t, e.store.SaveAvailability(context.Background(), []domain.MenuAvailability{{
		TenantID: tk.Tenant, OutletID: "O1", MenuItemID: "pizza",
		InventoryAvailable: false, TimeAvailable: true, IsAvailable: false, UpdatedAt: noon,
	}}))

	res, err := e.pipeline.Validate(context.Background(), order(line("pizza", 1)))
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, []string{"inventory_availability/flagged_unavailable"}, codes(res.Warnings))
}

func TestInfrastructureErrorsAbort(t *testing.T) {
	store := tk.Store(t)
	dir := tk.Directory([]domain.Outlet{tk.AlwaysOpen("O1")})
	_, err := catalog.New(store, dir, nil).UpsertMenuItem(context.Background(), domain.MenuItem{
		ID: "pizza", TenantID: tk.Tenant, Name: "Pizza", Price: tk.Dec("10"),
		Recipe: []domain.RecipeLine{{Name: "flour", QuantityPerUnit: tk.Dec("1")}},
	})
	require.NoError(t, err)

	p := validation.New(dir, store, brokenStock{}, dir, usageStub{})
	_, err = p.Validate(context.Background(), order(line("pizza", 1)))
	assert.ErrorContains(t, err, "database is locked")

	_, err = p.Validate(context.Background(), domain.OrderRequest{TenantID: tk.Tenant, OutletID: "nowhere"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEvaluateReturnsDemand(t *testing.T) {
	e := newEnv(t)
	e.stock(t, "flour", "10", "0")

	ev, err := e.pipeline.Evaluate(context.Background(), order(line("pizza", 2), line("calzone", 3)))
	require.NoError(t, err)
	require.True(t, ev.Result.IsValid)
	require.Len(t, ev.Lines, 2)
	require.Len(t, ev.Demand, 1)
	assert.Equal(t, "5", ev.Demand[0].Quantity.String())
	assert.Equal(t, noon, ev.At)
}
