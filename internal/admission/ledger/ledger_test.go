package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
	"github.com/jcmexdev/kitchen-admission/internal/admission/events"
	"github.com/jcmexdev/kitchen-admission/internal/admission/ledger"
	"github.com/jcmexdev/kitchen-admission/internal/admission/store/sqlite"
	tk "github.com/jcmexdev/kitchen-admission/internal/admission/testkit"
)

func newLedger(t *testing.T) (*ledger.Ledger, *sqlite.Store, *events.Bus) {
	t.Helper()
	store := tk.Store(t)
	bus := events.NewBus(64)
	dir := tk.Directory([]domain.Outlet{tk.AlwaysOpen("O1"), tk.AlwaysOpen("O2")})
	return ledger.New(store, dir, bus, nil), store, bus
}

func receive(t *testing.T, l *ledger.Ledger, outlet string, lines ...domain.ReceiptLine) domain.ReceiveResult {
	t.Helper()
	res, err := l.Receive(context.Background(), tk.Tenant, outlet, lines)
	require.NoError(t, err)
	return res
}

func stockOf(t *testing.T, s *sqlite.Store, outlet, name string) string {
	t.Helper()
	item, err := s.FindItemByName(context.Background(), tk.Tenant, outlet, name)
	require.NoError(t, err)
	require.NotNil(t, item, "no inventory item %q at %s", name, outlet)
	return item.CurrentStock.String()
}

func TestReceiveThenConsume(t *testing.T) {
	l, s, _ := newLedger(t)
	ctx := context.Background()

	res := receive(t, l, "O1", domain.ReceiptLine{Name: "Flour", Quantity: tk.Dec("10"), UnitCost: tk.Dec("1.20"), Unit: "kg"})
	require.Len(t, res.Processed, 1)
	assert.Empty(t, res.Errors)
	assert.Equal(t, "10", stockOf(t, s, "O1", "flour"))

	recipe := []domain.RecipeLine{{Name: "flour", QuantityPerUnit: tk.Dec("3")}}
	out, err := l.Consume(ctx, tk.Tenant, "O1", recipe, 2)
	require.NoError(t, err)
	assert.True(t, out.Consumed)
	require.Len(t, out.Lines, 1)
	assert.Equal(t, "6", out.Lines[0].Consumed.String())
	assert.Equal(t, "4", out.Lines[0].Remaining.String())
	assert.Equal(t, "4", stockOf(t, s, "O1", "Flour"))

	out, err = l.Consume(ctx, tk.Tenant, "O1", []domain.RecipeLine{{Name: "Flour", QuantityPerUnit: tk.Dec("5")}}, 1)
	require.NoError(t, err)
	assert.False(t, out.Consumed)
	require.Len(t, out.Shortages, 1)
	assert.Equal(t, "5", out.Shortages[0].Required.String())
	assert.Equal(t, "4", out.Shortages[0].Available.String())
	assert.Equal(t, "1", out.Shortages[0].Shortage.String())
	assert.Equal(t, "4", stockOf(t, s, "O1", "Flour"))
}

func TestReceiveRejectsBadLinesIndependently(t *testing.T) {
	l, s, _ := newLedger(t)

	res := receive(t, l, "O1",
		domain.ReceiptLine{Name: "Tomato", Quantity: tk.Dec("5"), UnitCost: tk.Dec("0.5")},
		domain.ReceiptLine{Name: "Basil", Quantity: tk.Dec("0"), UnitCost: tk.Dec("2")},
		domain.ReceiptLine{Name: "Garlic", Quantity: tk.Dec("-1"), UnitCost: tk.Dec("2")},
		domain.ReceiptLine{Name: "Onion", Quantity: tk.Dec("3"), UnitCost: tk.Dec("0.3")},
	)

	require.Len(t, res.Processed, 2)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 1, res.Errors[0].Line)
	assert.Equal(t, 2, res.Errors[1].Line)
	assert.ErrorIs(t, res.Errors[0].Err, domain.ErrInvalidQuantity)
	assert.Equal(t, "5", stockOf(t, s, "O1", "tomato"))
	assert.Equal(t, "3", stockOf(t, s, "O1", "onion"))

	item, err := s.FindItemByName(context.Background(), tk.Tenant, "O1", "basil")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestReceiveAccumulatesAndUpdatesCost(t *testing.T) {
	l, s, _ := newLedger(t)

	receive(t, l, "O1", domain.ReceiptLine{Name: "Rice", Quantity: tk.Dec("2.5"), UnitCost: tk.Dec("1")})
	res := receive(t, l, "O1", domain.ReceiptLine{Name: "  RICE ", Quantity: tk.Dec("1.25"), UnitCost: tk.Dec("1.10")})

	require.Len(t, res.Processed, 1)
	assert.Equal(t, "3.75", stockOf(t, s, "O1", "rice"))
	assert.Equal(t, "1.1", res.Processed[0].Item.UnitCost.String())
	assert.NotNil(t, res.Processed[0].Item.LastRestockedAt)
}

func TestIngredientKeepsFirstDisplayName(t *testing.T) {
	l, s, _ := newLedger(t)
	ctx := context.Background()

	receive(t, l, "O1", domain.ReceiptLine{Name: "Olive Oil", Quantity: tk.Dec("1"), UnitCost: tk.Dec("9")})
	res := receive(t, l, "O1", domain.ReceiptLine{Name: "  olive   OIL", Quantity: tk.Dec("2"), UnitCost: tk.Dec("9")})
	require.Len(t, res.Processed, 1)
	assert.Equal(t, "Olive Oil", res.Processed[0].Item.Name)

	receive(t, l, "O2", domain.ReceiptLine{Name: "OLIVE OIL", Quantity: tk.Dec("1"), UnitCost: tk.Dec("9")})

	for _, outlet := range []string{"O1", "O2"} {
		items, err := s.ListItems(ctx, tk.Tenant, outlet)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "Olive Oil", items[0].Name, outlet)
	}
	assert.Equal(t, "3", stockOf(t, s, "O1", "olive oil"))
}

func TestReceiveRejectsMinimumAboveMaximum(t *testing.T) {
	l, _, _ := newLedger(t)
	minimum, maximum := tk.Dec("10"), tk.Dec("5")

	res := receive(t, l, "O1", domain.ReceiptLine{
		Name: "Milk", Quantity: tk.Dec("4"), UnitCost: tk.Dec("1"),
		MinimumStock: &minimum, MaximumStock: &maximum,
	})

	assert.Empty(t, res.Processed)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0].Err, domain.ErrInvalidQuantity)
}

func TestUnknownOutletIsFatal(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()

	_, err := l.Receive(ctx, tk.Tenant, "nope", []domain.ReceiptLine{{Name: "Salt", Quantity: tk.Dec("1")}})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = l.Consume(ctx, tk.Tenant, "nope", []domain.RecipeLine{{Name: "Salt", QuantityPerUnit: tk.Dec("1")}}, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = l.CheckAvailability(ctx, "other-tenant", "O1", "Salt", tk.Dec("1"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConsumeIsAllOrNothing(t *testing.T) {
	l, s, _ := newLedger(t)
	ctx := context.Background()
	receive(t, l, "O1",
		domain.ReceiptLine{Name: "Flour", Quantity: tk.Dec("10")},
		domain.ReceiptLine{Name: "Sugar", Quantity: tk.Dec("1")},
		domain.ReceiptLine{Name: "Butter", Quantity: tk.Dec("0.2")},
	)

	recipe := []domain.RecipeLine{
		{Name: "Flour", QuantityPerUnit: tk.Dec("3")},
		{Name: "Sugar", QuantityPerUnit: tk.Dec("1")},
		{Name: "Butter", QuantityPerUnit: tk.Dec("0.25")},
		{Name: "Vanilla", QuantityPerUnit: tk.Dec("0.01")},
	}
	out, err := l.Consume(ctx, tk.Tenant, "O1", recipe, 2)
	require.NoError(t, err)

	assert.False(t, out.Consumed)
	assert.Empty(t, out.Lines)
	names := make([]string, 0, len(out.Shortages))
	for _, sh := range out.Shortages {
		names = append(names, sh.Name)
	}
	assert.Equal(t, []string{"Sugar", "Butter", "Vanilla"}, names)
	assert.Equal(t, "10", stockOf(t, s, "O1", "Flour"))
	assert.Equal(t, "1", stockOf(t, s, "O1", "Sugar"))
	assert.Equal(t, "0.2", stockOf(t, s, "O1", "Butter"))
}

func TestConsumeMergesRepeatedIngredients(t *testing.T) {
	l, s, _ := newLedger(t)
	receive(t, l, "O1", domain.ReceiptLine{Name: "Cheese", Quantity: tk.Dec("5")})

	out, err := l.Consume(context.Background(), tk.Tenant, "O1", []domain.RecipeLine{
		{Name: "Cheese", QuantityPerUnit: tk.Dec("2")},
		{Name: "cheese", QuantityPerUnit: tk.Dec("1")},
	}, 2)
	require.NoError(t, err)

	assert.False(t, out.Consumed)
	require.Len(t, out.Shortages, 1)
	assert.Equal(t, "6", out.Shortages[0].Required.String())
	assert.Equal(t, "5", stockOf(t, s, "O1", "Cheese"))
}

func TestConsumeRejectsInvalidQuantities(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()

	_, err := l.Consume(ctx, tk.Tenant, "O1", []domain.RecipeLine{{Name: "Salt", QuantityPerUnit: tk.Dec("1")}}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = l.Consume(ctx, tk.Tenant, "O1", []domain.RecipeLine{{Name: "Salt", QuantityPerUnit: tk.Dec("0")}}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = l.Consume(ctx, tk.Tenant, "O1", nil, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}

func TestConcurrentConsumeNeverOversells(t *testing.T) {
	l, s, _ := newLedger(t)
	receive(t, l, "O1", domain.ReceiptLine{Name: "Dough", Quantity: tk.Dec("10")})

	const workers = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := l.Consume(context.Background(), tk.Tenant, "O1",
				[]domain.RecipeLine{{Name: "Dough", QuantityPerUnit: tk.Dec("1")}}, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil && !errors.Is(err, domain.ErrConflict):
				failures = append(failures, err)
			case err == nil && out.Consumed:
				succeeded++
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, failures)
	assert.Equal(t, 10, succeeded)
	assert.Equal(t, "0", stockOf(t, s, "O1", "Dough"))
}

func TestOutletsAreIndependent(t *testing.T) {
	l, s, _ := newLedger(t)
	receive(t, l, "O1", domain.ReceiptLine{Name: "Beans", Quantity: tk.Dec("4")})
	receive(t, l, "O2", domain.ReceiptLine{Name: "Beans", Quantity: tk.Dec("4")})

	out, err := l.Consume(context.Background(), tk.Tenant, "O1", []domain.RecipeLine{{Name: "Beans", QuantityPerUnit: tk.Dec("4")}}, 1)
	require.NoError(t, err)
	require.True(t, out.Consumed)

	assert.Equal(t, "0", stockOf(t, s, "O1", "Beans"))
	assert.Equal(t, "4", stockOf(t, s, "O2", "Beans"))
}

func TestCheckAvailability(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()
	minimum := tk.Dec("2")
	receive(t, l, "O1", domain.ReceiptLine{Name: "Eggs", Quantity: tk.Dec("6"), MinimumStock: &minimum})

	a, err := l.CheckAvailability(ctx, tk.Tenant, "O1", "eggs", tk.Dec("4"))
	require.NoError(t, err)
	assert.True(t, a.Available)
	assert.Equal(t, "6", a.CurrentStock.String())
	assert.Equal(t, "2", a.MinimumStock.String())
	assert.True(t, a.Shortage.IsZero())

	a, err = l.CheckAvailability(ctx, tk.Tenant, "O1", "Eggs", tk.Dec("8"))
	require.NoError(t, err)
	assert.False(t, a.Available)
	assert.Equal(t, "2", a.Shortage.String())

	a, err = l.CheckAvailability(ctx, tk.Tenant, "O1", "Truffle", tk.Dec("1"))
	require.NoError(t, err)
	assert.False(t, a.Available)
	assert.True(t, a.CurrentStock.IsZero())
	assert.Equal(t, "1", a.Shortage.String())
}

func TestLowStockItems(t *testing.T) {
	l, _, _ := newLedger(t)
	ctx := context.Background()
	five, ten, four := tk.Dec("5"), tk.Dec("10"), tk.Dec("4")

	receive(t, l, "O1",
		domain.ReceiptLine{Name: "Yeast", Quantity: tk.Dec("3"), MinimumStock: &five},
		domain.ReceiptLine{Name: "Salt", Quantity: tk.Dec("5"), MinimumStock: &ten},
		domain.ReceiptLine{Name: "Oil", Quantity: tk.Dec("20"), MinimumStock: &five},
		domain.ReceiptLine{Name: "Cream", Quantity: tk.Dec("2"), MinimumStock: &four},
	)
	receive(t, l, "O2", domain.ReceiptLine{Name: "Yeast", Quantity: tk.Dec("1"), MinimumStock: &ten})

	_, err := l.Consume(ctx, tk.Tenant, "O1", []domain.RecipeLine{{Name: "Yeast", QuantityPerUnit: tk.Dec("3")}}, 1)
	require.NoError(t, err)

	low, err := l.LowStockItems(ctx, tk.Tenant, "O1")
	require.NoError(t, err)
	require.Len(t, low, 3)

	assert.Equal(t, "Yeast", low[0].Item.Name)
	assert.Equal(t, domain.SeverityCritical, low[0].Severity)
	assert.Equal(t, "Cream", low[1].Item.Name)
	assert.Equal(t, domain.SeverityWarning, low[1].Severity)
	assert.Equal(t, "Salt", low[2].Item.Name)
	assert.Equal(t, domain.SeverityWarning, low[2].Severity)

	all, err := l.LowStockItems(ctx, tk.Tenant, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "O1", all[0].Item.OutletID)
	assert.Equal(t, "O2", all[1].Item.OutletID)
}

func TestLedgerPublishesStockChanges(t *testing.T) {
	l, _, bus := newLedger(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	receive(t, l, "O1", domain.ReceiptLine{Name: "Lettuce", Quantity: tk.Dec("3")})
	ev, err := bus.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, events.ReasonReceipt, ev.Reason)
	assert.Equal(t, "O1", ev.OutletID)
	assert.Len(t, ev.IngredientIDs, 1)

	_, err = l.Consume(ctx, tk.Tenant, "O1", []domain.RecipeLine{{Name: "Lettuce", QuantityPerUnit: tk.Dec("1")}}, 1)
	require.NoError(t, err)
	ev, err = bus.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, events.ReasonConsumption, ev.Reason)

	// A short consumption changes nothing and stays silent.
	_, err = l.Consume(ctx, tk.Tenant, "O1", []domain.RecipeLine{{Name: "Lettuce", QuantityPerUnit: tk.Dec("9")}}, 1)
	require.NoError(t, err)
	quiet, cancelQuiet := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelQuiet()
	_, err = bus.Receive(quiet)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
