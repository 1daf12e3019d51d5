package httpx_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/kitchen-admission/internal/admission/app"
	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
	"github.com/jcmexdev/kitchen-admission/internal/admission/httpx"
	statussqlite "github.com/jcmexdev/kitchen-admission/internal/admission/statuslog/sqlite"
	tk "github.com/jcmexdev/kitchen-admission/internal/admission/testkit"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/metrics"
)

const base = "/v1/tenants/" + tk.Tenant

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := tk.Store(t)
	history, err := statussqlite.New(store.DB())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	svc := app.Build(app.Deps{
		Store:     store,
		Directory: tk.Directory([]domain.Outlet{tk.AlwaysOpen("O1")}),
		History:   history,
		Metrics:   metrics.New(reg),
	})

	srv := httptest.NewServer(httpx.NewRouter(httpx.NewHandler(svc, store.DB()), reg))
	t.Cleanup(srv.Close)

	res := do(t, srv, http.MethodPut, base+"/menu-items/burger", `{
		"name": "Burger", "price": "85.50",
		"recipe": [{"name": "Bun", "quantityPerUnit": "1"}, {"name": "Patty", "quantityPerUnit": "0.15"}]
	}`, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = do(t, srv, http.MethodPost, base+"/outlets/O1/inventory/receipts", `{"lines": [
		{"name": "bun", "quantity": "10", "unitCost": "2", "minimumStock": "2"},
		{"name": "patty", "quantity": "1.5", "unitCost": "120"}
	]}`, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string, header http.Header) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

const burgerOrder = `{"customerId": "c-1", "orderType": "takeout", "items": [{"menuItemId": "burger", "quantity": %s}]}`

func order(qty string) string {
	return strings.Replace(burgerOrder, "%s", qty, 1)
}

func TestHealthz(t *testing.T) {
	srv := newServer(t)
	res := do(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, res.Header.Get("X-Request-Id"))
}

func TestReceiptReportsBadLinesIndividually(t *testing.T) {
	srv := newServer(t)
	res := do(t, srv, http.MethodPost, base+"/outlets/O1/inventory/receipts", `{"lines": [
		{"name": "cheese", "quantity": "2", "unitCost": "50"},
		{"name": "lettuce", "quantity": "0", "unitCost": "1"}
	]}`, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	got := decode[httpx.ReceiptResponse](t, res)
	require.Len(t, got.Processed, 1)
	assert.Equal(t, "cheese", got.Processed[0].Item.Name)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "lettuce", got.Errors[0].Name)
}

func TestCheckAvailabilityAndConsume(t *testing.T) {
	srv := newServer(t)

	res := do(t, srv, http.MethodGet, base+"/outlets/O1/inventory/Patty?required=2", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	a := decode[httpx.AvailabilityResponse](t, res)
	assert.False(t, a.Available)
	assert.Equal(t, "0.5", a.Shortage.String())

	res = do(t, srv, http.MethodGet, base+"/outlets/O1/inventory/patty?required=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = do(t, srv, http.MethodPost, base+"/outlets/O1/inventory/consume",
		`{"lines": [{"name": "bun", "quantityPerUnit": "1"}, {"name": "patty", "quantityPerUnit": "1"}], "multiplier": 2}`, nil)
	require.Equal(t, http.StatusConflict, res.StatusCode)
	short := decode[httpx.ConsumeResponse](t, res)
	assert.False(t, short.Consumed)
	require.Len(t, short.Shortages, 1)
	assert.Equal(t, "patty", short.Shortages[0].Name)

	res = do(t, srv, http.MethodPost, base+"/outlets/O1/inventory/consume",
		`{"lines": [{"name": "bun", "quantityPerUnit": "4"}], "multiplier": 2}`, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	ok := decode[httpx.ConsumeResponse](t, res)
	require.Len(t, ok.Lines, 1)
	assert.Equal(t, "2", ok.Lines[0].Remaining.String())

	res = do(t, srv, http.MethodGet, base+"/inventory/low-stock", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	low := decode[[]httpx.LowStockDTO](t, res)
	require.Len(t, low, 1)
	assert.Equal(t, "Bun", low[0].Item.Name, "display name comes from the recipe that first named it")
	assert.Equal(t, domain.SeverityWarning, low[0].Severity)
}

func TestConsumeRejectsBadRequest(t *testing.T) {
	srv := newServer(t)
	res := do(t, srv, http.MethodPost, base+"/outlets/O1/inventory/consume", `{"lines": [], "multiplier": 1}`, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = do(t, srv, http.MethodPost, base+"/outlets/O1/inventory/consume", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "invalid_json", decode[httpx.ErrorResponse](t, res).Error)
}

func TestUnknownOutletIsNotFound(t *testing.T) {
	srv := newServer(t)
	res := do(t, srv, http.MethodGet, base+"/outlets/nope/menu", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "not_found", decode[httpx.ErrorResponse](t, res).Error)
}

func TestMenuReflectsRecompute(t *testing.T) {
	srv := newServer(t)

	res := do(t, srv, http.MethodPost, base+"/outlets/O1/availability/recompute", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = do(t, srv, http.MethodGet, base+"/outlets/O1/menu", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	menu := decode[httpx.MenuResponse](t, res)
	require.Len(t, menu.Items, 1)
	assert.Equal(t, "burger", menu.Items[0].MenuItemID)
	assert.True(t, menu.Items[0].IsAvailable)

	res = do(t, srv, http.MethodPost, base+"/outlets/O1/availability/time-window", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, decode[httpx.AvailabilityChangesResponse](t, res).Changed)
}

func TestValidateReturnsVerdict(t *testing.T) {
	srv := newServer(t)
	res := do(t, srv, http.MethodPost, base+"/outlets/O1/orders/validate", order("20"), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	got := decode[domain.ValidationResult](t, res)
	assert.False(t, got.IsValid)
	assert.True(t, got.HasError(domain.CheckInventory))
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	srv := newServer(t)
	idem := http.Header{"X-Idempotency-Key": []string{"k-1"}}

	res := do(t, srv, http.MethodPost, base+"/outlets/O1/orders", order("2"), idem)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	created := decode[httpx.OrderResponse](t, res)
	assert.Equal(t, domain.StatusPending, created.Status)
	assert.Equal(t, 1, created.QueuePosition)
	assert.Equal(t, "171", created.Total.String())
	assert.Equal(t, "k-1", created.IdempotencyKey)

	res = do(t, srv, http.MethodPost, base+"/outlets/O1/orders", order("2"), idem)
	require.Equal(t, http.StatusOK, res.StatusCode)
	replay := decode[httpx.OrderResponse](t, res)
	assert.True(t, replay.Existing)
	assert.Equal(t, created.ID, replay.ID)

	res = do(t, srv, http.MethodGet, base+"/outlets/O1/queue", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, decode[httpx.QueueResponse](t, res).Orders, 1)

	res = do(t, srv, http.MethodPut, base+"/outlets/O1/orders/"+created.ID+"/status", `{"status": "delivered"}`, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "illegal_transition", decode[httpx.ErrorResponse](t, res).Error)

	res = do(t, srv, http.MethodPost, base+"/outlets/O1/queue/next", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, domain.StatusPreparing, decode[httpx.OrderResponse](t, res).Status)

	res = do(t, srv, http.MethodPost, base+"/outlets/O1/queue/next", "", nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res = do(t, srv, http.MethodPut, base+"/outlets/O2/orders/"+created.ID+"/status", `{"status": "ready_for_pickup"}`, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = do(t, srv, http.MethodPut, base+"/outlets/O1/orders/"+created.ID+"/status", `{"status": "ready_for_pickup", "reason": "plated"}`, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = do(t, srv, http.MethodGet, base+"/orders/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, domain.StatusReadyForPickup, decode[httpx.OrderResponse](t, res).Status)

	res = do(t, srv, http.MethodGet, base+"/orders/"+created.ID+"/history", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	history := decode[[]httpx.HistoryEntryDTO](t, res)
	require.Len(t, history, 3)
	assert.Equal(t, domain.StatusReadyForPickup, history[2].To)
	assert.Equal(t, "plated", history[2].Reason)

	res = do(t, srv, http.MethodGet, base+"/orders/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestCreateOrderValidationFailureIs422(t *testing.T) {
	srv := newServer(t)
	res := do(t, srv, http.MethodPost, base+"/outlets/O1/orders", order("20"), nil)
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)

	got := decode[httpx.ErrorResponse](t, res)
	assert.Equal(t, "validation_failed", got.Error)
	require.NotNil(t, got.Validation)
	assert.False(t, got.Validation.IsValid)
}

func TestCreateOrderNeedsCustomer(t *testing.T) {
	srv := newServer(t)
	res := do(t, srv, http.MethodPost, base+"/outlets/O1/orders",
		`{"orderType": "takeout", "items": [{"menuItemId": "burger", "quantity": 1}]}`, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, decode[httpx.ErrorResponse](t, res).Message, "customerId")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newServer(t)
	do(t, srv, http.MethodPost, base+"/outlets/O1/orders", order("1"), nil)

	res := do(t, srv, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(res.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `admission_orders_total{result="admitted"} 1`)
}
