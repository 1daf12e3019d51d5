package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/jcmexdev/kitchen-admission/internal/admission/app"
	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/interceptors"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler exposes the admission engine over REST.
type Handler struct {
	svc      *app.Service
	db       Pinger // nil-safe: /healthz skips the check
	validate *validator.Validate
}

func NewHandler(svc *app.Service, db Pinger) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{svc: svc, db: db, validate: v}
}

// decode reads a JSON body into v and runs the struct validation. It writes the 400
// response itself and reports whether the handler may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			writeError(w, http.StatusBadRequest, "invalid_request", strings.Join(msgs, "; "))
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

func tenantAndOutlet(r *http.Request) (string, string) {
	return chi.URLParam(r, "tenantID"), chi.URLParam(r, "outletID")
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			slog.ErrorContext(r.Context(), "health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "unavailable", "store unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReceiveInventory records a goods receipt. Every line succeeds or fails on its own.
func (h *Handler) ReceiveInventory(w http.ResponseWriter, r *http.Request) {
	var req ReceiptRequest
	if !h.decode(w, r, &req) {
		return
	}
	lines := make([]domain.ReceiptLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, domain.ReceiptLine{
			Name:         l.Name,
			Quantity:     l.Quantity,
			UnitCost:     l.UnitCost,
			Unit:         l.Unit,
			MinimumStock: l.MinimumStock,
			MaximumStock: l.MaximumStock,
		})
	}

	tenantID, outletID := tenantAndOutlet(r)
	res, err := h.svc.Ledger.Receive(r.Context(), tenantID, outletID, lines)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := ReceiptResponse{
		Processed: make([]ReceiptOutcomeDTO, 0, len(res.Processed)),
		Errors:    make([]ReceiptErrorDTO, 0, len(res.Errors)),
	}
	for _, p := range res.Processed {
		resp.Processed = append(resp.Processed, ReceiptOutcomeDTO{Line: p.Line, Item: mapItem(p.Item)})
	}
	for _, e := range res.Errors {
		resp.Errors = append(resp.Errors, ReceiptErrorDTO{Line: e.Line, Name: e.Name, Reason: e.Reason})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	required := decimal.Zero
	if raw := r.URL.Query().Get("required"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_quantity", "required must be a decimal number")
			return
		}
		required = d
	}

	tenantID, outletID := tenantAndOutlet(r)
	a, err := h.svc.Ledger.CheckAvailability(r.Context(), tenantID, outletID, chi.URLParam(r, "name"), required)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		Name:         a.Name,
		Available:    a.Available,
		CurrentStock: a.CurrentStock,
		MinimumStock: a.MinimumStock,
		Shortage:     a.Shortage,
	})
}

// Consume deducts every line or none. A short outcome answers 409 with the shortages.
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	var req ConsumeRequest
	if !h.decode(w, r, &req) {
		return
	}
	lines := make([]domain.RecipeLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, domain.RecipeLine{Name: l.Name, QuantityPerUnit: l.QuantityPerUnit})
	}

	tenantID, outletID := tenantAndOutlet(r)
	res, err := h.svc.Ledger.Consume(r.Context(), tenantID, outletID, lines, req.Multiplier)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	status := http.StatusOK
	if !res.Consumed {
		status = http.StatusConflict
	}
	writeJSON(w, status, mapConsume(res))
}

func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Ledger.LowStockItems(r.Context(), chi.URLParam(r, "tenantID"), r.URL.Query().Get("outlet"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]LowStockDTO, 0, len(items))
	for _, it := range items {
		out = append(out, LowStockDTO{Item: mapItem(it.Item), Severity: it.Severity, Ratio: it.Ratio})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) RecomputeAvailability(w http.ResponseWriter, r *http.Request) {
	tenantID, outletID := tenantAndOutlet(r)
	changed, err := h.svc.Availability.RecomputeForOutlet(r.Context(), tenantID, outletID)
	h.writeChanges(w, r, changed, err)
}

func (h *Handler) ApplyTimeWindow(w http.ResponseWriter, r *http.Request) {
	tenantID, outletID := tenantAndOutlet(r)
	changed, err := h.svc.Availability.ApplyTimeWindow(r.Context(), tenantID, outletID)
	h.writeChanges(w, r, changed, err)
}

func (h *Handler) writeChanges(w http.ResponseWriter, r *http.Request, changed []domain.MenuAvailability, err error) {
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if changed == nil {
		changed = []domain.MenuAvailability{}
	}
	writeJSON(w, http.StatusOK, AvailabilityChangesResponse{Changed: changed})
}

func (h *Handler) Menu(w http.ResponseWriter, r *http.Request) {
	tenantID, outletID := tenantAndOutlet(r)
	items, err := h.svc.Availability.Menu(r.Context(), tenantID, outletID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.MenuAvailability{}
	}
	writeJSON(w, http.StatusOK, MenuResponse{Items: items})
}

// orderRequest decodes the order body for both validate and admit. The idempotency key
// comes from the X-Idempotency-Key header.
func (h *Handler) orderRequest(w http.ResponseWriter, r *http.Request) (domain.OrderRequest, bool) {
	var dto OrderRequestDTO
	if !h.decode(w, r, &dto) {
		return domain.OrderRequest{}, false
	}
	tenantID, outletID := tenantAndOutlet(r)
	req := domain.OrderRequest{
		TenantID:       tenantID,
		OutletID:       outletID,
		CustomerID:     dto.CustomerID,
		Type:           domain.OrderType(strings.ToLower(strings.TrimSpace(dto.OrderType))),
		ScheduledAt:    dto.ScheduledAt,
		PromotionCode:  dto.PromotionCode,
		Address:        dto.Address.toDomain(),
		IdempotencyKey: interceptors.IdempotencyKey(r.Context()),
	}
	for _, it := range dto.Items {
		req.Items = append(req.Items, domain.OrderRequestItem{MenuItemID: it.MenuItemID, Quantity: it.Quantity})
	}
	return req, true
}

// ValidateOrder runs every check without admitting. The verdict is always a 200; only
// infrastructure problems fail the request.
func (h *Handler) ValidateOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := h.orderRequest(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Validation.Validate(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CreateOrder validates and admits an order. A replayed idempotency key answers 200 with
// the order admitted the first time.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := h.orderRequest(w, r)
	if !ok {
		return
	}

	slog.InfoContext(r.Context(), "admitting order",
		"request_id", interceptors.RequestID(r.Context()),
		"tenant_id", req.TenantID, "outlet_id", req.OutletID, "customer_id", req.CustomerID)

	adm, err := h.svc.Admit(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := mapOrderToResponse(adm.Order)
	resp.Existing = adm.Existing
	resp.Validation = adm.Validation
	status := http.StatusCreated
	if adm.Existing {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	tenantID, outletID := tenantAndOutlet(r)
	orders, err := h.svc.Queue.Active(r.Context(), tenantID, outletID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	resp := QueueResponse{Orders: make([]OrderResponse, 0, len(orders))}
	for i := range orders {
		o := orders[i]
		o.QueuePosition = i + 1
		resp.Orders = append(resp.Orders, mapOrderToResponse(&o))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ProcessNext answers 204 when the outlet has nothing waiting.
func (h *Handler) ProcessNext(w http.ResponseWriter, r *http.Request) {
	tenantID, outletID := tenantAndOutlet(r)
	o, err := h.svc.Queue.ProcessNext(r.Context(), tenantID, outletID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if o == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(o))
}

func (h *Handler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Queue.Order(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(o))
}

func (h *Handler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Queue.History(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapHistory(entries))
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	to := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	o, err := h.svc.Queue.Transition(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "outletID"), chi.URLParam(r, "orderID"), to, req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrderToResponse(o))
}

// UpsertMenuItem creates or replaces a menu item and its recipe.
func (h *Handler) UpsertMenuItem(w http.ResponseWriter, r *http.Request) {
	var req MenuItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item := domain.MenuItem{
		ID:        chi.URLParam(r, "menuItemID"),
		TenantID:  chi.URLParam(r, "tenantID"),
		Name:      req.Name,
		Price:     req.Price,
		OutletIDs: req.Outlets,
	}
	for _, l := range req.Recipe {
		item.Recipe = append(item.Recipe, domain.RecipeLine{Name: l.Name, QuantityPerUnit: l.QuantityPerUnit})
	}
	saved, err := h.svc.Catalog.UpsertMenuItem(r.Context(), item)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapMenuItem(saved))
}
