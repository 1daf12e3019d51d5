package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jcmexdev/kitchen-admission/internal/admission/httpx/middlewares"
)

// NewRouter mounts the API under /v1/tenants/{tenantID}. gatherer may be nil, in which
// case /metrics is not served.
func NewRouter(handler *Handler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachTracingMetadata)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handler.Health)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1/tenants/{tenantID}", func(r chi.Router) {
		r.Use(middlewares.Tenant)

		r.Route("/outlets/{outletID}", func(r chi.Router) {
			r.Post("/inventory/receipts", handler.ReceiveInventory)
			r.Post("/inventory/consume", handler.Consume)
			r.Get("/inventory/{name}", handler.CheckAvailability)

			r.Post("/availability/recompute", handler.RecomputeAvailability)
			r.Post("/availability/time-window", handler.ApplyTimeWindow)
			r.Get("/menu", handler.Menu)

			r.Post("/orders/validate", handler.ValidateOrder)
			r.Post("/orders", handler.CreateOrder)
			r.Put("/orders/{orderID}/status", handler.UpdateOrderStatus)
			r.Get("/queue", handler.Queue)
			r.Post("/queue/next", handler.ProcessNext)
		})

		r.Get("/inventory/low-stock", handler.LowStock)
		r.Get("/orders/{orderID}", handler.GetOrderByID)
		r.Get("/orders/{orderID}/history", handler.OrderHistory)
		r.Put("/menu-items/{menuItemID}", handler.UpsertMenuItem)
	})

	return otelhttp.NewHandler(r, "kitchen-admission",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
	)
}
