package middlewares

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/kitchen-admission/internal/pkg/interceptors"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/interceptors/constants"
)

// AttachTracingMetadata stores the chi request id and the X-Idempotency-Key header in the
// request context and tags the active span with the request id.
func AttachTracingMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		idempotencyKey := r.Header.Get(constants.HeaderXIdempotencyKey)

		ctx := interceptors.WithValues(r.Context(), requestID, idempotencyKey, r.Header.Get(constants.HeaderXTenantID))
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("http.request_id", requestID))
		w.Header().Set(middleware.RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Tenant takes the tenant from the {tenantID} route parameter. It must be mounted inside
// the route group that declares the parameter.
func Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := chi.URLParam(r, "tenantID")
		ctx := interceptors.WithValues(r.Context(),
			interceptors.RequestID(r.Context()), interceptors.IdempotencyKey(r.Context()), tenantID)
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("tenant.id", tenantID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
