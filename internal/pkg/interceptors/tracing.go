package interceptors

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/jcmexdev/kitchen-admission/internal/pkg/interceptors/constants"
)

// TraceServerInterceptor lifts the request id, idempotency key and tenant id from the
// incoming metadata into the context and logs every call with its outcome.
func TraceServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		first := func(md metadata.MD, key string) string {
			if ids := md.Get(key); len(ids) > 0 {
				return ids[0]
			}
			return ""
		}
		md, _ := metadata.FromIncomingContext(ctx)
		requestID := first(md, constants.HeaderXRequestId)
		idempotencyKey := first(md, constants.HeaderXIdempotencyKey)
		tenantID := first(md, constants.HeaderXTenantID)

		newCtx := WithValues(ctx, requestID, idempotencyKey, tenantID)

		start := time.Now()
		resp, err := handler(newCtx, req)

		attrs := []any{
			"method", info.FullMethod,
			"request_id", requestID,
			"tenant_id", tenantID,
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if idempotencyKey != "" {
			attrs = append(attrs, "idempotency_key", idempotencyKey)
		}
		if err != nil {
			slog.WarnContext(newCtx, "grpc call failed", append(attrs, "error", err)...)
		} else {
			slog.InfoContext(newCtx, "grpc call", attrs...)
		}
		return resp, err
	}
}
