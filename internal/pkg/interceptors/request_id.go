package interceptors

import (
	"context"

	"google.golang.org/grpc/metadata"

	"github.com/jcmexdev/kitchen-admission/internal/pkg/interceptors/constants"
)

var contextKeys = map[string]any{
	constants.HeaderXRequestId:      constants.ContextKeyRequestID,
	constants.HeaderXIdempotencyKey: constants.ContextKeyIdempotencyKey,
	constants.HeaderXTenantID:       constants.ContextKeyTenantID,
}

// RequestID returns the request id stored by the HTTP middleware or the gRPC interceptor.
func RequestID(ctx context.Context) string {
	return GetMetadataValue(ctx, constants.HeaderXRequestId)
}

// IdempotencyKey returns the caller supplied idempotency key, if any.
func IdempotencyKey(ctx context.Context) string {
	return GetMetadataValue(ctx, constants.HeaderXIdempotencyKey)
}

// TenantID returns the tenant the call was made for, if any.
func TenantID(ctx context.Context) string {
	return GetMetadataValue(ctx, constants.HeaderXTenantID)
}

// WithValues stores the propagated headers in ctx under their typed keys.
func WithValues(ctx context.Context, requestID, idempotencyKey, tenantID string) context.Context {
	ctx = context.WithValue(ctx, constants.ContextKeyRequestID, requestID)
	ctx = context.WithValue(ctx, constants.ContextKeyIdempotencyKey, idempotencyKey)
	return context.WithValue(ctx, constants.ContextKeyTenantID, tenantID)
}

// ContextWithPropagatedID copies the propagated headers into the outgoing gRPC metadata.
func ContextWithPropagatedID(ctx context.Context) context.Context {
	for _, key := range []string{constants.HeaderXRequestId, constants.HeaderXIdempotencyKey, constants.HeaderXTenantID} {
		if v := GetMetadataValue(ctx, key); v != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, key, v)
		}
	}
	return ctx
}

// GetMetadataValue looks key up in the context values first, then in the incoming and
// outgoing gRPC metadata.
func GetMetadataValue(ctx context.Context, key string) string {
	if ck, ok := contextKeys[key]; ok {
		if v, ok := ctx.Value(ck).(string); ok && v != "" {
			return v
		}
	}

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(key); len(ids) > 0 {
			return ids[0]
		}
	}

	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		if ids := md.Get(key); len(ids) > 0 {
			return ids[0]
		}
	}
	return ""
}
