package grpcx

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/jcmexdev/kitchen-admission/internal/admission/app"
	"github.com/jcmexdev/kitchen-admission/internal/admission/domain"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/interceptors"
)

type Server struct {
	svc *app.Service
}

var _ AdmissionServer = (*Server)(nil)

func NewServer(svc *app.Service) *Server {
	return &Server{svc: svc}
}

// Register adds the Admission service and a health service reporting it as serving.
func Register(s *grpc.Server, srv AdmissionServer) *health.Server {
	RegisterAdmissionServer(s, srv)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

func tenant(ctx context.Context, tenantID string) (string, error) {
	if tenantID == "" {
		tenantID = interceptors.TenantID(ctx)
	}
	if tenantID == "" {
		return "", status.Error(codes.InvalidArgument, "tenant id is required")
	}
	return tenantID, nil
}

func (s *Server) Validate(ctx context.Context, in *OrderRequest) (*ValidateResponse, error) {
	tenantID, err := tenant(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	res, err := s.svc.Validation.Validate(ctx, in.toDomain(tenantID))
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &ValidateResponse{Result: res}, nil
}

func (s *Server) Admit(ctx context.Context, in *OrderRequest) (*AdmitResponse, error) {
	tenantID, err := tenant(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	req := in.toDomain(tenantID)
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = interceptors.IdempotencyKey(ctx)
	}

	adm, err := s.svc.Admit(ctx, req)
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return &AdmitResponse{Validation: &verr.Result}, nil
	}
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &AdmitResponse{
		Admitted:   true,
		Existing:   adm.Existing,
		Order:      toOrder(adm.Order),
		Validation: adm.Validation,
	}, nil
}

func (s *Server) ProcessNext(ctx context.Context, in *ProcessNextRequest) (*ProcessNextResponse, error) {
	tenantID, err := tenant(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	o, err := s.svc.Queue.ProcessNext(ctx, tenantID, in.OutletID)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &ProcessNextResponse{Order: toOrder(o)}, nil
}

func (s *Server) Transition(ctx context.Context, in *TransitionRequest) (*TransitionResponse, error) {
	tenantID, err := tenant(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	to := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(in.Status)))
	o, err := s.svc.Queue.Transition(ctx, tenantID, in.OutletID, in.OrderID, to, in.Reason)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &TransitionResponse{Order: toOrder(o)}, nil
}

func (s *Server) Consume(ctx context.Context, in *ConsumeRequest) (*ConsumeResponse, error) {
	tenantID, err := tenant(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	lines := make([]domain.RecipeLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		lines = append(lines, domain.RecipeLine{Name: l.Name, QuantityPerUnit: l.QuantityPerUnit})
	}
	res, err := s.svc.Ledger.Consume(ctx, tenantID, in.OutletID, lines, in.Multiplier)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	out := &ConsumeResponse{
		Consumed:  res.Consumed,
		Lines:     make([]ConsumedLine, 0, len(res.Lines)),
		Shortages: res.Shortages,
	}
	for _, l := range res.Lines {
		out.Lines = append(out.Lines, ConsumedLine{
			IngredientID: l.IngredientID, Name: l.Name, Consumed: l.Consumed, Remaining: l.Remaining,
		})
	}
	return out, nil
}

func (s *Server) Receive(ctx context.Context, in *ReceiveRequest) (*ReceiveResponse, error) {
	tenantID, err := tenant(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	lines := make([]domain.ReceiptLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		lines = append(lines, domain.ReceiptLine{
			Name:         l.Name,
			Quantity:     l.Quantity,
			UnitCost:     l.UnitCost,
			Unit:         l.Unit,
			MinimumStock: l.MinimumStock,
			MaximumStock: l.MaximumStock,
		})
	}
	res, err := s.svc.Ledger.Receive(ctx, tenantID, in.OutletID, lines)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	out := &ReceiveResponse{
		Processed: make([]ReceivedLine, 0, len(res.Processed)),
		Errors:    make([]RejectedLine, 0, len(res.Errors)),
	}
	for _, p := range res.Processed {
		out.Processed = append(out.Processed, ReceivedLine{
			Line: p.Line, ItemID: p.Item.ID, Name: p.Item.Name, CurrentStock: p.Item.CurrentStock,
		})
	}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, RejectedLine{Line: e.Line, Name: e.Name, Reason: e.Reason})
	}
	return out, nil
}

func toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrValidationFailed), errors.Is(err, domain.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrIllegalTransition), errors.Is(err, domain.ErrConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		slog.ErrorContext(ctx, "admission call failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}
