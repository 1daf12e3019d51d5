// Package grpcx serves the admission engine as the admission.v1.Admission gRPC service.
// Messages are plain structs carried by a JSON codec; a request's TenantID may be left
// empty when the caller sends x-tenant-id metadata instead.
package grpcx

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "admission.v1.Admission"

// AdmissionServer is the server API of the Admission service.
type AdmissionServer interface {
	Validate(ctx context.Context, in *OrderRequest) (*ValidateResponse, error)
	Admit(ctx context.Context, in *OrderRequest) (*AdmitResponse, error)
	ProcessNext(ctx context.Context, in *ProcessNextRequest) (*ProcessNextResponse, error)
	Transition(ctx context.Context, in *TransitionRequest) (*TransitionResponse, error)
	Consume(ctx context.Context, in *ConsumeRequest) (*ConsumeResponse, error)
	Receive(ctx context.Context, in *ReceiveRequest) (*ReceiveResponse, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdmissionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Validate", AdmissionServer.Validate),
		unary("Admit", AdmissionServer.Admit),
		unary("ProcessNext", AdmissionServer.ProcessNext),
		unary("Transition", AdmissionServer.Transition),
		unary("Consume", AdmissionServer.Consume),
		unary("Receive", AdmissionServer.Receive),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "admission/v1/admission",
}

func RegisterAdmissionServer(s grpc.ServiceRegistrar, srv AdmissionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req, Resp any](method string, call func(AdmissionServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AdmissionServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + method,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AdmissionServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Client calls the Admission service over a JSON-speaking connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Validate(ctx context.Context, in *OrderRequest, opts ...grpc.CallOption) (*ValidateResponse, error) {
	return invoke[ValidateResponse](ctx, c.cc, "Validate", in, opts)
}

func (c *Client) Admit(ctx context.Context, in *OrderRequest, opts ...grpc.CallOption) (*AdmitResponse, error) {
	return invoke[AdmitResponse](ctx, c.cc, "Admit", in, opts)
}

func (c *Client) ProcessNext(ctx context.Context, in *ProcessNextRequest, opts ...grpc.CallOption) (*ProcessNextResponse, error) {
	return invoke[ProcessNextResponse](ctx, c.cc, "ProcessNext", in, opts)
}

func (c *Client) Transition(ctx context.Context, in *TransitionRequest, opts ...grpc.CallOption) (*TransitionResponse, error) {
	return invoke[TransitionResponse](ctx, c.cc, "Transition", in, opts)
}

func (c *Client) Consume(ctx context.Context, in *ConsumeRequest, opts ...grpc.CallOption) (*ConsumeResponse, error) {
	return invoke[ConsumeResponse](ctx, c.cc, "Consume", in, opts)
}

func (c *Client) Receive(ctx context.Context, in *ReceiveRequest, opts ...grpc.CallOption) (*ReceiveResponse, error) {
	return invoke[ReceiveResponse](ctx, c.cc, "Receive", in, opts)
}
