// Package crm is the gRPC contract of the CRM service.
// Messages travel with the grpcjson codec.
package crm

import (
	"context"

	"google.golang.org/grpc"

	"github.com/crmkit/crm_services/internal/crm_service/domain"
)

const (
	ServiceName   = "crm.CRM"
	WelcomeMethod = "/crm.CRM/Welcome"
	RecallMethod  = "/crm.CRM/Recall"
	RemindMethod  = "/crm.CRM/Remind"
)

// CRMServer is implemented by the service adapter.
type CRMServer interface {
	Welcome(context.Context, *domain.WelcomeRequest) (*domain.Response, error)
	Recall(context.Context, *domain.RecallRequest) (*domain.Response, error)
	Remind(context.Context, *domain.RemindRequest) (*domain.Response, error)
}

func welcomeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(domain.WelcomeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CRMServer).Welcome(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WelcomeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CRMServer).Welcome(ctx, req.(*domain.WelcomeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func recallHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(domain.RecallRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CRMServer).Recall(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RecallMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CRMServer).Recall(ctx, req.(*domain.RecallRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func remindHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(domain.RemindRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CRMServer).Remind(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RemindMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CRMServer).Remind(ctx, req.(*domain.RemindRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CRMServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Welcome", Handler: welcomeHandler},
		{MethodName: "Recall", Handler: recallHandler},
		{MethodName: "Remind", Handler: remindHandler},
	},
	Metadata: "api/rpc/crm",
}

func RegisterCRMServer(s grpc.ServiceRegistrar, srv CRMServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// CRMClient calls the CRM service.
type CRMClient interface {
	Welcome(ctx context.Context, in *domain.WelcomeRequest, opts ...grpc.CallOption) (*domain.Response, error)
	Recall(ctx context.Context, in *domain.RecallRequest, opts ...grpc.CallOption) (*domain.Response, error)
	Remind(ctx context.Context, in *domain.RemindRequest, opts ...grpc.CallOption) (*domain.Response, error)
}

type crmClient struct {
	cc grpc.ClientConnInterface
}

func NewCRMClient(cc grpc.ClientConnInterface) CRMClient {
	return &crmClient{cc}
}

func (c *crmClient) Welcome(ctx context.Context, in *domain.WelcomeRequest, opts ...grpc.CallOption) (*domain.Response, error) {
	out := new(domain.Response)
	if err := c.cc.Invoke(ctx, WelcomeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *crmClient) Recall(ctx context.Context, in *domain.RecallRequest, opts ...grpc.CallOption) (*domain.Response, error) {
	out := new(domain.Response)
	if err := c.cc.Invoke(ctx, RecallMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *crmClient) Remind(ctx context.Context, in *domain.RemindRequest, opts ...grpc.CallOption) (*domain.Response, error) {
	out := new(domain.Response)
	if err := c.cc.Invoke(ctx, RemindMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
