// Package userstats is the gRPC contract of the user stats service.
// Messages travel with the grpcjson codec.
package userstats

import (
	"context"

	"google.golang.org/grpc"

	core "github.com/crmkit/crm_services/internal/core_domain"
)

const ServiceName = "userstats.UserStats"

const (
	QueryMethod    = "/userstats.UserStats/Query"
	RawQueryMethod = "/userstats.UserStats/RawQuery"
)

type QueryRequest struct {
	Filter core.StructuredFilter `json:"filter"`
}

type RawQueryRequest struct {
	Query string `json:"query"`
}

// UserStatsServer is implemented by the service adapter.
type UserStatsServer interface {
	Query(*QueryRequest, RecordSender) error
	RawQuery(*RawQueryRequest, RecordSender) error
}

// RecordSender is the server side of a record stream.
type RecordSender interface {
	Send(*core.UserRecord) error
	grpc.ServerStream
}

type recordSender struct {
	grpc.ServerStream
}

func (x *recordSender) Send(m *core.UserRecord) error {
	return x.ServerStream.SendMsg(m)
}

func queryHandler(srv any, stream grpc.ServerStream) error {
	m := new(QueryRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(UserStatsServer).Query(m, &recordSender{stream})
}

func rawQueryHandler(srv any, stream grpc.ServerStream) error {
	m := new(RawQueryRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(UserStatsServer).RawQuery(m, &recordSender{stream})
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*UserStatsServer)(nil),
	Streams: []grpc.StreamDesc{
		{StreamName: "Query", Handler: queryHandler, ServerStreams: true},
		{StreamName: "RawQuery", Handler: rawQueryHandler, ServerStreams: true},
	},
	Metadata: "api/rpc/userstats",
}

func RegisterUserStatsServer(s grpc.ServiceRegistrar, srv UserStatsServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// UserStatsClient calls the user stats service.
type UserStatsClient interface {
	Query(ctx context.Context, in *QueryRequest, opts ...grpc.CallOption) (RecordReceiver, error)
	RawQuery(ctx context.Context, in *RawQueryRequest, opts ...grpc.CallOption) (RecordReceiver, error)
}

// RecordReceiver is the client side of a record stream.
type RecordReceiver interface {
	Recv() (*core.UserRecord, error)
	grpc.ClientStream
}

type userStatsClient struct {
	cc grpc.ClientConnInterface
}

func NewUserStatsClient(cc grpc.ClientConnInterface) UserStatsClient {
	return &userStatsClient{cc}
}

func (c *userStatsClient) Query(ctx context.Context, in *QueryRequest, opts ...grpc.CallOption) (RecordReceiver, error) {
	return c.open(ctx, 0, QueryMethod, in, opts)
}

func (c *userStatsClient) RawQuery(ctx context.Context, in *RawQueryRequest, opts ...grpc.CallOption) (RecordReceiver, error) {
	return c.open(ctx, 1, RawQueryMethod, in, opts)
}

func (c *userStatsClient) open(ctx context.Context, idx int, method string, in any, opts []grpc.CallOption) (RecordReceiver, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[idx], method, opts...)
	if err != nil {
		return nil, err
	}
	x := &recordReceiver{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type recordReceiver struct {
	grpc.ClientStream
}

func (x *recordReceiver) Recv() (*core.UserRecord, error) {
	m := new(core.UserRecord)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
