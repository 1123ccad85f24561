// Package metadata is the gRPC contract of the metadata service.
// Messages travel with the grpcjson codec.
package metadata

import (
	"context"

	"google.golang.org/grpc"

	core "github.com/crmkit/crm_services/internal/core_domain"
)

const (
	ServiceName       = "metadata.Metadata"
	MaterializeMethod = "/metadata.Metadata/Materialize"
)

type MaterializeRequest struct {
	ID uint32 `json:"id"`
}

// MetadataServer is implemented by the service adapter.
type MetadataServer interface {
	Materialize(MaterializeServerStream) error
}

// MaterializeServerStream receives ids and sends back contents.
type MaterializeServerStream interface {
	Send(*core.Content) error
	Recv() (*MaterializeRequest, error)
	grpc.ServerStream
}

type materializeServer struct {
	grpc.ServerStream
}

func (x *materializeServer) Send(m *core.Content) error {
	return x.ServerStream.SendMsg(m)
}

func (x *materializeServer) Recv() (*MaterializeRequest, error) {
	m := new(MaterializeRequest)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func materializeHandler(srv any, stream grpc.ServerStream) error {
	return srv.(MetadataServer).Materialize(&materializeServer{stream})
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MetadataServer)(nil),
	Streams: []grpc.StreamDesc{
		{StreamName: "Materialize", Handler: materializeHandler, ServerStreams: true, ClientStreams: true},
	},
	Metadata: "api/rpc/metadata",
}

func RegisterMetadataServer(s grpc.ServiceRegistrar, srv MetadataServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// MetadataClient calls the metadata service.
type MetadataClient interface {
	Materialize(ctx context.Context, opts ...grpc.CallOption) (MaterializeClientStream, error)
}

// MaterializeClientStream sends ids and receives contents.
type MaterializeClientStream interface {
	Send(*MaterializeRequest) error
	Recv() (*core.Content, error)
	grpc.ClientStream
}

type metadataClient struct {
	cc grpc.ClientConnInterface
}

func NewMetadataClient(cc grpc.ClientConnInterface) MetadataClient {
	return &metadataClient{cc}
}

func (c *metadataClient) Materialize(ctx context.Context, opts ...grpc.CallOption) (MaterializeClientStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], MaterializeMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &materializeClient{stream}, nil
}

type materializeClient struct {
	grpc.ClientStream
}

func (x *materializeClient) Send(m *MaterializeRequest) error {
	return x.ClientStream.SendMsg(m)
}

func (x *materializeClient) Recv() (*core.Content, error) {
	m := new(core.Content)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
