// Package notification is the gRPC contract of the notification service.
// Messages travel with the grpcjson codec.
package notification

import (
	"context"

	"google.golang.org/grpc"

	core "github.com/crmkit/crm_services/internal/core_domain"
)

const (
	ServiceName = "notification.Notification"
	SendMethod  = "/notification.Notification/Send"
)

// NotificationServer is implemented by the service adapter.
type NotificationServer interface {
	Send(SendServerStream) error
}

// SendServerStream receives outbound messages and sends acks.
type SendServerStream interface {
	Send(*core.DeliveryAck) error
	Recv() (*core.OutboundMessage, error)
	grpc.ServerStream
}

type sendServer struct {
	grpc.ServerStream
}

func (x *sendServer) Send(m *core.DeliveryAck) error {
	return x.ServerStream.SendMsg(m)
}

func (x *sendServer) Recv() (*core.OutboundMessage, error) {
	m := new(core.OutboundMessage)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func sendHandler(srv any, stream grpc.ServerStream) error {
	return srv.(NotificationServer).Send(&sendServer{stream})
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NotificationServer)(nil),
	Streams: []grpc.StreamDesc{
		{StreamName: "Send", Handler: sendHandler, ServerStreams: true, ClientStreams: true},
	},
	Metadata: "api/rpc/notification",
}

func RegisterNotificationServer(s grpc.ServiceRegistrar, srv NotificationServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// NotificationClient calls the notification service.
type NotificationClient interface {
	Send(ctx context.Context, opts ...grpc.CallOption) (SendClientStream, error)
}

// SendClientStream sends outbound messages and receives acks.
type SendClientStream interface {
	Send(*core.OutboundMessage) error
	Recv() (*core.DeliveryAck, error)
	grpc.ClientStream
}

type notificationClient struct {
	cc grpc.ClientConnInterface
}

func NewNotificationClient(cc grpc.ClientConnInterface) NotificationClient {
	return &notificationClient{cc}
}

func (c *notificationClient) Send(ctx context.Context, opts ...grpc.CallOption) (SendClientStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], SendMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &sendClient{stream}, nil
}

type sendClient struct {
	grpc.ClientStream
}

func (x *sendClient) Send(m *core.OutboundMessage) error {
	return x.ClientStream.SendMsg(m)
}

func (x *sendClient) Recv() (*core.DeliveryAck, error) {
	m := new(core.DeliveryAck)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
