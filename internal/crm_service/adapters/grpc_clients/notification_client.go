package grpc_clients

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"

	pb "github.com/crmkit/crm_services/api/rpc/notification"
	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/crm_service/app"
	"github.com/crmkit/crm_services/internal/crm_service/domain"
)

// NotificationClient opens delivery streams on the notification service.
type NotificationClient struct {
	client pb.NotificationClient
	logger *slog.Logger
}

func NewNotificationClient(conn grpc.ClientConnInterface, logger *slog.Logger) *NotificationClient {
	return &NotificationClient{client: pb.NewNotificationClient(conn), logger: logger.With("client", "notification_service")}
}

var _ app.Notifier = (*NotificationClient)(nil)

// Send forwards msgs on one bidirectional stream until msgs is closed, then
// half-closes. The returned stream yields acks and io.EOF after the last one.
func (c *NotificationClient) Send(ctx context.Context, msgs <-chan core.OutboundMessage) (app.AckStream, error) {
	stream, err := c.client.Send(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeliveryUnavailable, err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					if err := stream.CloseSend(); err != nil {
						c.logger.WarnContext(ctx, "Failed to half-close delivery stream", "error", err)
					}
					return
				}
				if err := stream.Send(&msg); err != nil {
					// Recv reports the stream failure to the consumer.
					c.logger.WarnContext(ctx, "Delivery stream send failed", "message_id", msg.ID, "error", err)
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return ackStream{stream}, nil
}

type ackStream struct {
	stream pb.SendClientStream
}

func (a ackStream) Recv() (core.DeliveryAck, error) {
	ack, err := a.stream.Recv()
	if err != nil {
		return core.DeliveryAck{}, err
	}
	return *ack, nil
}
