package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"

	pb "github.com/crmkit/crm_services/api/rpc/notification"
	core "github.com/crmkit/crm_services/internal/core_domain"
)

// Deliverer is the application surface exposed over gRPC.
type Deliverer interface {
	Send(ctx context.Context, in <-chan core.OutboundMessage) <-chan core.DeliveryAck
}

// GRPCServer implements notification.NotificationServer.
type GRPCServer struct {
	app    Deliverer
	logger *slog.Logger
}

func NewGRPCServer(app Deliverer, logger *slog.Logger) *GRPCServer {
	return &GRPCServer{app: app, logger: logger.With("component", "notification_grpc")}
}

var _ pb.NotificationServer = (*GRPCServer)(nil)

// Send bridges the bidirectional stream to the dispatcher. Acks are written
// as soon as they are produced; the call ends after the caller half-closes
// and every received message has been acked.
func (s *GRPCServer) Send(stream pb.SendServerStream) error {
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	in := make(chan core.OutboundMessage)
	recvErr := make(chan error, 1)
	go func() {
		defer close(in)
		for {
			msg, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					recvErr <- err
				}
				return
			}
			select {
			case in <- *msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for ack := range s.app.Send(ctx, in) {
		if err := stream.Send(&ack); err != nil {
			s.logger.WarnContext(ctx, "Failed to send ack, closing stream", "message_id", ack.MessageID, "error", err)
			return err
		}
	}

	select {
	case err := <-recvErr:
		s.logger.WarnContext(ctx, "Delivery stream receive failed", "error", err)
		return err
	default:
		return nil
	}
}
