package grpc

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	pb "github.com/crmkit/crm_services/api/rpc/notification"
	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/notification_service/app"
	"github.com/crmkit/crm_services/internal/notification_service/domain"
	"github.com/crmkit/crm_services/internal/platform/grpcjson"
	"github.com/crmkit/crm_services/internal/platform/logger"
)

type okSender struct{}

func (okSender) Send(context.Context, core.OutboundMessage) error { return nil }

func TestGRPCServer_SendRoundTrip(t *testing.T) {
	dispatcher := app.NewDispatcher(map[core.ChannelKind]domain.Sender{
		core.ChannelEmail: okSender{},
		core.ChannelInApp: okSender{},
	}, app.DispatcherConfig{Workers: 2}, logger.Discard())

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpcjson.ServerOption())
	pb.RegisterNotificationServer(srv, NewGRPCServer(dispatcher, logger.Discard()))
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpcjson.DialOption(),
	)
	require.NoError(t, err)
	defer conn.Close()

	stream, err := pb.NewNotificationClient(conn).Send(context.Background())
	require.NoError(t, err)

	msgs := []core.OutboundMessage{
		{ID: "m1", Kind: core.ChannelEmail, Recipients: []string{"a@acme.org"}, Subject: "Welcome"},
		{ID: "m2", Kind: core.ChannelInApp, Recipients: []string{"device-1"}, Subject: "Hi"},
		{ID: "m3", Kind: core.ChannelSMS, Recipients: []string{"+15550100"}},
	}
	for i := range msgs {
		require.NoError(t, stream.Send(&msgs[i]))
	}
	require.NoError(t, stream.CloseSend())

	acks := map[string]core.DeliveryAck{}
	for {
		ack, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		acks[ack.MessageID] = *ack
	}

	require.Len(t, acks, 3)
	assert.True(t, acks["m1"].OK())
	assert.True(t, acks["m2"].OK())
	assert.False(t, acks["m3"].OK(), "sms has no sender registered")
}
