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
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	pb "github.com/crmkit/crm_services/api/rpc/metadata"
	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/metadata_service/domain"
	"github.com/crmkit/crm_services/internal/platform/grpcjson"
	"github.com/crmkit/crm_services/internal/platform/logger"
)

type fakeMaterializer struct {
	catalogue map[uint32]core.Content
	err       error
	gotIDs    []uint32
}

func (f *fakeMaterializer) Materialize(_ context.Context, ids []uint32) ([]core.Content, error) {
	f.gotIDs = ids
	if f.err != nil {
		return nil, f.err
	}
	var out []core.Content
	for _, id := range ids {
		if c, ok := f.catalogue[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func dial(t *testing.T, m Materializer) pb.MetadataClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpcjson.ServerOption())
	pb.RegisterMetadataServer(srv, NewGRPCServer(m, logger.Discard()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpcjson.DialOption(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return pb.NewMetadataClient(conn)
}

func materialize(t *testing.T, client pb.MetadataClient, ids ...uint32) ([]core.Content, error) {
	t.Helper()
	stream, err := client.Materialize(context.Background())
	require.NoError(t, err)
	for _, id := range ids {
		require.NoError(t, stream.Send(&pb.MaterializeRequest{ID: id}))
	}
	require.NoError(t, stream.CloseSend())

	var out []core.Content
	for {
		c, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, *c)
	}
}

func TestGRPCServer_Materialize(t *testing.T) {
	m := &fakeMaterializer{catalogue: map[uint32]core.Content{
		1: {ID: 1, Name: "one", URL: "https://cdn.acme.org/1"},
		2: {ID: 2, Name: "two"},
		3: {ID: 3, Name: "three"},
	}}
	contents, err := materialize(t, dial(t, m), 1, 2, 3, 404)
	require.NoError(t, err)

	require.Len(t, contents, 3)
	assert.Equal(t, "one", contents[0].Name)
	assert.Equal(t, "https://cdn.acme.org/1", contents[0].URL)
	assert.Equal(t, []uint32{1, 2, 3, 404}, m.gotIDs)
}

func TestGRPCServer_MaterializeStoreFailure(t *testing.T) {
	_, err := materialize(t, dial(t, &fakeMaterializer{err: domain.ErrStore}), 1)
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}
