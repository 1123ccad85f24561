package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "github.com/crmkit/crm_services/api/rpc/metadata"
	core "github.com/crmkit/crm_services/internal/core_domain"
)

// Materializer is the application surface exposed over gRPC.
type Materializer interface {
	Materialize(ctx context.Context, ids []uint32) ([]core.Content, error)
}

// GRPCServer implements metadata.MetadataServer.
type GRPCServer struct {
	app    Materializer
	logger *slog.Logger
}

func NewGRPCServer(app Materializer, logger *slog.Logger) *GRPCServer {
	return &GRPCServer{app: app, logger: logger.With("component", "metadata_grpc")}
}

var _ pb.MetadataServer = (*GRPCServer)(nil)

// Materialize collects ids until the caller half-closes, then streams back
// the matching contents.
func (s *GRPCServer) Materialize(stream pb.MaterializeServerStream) error {
	ctx := stream.Context()
	var ids []uint32
	for {
		req, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		ids = append(ids, req.ID)
	}

	contents, err := s.app.Materialize(ctx, ids)
	if err != nil {
		return status.Error(codes.Unavailable, "failed to materialize contents")
	}
	for i := range contents {
		if err := stream.Send(&contents[i]); err != nil {
			s.logger.WarnContext(ctx, "Caller stopped receiving contents", "error", err)
			return err
		}
	}
	return nil
}
