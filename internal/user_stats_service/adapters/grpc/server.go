package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "github.com/crmkit/crm_services/api/rpc/userstats"
	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/user_stats_service/domain"
)

// CohortQuerier is the application surface exposed over gRPC.
type CohortQuerier interface {
	Query(ctx context.Context, f core.StructuredFilter) (core.RecordStream, error)
	RawQuery(ctx context.Context, sql string) (core.RecordStream, error)
}

// GRPCServer implements userstats.UserStatsServer.
type GRPCServer struct {
	app    CohortQuerier
	logger *slog.Logger
}

// NewGRPCServer creates a new GRPCServer instance.
func NewGRPCServer(app CohortQuerier, logger *slog.Logger) *GRPCServer {
	return &GRPCServer{app: app, logger: logger.With("component", "user_stats_grpc")}
}

var _ pb.UserStatsServer = (*GRPCServer)(nil)

func (s *GRPCServer) Query(req *pb.QueryRequest, stream pb.RecordSender) error {
	ctx := stream.Context()
	records, err := s.app.Query(ctx, req.Filter)
	if err != nil {
		return toStatus(err)
	}
	return s.forward(ctx, records, stream)
}

func (s *GRPCServer) RawQuery(req *pb.RawQueryRequest, stream pb.RecordSender) error {
	ctx := stream.Context()
	records, err := s.app.RawQuery(ctx, req.Query)
	if err != nil {
		return toStatus(err)
	}
	return s.forward(ctx, records, stream)
}

// forward copies records to the caller until the stream ends, fails or the
// caller goes away. The record stream is always closed.
func (s *GRPCServer) forward(ctx context.Context, records core.RecordStream, stream pb.RecordSender) error {
	defer records.Close()
	sent := 0
	for {
		rec, err := records.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.logger.DebugContext(ctx, "Cohort stream finished", "records", sent)
			return nil
		}
		if err != nil {
			return toStatus(err)
		}
		if err := stream.Send(&rec); err != nil {
			s.logger.WarnContext(ctx, "Caller stopped receiving cohort", "records", sent, "error", err)
			return err
		}
		sent++
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrCompilation), errors.Is(err, domain.ErrEmptyRawQuery):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		// Only the fixed backend message ever leaves the service.
		return status.Error(codes.Internal, domain.ErrBackend.Error())
	}
}
