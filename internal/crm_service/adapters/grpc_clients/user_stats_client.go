package grpc_clients

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "github.com/crmkit/crm_services/api/rpc/userstats"
	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/crm_service/domain"
)

// UserStatsClient turns the user stats record stream into a core.RecordStream.
type UserStatsClient struct {
	client pb.UserStatsClient
	logger *slog.Logger
}

func NewUserStatsClient(conn grpc.ClientConnInterface, logger *slog.Logger) *UserStatsClient {
	return &UserStatsClient{client: pb.NewUserStatsClient(conn), logger: logger.With("client", "user_stats_service")}
}

// Query streams the users matching f.
func (c *UserStatsClient) Query(ctx context.Context, f core.StructuredFilter) (core.RecordStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	rx, err := c.client.Query(ctx, &pb.QueryRequest{Filter: f})
	if err != nil {
		cancel()
		return nil, c.mapError(ctx, "Query", err)
	}
	return &remoteStream{rx: rx, cancel: cancel, client: c}, nil
}

// RawQuery streams the users selected by an operator supplied statement.
func (c *UserStatsClient) RawQuery(ctx context.Context, sql string) (core.RecordStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	rx, err := c.client.RawQuery(ctx, &pb.RawQueryRequest{Query: sql})
	if err != nil {
		cancel()
		return nil, c.mapError(ctx, "RawQuery", err)
	}
	return &remoteStream{rx: rx, cancel: cancel, client: c}, nil
}

func (c *UserStatsClient) mapError(ctx context.Context, method string, err error) error {
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.InvalidArgument:
		return errors.Join(domain.ErrInvalidCohort, errors.New(st.Message()))
	case codes.Canceled, codes.DeadlineExceeded:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	c.logger.ErrorContext(ctx, "User stats RPC failed", "method", method, "code", st.Code().String(), "error", st.Message())
	return domain.ErrCohortBackend
}

type remoteStream struct {
	rx     pb.RecordReceiver
	cancel context.CancelFunc
	client *UserStatsClient

	once sync.Once
	err  error
}

func (s *remoteStream) Next(ctx context.Context) (core.UserRecord, error) {
	if s.err != nil {
		return core.UserRecord{}, s.err
	}
	if err := ctx.Err(); err != nil {
		return core.UserRecord{}, err
	}
	rec, err := s.rx.Recv()
	if errors.Is(err, io.EOF) {
		s.err = io.EOF
		s.Close()
		return core.UserRecord{}, io.EOF
	}
	if err != nil {
		s.err = s.client.mapError(s.rx.Context(), "Recv", err)
		s.Close()
		return core.UserRecord{}, s.err
	}
	return *rec, nil
}

// Close cancels the underlying RPC so the server stops producing.
func (s *remoteStream) Close() {
	s.once.Do(s.cancel)
}
