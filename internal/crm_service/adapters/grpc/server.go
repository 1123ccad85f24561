package grpc

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "github.com/crmkit/crm_services/api/rpc/crm"
	"github.com/crmkit/crm_services/internal/crm_service/domain"
)

// Notifications is the application surface exposed over gRPC.
type Notifications interface {
	Welcome(context.Context, *domain.WelcomeRequest) (*domain.Response, error)
	Recall(context.Context, *domain.RecallRequest) (*domain.Response, error)
	Remind(context.Context, *domain.RemindRequest) (*domain.Response, error)
}

// GRPCServer implements crm.CRMServer.
type GRPCServer struct {
	app    Notifications
	logger *slog.Logger
}

func NewGRPCServer(app Notifications, logger *slog.Logger) *GRPCServer {
	return &GRPCServer{app: app, logger: logger.With("component", "crm_grpc")}
}

var _ pb.CRMServer = (*GRPCServer)(nil)

func (s *GRPCServer) Welcome(ctx context.Context, req *domain.WelcomeRequest) (*domain.Response, error) {
	resp, err := s.app.Welcome(ctx, req)
	return resp, s.toStatus(ctx, "Welcome", err)
}

func (s *GRPCServer) Recall(ctx context.Context, req *domain.RecallRequest) (*domain.Response, error) {
	resp, err := s.app.Recall(ctx, req)
	return resp, s.toStatus(ctx, "Recall", err)
}

func (s *GRPCServer) Remind(ctx context.Context, req *domain.RemindRequest) (*domain.Response, error) {
	resp, err := s.app.Remind(ctx, req)
	return resp, s.toStatus(ctx, "Remind", err)
}

// toStatus maps application errors to gRPC codes. Only sanitized messages
// leave the service.
func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	if err == nil {
		return nil
	}
	s.logger.WarnContext(ctx, "Request failed", "method", method, "error", err)
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidCohort):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrCohortBackend):
		return status.Error(codes.Internal, domain.ErrCohortBackend.Error())
	case errors.Is(err, domain.ErrContentUnavailable):
		return status.Error(codes.Unavailable, domain.ErrContentUnavailable.Error())
	case errors.Is(err, domain.ErrDeliveryUnavailable):
		return status.Error(codes.Unavailable, domain.ErrDeliveryUnavailable.Error())
	case errors.Is(err, domain.ErrShuttingDown):
		return status.Error(codes.Unavailable, domain.ErrShuttingDown.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
