package grpc_clients

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/crmkit/crm_services/internal/platform/grpcjson"
)

// Dial connects to a downstream service using the JSON codec.
func Dial(ctx context.Context, name, target string, logger *slog.Logger, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpcjson.DialOption(),
	}, opts...)
	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s at %s: %w", name, target, err)
	}
	logger.Info("Connected via gRPC", "service", name, "target", target)
	return conn, nil
}
