package auth

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor rejects calls without a valid bearer token before
// the handler runs and stores the caller identity in the context.
func UnaryServerInterceptor(v *Verifier, logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		var header string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get("authorization"); len(values) > 0 {
				header = values[0]
			}
		}
		id, err := v.VerifyHeader(header)
		if err != nil {
			logger.WarnContext(ctx, "Rejected unauthenticated call", "method", info.FullMethod, "error", err)
			return nil, status.Error(codes.Unauthenticated, publicReason(err))
		}
		return handler(WithIdentity(ctx, id), req)
	}
}

func publicReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return ErrMissingToken.Error()
	case errors.Is(err, ErrInvalidFormat):
		return ErrInvalidFormat.Error()
	default:
		return ErrInvalidToken.Error()
	}
}

// BearerToken attaches a token to every outgoing call.
type BearerToken string

func (t BearerToken) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(t)}, nil
}

// RequireTransportSecurity is false; TLS termination is left to the deployment.
func (BearerToken) RequireTransportSecurity() bool { return false }
