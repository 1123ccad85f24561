package grpc_clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"google.golang.org/grpc"

	pb "github.com/crmkit/crm_services/api/rpc/metadata"
	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/crm_service/domain"
)

const DefaultMaterializeTimeout = 10 * time.Second

// MetadataClient resolves content ids over the Materialize stream.
type MetadataClient struct {
	client  pb.MetadataClient
	timeout time.Duration
	logger  *slog.Logger
}

func NewMetadataClient(conn grpc.ClientConnInterface, timeout time.Duration, logger *slog.Logger) *MetadataClient {
	if timeout <= 0 {
		timeout = DefaultMaterializeTimeout
	}
	return &MetadataClient{client: pb.NewMetadataClient(conn), timeout: timeout, logger: logger.With("client", "metadata_service")}
}

// Materialize sends every id, half-closes and collects the contents.
func (c *MetadataClient) Materialize(ctx context.Context, ids []uint32) ([]core.Content, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream, err := c.client.Materialize(ctx)
	if err != nil {
		return nil, c.fail(ctx, "open", err)
	}
	for _, id := range ids {
		if err := stream.Send(&pb.MaterializeRequest{ID: id}); err != nil {
			// The real cause surfaces on Recv.
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, c.fail(ctx, "send", err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		return nil, c.fail(ctx, "close send", err)
	}

	var contents []core.Content
	for {
		content, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return contents, nil
		}
		if err != nil {
			return nil, c.fail(ctx, "recv", err)
		}
		contents = append(contents, *content)
	}
}

func (c *MetadataClient) fail(ctx context.Context, step string, err error) error {
	c.logger.WarnContext(ctx, "Materialize RPC failed", "step", step, "error", err)
	return fmt.Errorf("%w: %s: %v", domain.ErrContentUnavailable, step, err)
}
