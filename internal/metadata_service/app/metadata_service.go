package app

import (
	"context"
	"log/slog"

	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/metadata_service/domain"
)

// MetadataService resolves content ids to contents. Nothing is cached
// between calls.
type MetadataService struct {
	repo   domain.ContentRepository
	logger *slog.Logger
}

func NewMetadataService(repo domain.ContentRepository, logger *slog.Logger) *MetadataService {
	return &MetadataService{repo: repo, logger: logger.With("service_component", "MetadataService")}
}

// Materialize returns the known contents among ids, each at most once.
func (s *MetadataService) Materialize(ctx context.Context, ids []uint32) ([]core.Content, error) {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return nil, nil
	}

	contents, err := s.repo.GetByIDs(ctx, unique)
	if err != nil {
		materializeRequestsCounter.WithLabelValues("error").Inc()
		s.logger.ErrorContext(ctx, "Failed to materialize contents", "ids", len(unique), "error", err)
		return nil, err
	}
	materializeRequestsCounter.WithLabelValues("success").Inc()

	if missing := len(unique) - len(contents); missing > 0 {
		contentsMissingCounter.Add(float64(missing))
		s.logger.WarnContext(ctx, "Some content ids were not found", "requested", len(unique), "found", len(contents))
	}
	return contents, nil
}

func dedupe(ids []uint32) []uint32 {
	seen := make(map[uint32]struct{}, len(ids))
	out := make([]uint32, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
