package app

import (
	"context"
	"errors"
	"log/slog"

	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/user_stats_service/domain"
	"github.com/crmkit/crm_services/internal/user_stats_service/query"
)

// UserStatsRepository is the record store the service reads cohorts from.
type UserStatsRepository interface {
	Query(ctx context.Context, p query.Predicate) (core.RecordStream, error)
	RawQuery(ctx context.Context, sql string) (core.RecordStream, error)
}

// Service answers cohort queries by compiling filters and streaming the
// matching records from the repository.
type Service struct {
	repo   UserStatsRepository
	schema domain.Schema
	logger *slog.Logger
}

// NewService creates a Service checking filters against schema.
func NewService(repo UserStatsRepository, schema domain.Schema, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		schema: schema,
		logger: logger.With("service_component", "UserStatsService"),
	}
}

// Query returns the users matching f. Compilation errors wrap
// domain.ErrCompilation; store failures are domain.ErrBackend.
func (s *Service) Query(ctx context.Context, f core.StructuredFilter) (core.RecordStream, error) {
	pred, err := query.Compile(f, s.schema)
	if err != nil {
		s.logger.WarnContext(ctx, "Rejected cohort filter", "error", err)
		cohortQueriesCounter.WithLabelValues("filter", "invalid").Inc()
		return nil, err
	}
	s.logger.DebugContext(ctx, "Compiled cohort filter", "where", pred.Where, "args", len(pred.Args))

	stream, err := s.repo.Query(ctx, pred)
	if err != nil {
		cohortQueriesCounter.WithLabelValues("filter", outcome(err)).Inc()
		return nil, err
	}
	cohortQueriesCounter.WithLabelValues("filter", "ok").Inc()
	return &countingStream{RecordStream: stream, path: "filter"}, nil
}

// RawQuery runs operator supplied SQL through the same row cap and
// projection as Query.
func (s *Service) RawQuery(ctx context.Context, sql string) (core.RecordStream, error) {
	s.logger.InfoContext(ctx, "Running raw cohort query")
	stream, err := s.repo.RawQuery(ctx, sql)
	if err != nil {
		cohortQueriesCounter.WithLabelValues("raw", outcome(err)).Inc()
		return nil, err
	}
	cohortQueriesCounter.WithLabelValues("raw", "ok").Inc()
	return &countingStream{RecordStream: stream, path: "raw"}, nil
}

func outcome(err error) string {
	if errors.Is(err, domain.ErrBackend) {
		return "backend_error"
	}
	return "invalid"
}

type countingStream struct {
	core.RecordStream
	path string
}

func (c *countingStream) Next(ctx context.Context) (core.UserRecord, error) {
	rec, err := c.RecordStream.Next(ctx)
	if err == nil {
		recordsStreamedCounter.WithLabelValues(c.path).Inc()
	}
	return rec, err
}
