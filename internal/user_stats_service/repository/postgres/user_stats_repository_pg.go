package postgres

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/user_stats_service/domain"
	"github.com/crmkit/crm_services/internal/user_stats_service/query"
)

// DefaultMaxRows caps cohort size when no limit is configured.
const DefaultMaxRows = 100

// userColumns is the projection shared by the filter and raw paths.
// Order must match scanUserRecord.
const userColumns = `email, name, recent_watched, viewed_but_not_started, started_but_not_finished, finished`

// Querier is satisfied by *pgxpool.Pool and pgxmock pools.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgUserStatsRepository reads user records from the user_stats table.
type PgUserStatsRepository struct {
	db      Querier
	maxRows int
	logger  *slog.Logger
}

// NewPgUserStatsRepository creates the repository. maxRows <= 0 uses DefaultMaxRows.
func NewPgUserStatsRepository(db Querier, maxRows int, logger *slog.Logger) *PgUserStatsRepository {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &PgUserStatsRepository{
		db:      db,
		maxRows: maxRows,
		logger:  logger.With("component", "user_stats_repository_pg"),
	}
}

// Query runs a compiled predicate and streams the matching users.
func (r *PgUserStatsRepository) Query(ctx context.Context, p query.Predicate) (core.RecordStream, error) {
	sql := `SELECT ` + userColumns + ` FROM user_stats WHERE ` + p.Where +
		` LIMIT $` + strconv.Itoa(p.NextPlaceholder())
	args := append(append([]any(nil), p.Args...), r.maxRows)
	return r.stream(ctx, sql, args, "filter")
}

// RawQuery runs operator supplied SQL. The statement is wrapped so that it
// goes through the same projection and row cap as filter queries.
func (r *PgUserStatsRepository) RawQuery(ctx context.Context, raw string) (core.RecordStream, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "; \t\n")
	if raw == "" {
		return nil, domain.ErrEmptyRawQuery
	}
	sql := `SELECT ` + userColumns + ` FROM (` + raw + `) AS raw_query LIMIT $1`
	return r.stream(ctx, sql, []any{r.maxRows}, "raw")
}

func (r *PgUserStatsRepository) stream(ctx context.Context, sql string, args []any, kind string) (core.RecordStream, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		// The statement stays in server logs only.
		r.logger.ErrorContext(ctx, "User stats query failed", "kind", kind, "error", err, "sql", sql)
		return nil, domain.ErrBackend
	}
	return &rowStream{rows: rows, logger: r.logger, kind: kind}, nil
}

// rowStream lazily maps pgx rows to user records.
type rowStream struct {
	rows   pgx.Rows
	logger *slog.Logger
	kind   string
	done   bool
	err    error
}

func (s *rowStream) Next(ctx context.Context) (core.UserRecord, error) {
	if s.done {
		if s.err != nil {
			return core.UserRecord{}, s.err
		}
		return core.UserRecord{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		s.finish(err)
		return core.UserRecord{}, err
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			s.logger.ErrorContext(ctx, "User stats row iteration failed", "kind", s.kind, "error", err)
			s.finish(domain.ErrBackend)
			return core.UserRecord{}, domain.ErrBackend
		}
		s.finish(nil)
		return core.UserRecord{}, io.EOF
	}
	rec, err := scanUserRecord(s.rows)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to scan user stats row", "kind", s.kind, "error", err)
		s.finish(domain.ErrBackend)
		return core.UserRecord{}, domain.ErrBackend
	}
	return rec, nil
}

func (s *rowStream) finish(err error) {
	s.done = true
	s.err = err
	s.rows.Close()
}

func (s *rowStream) Close() {
	if !s.done {
		s.finish(nil)
	}
}

func scanUserRecord(row pgx.Row) (core.UserRecord, error) {
	var (
		rec                                       core.UserRecord
		recent, viewed, started, finishedContents []int32
	)
	if err := row.Scan(&rec.Email, &rec.Name, &recent, &viewed, &started, &finishedContents); err != nil {
		return core.UserRecord{}, err
	}
	rec.Categories = map[string][]uint32{
		core.CategoryRecentWatched:         toUint32(recent),
		core.CategoryViewedButNotStarted:   toUint32(viewed),
		core.CategoryStartedButNotFinished: toUint32(started),
		core.CategoryFinished:              toUint32(finishedContents),
	}
	return rec, nil
}

func toUint32(in []int32) []uint32 {
	out := make([]uint32, 0, len(in))
	for _, v := range in {
		out = append(out, uint32(v))
	}
	return out
}
