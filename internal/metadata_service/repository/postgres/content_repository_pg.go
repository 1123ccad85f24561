package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"

	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/metadata_service/domain"
)

// Querier is satisfied by *pgxpool.Pool and pgxmock pools.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PgContentRepository struct {
	db     Querier
	logger *slog.Logger
}

func NewPgContentRepository(db Querier, logger *slog.Logger) *PgContentRepository {
	return &PgContentRepository{db: db, logger: logger.With("component", "content_repository_pg")}
}

var _ domain.ContentRepository = (*PgContentRepository)(nil)

func (r *PgContentRepository) GetByIDs(ctx context.Context, ids []uint32) ([]core.Content, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, name, kind, url, COALESCE(description, ''), published_at
		FROM contents
		WHERE id = ANY($1)
		ORDER BY id
	`
	args := make([]int64, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}

	rows, err := r.db.Query(ctx, query, args)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error querying contents", "error", err, "ids", len(ids))
		return nil, domain.ErrStore
	}
	defer rows.Close()

	contents := make([]core.Content, 0, len(ids))
	for rows.Next() {
		var (
			c  core.Content
			id int64
		)
		if err := rows.Scan(&id, &c.Name, &c.Kind, &c.URL, &c.Description, &c.PublishedAt); err != nil {
			r.logger.ErrorContext(ctx, "Error scanning content row", "error", err)
			return nil, domain.ErrStore
		}
		c.ID = uint32(id)
		contents = append(contents, c)
	}
	if err := rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating content rows", "error", err)
		return nil, domain.ErrStore
	}
	return contents, nil
}
