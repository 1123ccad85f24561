package postgres

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/crmkit/crm_services/internal/core_domain"
	"github.com/crmkit/crm_services/internal/platform/logger"
	"github.com/crmkit/crm_services/internal/user_stats_service/domain"
	"github.com/crmkit/crm_services/internal/user_stats_service/query"
)

var columns = []string{"email", "name", "recent_watched", "viewed_but_not_started", "started_but_not_finished", "finished"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return mockPool
}

func drain(t *testing.T, s core.RecordStream) ([]core.UserRecord, error) {
	t.Helper()
	defer s.Close()
	var out []core.UserRecord
	for {
		rec, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

func TestPgUserStatsRepository_Query(t *testing.T) {
	mockPool := newMock(t)
	repo := NewPgUserStatsRepository(mockPool, 0, logger.Discard())

	lower := time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)
	upper := lower.Add(24 * time.Hour)
	pred, err := query.Compile(core.StructuredFilter{}.
		WithTimestamp("created_at", core.NewTimeRange(lower, upper)), domain.DefaultSchema())
	require.NoError(t, err)

	rows := mockPool.NewRows(columns).
		AddRow("alice@acme.org", "Alice", []int32{9}, []int32{}, []int32{3, 4}, []int32{1}).
		AddRow("bob@acme.org", "Bob", []int32{}, []int32{5}, []int32{}, []int32{})
	mockPool.ExpectQuery(`SELECT email, name, recent_watched, viewed_but_not_started, started_but_not_finished, finished FROM user_stats WHERE created_at BETWEEN $1 AND $2 LIMIT $3`).
		WithArgs(lower, upper, DefaultMaxRows).
		WillReturnRows(rows)

	stream, err := repo.Query(context.Background(), pred)
	require.NoError(t, err)
	records, err := drain(t, stream)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "alice@acme.org", records[0].Email)
	assert.Equal(t, "Alice", records[0].Name)
	assert.Equal(t, []uint32{3, 4}, records[0].Categories[core.CategoryStartedButNotFinished])
	assert.Equal(t, []uint32{9}, records[0].Categories[core.CategoryRecentWatched])
	assert.Equal(t, "bob@acme.org", records[1].Email)
	assert.Empty(t, records[1].Categories[core.CategoryStartedButNotFinished])
	assert.Len(t, records[1].Categories, 4)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgUserStatsRepository_QueryUsesConfiguredLimit(t *testing.T) {
	mockPool := newMock(t)
	repo := NewPgUserStatsRepository(mockPool, 7, logger.Discard())

	mockPool.ExpectQuery(`SELECT email, name, recent_watched, viewed_but_not_started, started_but_not_finished, finished FROM user_stats WHERE TRUE LIMIT $1`).
		WithArgs(7).
		WillReturnRows(mockPool.NewRows(columns))

	stream, err := repo.Query(context.Background(), query.Predicate{Where: "TRUE"})
	require.NoError(t, err)
	records, err := drain(t, stream)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgUserStatsRepository_BackendErrorsAreSanitized(t *testing.T) {
	t.Run("execution failure", func(t *testing.T) {
		mockPool := newMock(t)
		repo := NewPgUserStatsRepository(mockPool, 0, logger.Discard())

		mockPool.ExpectQuery(`SELECT email, name, recent_watched, viewed_but_not_started, started_but_not_finished, finished FROM user_stats WHERE TRUE LIMIT $1`).
			WithArgs(DefaultMaxRows).
			WillReturnError(errors.New(`ERROR: column "bogus" does not exist`))

		stream, err := repo.Query(context.Background(), query.Predicate{Where: "TRUE"})
		assert.Nil(t, stream)
		require.ErrorIs(t, err, domain.ErrBackend)
		assert.NotContains(t, err.Error(), "SELECT")
		assert.NotContains(t, err.Error(), "bogus")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("failure mid-stream is terminal", func(t *testing.T) {
		mockPool := newMock(t)
		repo := NewPgUserStatsRepository(mockPool, 0, logger.Discard())

		rows := mockPool.NewRows(columns).
			AddRow("a@acme.org", "A", []int32{}, []int32{}, []int32{}, []int32{}).
			AddRow("b@acme.org", "B", []int32{}, []int32{}, []int32{}, []int32{}).
			AddRow("c@acme.org", "C", []int32{}, []int32{}, []int32{}, []int32{}).
			RowError(1, errors.New("connection reset"))
		mockPool.ExpectQuery(`SELECT email, name, recent_watched, viewed_but_not_started, started_but_not_finished, finished FROM user_stats WHERE TRUE LIMIT $1`).
			WithArgs(DefaultMaxRows).
			WillReturnRows(rows)

		stream, err := repo.Query(context.Background(), query.Predicate{Where: "TRUE"})
		require.NoError(t, err)

		rec, err := stream.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "a@acme.org", rec.Email)

		_, err = stream.Next(context.Background())
		require.ErrorIs(t, err, domain.ErrBackend)

		// No rows after the failure, the error sticks.
		_, err = stream.Next(context.Background())
		require.ErrorIs(t, err, domain.ErrBackend)
		stream.Close()
	})
}

func TestPgUserStatsRepository_RawQuery(t *testing.T) {
	mockPool := newMock(t)
	repo := NewPgUserStatsRepository(mockPool, 0, logger.Discard())

	rows := mockPool.NewRows(columns).
		AddRow("carol@acme.org", "Carol", []int32{}, []int32{}, []int32{12}, []int32{})
	mockPool.ExpectQuery(`SELECT email, name, recent_watched, viewed_but_not_started, started_but_not_finished, finished FROM (SELECT * FROM user_stats WHERE created_at > '2024-01-01') AS raw_query LIMIT $1`).
		WithArgs(DefaultMaxRows).
		WillReturnRows(rows)

	stream, err := repo.RawQuery(context.Background(), "SELECT * FROM user_stats WHERE created_at > '2024-01-01';\n")
	require.NoError(t, err)
	records, err := drain(t, stream)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []uint32{12}, records[0].Categories[core.CategoryStartedButNotFinished])
	assert.NoError(t, mockPool.ExpectationsWereMet())

	_, err = repo.RawQuery(context.Background(), "  ; ")
	assert.ErrorIs(t, err, domain.ErrEmptyRawQuery)
}

func TestPgUserStatsRepository_CloseEarlyReleasesRows(t *testing.T) {
	mockPool := newMock(t)
	repo := NewPgUserStatsRepository(mockPool, 0, logger.Discard())

	rows := mockPool.NewRows(columns).
		AddRow("a@acme.org", "A", []int32{}, []int32{}, []int32{}, []int32{}).
		AddRow("b@acme.org", "B", []int32{}, []int32{}, []int32{}, []int32{}).
		CloseError(nil)
	mockPool.ExpectQuery(`SELECT email, name, recent_watched, viewed_but_not_started, started_but_not_finished, finished FROM user_stats WHERE TRUE LIMIT $1`).
		WithArgs(DefaultMaxRows).
		WillReturnRows(rows).
		RowsWillBeClosed()

	stream, err := repo.Query(context.Background(), query.Predicate{Where: "TRUE"})
	require.NoError(t, err)
	_, err = stream.Next(context.Background())
	require.NoError(t, err)
	stream.Close()

	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
