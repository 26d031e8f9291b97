package history

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/johnayoung/math-consensus/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPostgres(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgresStore(db, logger.NewTestLogger(t)), mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	store, mock := setupPostgres(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS reconciliation_history")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Migrate(context.Background()))
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := setupPostgres(t)
	rec := newRecord(t, time.Now(), "2+2.", "a", "answer: 4", "b", "= 4")

	mock.ExpectExec(regexp.QuoteMeta(insertRecordSQL)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "2+2.", "high", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Save(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)
}

func TestPostgresStore_SaveError(t *testing.T) {
	store, mock := setupPostgres(t)
	rec := newRecord(t, time.Now(), "p", "a", "answer: 1")

	mock.ExpectExec(regexp.QuoteMeta(insertRecordSQL)).WillReturnError(errors.New("duplicate key"))

	err := store.Save(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate key")
}

func TestPostgresStore_Get(t *testing.T) {
	const id = "result_20240301_120000_abcdef"

	t.Run("found", func(t *testing.T) {
		store, mock := setupPostgres(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectRecordSQL)).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow([]byte(legacyRecord)))

		rec, err := store.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, id, rec.ID)
		assert.Equal(t, "2+2.", rec.ProblemText)
	})

	t.Run("missing", func(t *testing.T) {
		store, mock := setupPostgres(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectRecordSQL)).
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)

		_, err := store.Get(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("corrupt", func(t *testing.T) {
		store, mock := setupPostgres(t)
		mock.ExpectQuery(regexp.QuoteMeta(selectRecordSQL)).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow([]byte(`{}`)))

		_, err := store.Get(context.Background(), id)
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})
}

func TestPostgresStore_List(t *testing.T) {
	store, mock := setupPostgres(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(selectSummarySQL)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "problem_text", "confidence"}).
			AddRow("result_20240302_120000_000002", now, "b", "high").
			AddRow("result_20240301_120000_000001", now.Add(-time.Hour), "a", "low"))

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "result_20240302_120000_000002", list[0].ID)
	assert.Equal(t, "high", list[0].Confidence)
	assert.True(t, list[0].Timestamp.Equal(now))
}

func TestPostgresStore_All(t *testing.T) {
	store, mock := setupPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectAllSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "payload"}).
			AddRow("result_20240301_120000_000001", []byte(legacyRecord)).
			AddRow("result_20240301_130000_000002", []byte(`{"bad":1}`)))

	all, err := store.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "result_20240301_120000_000001", all[0].ID)
}
