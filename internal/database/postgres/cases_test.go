package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/kozaktomas/missing-finder/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*CaseRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewCaseRepository(&Pool{db: db}), mock
}

func TestMoveToResolved_NotOpen(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`WITH moved AS \(\s*DELETE FROM cases`).
		WithArgs("c1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MoveToResolved(context.Background(), "c1", time.Now())
	require.ErrorIs(t, err, database.ErrNotOpen)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMoveToResolved_Moves(t *testing.T) {
	repo, mock := newMockRepo(t)
	resolvedAt := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO resolved_cases`).
		WithArgs("c1", resolvedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MoveToResolved(context.Background(), "c1", resolvedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteResolved_Missing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`DELETE FROM resolved_cases WHERE id = \$1`).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteResolved(context.Background(), "c1")
	require.ErrorIs(t, err, database.ErrNotFound)
}

func TestInsertCase_EmptyEmbedding(t *testing.T) {
	repo, mock := newMockRepo(t)

	err := repo.InsertCase(context.Background(), &database.Case{ID: "c1"})
	require.ErrorIs(t, err, database.ErrDimensionMismatch)
	// no statement may reach the database
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCase_WrongDimension(t *testing.T) {
	repo, mock := newMockRepo(t)
	repo.dim = 3

	err := repo.InsertCase(context.Background(), &database.Case{ID: "c1", Embedding: []float32{1, 0}})
	require.ErrorIs(t, err, database.ErrDimensionMismatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCase_Missing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`FROM cases WHERE id = \$1\s+UNION ALL`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	c, err := repo.GetCase(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestCountOpen(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM cases`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := repo.CountOpen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
