package account

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/docstamp-api/internal/database"
)

func newRepoWithMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return NewRepository(database.NewBunDB(sqlDB)), mock
}

func TestRepository_GetByEmail_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "role_group", "is_active", "is_verified", "version"}).
		AddRow(id.String(), "alice@example.com", "hash", "company", true, true, int64(3))
	mock.ExpectQuery(`SELECT .* FROM "accounts" AS "acc" WHERE \(acc\.email = 'alice@example\.com'\)`).
		WillReturnRows(rows)

	got, err := repo.GetByEmail(context.Background(), " Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, RoleCompany, got.RoleGroup)
	assert.True(t, got.IsVerified)
	assert.Equal(t, int64(3), got.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetByEmail_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT .* FROM "accounts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_Create_DuplicateEmail(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT INTO "accounts"`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: emailUniqueConstraint})

	_, err := repo.Create(context.Background(), &Account{Email: "dup@example.com", RoleGroup: RoleIndividual})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestRepository_Save_BumpsVersion(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	acc := &Account{ID: uuid.New(), Version: 4}

	mock.ExpectExec(`UPDATE "accounts" AS "acc" SET .* WHERE \(id = '` + acc.ID.String() + `'\) AND \(version = 4\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Save(context.Background(), acc))
	assert.Equal(t, int64(5), acc.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Save_Stale(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	acc := &Account{ID: uuid.New(), Version: 1}

	mock.ExpectExec(`UPDATE "accounts"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Save(context.Background(), acc)
	assert.ErrorIs(t, err, ErrStaleAccount)
	assert.Equal(t, int64(1), acc.Version)
}
