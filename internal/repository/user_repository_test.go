package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestUserRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_type", "year_group", "title", "first_name", "last_name", "created_at", "updated_at"}).
		AddRow("1", string(models.UserTypeTeacher), nil, nil, "Jane", "Doe", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_type, year_group, title, first_name, last_name, created_at, updated_at FROM users WHERE id = $1 LIMIT 1")).
		WithArgs("1").
		WillReturnRows(rows)

	user, err := repo.FindByID(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, models.UserTypeTeacher, user.UserType)
	assert.Equal(t, "Jane", user.FirstName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByIDs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_type", "year_group", "title", "first_name", "last_name", "created_at", "updated_at"}).
		AddRow("1", string(models.UserTypeStudent), 10, nil, "Alex", "Kim", now, now).
		AddRow("2", string(models.UserTypeStudent), 10, nil, "Sam", "Lee", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_type, year_group, title, first_name, last_name, created_at, updated_at FROM users WHERE id IN (?, ?)")).
		WithArgs("1", "2").
		WillReturnRows(rows)

	users, err := repo.FindByIDs(context.Background(), []string{"1", "2"})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	listRows := sqlmock.NewRows([]string{"id", "user_type", "year_group", "title", "first_name", "last_name", "created_at", "updated_at"}).
		AddRow("1", string(models.UserTypeAdmin), nil, nil, "A", "Admin", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_type, year_group, title, first_name, last_name, created_at, updated_at FROM users WHERE 1=1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WillReturnRows(listRows)

	countRows := sqlmock.NewRows([]string{"count"}).AddRow(1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1")).WillReturnRows(countRows)

	users, total, err := repo.List(context.Background(), models.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
