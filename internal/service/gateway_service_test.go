package service

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
	"github.com/noah-isme/lesson-scheduler/internal/repository"
	"github.com/noah-isme/lesson-scheduler/internal/scheduler"
)

func newGatewayMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() { db.Close() }
}

func TestGatewayServicePrepareRunBuildsCandidatesAndSkipsDisqualified(t *testing.T) {
	db, mock, cleanup := newGatewayMock(t)
	defer cleanup()

	lessons := repository.NewLessonRepository(db)
	links := repository.NewLinkRepository(db)
	gw := NewGatewayService(db, lessons, links, nil, scheduler.DefaultTimeModel())

	firstDay := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, group_id, duration_seconds, topic, start, fixed, created_at")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "group_id", "duration_seconds", "topic", "start", "fixed", "created_at"}).
			AddRow("l1", "g1", 1800, "Algebra", nil, false, time.Now()).
			AddRow("l2", "g2", 0, "Zero duration", nil, false, time.Now()))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT u.id, u.user_type, u.year_group, u.title, u.first_name, u.last_name, u.created_at, u.updated_at")).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_type", "year_group", "title", "first_name", "last_name", "created_at", "updated_at"}).
			AddRow("t1", "teacher", nil, nil, "Ada", "Lovelace", time.Now(), time.Now()))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT u.id, u.user_type, u.year_group, u.title, u.first_name, u.last_name, u.created_at, u.updated_at")).
		WithArgs("g2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_type", "year_group", "title", "first_name", "last_name", "created_at", "updated_at"}).
			AddRow("t2", "teacher", nil, nil, "Grace", "Hopper", time.Now(), time.Now()))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT group_id FROM lessons")).
		WillReturnRows(sqlmock.NewRows([]string{"group_id"}).AddRow("g1"))

	mock.ExpectQuery(regexp.QuoteMeta("WHERE group_id = $1 AND start IS NOT NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "group_id", "duration_seconds", "topic", "start", "fixed", "created_at"}))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MIN(start) FROM lessons")).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))

	runCtx, err := gw.PrepareRun(context.Background(), firstDay, 14)
	require.NoError(t, err)

	require.Len(t, runCtx.Candidates, 1, "the zero-duration lesson's group must be disqualified")
	assert.Equal(t, "g1", runCtx.Candidates[0].GroupID)
	assert.False(t, runCtx.CostInputs.YearStart.IsZero())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGatewayServiceYearStartFallsBackToSeptemberFirst(t *testing.T) {
	db, mock, cleanup := newGatewayMock(t)
	defer cleanup()

	lessons := repository.NewLessonRepository(db)
	links := repository.NewLinkRepository(db)
	gw := NewGatewayService(db, lessons, links, nil, scheduler.DefaultTimeModel())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MIN(start) FROM lessons")).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))

	today := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	yearStart, err := gw.yearStart(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC), yearStart)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGatewayServicePersistWritesPlacedLessonsInOneTransaction(t *testing.T) {
	db, mock, cleanup := newGatewayMock(t)
	defer cleanup()

	lessons := repository.NewLessonRepository(db)
	links := repository.NewLinkRepository(db)
	timeModel := scheduler.DefaultTimeModel()
	gw := NewGatewayService(db, lessons, links, nil, timeModel)

	lesson := models.Lesson{ID: "l1", GroupID: "g1", DurationS: 1800, Topic: "Algebra"}
	candidate := scheduler.NewCandidate(lesson, timeModel, scheduler.NewParticipantCache(links))
	require.NoError(t, candidate.SetRelativeStart(timeModel.TimePerDay, 0))

	tt := scheduler.NewTimetable(1, timeModel.TimePerDay, []*scheduler.Candidate{candidate})
	tt.Placed[0] = append(tt.Placed[0], candidate)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lessons")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := gw.Persist(context.Background(), time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC), tt)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGatewayServicePersistNoPlacementsIsANoop(t *testing.T) {
	db, _, cleanup := newGatewayMock(t)
	defer cleanup()

	lessons := repository.NewLessonRepository(db)
	links := repository.NewLinkRepository(db)
	timeModel := scheduler.DefaultTimeModel()
	gw := NewGatewayService(db, lessons, links, nil, timeModel)

	tt := scheduler.NewTimetable(1, timeModel.TimePerDay, nil)
	err := gw.Persist(context.Background(), time.Now(), tt)
	require.NoError(t, err)
}
