package service

import (
	"context"
	"math/rand"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler/internal/repository"
	"github.com/noah-isme/lesson-scheduler/internal/scheduler"
)

func newDriverTestDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() { db.Close() }
}

// firstWeekdayOnOrAfter returns the first non-weekend day at or after t, so
// tests don't depend on when they happen to run.
func firstWeekdayOnOrAfter(t time.Time) time.Time {
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

func TestRunLockFallsBackToLocalMutexWithoutRedis(t *testing.T) {
	lock := newRunLock(nil, "scheduler:driver:lock", time.Minute)

	release, err := lock.acquire(context.Background())
	require.NoError(t, err)
	release()

	release2, err := lock.acquire(context.Background())
	require.NoError(t, err)
	release2()
}

func TestDriverServiceTickSkipsWeekendsAndAlreadyScheduledDays(t *testing.T) {
	db, mock, cleanup := newDriverTestDB(t)
	defer cleanup()

	lessons := repository.NewLessonRepository(db)
	links := repository.NewLinkRepository(db)
	timeModel := scheduler.DefaultTimeModel()
	gateway := NewGatewayService(db, lessons, links, nil, timeModel)

	monday := firstWeekdayOnOrAfter(time.Now().UTC())
	for monday.Weekday() != time.Monday {
		monday = firstWeekdayOnOrAfter(monday.AddDate(0, 0, 1))
	}

	// LookAheadPeriod=1 -> days x=0 (Monday) and x=1 (Tuesday), both weekdays;
	// both report already-scheduled so no GA run or Persist is ever reached.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM lessons WHERE start >= $1 AND start < $2)")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM lessons WHERE start >= $1 AND start < $2)")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	cfg := DefaultDriverConfig()
	cfg.LookAheadPeriod = 1
	cfg.TimeModel = timeModel

	driver := NewDriverService(cfg, gateway, lessons, nil, nil, nil)
	rng := rand.New(rand.NewSource(1))

	err := driver.Tick(context.Background(), rng, monday)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	status := driver.Status()
	assert.Equal(t, monday, status.LastTickAt)
	assert.Empty(t, status.LastError)
}

func TestDriverServiceRunDayWithNoUnscheduledLessonsIsANoop(t *testing.T) {
	db, mock, cleanup := newDriverTestDB(t)
	defer cleanup()

	lessons := repository.NewLessonRepository(db)
	links := repository.NewLinkRepository(db)
	timeModel := scheduler.DefaultTimeModel()
	gateway := NewGatewayService(db, lessons, links, nil, timeModel)

	day := firstWeekdayOnOrAfter(time.Now().UTC())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM lessons WHERE start >= $1 AND start < $2)")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, group_id, duration_seconds, topic, start, fixed, created_at")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "group_id", "duration_seconds", "topic", "start", "fixed", "created_at"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT group_id FROM lessons")).
		WillReturnRows(sqlmock.NewRows([]string{"group_id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MIN(start) FROM lessons")).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))

	cfg := DefaultDriverConfig()
	cfg.LookAheadPeriod = 0
	cfg.TimeModel = timeModel

	driver := NewDriverService(cfg, gateway, lessons, nil, nil, nil)
	rng := rand.New(rand.NewSource(1))

	err := driver.Tick(context.Background(), rng, day)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
