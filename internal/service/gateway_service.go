package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler/internal/models"
	"github.com/noah-isme/lesson-scheduler/internal/repository"
	"github.com/noah-isme/lesson-scheduler/internal/scheduler"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

// Feeder placeholder lesson bounds: spec §4.6 preserves this as literal,
// inherited dev scaffolding rather than a product feature.
const (
	feederMinUnits = 6
	feederMaxUnits = 24
	feederTopic    = "Automatically generated while timetabling"
)

// GatewayService is the Data Gateway (spec §4.5): it reads the unscheduled
// lesson pool, group statistics, the student roster, and the school-year
// start, and writes the winning Timetable of a run back to the store.
type GatewayService struct {
	db         *sqlx.DB
	lessons    *repository.LessonRepository
	links      *repository.LinkRepository
	logger     *zap.Logger
	timeModel  scheduler.TimeModel
}

// NewGatewayService wires the Data Gateway to its repositories.
func NewGatewayService(db *sqlx.DB, lessons *repository.LessonRepository, links *repository.LinkRepository, logger *zap.Logger, timeModel scheduler.TimeModel) *GatewayService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GatewayService{db: db, lessons: lessons, links: links, logger: logger, timeModel: timeModel}
}

// RunContext bundles everything a single day's GA run needs from the Data
// Gateway: the candidate pool, a shared participant cache, and the cost
// inputs for the run (spec §4.5/§4.6).
type RunContext struct {
	Candidates []*scheduler.Candidate
	Cache      *scheduler.ParticipantCache
	CostInputs scheduler.CostInputs
}

// PrepareRun loads the unscheduled-lesson pool for firstDay (capped per
// group at `days`), the group-statistics map, and resolves the school-year
// start, assembling everything a GA run needs.
func (g *GatewayService) PrepareRun(ctx context.Context, firstDay time.Time, days int) (*RunContext, error) {
	unscheduled, err := g.lessons.FindUnscheduled(ctx, firstDay)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrStore, fmt.Sprintf("read unscheduled lessons: %v", err))
	}
	capped := repository.CapPerGroup(unscheduled, days)

	cache := scheduler.NewParticipantCache(g.links)

	disqualified := make(map[string]bool)
	candidates := make([]*scheduler.Candidate, 0, len(capped))
	for _, lesson := range capped {
		teacher, err := g.links.FindTeacher(ctx, lesson.GroupID)
		if err != nil {
			g.logger.Sugar().Warnw("group has no teacher, disqualifying its candidates", "group_id", lesson.GroupID, "error", err)
			continue
		}
		if teacher == nil {
			g.logger.Sugar().Warnw("group has no teacher, disqualifying its candidates", "group_id", lesson.GroupID)
			continue
		}
		if g.timeModel.DurationUnits(lesson.DurationS) <= 0 {
			g.logger.Sugar().Warnw("lesson has zero duration, disqualifying its group's candidates", "lesson_id", lesson.ID, "group_id", lesson.GroupID)
			disqualified[lesson.GroupID] = true
			continue
		}
		candidates = append(candidates, scheduler.NewCandidate(lesson, g.timeModel, cache))
	}
	if len(disqualified) > 0 {
		kept := candidates[:0]
		for _, c := range candidates {
			if !disqualified[c.GroupID] {
				kept = append(kept, c)
			}
		}
		candidates = kept
	}

	groupStats, err := g.groupStats(ctx, time.Now().In(firstDay.Location()))
	if err != nil {
		return nil, err
	}

	yearStart, err := g.yearStart(ctx, firstDay)
	if err != nil {
		return nil, err
	}

	return &RunContext{
		Candidates: candidates,
		Cache:      cache,
		CostInputs: scheduler.CostInputs{
			YearStart:         yearStart,
			FirstDay:          firstDay,
			GroupStats:        groupStats,
			SecondsPerUnit:    g.timeModel.SecondsPerUnit,
			DesiredLessonTime: g.timeModel.DesiredLessonTime,
		},
	}, nil
}

// groupStats implements the group-statistics query of spec §4.5: for each
// group, walk lessons with start <= now chronologically to accumulate total
// seconds allocated and the most recent start. Groups with no past lessons
// get a long lookback, per the spec's "implementers' choice" note.
func (g *GatewayService) groupStats(ctx context.Context, asOf time.Time) (map[string]models.GroupStats, error) {
	const longLookbackDays = 365

	groupIDs, err := g.lessons.DistinctGroupIDs(ctx)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrStore, fmt.Sprintf("read group ids: %v", err))
	}

	stats := make(map[string]models.GroupStats, len(groupIDs))
	midnight := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())

	for _, groupID := range groupIDs {
		history, err := g.lessons.GroupLessonHistory(ctx, groupID, asOf)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrStore, fmt.Sprintf("read group history for %s: %v", groupID, err))
		}

		var totalSeconds int
		var lastStart *time.Time
		for _, l := range history {
			totalSeconds += l.DurationS
			if l.Start != nil && (lastStart == nil || l.Start.After(*lastStart)) {
				lastStart = l.Start
			}
		}

		daysSince := longLookbackDays
		if lastStart != nil {
			lastMidnight := time.Date(lastStart.Year(), lastStart.Month(), lastStart.Day(), 0, 0, 0, 0, lastStart.Location())
			daysSince = int(midnight.Sub(lastMidnight).Hours() / 24)
		}

		stats[groupID] = models.GroupStats{
			GroupID:             groupID,
			SecondsAllocated:    totalSeconds,
			DaysSinceLastLesson: daysSince,
		}
	}
	return stats, nil
}

// yearStart resolves the earliest lesson start, or else the most recent
// 1-September on or before today (spec §4.5 "Year start").
func (g *GatewayService) yearStart(ctx context.Context, today time.Time) (time.Time, error) {
	earliest, err := g.lessons.FindEarliestStart(ctx)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrStore, fmt.Sprintf("read earliest lesson start: %v", err))
	}
	if earliest != nil {
		return *earliest, nil
	}

	year := today.Year()
	sept1 := time.Date(year, time.September, 1, 0, 0, 0, 0, today.Location())
	if sept1.After(today) {
		sept1 = time.Date(year-1, time.September, 1, 0, 0, 0, 0, today.Location())
	}
	return sept1, nil
}

// StudentRoster builds the Data Gateway's deduplicated student roster: every
// linked student across the given groups.
func (g *GatewayService) StudentRoster(ctx context.Context, groupIDs []string) ([]models.User, error) {
	seen := make(map[string]bool)
	var roster []models.User
	for _, groupID := range groupIDs {
		students, err := g.links.FindStudents(ctx, groupID)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrStore, fmt.Sprintf("read students for group %s: %v", groupID, err))
		}
		for _, s := range students {
			if seen[s.ID] {
				continue
			}
			seen[s.ID] = true
			roster = append(roster, s)
		}
	}
	return roster, nil
}

// Persist writes the winning Timetable's placements back to the store as
// new fixed Lesson rows (spec §4.3 "Persist"), inside one transaction so a
// write failure rolls back wholesale (Store error, spec §7).
func (g *GatewayService) Persist(ctx context.Context, firstDay time.Time, tt *scheduler.Timetable) error {
	rows := g.buildRows(firstDay, tt)
	if len(rows) == 0 {
		return nil
	}

	tx, err := g.db.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Clone(appErrors.ErrStore, fmt.Sprintf("begin persist transaction: %v", err))
	}
	if err := g.lessons.BulkCreate(ctx, tx, rows); err != nil {
		_ = tx.Rollback()
		return appErrors.Clone(appErrors.ErrStore, fmt.Sprintf("persist timetable: %v", err))
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Clone(appErrors.ErrStore, fmt.Sprintf("commit persist transaction: %v", err))
	}
	return nil
}

func (g *GatewayService) buildRows(firstDay time.Time, tt *scheduler.Timetable) []models.Lesson {
	var rows []models.Lesson
	for day := 0; day < tt.Days; day++ {
		for _, c := range tt.Placed[day] {
			start := g.timeModel.WallClock(firstDay, day, c.RelativeStart())
			rows = append(rows, models.Lesson{
				ID:        uuid.NewString(),
				GroupID:   c.GroupID,
				DurationS: c.DurationSeconds,
				Topic:     c.Topic,
				Start:     &start,
				Fixed:     true,
			})
		}
	}
	return rows
}

// SynthesizeFeederLessons creates placeholder unscheduled lessons for the
// given groups after a successful persist. This is the source's feeder
// behavior (spec §4.6): development scaffolding, not a product feature, but
// preserved and logged at Warn so operators can identify it.
func (g *GatewayService) SynthesizeFeederLessons(ctx context.Context, rng *rand.Rand, groupIDs []string) (int, error) {
	var rows []models.Lesson
	for _, groupID := range groupIDs {
		units := feederMinUnits + rng.Intn(feederMaxUnits-feederMinUnits+1)
		rows = append(rows, models.Lesson{
			ID:        uuid.NewString(),
			GroupID:   groupID,
			DurationS: units * g.timeModel.SecondsPerUnit,
			Topic:     feederTopic,
			Fixed:     false,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	g.logger.Sugar().Warnw("synthesizing feeder placeholder lessons (inherited scaffolding, not a product feature)", "count", len(rows))

	tx, err := g.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrStore, fmt.Sprintf("begin feeder transaction: %v", err))
	}
	if err := g.lessons.BulkCreate(ctx, tx, rows); err != nil {
		_ = tx.Rollback()
		return 0, appErrors.Clone(appErrors.ErrStore, fmt.Sprintf("persist feeder lessons: %v", err))
	}
	if err := tx.Commit(); err != nil {
		return 0, appErrors.Clone(appErrors.ErrStore, fmt.Sprintf("commit feeder transaction: %v", err))
	}
	return len(rows), nil
}
