package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

// LessonRepository is the Data Gateway's access to the Lesson table: the
// unscheduled-lesson query, group-statistics query, year-start resolution,
// already-scheduled check, and the Timetable persist (add) of spec §4.3/§4.5.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository creates a new repository instance.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// FindUnscheduled selects every Lesson eligible to be placed by a run seeded
// at firstDay: fixed = false AND NOT (start is set AND start <= firstDay).
// Rows are ordered by group then by id so that callers applying the
// first-seen-per-group cap see a stable, deterministic ordering.
func (r *LessonRepository) FindUnscheduled(ctx context.Context, firstDay time.Time) ([]models.Lesson, error) {
	const query = `
		SELECT id, group_id, duration_seconds, topic, start, fixed, created_at
		FROM lessons
		WHERE fixed = FALSE AND NOT (start IS NOT NULL AND start <= $1)
		ORDER BY group_id ASC, id ASC`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, firstDay); err != nil {
		return nil, fmt.Errorf("find unscheduled lessons: %w", err)
	}
	return lessons, nil
}

// CapPerGroup applies the Data Gateway's "per group, cap at days, first-seen
// wins" rule (spec §4.5) to an already-ordered slice of unscheduled lessons.
func CapPerGroup(lessons []models.Lesson, days int) []models.Lesson {
	seen := make(map[string]int, len(lessons))
	out := make([]models.Lesson, 0, len(lessons))
	for _, l := range lessons {
		if seen[l.GroupID] >= days {
			continue
		}
		seen[l.GroupID]++
		out = append(out, l)
	}
	return out
}

// FindEarliestStart returns the start of the earliest-starting lesson, used
// by year-start resolution (spec §4.5) when at least one lesson has a start.
func (r *LessonRepository) FindEarliestStart(ctx context.Context) (*time.Time, error) {
	const query = `SELECT MIN(start) FROM lessons WHERE start IS NOT NULL`
	var start *time.Time
	if err := r.db.GetContext(ctx, &start, query); err != nil {
		return nil, fmt.Errorf("find earliest lesson start: %w", err)
	}
	return start, nil
}

// ExistsOnDay reports whether any Lesson already starts within [dayStart,
// dayStart+24h) — the Driver's already-scheduled skip check (spec §4.6).
func (r *LessonRepository) ExistsOnDay(ctx context.Context, dayStart time.Time) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM lessons WHERE start >= $1 AND start < $2)`
	var exists bool
	dayEnd := dayStart.Add(24 * time.Hour)
	if err := r.db.GetContext(ctx, &exists, query, dayStart, dayEnd); err != nil {
		return false, fmt.Errorf("check lessons on day: %w", err)
	}
	return exists, nil
}

// GroupLessonHistory walks a single group's lessons with start <= asOf in
// chronological order, used by the group-statistics query.
func (r *LessonRepository) GroupLessonHistory(ctx context.Context, groupID string, asOf time.Time) ([]models.Lesson, error) {
	const query = `
		SELECT id, group_id, duration_seconds, topic, start, fixed, created_at
		FROM lessons
		WHERE group_id = $1 AND start IS NOT NULL AND start <= $2
		ORDER BY start ASC`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, groupID, asOf); err != nil {
		return nil, fmt.Errorf("find group lesson history: %w", err)
	}
	return lessons, nil
}

// DistinctGroupIDs returns every group id referenced by at least one lesson,
// the seed for the group-statistics walk.
func (r *LessonRepository) DistinctGroupIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT group_id FROM lessons ORDER BY group_id ASC`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("find distinct group ids: %w", err)
	}
	return ids, nil
}

// BulkCreate inserts the given Lesson rows, as they are, inside the
// supplied transaction, adapted from the teacher's bulk-insert convention
// (BulkCreateWithTx) so a Data Gateway write failure can be rolled back
// wholesale per the Store error kind of spec §7.
func (r *LessonRepository) BulkCreate(ctx context.Context, tx *sqlx.Tx, lessons []models.Lesson) error {
	if len(lessons) == 0 {
		return nil
	}
	const query = `INSERT INTO lessons (id, group_id, duration_seconds, topic, start, fixed, created_at)
		VALUES (:id, :group_id, :duration_seconds, :topic, :start, :fixed, :created_at)`

	now := time.Now().UTC()
	for i := range lessons {
		if lessons[i].ID == "" {
			lessons[i].ID = uuid.NewString()
		}
		if lessons[i].CreatedAt.IsZero() {
			lessons[i].CreatedAt = now
		}
	}

	exec := func(stmt string, arg interface{}) error {
		_, err := tx.NamedExecContext(ctx, stmt, arg)
		return err
	}
	for i := range lessons {
		if err := exec(query, lessons[i]); err != nil {
			return fmt.Errorf("bulk create lessons: %w", err)
		}
	}
	return nil
}
