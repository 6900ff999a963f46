package models

import "time"

// Lesson is a persisted unit of teaching time for a group. Start is nil iff
// the lesson is unscheduled. Fixed true means the scheduler must neither
// move nor reconsider it; Fixed false with Start set means it was placed by
// a previous run but remains mutable.
type Lesson struct {
	ID         string     `db:"id" json:"id"`
	GroupID    string     `db:"group_id" json:"group_id"`
	DurationS  int        `db:"duration_seconds" json:"duration_seconds"`
	Topic      string     `db:"topic" json:"topic"`
	Start      *time.Time `db:"start" json:"start,omitempty"`
	Fixed      bool       `db:"fixed" json:"fixed"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// LessonFilter captures the supported filters for the unscheduled-lesson
// query of the Data Gateway.
type LessonFilter struct {
	GroupID   string
	FirstDay  time.Time
	MaxPerDay int
}
