package scheduler

import (
	"context"
	"fmt"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

// Candidate is a lesson lifted for scheduling: derived once from a
// persisted, unscheduled Lesson, holding a stable id, its group, duration in
// time units, and a mutable relative start once placed (spec §4.2).
type Candidate struct {
	ID              string
	GroupID         string
	Topic           string
	DurationUnits   int
	DurationSeconds int // original Lesson duration, carried through for persist

	relativeStart int
	hasStart      bool

	cache *ParticipantCache
}

// NewCandidate derives a Candidate from a persisted Lesson. lesson.DurationS
// is the duration in seconds; model floors it to whole time units.
func NewCandidate(lesson models.Lesson, model TimeModel, cache *ParticipantCache) *Candidate {
	return &Candidate{
		ID:              lesson.ID,
		GroupID:         lesson.GroupID,
		Topic:           lesson.Topic,
		DurationUnits:   model.DurationUnits(lesson.DurationS),
		DurationSeconds: lesson.DurationS,
		cache:           cache,
	}
}

// HasStart reports whether RelativeStart has been set.
func (c *Candidate) HasStart() bool { return c.hasStart }

// RelativeStart returns the current placement offset. Only meaningful once
// HasStart is true.
func (c *Candidate) RelativeStart() int { return c.relativeStart }

// SetRelativeStart places the candidate at a relative start offset within
// [0, timePerDay-DurationUnits]. Values outside that range are a programming
// error in the caller, not a recoverable condition.
func (c *Candidate) SetRelativeStart(timePerDay, start int) error {
	max := timePerDay - c.DurationUnits
	if start < 0 || start > max {
		return fmt.Errorf("scheduler: relative start %d out of range [0,%d] for candidate %s", start, max, c.ID)
	}
	c.relativeStart = start
	c.hasStart = true
	return nil
}

// Teacher resolves the one teacher-type user linked to the candidate's
// group, via the shared cache.
func (c *Candidate) Teacher(ctx context.Context) (*models.User, error) {
	return c.cache.Teacher(ctx, c.GroupID)
}

// Participants resolves every user linked to the candidate's group, via the
// shared cache.
func (c *Candidate) Participants(ctx context.Context) ([]models.User, error) {
	return c.cache.Participants(ctx, c.GroupID)
}

// Copy produces an independent duplicate suitable for placement in a
// different Timetable during crossover or mutation. Every field is a value
// type except the shared, read-only participant cache, so a plain struct
// copy already gives full placement independence.
func (c *Candidate) Copy() *Candidate {
	cp := *c
	return &cp
}

// Before gives Candidates a total order by relative start, with a stable id
// tie-break so equal starts never compare equal.
func Before(a, b *Candidate) bool {
	if a.relativeStart != b.relativeStart {
		return a.relativeStart < b.relativeStart
	}
	return a.ID < b.ID
}
