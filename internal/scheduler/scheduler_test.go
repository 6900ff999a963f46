package scheduler

import (
	"context"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

// fakeResolver is a deterministic in-memory LinkResolver for tests: every
// group has one teacher and a fixed number of students, all derived from
// the group id so tests stay self-contained.
type fakeResolver struct {
	teachers     map[string]*models.User
	participants map[string][]models.User
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		teachers:     make(map[string]*models.User),
		participants: make(map[string][]models.User),
	}
}

func (f *fakeResolver) withGroup(groupID string, studentCount int) *fakeResolver {
	teacher := models.User{ID: groupID + "-teacher", UserType: models.UserTypeTeacher, FirstName: "T", LastName: groupID}
	participants := []models.User{teacher}
	for i := 0; i < studentCount; i++ {
		participants = append(participants, models.User{
			ID:       groupID + "-student-" + string(rune('a'+i)),
			UserType: models.UserTypeStudent,
			FirstName: "S",
			LastName:  groupID,
		})
	}
	f.teachers[groupID] = &teacher
	f.participants[groupID] = participants
	return f
}

func (f *fakeResolver) FindTeacher(_ context.Context, groupID string) (*models.User, error) {
	return f.teachers[groupID], nil
}

func (f *fakeResolver) FindParticipants(_ context.Context, groupID string) ([]models.User, error) {
	return f.participants[groupID], nil
}

func newCandidate(id, groupID string, durationUnits int, cache *ParticipantCache) *Candidate {
	return &Candidate{
		ID:            id,
		GroupID:       groupID,
		Topic:         "topic-" + id,
		DurationUnits: durationUnits,
		cache:         cache,
	}
}
