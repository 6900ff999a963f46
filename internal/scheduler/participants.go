package scheduler

import (
	"context"
	"sync"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

// LinkResolver is the subset of the Data Gateway a Candidate needs to
// resolve its group's teacher and participant set.
type LinkResolver interface {
	FindTeacher(ctx context.Context, groupID string) (*models.User, error)
	FindParticipants(ctx context.Context, groupID string) ([]models.User, error)
}

// ParticipantCache hoists the per-candidate lazy teacher/participant
// resolution of spec §4.2 out of Candidate and into a table keyed by
// group_id, shared by every Candidate in a run. A single resolution per
// group — not per candidate — keeps Candidate.Copy a cheap, allocation-light
// struct copy during crossover, since candidates only ever hold a pointer
// into this cache plus their own group id.
type ParticipantCache struct {
	resolver LinkResolver

	mu           sync.Mutex
	teachers     map[string]*models.User
	participants map[string][]models.User
}

// NewParticipantCache builds an empty cache backed by the given resolver.
func NewParticipantCache(resolver LinkResolver) *ParticipantCache {
	return &ParticipantCache{
		resolver:     resolver,
		teachers:     make(map[string]*models.User),
		participants: make(map[string][]models.User),
	}
}

// Teacher returns the one teacher-type user linked to a group, resolving and
// caching on first access.
func (c *ParticipantCache) Teacher(ctx context.Context, groupID string) (*models.User, error) {
	c.mu.Lock()
	if t, ok := c.teachers[groupID]; ok {
		c.mu.Unlock()
		return t, nil
	}
	c.mu.Unlock()

	teacher, err := c.resolver.FindTeacher(ctx, groupID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.teachers[groupID] = teacher
	c.mu.Unlock()
	return teacher, nil
}

// Participants returns every user linked to a group, resolving and caching
// on first access. Identity is the persisted User.id.
func (c *ParticipantCache) Participants(ctx context.Context, groupID string) ([]models.User, error) {
	c.mu.Lock()
	if p, ok := c.participants[groupID]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	participants, err := c.resolver.FindParticipants(ctx, groupID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.participants[groupID] = participants
	c.mu.Unlock()
	return participants, nil
}
