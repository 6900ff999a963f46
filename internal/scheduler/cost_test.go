package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lesson-scheduler/internal/models"
)

func TestCostIsDeterministicWhileNotModified(t *testing.T) {
	resolver := newFakeResolver().withGroup("g1", 2)
	cache := NewParticipantCache(resolver)
	c1 := newCandidate("l1", "g1", 4, cache)
	require.NoError(t, c1.SetRelativeStart(114, 10))

	tt := NewTimetable(1, 114, nil)
	tt.Placed[0] = []*Candidate{c1}
	tt.Modified = true

	inputs := CostInputs{
		YearStart:      time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		FirstDay:       time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		SecondsPerUnit: 300,
		GroupStats: map[string]models.GroupStats{
			"g1": {GroupID: "g1", SecondsAllocated: 3600, DaysSinceLastLesson: 2},
		},
	}

	first, err := tt.Cost(context.Background(), inputs, false)
	require.NoError(t, err)

	second, err := tt.Cost(context.Background(), inputs, false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.False(t, tt.Modified)
}

func TestCostDetectsTeacherClash(t *testing.T) {
	resolver := newFakeResolver().withGroup("g1", 0)
	cache := NewParticipantCache(resolver)
	c1 := newCandidate("l1", "g1", 4, cache)
	require.NoError(t, c1.SetRelativeStart(114, 10))
	c2 := newCandidate("l2", "g1", 4, cache)
	require.NoError(t, c2.SetRelativeStart(114, 10))

	tt := NewTimetable(1, 114, nil)
	tt.Placed[0] = []*Candidate{c1, c2}
	tt.Modified = true

	inputs := CostInputs{SecondsPerUnit: 300}
	cost, err := tt.Cost(context.Background(), inputs, false)
	require.NoError(t, err)
	// Four overlapping teacher slots at 100 each.
	assert.GreaterOrEqual(t, cost, 400.0)
}

func TestCostNoClashWhenDisjoint(t *testing.T) {
	resolver := newFakeResolver().withGroup("g1", 0)
	cache := NewParticipantCache(resolver)
	c1 := newCandidate("l1", "g1", 4, cache)
	require.NoError(t, c1.SetRelativeStart(114, 0))
	c2 := newCandidate("l2", "g1", 4, cache)
	require.NoError(t, c2.SetRelativeStart(114, 10))

	tt := NewTimetable(1, 114, nil)
	tt.Placed[0] = []*Candidate{c1, c2}
	tt.Modified = true

	inputs := CostInputs{SecondsPerUnit: 300}
	cost, err := tt.Cost(context.Background(), inputs, false)
	require.NoError(t, err)
	// No clash penalty; the remaining components are all non-negative so a
	// disjoint placement must score lower than the clashing equivalent.
	assert.Less(t, cost, 210.0)
}
