package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetRelativeStartRejectsOutOfRange(t *testing.T) {
	c := newCandidate("l1", "g1", 10, nil)
	assert.Error(t, c.SetRelativeStart(114, -1))
	assert.Error(t, c.SetRelativeStart(114, 105))
	assert.NoError(t, c.SetRelativeStart(114, 104))
	assert.True(t, c.HasStart())
}

func TestCandidateCopyIsIndependent(t *testing.T) {
	c := newCandidate("l1", "g1", 10, nil)
	require.NoError(t, c.SetRelativeStart(114, 20))

	cp := c.Copy()
	require.NoError(t, cp.SetRelativeStart(114, 40))

	assert.Equal(t, 20, c.RelativeStart())
	assert.Equal(t, 40, cp.RelativeStart())
	assert.NotSame(t, c, cp)
}

func TestTeacherAndParticipantsResolveOnceViaCache(t *testing.T) {
	resolver := newFakeResolver().withGroup("g1", 2)
	cache := NewParticipantCache(resolver)
	c := newCandidate("l1", "g1", 4, cache)

	teacher, err := c.Teacher(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "g1-teacher", teacher.ID)

	participants, err := c.Participants(context.Background())
	require.NoError(t, err)
	assert.Len(t, participants, 3)

	// A second candidate in the same group hits the same cache entries.
	c2 := newCandidate("l2", "g1", 4, cache)
	teacher2, err := c2.Teacher(context.Background())
	require.NoError(t, err)
	assert.Same(t, teacher, teacher2)
}

func TestBeforeTotalOrder(t *testing.T) {
	a := newCandidate("a", "g1", 4, nil)
	b := newCandidate("b", "g1", 4, nil)
	require.NoError(t, a.SetRelativeStart(114, 10))
	require.NoError(t, b.SetRelativeStart(114, 10))
	assert.True(t, Before(a, b))
	assert.False(t, Before(b, a))
}
