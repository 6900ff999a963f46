package scheduler

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPopulationValidation(t *testing.T) {
	_, err := NewPopulation(PopulationConfig{PopSize: 0}, nil)
	assert.Error(t, err)

	_, err = NewPopulation(PopulationConfig{PopSize: 10, NumParents: 20}, nil)
	assert.Error(t, err)

	_, err = NewPopulation(PopulationConfig{PopSize: 10, NumParents: 5, GuaranteedSurvivingParents: 6}, nil)
	assert.Error(t, err)

	_, err = NewPopulation(PopulationConfig{PopSize: 10, NumParents: 5, GuaranteedSurvivingParents: 2}, nil)
	assert.NoError(t, err)
}

func buildTrivialPopulation(t *testing.T, size int) (*Population, *ParticipantCache) {
	resolver := newFakeResolver().withGroup("g1", 2)
	cache := NewParticipantCache(resolver)

	var base []*Candidate
	for i := 0; i < 6; i++ {
		base = append(base, newCandidate(string(rune('a'+i))+"-lesson", "g1", 4, cache))
	}

	rng := rand.New(rand.NewSource(1))
	individuals := make([]*Timetable, size)
	for i := range individuals {
		tt := NewTimetable(3, 114, base)
		require.NoError(t, tt.SeedRandom(context.Background(), rng, SeedParams{RandomLessonSkipProbability: 0.1, FailureThreshold: 10}))
		individuals[i] = tt
	}

	cfg := PopulationConfig{
		PopSize:                     size,
		NumParents:                  size / 2,
		NumOffspring:                size / 2,
		GuaranteedSurvivingParents:  2,
		MutationAmount:              2,
		RandomLessonSkipProbability: 0.1,
		TimePerDay:                  114,
		Days:                        3,
	}
	pop, err := NewPopulation(cfg, individuals)
	require.NoError(t, err)
	return pop, cache
}

func TestPopulationStepIsElitist(t *testing.T) {
	pop, _ := buildTrivialPopulation(t, 10)
	rng := rand.New(rand.NewSource(2))

	costFn := func(ctx context.Context, tt *Timetable) (float64, error) {
		return tt.Cost(ctx, CostInputs{SecondsPerUnit: 300}, false)
	}

	_, bestBefore, err := pop.Best(context.Background(), costFn)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, pop.Step(context.Background(), rng, costFn))
		_, bestAfter, err := pop.Best(context.Background(), costFn)
		require.NoError(t, err)
		assert.LessOrEqual(t, bestAfter, bestBefore+1e-9)
		bestBefore = bestAfter
	}
}

func TestPopulationRunStopsAtGenerationCap(t *testing.T) {
	pop, _ := buildTrivialPopulation(t, 8)
	rng := rand.New(rand.NewSource(3))

	costFn := func(ctx context.Context, tt *Timetable) (float64, error) {
		return tt.Cost(ctx, CostInputs{SecondsPerUnit: 300}, false)
	}

	stop := func(generation int, _ float64) bool { return generation >= 3 }
	_, _, err := pop.Run(context.Background(), rng, costFn, stop, 50)
	require.NoError(t, err)
}
