package scheduler

import (
	"context"
	"math/rand"
	"sort"

	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

// PopulationConfig holds the GA hyperparameters of spec §4.4.
type PopulationConfig struct {
	PopSize                     int
	NumParents                  int
	NumOffspring                int
	GuaranteedSurvivingParents  int
	MutationAmount              int
	RandomLessonSkipProbability float64
	TimePerDay                  int
	Days                        int
}

// DefaultPopulationConfig matches spec §4.4's stated defaults.
func DefaultPopulationConfig() PopulationConfig {
	return PopulationConfig{
		PopSize:                     200,
		NumParents:                  50,
		NumOffspring:                100,
		GuaranteedSurvivingParents:  5,
		MutationAmount:              3,
		RandomLessonSkipProbability: 0.2,
	}
}

// Validate enforces the hyperparameter invariants of spec §4.4: popsize >= 1,
// num_parents <= popsize, guaranteed_surviving_parents <= num_parents. A
// violation is a Configuration error (spec §7): fatal before a run starts.
func (c PopulationConfig) Validate() error {
	if c.PopSize < 1 {
		return appErrors.Clone(appErrors.ErrConfiguration, "popsize must be >= 1")
	}
	if c.NumParents > c.PopSize {
		return appErrors.Clone(appErrors.ErrConfiguration, "num_parents must be <= popsize")
	}
	if c.GuaranteedSurvivingParents > c.NumParents {
		return appErrors.Clone(appErrors.ErrConfiguration, "guaranteed_surviving_parents must be <= num_parents")
	}
	return nil
}

// Population runs one generation at a time over a fixed-size set of
// Timetables (spec §4.4).
type Population struct {
	cfg         PopulationConfig
	individuals []*Timetable
}

// NewPopulation validates cfg and wraps the given initial individuals.
func NewPopulation(cfg PopulationConfig, individuals []*Timetable) (*Population, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Population{cfg: cfg, individuals: individuals}, nil
}

// CostFunc evaluates one Timetable's cost; callers close over CostInputs.
type CostFunc func(context.Context, *Timetable) (float64, error)

// StoppingCondition decides whether generation g, having just produced the
// given best cost, should be the last. The default stops after 100
// generations (spec §4.4).
type StoppingCondition func(generation int, bestCost float64) bool

// DefaultStoppingCondition stops after 100 generations regardless of cost.
func DefaultStoppingCondition() StoppingCondition {
	return func(generation int, _ float64) bool { return generation >= 100 }
}

// Step advances the population by exactly one generation: select parents,
// generate offspring via crossover and unconditional mutation, then select
// survivors from population ∪ offspring by elitism plus ratio-based
// sampling.
func (p *Population) Step(ctx context.Context, rng *rand.Rand, cost CostFunc) error {
	costs := make([]float64, len(p.individuals))
	for i, ind := range p.individuals {
		c, err := cost(ctx, ind)
		if err != nil {
			return err
		}
		costs[i] = c
	}

	parents := p.selectParents(costs)

	offspring := make([]*Timetable, 0, p.cfg.NumOffspring)
	for i := 0; i < p.cfg.NumOffspring; i++ {
		a := parents[rng.Intn(len(parents))]
		b := parents[rng.Intn(len(parents))]
		child := Crossover(rng, a, b)
		child.Mutate(rng, MutationParams{LessonsPerDay: p.cfg.MutationAmount})
		offspring = append(offspring, child)
	}

	candidates := make([]*Timetable, 0, len(p.individuals)+len(offspring))
	candidates = append(candidates, p.individuals...)
	candidates = append(candidates, offspring...)

	candidateCosts := make([]float64, len(candidates))
	for i, ind := range candidates {
		c, err := cost(ctx, ind)
		if err != nil {
			return err
		}
		candidateCosts[i] = c
	}

	p.individuals = selectSurvivors(rng, candidates, candidateCosts, p.cfg)
	return nil
}

// selectParents picks the num_parents lowest-cost individuals.
func (p *Population) selectParents(costs []float64) []*Timetable {
	type scored struct {
		t *Timetable
		c float64
	}
	scoredList := make([]scored, len(p.individuals))
	for i, ind := range p.individuals {
		scoredList[i] = scored{ind, costs[i]}
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].c < scoredList[j].c })

	n := p.cfg.NumParents
	if n > len(scoredList) {
		n = len(scoredList)
	}
	parents := make([]*Timetable, n)
	for i := 0; i < n; i++ {
		parents[i] = scoredList[i].t
	}
	return parents
}

// selectSurvivors implements spec §4.4's survivor selection: elitism for the
// best guaranteed_surviving_parents, then either the full remainder (if it
// fits under popsize) or a ratio-based 1 − cost/Cmax acceptance sample.
func selectSurvivors(rng *rand.Rand, candidates []*Timetable, costs []float64, cfg PopulationConfig) []*Timetable {
	type scored struct {
		t *Timetable
		c float64
	}
	scoredList := make([]scored, len(candidates))
	cmax := 0.0
	for i, ind := range candidates {
		scoredList[i] = scored{ind, costs[i]}
		if costs[i] > cmax {
			cmax = costs[i]
		}
	}
	sort.Slice(scoredList, func(i, j int) bool { return scoredList[i].c < scoredList[j].c })

	elite := cfg.GuaranteedSurvivingParents
	if elite > len(scoredList) {
		elite = len(scoredList)
	}
	survivors := make([]*Timetable, 0, cfg.PopSize)
	for i := 0; i < elite; i++ {
		survivors = append(survivors, scoredList[i].t)
	}

	remaining := scoredList[elite:]
	if len(survivors)+len(remaining) <= cfg.PopSize {
		for _, s := range remaining {
			survivors = append(survivors, s.t)
		}
		return survivors
	}

	pool := make([]scored, len(remaining))
	copy(pool, remaining)

	for len(survivors) < cfg.PopSize && len(pool) > 0 {
		idx := rng.Intn(len(pool))
		candidate := pool[idx]
		pool[idx] = pool[len(pool)-1]
		pool = pool[:len(pool)-1]

		var acceptProb float64 = 1
		if cmax > 0 {
			acceptProb = 1 - candidate.c/cmax
		}
		if rng.Float64() < acceptProb {
			survivors = append(survivors, candidate.t)
		}
	}

	return survivors
}

// Best returns the lowest-cost individual in the current population.
func (p *Population) Best(ctx context.Context, cost CostFunc) (*Timetable, float64, error) {
	var best *Timetable
	bestCost := 0.0
	for _, ind := range p.individuals {
		c, err := cost(ctx, ind)
		if err != nil {
			return nil, 0, err
		}
		if best == nil || c < bestCost {
			best = ind
			bestCost = c
		}
	}
	return best, bestCost, nil
}

// Run steps the population generation by generation until the stopping
// condition fires or the hard cap is reached (a livelock safeguard beyond
// the pluggable stopping condition, spec §4.4), honoring context
// cancellation between generations — never mid-evaluation (spec §5).
func (p *Population) Run(ctx context.Context, rng *rand.Rand, cost CostFunc, stop StoppingCondition, hardCap int) (*Timetable, float64, error) {
	for gen := 1; gen <= hardCap; gen++ {
		select {
		case <-ctx.Done():
			best, bestCost, err := p.Best(ctx, cost)
			if err != nil {
				return nil, 0, err
			}
			return best, bestCost, appErrors.ErrCancelled
		default:
		}

		if err := p.Step(ctx, rng, cost); err != nil {
			return nil, 0, err
		}
		best, bestCost, err := p.Best(ctx, cost)
		if err != nil {
			return nil, 0, err
		}
		if stop(gen, bestCost) {
			return best, bestCost, nil
		}
	}
	return p.Best(ctx, cost)
}
